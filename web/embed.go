// Package web holds the embedded HTML pages served by the application.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var assets embed.FS

// Static returns the page filesystem rooted at the static directory.
func Static() (fs.FS, error) {
	return fs.Sub(assets, "static")
}
