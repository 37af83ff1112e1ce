package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PagesHandler serves the embedded HTML pages.
type PagesHandler struct {
	pages map[string][]byte
}

// NewPagesHandler loads the named pages from the provided filesystem up
// front so a missing asset fails at startup instead of per request.
func NewPagesHandler(assets fs.FS, names ...string) (*PagesHandler, error) {
	if assets == nil {
		return nil, errors.New("pages handler: assets filesystem is required")
	}

	pages := make(map[string][]byte, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(assets, name+".html")
		if err != nil {
			return nil, fmt.Errorf("pages handler: load %s: %w", name, err)
		}
		pages[name] = content
	}

	return &PagesHandler{pages: pages}, nil
}

// Serve returns a handler that writes the named page.
func (h *PagesHandler) Serve(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		content, ok := h.pages[name]
		if !ok {
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", content)
	}
}
