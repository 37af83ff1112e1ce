package handlers

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/ethanmsmith/whisperbox/pkg/errors"
	"github.com/ethanmsmith/whisperbox/pkg/response"
	"github.com/ethanmsmith/whisperbox/pkg/validator"
)

// bindAndValidate binds the request payload into T and runs struct
// validation. On failure it writes the error response and reports false.
// ShouldBind picks the decoder from the content type, so both JSON clients
// and HTML form posts land in the same structs.
func bindAndValidate[T any](c *gin.Context, emptyMessage string) (*T, bool) {
	var req T

	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, apperrors.NewBadRequest(emptyMessage).WithInternal(err))
		return nil, false
	}

	if err := validator.ValidateStruct(req); err != nil {
		response.Error(c, apperrors.NewBadRequest(emptyMessage).WithInternal(err))
		return nil, false
	}

	return &req, true
}

// wantsHTML reports whether the client is a browser form submission rather
// than an API caller, which decides between redirects and JSON payloads.
func wantsHTML(c *gin.Context) bool {
	contentType := c.ContentType()
	return contentType == "application/x-www-form-urlencoded" ||
		contentType == "multipart/form-data"
}
