package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ethanmsmith/whisperbox/internal/services"
	"github.com/ethanmsmith/whisperbox/pkg/logger"
)

// VerifyHandler consumes emailed verification links.
type VerifyHandler struct {
	verifications *services.VerificationService
}

// NewVerifyHandler constructs the verification handler.
func NewVerifyHandler(verifications *services.VerificationService) (*VerifyHandler, error) {
	if verifications == nil {
		return nil, errors.New("verify handler: verification service is required")
	}
	return &VerifyHandler{verifications: verifications}, nil
}

// Verify handles GET /verify/:userId/:uniqueString. Both outcomes are
// browser redirects because the link is opened from an email client.
func (h *VerifyHandler) Verify(c *gin.Context) {
	userID := c.Param("userId")
	uniqueString := c.Param("uniqueString")

	err := h.verifications.Consume(c.Request.Context(), userID, uniqueString)
	if err == nil {
		c.Redirect(http.StatusSeeOther, "/verified")
		return
	}

	var message string
	switch {
	case errors.Is(err, services.ErrVerificationNotFound):
		message = "Account record doesn't exist or has been verified already. Please sign up or log in."
	case errors.Is(err, services.ErrVerificationExpired):
		message = "Link has expired. Please sign up again."
	case errors.Is(err, services.ErrVerificationInvalid):
		message = "Invalid verification details passed. Check your inbox."
	default:
		logger.Error("verification failed",
			zap.String("user_id", userID),
			zap.Error(err))
		message = "An error occurred while verifying your email. Please try again later."
	}

	c.Redirect(http.StatusSeeOther, "/error?message="+url.QueryEscape(message))
}
