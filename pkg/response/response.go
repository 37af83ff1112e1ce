package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/ethanmsmith/whisperbox/pkg/errors"
)

// Statuses used in API payloads. PENDING marks a registration that is
// waiting for email verification.
const (
	StatusSuccess = "SUCCESS"
	StatusPending = "PENDING"
	StatusFailed  = "FAILED"
)

// Response defines the base API payload.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Status:  StatusSuccess,
		Message: message,
		Data:    data,
	})
}

// Pending writes a JSON response for an operation awaiting a follow-up step.
func Pending(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Status:  StatusPending,
		Message: message,
		Data:    data,
	})
}

// Error writes a JSON failure response derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Response{
		Status:  StatusFailed,
		Message: appErr.Message,
	})
}
