package response

import (
	"errors"
	"net/http"

	emaildomain "mailsync-backend/internal/email/domain"

	"github.com/gin-gonic/gin"
)

// StatusFor maps an error kind onto an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, emaildomain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, emaildomain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, emaildomain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, emaildomain.ErrAuth):
		return http.StatusUnprocessableEntity
	case errors.Is(err, emaildomain.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as {"error": "..."} with the status from StatusFor
func Error(c *gin.Context, err error) {
	c.JSON(StatusFor(err), gin.H{"error": err.Error()})
}
