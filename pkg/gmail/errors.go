package gmail

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	emaildomain "mailsync-backend/internal/email/domain"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// classifyError maps Gmail API failures onto the pipeline error kinds
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return fmt.Errorf("gmail %s: %w: %v", operation, emaildomain.ErrAuth, err)
		case apiErr.Code == http.StatusForbidden:
			if isRateLimit(apiErr) {
				return fmt.Errorf("gmail %s: rate limited: %w: %v", operation, emaildomain.ErrTransient, err)
			}
			return fmt.Errorf("gmail %s: %w: %v", operation, emaildomain.ErrAuth, err)
		case apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("gmail %s: %w: %v", operation, emaildomain.ErrNotFound, err)
		case apiErr.Code == http.StatusBadRequest:
			return fmt.Errorf("gmail %s: %w: %v", operation, emaildomain.ErrValidation, err)
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= 500:
			return fmt.Errorf("gmail %s: %w: %v", operation, emaildomain.ErrTransient, err)
		}
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("gmail %s: token refresh failed: %w: %v", operation, emaildomain.ErrAuth, err)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("gmail %s: circuit open: %w", operation, emaildomain.ErrTransient)
	}

	return fmt.Errorf("gmail %s: %w: %v", operation, emaildomain.ErrTransient, err)
}

func isRateLimit(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "rate limit")
}
