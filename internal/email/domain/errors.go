package domain

import (
	"context"
	"errors"
)

// Error kinds shared by every step of the ingestion pipeline.
// Wrap them with fmt.Errorf("...: %w", ErrX) and test with errors.Is.
var (
	// ErrValidation marks malformed input; retrying the same input fails identically
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing user, notification or upstream message
	ErrNotFound = errors.New("not found")
	// ErrTransient marks network, timeout and rate-limit failures
	ErrTransient = errors.New("transient error")
	// ErrAuth marks an expired or revoked provider credential
	ErrAuth = errors.New("auth error")
	// ErrConflict marks a duplicate insert race on a unique key
	ErrConflict = errors.New("conflict")
)

// Kind names persisted alongside a failed notification.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindTransient  = "transient"
	KindAuth       = "auth"
	KindConflict   = "conflict"
	KindUnknown    = "unknown"
)

// KindOf maps an error onto the taxonomy above.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAuth):
		return KindAuth
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsRetryableKind reports whether an orchestrator may re-drive a notification
// that failed with the given kind. Validation errors repeat identically and
// auth errors need the user to re-authorize.
func IsRetryableKind(kind string) bool {
	for _, k := range NonRetryableKinds() {
		if k == kind {
			return false
		}
	}
	return true
}

// NonRetryableKinds lists the kinds IsRetryableKind rejects
func NonRetryableKinds() []string {
	return []string{KindValidation, KindAuth}
}
