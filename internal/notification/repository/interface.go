package repository

import (
	"context"
	"time"

	notificationdomain "mailsync-backend/internal/notification/domain"
)

// NotificationRepository persists the pending-notification queue
type NotificationRepository interface {
	Create(ctx context.Context, n *notificationdomain.PendingNotification) error
	FindByID(ctx context.Context, id string) (*notificationdomain.PendingNotification, error)
	// Transition sets status (and error fields) and bumps attempts when countAttempt is true
	Transition(ctx context.Context, id string, status notificationdomain.Status, countAttempt bool, errorKind string, errorMessage *string) error
	ListByStatus(ctx context.Context, status notificationdomain.Status, limit int) ([]notificationdomain.PendingNotification, error)
	// ListUpdatedBefore returns rows in status whose updated_at is older than cutoff, oldest first
	ListUpdatedBefore(ctx context.Context, status notificationdomain.Status, cutoff time.Time, limit int) ([]notificationdomain.PendingNotification, error)
	// ListRetryable returns error rows below maxAttempts whose kind is not in
	// excludedKinds, least recently updated first
	ListRetryable(ctx context.Context, maxAttempts int, excludedKinds []string, limit int) ([]notificationdomain.PendingNotification, error)
}
