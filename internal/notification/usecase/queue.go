package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"
	notificationdomain "mailsync-backend/internal/notification/domain"
	"mailsync-backend/internal/notification/repository"

	"github.com/google/uuid"
)

// NotificationQueue is the durable FIFO of pending notifications and its
// status state machine: pending -> processing -> done | error.
type NotificationQueue interface {
	Enqueue(ctx context.Context, userEmail, deltaCursor string) (*notificationdomain.PendingNotification, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id string) error
	MarkError(ctx context.Context, id, kind, message string) error
	Get(ctx context.Context, id string) (*notificationdomain.PendingNotification, error)
	ListByStatus(ctx context.Context, status notificationdomain.Status, limit int) ([]notificationdomain.PendingNotification, error)
	// FindStuck lists processing items untouched since before now-olderThan
	FindStuck(ctx context.Context, olderThan time.Duration) ([]notificationdomain.PendingNotification, error)
	// FindRetryable lists error items an orchestrator may re-drive
	FindRetryable(ctx context.Context, maxAttempts int) ([]notificationdomain.PendingNotification, error)
	// FindOrphaned lists pending items no worker has picked up since before now-olderThan
	FindOrphaned(ctx context.Context, olderThan time.Duration) ([]notificationdomain.PendingNotification, error)
}

const listBatchSize = 500

type notificationQueue struct {
	repo repository.NotificationRepository
	now  func() time.Time
}

// NewNotificationQueue creates a queue backed by the given repository
func NewNotificationQueue(repo repository.NotificationRepository) NotificationQueue {
	return &notificationQueue{repo: repo, now: time.Now}
}

func (q *notificationQueue) Enqueue(ctx context.Context, userEmail, deltaCursor string) (*notificationdomain.PendingNotification, error) {
	userEmail = strings.TrimSpace(userEmail)
	deltaCursor = strings.TrimSpace(deltaCursor)
	if userEmail == "" {
		return nil, fmt.Errorf("enqueue: user email is empty: %w", emaildomain.ErrValidation)
	}
	if deltaCursor == "" {
		return nil, fmt.Errorf("enqueue: delta cursor is empty: %w", emaildomain.ErrValidation)
	}

	now := q.now()
	n := &notificationdomain.PendingNotification{
		ID:          uuid.New().String(),
		UserEmail:   userEmail,
		DeltaCursor: deltaCursor,
		Status:      notificationdomain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (q *notificationQueue) MarkProcessing(ctx context.Context, id string) error {
	return q.repo.Transition(ctx, id, notificationdomain.StatusProcessing, true, "", nil)
}

func (q *notificationQueue) MarkDone(ctx context.Context, id string) error {
	return q.repo.Transition(ctx, id, notificationdomain.StatusDone, false, "", nil)
}

func (q *notificationQueue) MarkError(ctx context.Context, id, kind, message string) error {
	if kind == "" {
		kind = emaildomain.KindUnknown
	}
	return q.repo.Transition(ctx, id, notificationdomain.StatusError, true, kind, &message)
}

func (q *notificationQueue) Get(ctx context.Context, id string) (*notificationdomain.PendingNotification, error) {
	return q.repo.FindByID(ctx, id)
}

func (q *notificationQueue) ListByStatus(ctx context.Context, status notificationdomain.Status, limit int) ([]notificationdomain.PendingNotification, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, emaildomain.ErrValidation)
	}
	return q.repo.ListByStatus(ctx, status, limit)
}

func (q *notificationQueue) FindStuck(ctx context.Context, olderThan time.Duration) ([]notificationdomain.PendingNotification, error) {
	return q.repo.ListUpdatedBefore(ctx, notificationdomain.StatusProcessing, q.now().Add(-olderThan), listBatchSize)
}

func (q *notificationQueue) FindOrphaned(ctx context.Context, olderThan time.Duration) ([]notificationdomain.PendingNotification, error) {
	return q.repo.ListUpdatedBefore(ctx, notificationdomain.StatusPending, q.now().Add(-olderThan), listBatchSize)
}

func (q *notificationQueue) FindRetryable(ctx context.Context, maxAttempts int) ([]notificationdomain.PendingNotification, error) {
	return q.repo.ListRetryable(ctx, maxAttempts, emaildomain.NonRetryableKinds(), listBatchSize)
}
