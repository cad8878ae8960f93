package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"
	notificationdomain "mailsync-backend/internal/notification/domain"

	"gorm.io/gorm"
)

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new instance of notificationRepository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *notificationdomain.PendingNotification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("insert notification: %w: %v", emaildomain.ErrTransient, err)
	}
	return nil
}

func (r *notificationRepository) FindByID(ctx context.Context, id string) (*notificationdomain.PendingNotification, error) {
	var n notificationdomain.PendingNotification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("notification %s: %w", id, emaildomain.ErrNotFound)
		}
		return nil, fmt.Errorf("find notification: %w: %v", emaildomain.ErrTransient, err)
	}
	return &n, nil
}

func (r *notificationRepository) Transition(ctx context.Context, id string, status notificationdomain.Status, countAttempt bool, errorKind string, errorMessage *string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_kind":    errorKind,
		"error_message": errorMessage,
		"updated_at":    time.Now(),
	}
	if countAttempt {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}
	result := r.db.WithContext(ctx).Model(&notificationdomain.PendingNotification{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update notification: %w: %v", emaildomain.ErrTransient, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", id, emaildomain.ErrNotFound)
	}
	return nil
}

func (r *notificationRepository) ListByStatus(ctx context.Context, status notificationdomain.Status, limit int) ([]notificationdomain.PendingNotification, error) {
	var out []notificationdomain.PendingNotification
	q := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w: %v", emaildomain.ErrTransient, err)
	}
	return out, nil
}

func (r *notificationRepository) ListUpdatedBefore(ctx context.Context, status notificationdomain.Status, cutoff time.Time, limit int) ([]notificationdomain.PendingNotification, error) {
	var out []notificationdomain.PendingNotification
	q := r.db.WithContext(ctx).Where("status = ? AND updated_at < ?", status, cutoff).Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w: %v", emaildomain.ErrTransient, err)
	}
	return out, nil
}

func (r *notificationRepository) ListRetryable(ctx context.Context, maxAttempts int, excludedKinds []string, limit int) ([]notificationdomain.PendingNotification, error) {
	var out []notificationdomain.PendingNotification
	q := r.db.WithContext(ctx).Where("status = ? AND attempts < ?", notificationdomain.StatusError, maxAttempts)
	if len(excludedKinds) > 0 {
		q = q.Where("error_kind NOT IN ?", excludedKinds)
	}
	q = q.Order("updated_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list retryable notifications: %w: %v", emaildomain.ErrTransient, err)
	}
	return out, nil
}
