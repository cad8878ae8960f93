package repository

import (
	"context"
	"errors"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// emailSyncHistoryRepository implements EmailSyncHistoryRepository interface
type emailSyncHistoryRepository struct {
	db *gorm.DB
}

// NewEmailSyncHistoryRepository creates a new instance of emailSyncHistoryRepository
func NewEmailSyncHistoryRepository(db *gorm.DB) EmailSyncHistoryRepository {
	return &emailSyncHistoryRepository{
		db: db,
	}
}

func (r *emailSyncHistoryRepository) EnsureEmailSynced(ctx context.Context, userID, messageID string) (bool, error) {
	var history emaildomain.EmailSyncHistory

	now := time.Now()
	result := r.db.WithContext(ctx).Where("user_id = ? AND message_id = ?", userID, messageID).FirstOrCreate(&history, emaildomain.EmailSyncHistory{
		ID:        uuid.New().String(),
		UserID:    userID,
		MessageID: messageID,
		SyncedAt:  now,
		CreatedAt: now,
	})
	if result.Error != nil {
		// lost a race with another worker claiming the same record
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return true, nil
		}
		return false, result.Error
	}

	// RowsAffected is 0 when the row was found rather than created
	return result.RowsAffected == 0, nil
}

func (r *emailSyncHistoryRepository) DeleteSyncHistory(ctx context.Context, userID, messageID string) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND message_id = ?", userID, messageID).Delete(&emaildomain.EmailSyncHistory{}).Error
}

func (r *emailSyncHistoryRepository) ListUnsynced(ctx context.Context, limit int) ([]emaildomain.EmailRecord, error) {
	var records []emaildomain.EmailRecord
	q := r.db.WithContext(ctx).
		Table("email_records AS r").
		Select("r.*").
		Joins("LEFT JOIN email_sync_histories h ON h.user_id = r.user_id AND h.message_id = r.message_id").
		Where("h.id IS NULL").
		Where("(r.subject <> '' OR r.body_text <> '' OR r.snippet <> '')").
		Order("r.created_at ASC, r.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
