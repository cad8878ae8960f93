package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type emailRecordRepository struct {
	db *gorm.DB
}

// NewEmailRecordRepository creates a new instance of emailRecordRepository
func NewEmailRecordRepository(db *gorm.DB) EmailRecordRepository {
	return &emailRecordRepository{db: db}
}

func (r *emailRecordRepository) Exists(ctx context.Context, userID, messageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&emaildomain.EmailRecord{}).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Limit(1).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check record: %w: %v", emaildomain.ErrTransient, err)
	}
	return count > 0, nil
}

// InsertIfAbsent writes the record in one statement. The unique index on
// (user_id, message_id) makes a concurrent duplicate a no-op.
func (r *emailRecordRepository) InsertIfAbsent(ctx context.Context, record *emaildomain.EmailRecord) (bool, error) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.To == nil {
		record.To = emaildomain.StringArray{}
	}
	if record.Labels == nil {
		record.Labels = emaildomain.StringArray{}
	}
	if record.Attachments == nil {
		record.Attachments = emaildomain.AttachmentList{}
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "message_id"}},
		DoNothing: true,
	}).Create(record)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, fmt.Errorf("record %s/%s: %w", record.UserID, record.MessageID, emaildomain.ErrConflict)
		}
		return false, fmt.Errorf("insert record: %w: %v", emaildomain.ErrTransient, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *emailRecordRepository) FindByMessageID(ctx context.Context, userID, messageID string) (*emaildomain.EmailRecord, error) {
	var record emaildomain.EmailRecord
	err := r.db.WithContext(ctx).Where("user_id = ? AND message_id = ?", userID, messageID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("record %s: %w", messageID, emaildomain.ErrNotFound)
		}
		return nil, fmt.Errorf("find record: %w: %v", emaildomain.ErrTransient, err)
	}
	return &record, nil
}

func (r *emailRecordRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]emaildomain.EmailRecord, int64, error) {
	db := r.db.WithContext(ctx).Model(&emaildomain.EmailRecord{}).Where("user_id = ?", userID).Session(&gorm.Session{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count records: %w: %v", emaildomain.ErrTransient, err)
	}

	var records []emaildomain.EmailRecord
	err := db.Order("CASE WHEN date IS NULL THEN 1 ELSE 0 END, date DESC, created_at DESC").
		Limit(limit).Offset(offset).Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w: %v", emaildomain.ErrTransient, err)
	}
	return records, total, nil
}

func (r *emailRecordRepository) FindByMessageIDs(ctx context.Context, userID string, messageIDs []string) ([]emaildomain.EmailRecord, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var records []emaildomain.EmailRecord
	err := r.db.WithContext(ctx).Where("user_id = ? AND message_id IN ?", userID, messageIDs).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("find records: %w: %v", emaildomain.ErrTransient, err)
	}
	return records, nil
}
