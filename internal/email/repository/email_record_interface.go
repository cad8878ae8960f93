package repository

import (
	"context"

	emaildomain "mailsync-backend/internal/email/domain"
)

// EmailRecordRepository stores normalized messages. Records are write-once.
type EmailRecordRepository interface {
	// Exists is the dedup gate checked before any upstream fetch
	Exists(ctx context.Context, userID, messageID string) (bool, error)
	// InsertIfAbsent returns false when (user_id, message_id) is already stored
	InsertIfAbsent(ctx context.Context, record *emaildomain.EmailRecord) (bool, error)
	FindByMessageID(ctx context.Context, userID, messageID string) (*emaildomain.EmailRecord, error)
	// ListByUser returns newest first; undated records sort last
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]emaildomain.EmailRecord, int64, error)
	FindByMessageIDs(ctx context.Context, userID string, messageIDs []string) ([]emaildomain.EmailRecord, error)
}
