package repository

import (
	"context"

	emaildomain "mailsync-backend/internal/email/domain"
)

// EmailSyncHistoryRepository tracks which records reached the vector index
type EmailSyncHistoryRepository interface {
	// EnsureEmailSynced claims the record for indexing in one query.
	// Returns true when it had already been claimed.
	EnsureEmailSynced(ctx context.Context, userID, messageID string) (bool, error)
	// DeleteSyncHistory releases a claim after a failed index write
	DeleteSyncHistory(ctx context.Context, userID, messageID string) error
	// ListUnsynced returns stored records with indexable text and no claim,
	// oldest first
	ListUnsynced(ctx context.Context, limit int) ([]emaildomain.EmailRecord, error)
}
