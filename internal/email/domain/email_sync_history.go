package domain

import "time"

// EmailSyncHistory records which stored messages have been pushed to the
// vector index, so each record is embedded once.
type EmailSyncHistory struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"uniqueIndex:idx_sync_user_message;not null"`
	MessageID string    `json:"message_id" gorm:"uniqueIndex:idx_sync_user_message;not null"`
	SyncedAt  time.Time `json:"synced_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (EmailSyncHistory) TableName() string {
	return "email_sync_histories"
}
