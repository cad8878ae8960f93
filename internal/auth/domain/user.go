package domain

import "time"

const (
	ProviderGoogle = "google"
	ProviderIMAP   = "imap"
)

// User is a mailbox owner. Credential fields hold values sealed by pkg/crypto
// and are never serialized. Cursor is the last history id (Gmail) or UID (IMAP)
// that was fully ingested.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Name         string    `json:"name"`
	Provider     string    `json:"provider"` // "google" or "imap"
	AccessToken  string    `json:"-" gorm:"type:text"`
	RefreshToken string    `json:"-" gorm:"type:text"`
	TokenExpiry  time.Time `json:"-"`
	ImapServer   string    `json:"imap_server,omitempty"`
	ImapPort     int       `json:"imap_port,omitempty"`
	ImapPassword string    `json:"-" gorm:"type:text"`
	Cursor       string    `json:"history_cursor" gorm:"column:history_cursor"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
