package dto

import (
	"time"

	authdomain "mailsync-backend/internal/auth/domain"
)

// RegisterMailboxRequest enrolls a mailbox for ingestion. Google mailboxes
// carry OAuth tokens; IMAP mailboxes carry server credentials.
type RegisterMailboxRequest struct {
	Email        string    `json:"email" binding:"required,email"`
	Name         string    `json:"name"`
	Provider     string    `json:"provider" binding:"required,oneof=google imap"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenExpiry  time.Time `json:"token_expiry"`
	ImapServer   string    `json:"imap_server"`
	ImapPort     int       `json:"imap_port"`
	ImapPassword string    `json:"imap_password"`
	Cursor       string    `json:"history_cursor"`
}

type RegisterFCMTokenRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceInfo string `json:"device_info"`
}

type MailboxResponse struct {
	AccessToken string           `json:"access_token"`
	User        *authdomain.User `json:"user"`
}

type WatchResponse struct {
	HistoryID string `json:"history_id"`
}
