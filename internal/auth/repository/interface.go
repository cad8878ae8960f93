package repository

import (
	"context"
	"time"

	authdomain "mailsync-backend/internal/auth/domain"
)

// UserRepository defines persistence for mailbox owners and their delta cursor
type UserRepository interface {
	Create(ctx context.Context, user *authdomain.User) error
	FindByEmail(ctx context.Context, email string) (*authdomain.User, error)
	FindByID(ctx context.Context, id string) (*authdomain.User, error)
	// UpdateTokens stores sealed OAuth tokens after a refresh
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error
	// UpdateCursor overwrites the cursor unconditionally
	UpdateCursor(ctx context.Context, userID, cursor string) error
	// AdvanceCursor moves the cursor forward only; returns false when the
	// stored cursor is already at or past the given one
	AdvanceCursor(ctx context.Context, userID, cursor string) (bool, error)
}
