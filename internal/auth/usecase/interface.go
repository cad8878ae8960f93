package usecase

import (
	"context"

	authdomain "mailsync-backend/internal/auth/domain"
	authdto "mailsync-backend/internal/auth/dto"
	emaildomain "mailsync-backend/internal/email/domain"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Claims carried by access tokens
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// MailboxWatcher registers Gmail push notifications for a mailbox
type MailboxWatcher interface {
	Watch(ctx context.Context, token *oauth2.Token, topicName string, onTokenRefresh emaildomain.TokenUpdateFunc) (string, error)
}

type AuthUsecase interface {
	IssueAccessToken(userID, email string) (string, error)
	ParseToken(tokenString string) (*Claims, error)
	ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error)
	// ResolveUser looks up the mailbox owner named by a push notification
	ResolveUser(ctx context.Context, email string) (*authdomain.User, error)
	RegisterMailbox(ctx context.Context, req *authdto.RegisterMailboxRequest) (*authdto.MailboxResponse, error)
	RegisterFCMToken(ctx context.Context, userID string, req *authdto.RegisterFCMTokenRequest) error
	// UnregisterFCMToken removes one of userID's own device tokens
	UnregisterFCMToken(ctx context.Context, userID, token string) error
	WatchMailbox(ctx context.Context, userID string) (string, error)
	// ResetCursor overwrites a user's cursor; an empty cursor forces an initial sync
	ResetCursor(ctx context.Context, userID, cursor string) error
}
