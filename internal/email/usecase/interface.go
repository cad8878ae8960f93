package usecase

import (
	"context"

	authdomain "mailsync-backend/internal/auth/domain"
	emaildomain "mailsync-backend/internal/email/domain"
	notificationdomain "mailsync-backend/internal/notification/domain"
)

// NotificationStore is the part of the notification queue the worker drives
type NotificationStore interface {
	Get(ctx context.Context, id string) (*notificationdomain.PendingNotification, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id string) error
	MarkError(ctx context.Context, id, kind, message string) error
}

// IdentityProvider resolves the mailbox owner named by a notification.
// Unknown users return an error wrapping emaildomain.ErrNotFound.
type IdentityProvider interface {
	ResolveUser(ctx context.Context, email string) (*authdomain.User, error)
}

// ProviderFactory builds a MailProvider authenticated as user. Providers that
// hold a connection also implement io.Closer.
type ProviderFactory interface {
	ForUser(ctx context.Context, user *authdomain.User) (emaildomain.MailProvider, error)
}

// CursorStore moves a user's delta cursor forward
type CursorStore interface {
	AdvanceCursor(ctx context.Context, userID, cursor string) (bool, error)
}

// IngestListener is told about records a notification newly inserted.
// Implementations must not block; failures are theirs to log.
type IngestListener interface {
	OnIngested(ctx context.Context, user *authdomain.User, records []*emaildomain.EmailRecord)
}

// EmailUsecase is the read side exposed over HTTP
type EmailUsecase interface {
	ListEmails(ctx context.Context, userID string, limit, offset int) ([]emaildomain.EmailRecord, int64, error)
	GetEmail(ctx context.Context, userID, messageID string) (*emaildomain.EmailRecord, error)
	SemanticSearch(ctx context.Context, userID, query string, limit int) ([]emaildomain.EmailRecord, error)
}
