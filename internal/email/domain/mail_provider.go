package domain

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc func(token *oauth2.Token) error

// Delta is the set of message ids changed since a cursor.
type Delta struct {
	MessageIDs   []string
	LatestCursor string
}

// MailProvider is a per-user client of the upstream mailbox.
// Failures wrap ErrAuth, ErrTransient or ErrNotFound.
type MailProvider interface {
	ListChangedMessageIDs(ctx context.Context, cursor string) (*Delta, error)
	FetchMessage(ctx context.Context, messageID string) (Payload, error)
	FetchAttachmentBytes(ctx context.Context, messageID, attachmentRef string) ([]byte, error)
}

// BlobStore persists attachment bytes and returns a stable reference to them.
// The reference is stored on the EmailRecord for good, so it must not expire.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) (string, error)
}

// DownloadURLResolver turns a stored reference into a URL a client can fetch
// now. Stores whose references are already public URLs don't implement it.
type DownloadURLResolver interface {
	ResolveDownloadURL(ctx context.Context, stored string) (string, error)
}
