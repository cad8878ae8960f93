package gmail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc = emaildomain.TokenUpdateFunc

const (
	FormatFull = "full"
	FormatRaw  = "raw"

	user       = "me"
	inboxLabel = "INBOX"
)

// Service builds per-user Gmail clients. One circuit breaker is shared by
// every client so a Gmail outage fails fast for all users.
type Service struct {
	clientID         string
	clientSecret     string
	format           string
	initialSyncLimit int64
	cb               *gobreaker.CircuitBreaker
}

type notifyTokenSource struct {
	mu       sync.Mutex
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

func NewService(clientID, clientSecret, format string, initialSyncLimit int) *Service {
	if format != FormatRaw {
		format = FormatFull
	}
	if initialSyncLimit <= 0 {
		initialSyncLimit = 50
	}
	return &Service{
		clientID:         clientID,
		clientSecret:     clientSecret,
		format:           format,
		initialSyncLimit: int64(initialSyncLimit),
		cb:               newBreaker("gmail-api"),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// GetGmailService creates Gmail service with user's token
func (s *Service) GetGmailService(ctx context.Context, token *oauth2.Token, onTokenRefresh TokenUpdateFunc) (*gmail.Service, error) {
	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	// Wrap token source to detect refreshes
	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w: %v", emaildomain.ErrTransient, err)
	}
	return srv, nil
}

// NewClient returns a MailProvider bound to one user's mailbox
func (s *Service) NewClient(ctx context.Context, token *oauth2.Token, onTokenRefresh TokenUpdateFunc) (*Client, error) {
	srv, err := s.GetGmailService(ctx, token, onTokenRefresh)
	if err != nil {
		return nil, err
	}
	return s.WrapService(srv), nil
}

// WrapService adapts an already configured gmail.Service
func (s *Service) WrapService(srv *gmail.Service) *Client {
	return &Client{
		srv:              srv,
		format:           s.format,
		initialSyncLimit: s.initialSyncLimit,
		cb:               s.cb,
	}
}

// Watch sets up push notifications for the user's inbox and returns the
// mailbox history id at the time of the call
func (s *Service) Watch(ctx context.Context, token *oauth2.Token, topicName string, onTokenRefresh TokenUpdateFunc) (string, error) {
	srv, err := s.GetGmailService(ctx, token, onTokenRefresh)
	if err != nil {
		return "", err
	}

	// Only one watch per user is allowed; clear any previous one
	_ = srv.Users.Stop(user).Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{inboxLabel},
	}
	resp, err := srv.Users.Watch(user, req).Context(ctx).Do()
	if err != nil {
		return "", classifyError("watch mailbox", err)
	}
	log.Printf("[Gmail] Watch started. Expiration: %d, HistoryId: %d", resp.Expiration, resp.HistoryId)
	return strconv.FormatUint(resp.HistoryId, 10), nil
}

// Client implements emaildomain.MailProvider for Gmail
type Client struct {
	srv              *gmail.Service
	format           string
	initialSyncLimit int64
	cb               *gobreaker.CircuitBreaker
}

var _ emaildomain.MailProvider = (*Client)(nil)

// ListChangedMessageIDs pages through history since cursor. An empty or
// expired cursor falls back to the newest inbox messages.
func (c *Client) ListChangedMessageIDs(ctx context.Context, cursor string) (*emaildomain.Delta, error) {
	if cursor == "" {
		return c.initialDelta(ctx)
	}
	start, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("gmail cursor %q: %w", cursor, emaildomain.ErrValidation)
	}

	delta := &emaildomain.Delta{LatestCursor: cursor}
	seen := make(map[string]bool)
	pageToken := ""
	for {
		var resp *gmail.ListHistoryResponse
		err := c.execute("list history", func() error {
			call := c.srv.Users.History.List(user).
				StartHistoryId(start).
				HistoryTypes("messageAdded").
				LabelId(inboxLabel).
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			if errors.Is(err, emaildomain.ErrNotFound) {
				log.Printf("[Gmail] History cursor %s expired, falling back to initial sync", cursor)
				return c.initialDelta(ctx)
			}
			return nil, err
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				delta.MessageIDs = append(delta.MessageIDs, added.Message.Id)
			}
		}
		if resp.HistoryId != 0 {
			delta.LatestCursor = strconv.FormatUint(resp.HistoryId, 10)
		}
		if resp.NextPageToken == "" {
			return delta, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (c *Client) initialDelta(ctx context.Context) (*emaildomain.Delta, error) {
	var profile *gmail.Profile
	if err := c.execute("get profile", func() error {
		var err error
		profile, err = c.srv.Users.GetProfile(user).Context(ctx).Do()
		return err
	}); err != nil {
		return nil, err
	}

	var resp *gmail.ListMessagesResponse
	if err := c.execute("list messages", func() error {
		var err error
		resp, err = c.srv.Users.Messages.List(user).
			LabelIds(inboxLabel).
			MaxResults(c.initialSyncLimit).
			Context(ctx).
			Do()
		return err
	}); err != nil {
		return nil, err
	}

	// Gmail lists newest first; ingest oldest first
	ids := make([]string, 0, len(resp.Messages))
	for i := len(resp.Messages) - 1; i >= 0; i-- {
		ids = append(ids, resp.Messages[i].Id)
	}
	return &emaildomain.Delta{
		MessageIDs:   ids,
		LatestCursor: strconv.FormatUint(profile.HistoryId, 10),
	}, nil
}

func (c *Client) FetchMessage(ctx context.Context, messageID string) (emaildomain.Payload, error) {
	var msg *gmail.Message
	err := c.execute("get message", func() error {
		var err error
		msg, err = c.srv.Users.Messages.Get(user, messageID).Format(c.format).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return toPayload(msg, c.format)
}

func (c *Client) FetchAttachmentBytes(ctx context.Context, messageID, attachmentRef string) ([]byte, error) {
	var body *gmail.MessagePartBody
	err := c.execute("get attachment", func() error {
		var err error
		body, err = c.srv.Users.Messages.Attachments.Get(user, messageID, attachmentRef).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	data, err := decodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment %s: %w: %v", attachmentRef, emaildomain.ErrTransient, err)
	}
	return data, nil
}

// execute runs fn behind the circuit breaker. Client errors do not count
// toward tripping it.
func (c *Client) execute(operation string, fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		err = nce.err
	}
	if err != nil {
		log.Printf("[Gmail] %s failed: state=%s, err=%v", operation, c.cb.State().String(), err)
		return classifyError(operation, err)
	}
	return nil
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}
