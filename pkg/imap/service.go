package imap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

const inbox = "INBOX"

// Service builds per-user IMAP clients
type Service struct {
	initialSyncLimit int
	dialTimeout      time.Duration
	// Insecure dials without TLS; only for local test servers
	Insecure bool
}

func NewService(initialSyncLimit int) *Service {
	if initialSyncLimit <= 0 {
		initialSyncLimit = 50
	}
	return &Service{initialSyncLimit: initialSyncLimit, dialTimeout: 15 * time.Second}
}

// NewClient returns a MailProvider for one mailbox. The connection is opened
// lazily and must be released with Close.
func (s *Service) NewClient(server string, port int, username, password string) *Client {
	return &Client{
		addr:             net.JoinHostPort(server, strconv.Itoa(port)),
		server:           server,
		username:         username,
		password:         password,
		initialSyncLimit: s.initialSyncLimit,
		dialTimeout:      s.dialTimeout,
		insecure:         s.Insecure,
	}
}

// Client implements emaildomain.MailProvider over IMAP. Message ids and
// cursors are INBOX UIDs.
type Client struct {
	addr             string
	server           string
	username         string
	password         string
	initialSyncLimit int
	dialTimeout      time.Duration
	insecure         bool

	mu   sync.Mutex
	conn *client.Client
	box  *imap.MailboxStatus
}

var _ emaildomain.MailProvider = (*Client)(nil)

func (c *Client) connect(ctx context.Context) (*client.Client, error) {
	if c.conn != nil {
		return c.conn, nil
	}

	dialer := &net.Dialer{Timeout: c.dialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	var conn *client.Client
	var err error
	if c.insecure {
		conn, err = client.DialWithDialer(dialer, c.addr)
	} else {
		conn, err = client.DialWithDialerTLS(dialer, c.addr, &tls.Config{ServerName: c.server})
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w: %v", c.addr, emaildomain.ErrTransient, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.Timeout = time.Until(deadline)
	}

	if err := conn.Login(c.username, c.password); err != nil {
		_ = conn.Logout()
		return nil, fmt.Errorf("imap login %s: %w: %v", c.username, emaildomain.ErrAuth, err)
	}

	// read-only so fetching bodies does not set \Seen
	box, err := conn.Select(inbox, true)
	if err != nil {
		_ = conn.Logout()
		return nil, fmt.Errorf("imap select %s: %w: %v", inbox, emaildomain.ErrTransient, err)
	}

	c.conn = conn
	c.box = box
	return conn, nil
}

// Close logs out and drops the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout()
	c.conn = nil
	c.box = nil
	return err
}

// drop discards a connection that failed mid-command
func (c *Client) drop() {
	if c.conn != nil {
		_ = c.conn.Terminate()
		c.conn = nil
		c.box = nil
	}
}

func (c *Client) ListChangedMessageIDs(ctx context.Context, cursor string) (*emaildomain.Delta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var last uint32
	if cursor != "" {
		v, err := strconv.ParseUint(cursor, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("imap cursor %q: %w", cursor, emaildomain.ErrValidation)
		}
		last = uint32(v)
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	if cursor != "" {
		criteria.Uid = new(imap.SeqSet)
		criteria.Uid.AddRange(last+1, 0)
	}
	uids, err := conn.UidSearch(criteria)
	if err != nil {
		c.drop()
		return nil, fmt.Errorf("imap search: %w: %v", emaildomain.ErrTransient, err)
	}

	// "n:*" always matches the highest UID even when it is below n
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	filtered := uids[:0]
	for _, uid := range uids {
		if uid > last {
			filtered = append(filtered, uid)
		}
	}
	if cursor == "" && len(filtered) > c.initialSyncLimit {
		filtered = filtered[len(filtered)-c.initialSyncLimit:]
	}

	delta := &emaildomain.Delta{LatestCursor: cursor}
	for _, uid := range filtered {
		delta.MessageIDs = append(delta.MessageIDs, strconv.FormatUint(uint64(uid), 10))
	}
	switch {
	case len(filtered) > 0:
		delta.LatestCursor = delta.MessageIDs[len(delta.MessageIDs)-1]
	case cursor == "" && c.box != nil && c.box.UidNext > 0:
		delta.LatestCursor = strconv.FormatUint(uint64(c.box.UidNext-1), 10)
	}
	return delta, nil
}

func (c *Client) FetchMessage(ctx context.Context, messageID string) (emaildomain.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("imap message id %q: %w", messageID, emaildomain.ErrValidation)
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- conn.UidFetch(seqset, items, messages)
	}()

	var payload *emaildomain.RawPayload
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		payload = &emaildomain.RawPayload{
			MessageID:    messageID,
			HistoryID:    messageID,
			LabelIDs:     []string{inbox},
			InternalDate: msg.InternalDate,
			Raw:          raw,
		}
	}
	if err := <-done; err != nil {
		c.drop()
		return nil, fmt.Errorf("imap fetch %s: %w: %v", messageID, emaildomain.ErrTransient, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("imap message %s: %w", messageID, emaildomain.ErrNotFound)
	}
	return payload, nil
}

// FetchAttachmentBytes is never needed: raw payloads carry attachments inline.
func (c *Client) FetchAttachmentBytes(ctx context.Context, messageID, attachmentRef string) ([]byte, error) {
	return nil, fmt.Errorf("imap attachment %s/%s: %w", messageID, attachmentRef, errInlineOnly)
}

var errInlineOnly = errors.New("imap attachments are inline in the raw message")
