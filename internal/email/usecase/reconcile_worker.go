package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	authdomain "mailsync-backend/internal/auth/domain"
	emaildomain "mailsync-backend/internal/email/domain"
	"mailsync-backend/internal/email/repository"
	notificationdomain "mailsync-backend/internal/notification/domain"
)

var errUserNotFound = fmt.Errorf("user not found: %w", emaildomain.ErrNotFound)

// WorkerOptions bounds the time and parallelism of one Process call
type WorkerOptions struct {
	CallTimeout           time.Duration
	ProcessingTimeout     time.Duration
	AttachmentConcurrency int
}

// ReconcileWorker turns one pending notification into stored EmailRecords.
// It is safe to run concurrently for the same user: the (user, message)
// unique key and the compare-and-set cursor make a second run a no-op.
type ReconcileWorker struct {
	queue     NotificationStore
	identity  IdentityProvider
	providers ProviderFactory
	records   repository.EmailRecordRepository
	cursors   CursorStore
	blobs     emaildomain.BlobStore
	listeners []IngestListener
	opts      WorkerOptions
}

func NewReconcileWorker(
	queue NotificationStore,
	identity IdentityProvider,
	providers ProviderFactory,
	records repository.EmailRecordRepository,
	cursors CursorStore,
	blobs emaildomain.BlobStore,
	opts WorkerOptions,
) *ReconcileWorker {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.ProcessingTimeout <= 0 {
		opts.ProcessingTimeout = 5 * time.Minute
	}
	if opts.AttachmentConcurrency <= 0 {
		opts.AttachmentConcurrency = 4
	}
	return &ReconcileWorker{
		queue:     queue,
		identity:  identity,
		providers: providers,
		records:   records,
		cursors:   cursors,
		blobs:     blobs,
		opts:      opts,
	}
}

// AddListener registers a post-ingest listener
func (w *ReconcileWorker) AddListener(l IngestListener) {
	w.listeners = append(w.listeners, l)
}

// Process drives one notification from pending to done or error.
// The returned error is the one recorded on the notification.
func (w *ReconcileWorker) Process(ctx context.Context, notificationID string) error {
	ctx, cancel := context.WithTimeout(ctx, w.opts.ProcessingTimeout)
	defer cancel()

	n, err := w.queue.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.Status == notificationdomain.StatusDone {
		log.Printf("[Reconcile] Notification %s already done, skipping", n.ID)
		return nil
	}
	if err := w.queue.MarkProcessing(ctx, n.ID); err != nil {
		return err
	}

	user, inserted, err := w.reconcile(ctx, n)
	if err != nil {
		w.fail(ctx, n.ID, err)
		return err
	}

	if err := w.queue.MarkDone(ctx, n.ID); err != nil {
		return err
	}
	log.Printf("[Reconcile] Notification %s done: %d new records for %s", n.ID, len(inserted), user.Email)

	if len(inserted) > 0 {
		for _, l := range w.listeners {
			l.OnIngested(ctx, user, inserted)
		}
	}
	return nil
}

// fail records err on the notification even if ctx has already expired
func (w *ReconcileWorker) fail(ctx context.Context, id string, err error) {
	kind := emaildomain.KindOf(err)
	message := err.Error()
	if errors.Is(err, errUserNotFound) {
		message = "user not found"
	}
	log.Printf("[Reconcile] Notification %s failed (%s): %v", id, kind, err)

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.CallTimeout)
	defer cancel()
	if markErr := w.queue.MarkError(markCtx, id, kind, message); markErr != nil {
		log.Printf("[Reconcile] Failed to mark notification %s as error: %v", id, markErr)
	}
}

func (w *ReconcileWorker) reconcile(ctx context.Context, n *notificationdomain.PendingNotification) (*authdomain.User, []*emaildomain.EmailRecord, error) {
	email := strings.TrimSpace(n.UserEmail)
	if email == "" {
		return nil, nil, fmt.Errorf("notification has no user email: %w", emaildomain.ErrValidation)
	}
	if strings.TrimSpace(n.DeltaCursor) == "" {
		return nil, nil, fmt.Errorf("notification has no delta cursor: %w", emaildomain.ErrValidation)
	}

	user, err := callValue(ctx, w.opts.CallTimeout, func(ctx context.Context) (*authdomain.User, error) {
		return w.identity.ResolveUser(ctx, email)
	})
	if err != nil {
		if errors.Is(err, emaildomain.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", email, errUserNotFound)
		}
		return nil, nil, err
	}

	provider, err := w.providers.ForUser(ctx, user)
	if err != nil {
		return user, nil, err
	}
	if closer, ok := provider.(io.Closer); ok {
		defer closer.Close()
	}

	// The notification cursor is a hint; the stored cursor is authoritative
	if emaildomain.CompareCursor(n.DeltaCursor, user.Cursor) <= 0 {
		log.Printf("[Reconcile] Notification cursor %s is not newer than stored cursor %q for %s", n.DeltaCursor, user.Cursor, user.Email)
	}

	delta, err := callValue(ctx, w.opts.CallTimeout, func(ctx context.Context) (*emaildomain.Delta, error) {
		return provider.ListChangedMessageIDs(ctx, user.Cursor)
	})
	if err != nil {
		return user, nil, err
	}
	log.Printf("[Reconcile] %d changed messages for %s since %q (provider latest %s)", len(delta.MessageIDs), user.Email, user.Cursor, delta.LatestCursor)

	var inserted []*emaildomain.EmailRecord
	highest := ""
	for _, messageID := range delta.MessageIDs {
		if err := ctx.Err(); err != nil {
			return user, inserted, fmt.Errorf("reconcile interrupted: %w: %v", emaildomain.ErrTransient, err)
		}

		record, historyID, err := w.ingestMessage(ctx, provider, user, messageID)
		highest = emaildomain.MaxCursor(highest, historyID)
		if err != nil {
			return user, inserted, err
		}
		if record != nil {
			inserted = append(inserted, record)
		}
	}

	if highest != "" {
		advanced, err := callValue(ctx, w.opts.CallTimeout, func(ctx context.Context) (bool, error) {
			return w.cursors.AdvanceCursor(ctx, user.ID, highest)
		})
		if err != nil {
			return user, inserted, err
		}
		if advanced {
			user.Cursor = highest
		}
	}
	return user, inserted, nil
}

// ingestMessage stores one message. It returns the new record (nil when the
// message was skipped or already present) and the history id it observed.
func (w *ReconcileWorker) ingestMessage(ctx context.Context, provider emaildomain.MailProvider, user *authdomain.User, messageID string) (*emaildomain.EmailRecord, string, error) {
	exists, err := callValue(ctx, w.opts.CallTimeout, func(ctx context.Context) (bool, error) {
		return w.records.Exists(ctx, user.ID, messageID)
	})
	if err != nil {
		return nil, "", err
	}
	if exists {
		return nil, "", nil
	}

	payload, err := callValue(ctx, w.opts.CallTimeout, func(ctx context.Context) (emaildomain.Payload, error) {
		return provider.FetchMessage(ctx, messageID)
	})
	if err != nil {
		switch {
		case errors.Is(err, emaildomain.ErrNotFound):
			log.Printf("[Reconcile] Message %s vanished upstream, skipping", messageID)
			return nil, "", nil
		case errors.Is(err, emaildomain.ErrValidation):
			log.Printf("[Reconcile] Message %s cannot be decoded, skipping: %v", messageID, err)
			return nil, "", nil
		}
		return nil, "", err
	}
	historyID := payload.ProviderHistoryID()

	msg, err := NormalizePayload(user.ID, payload)
	if err != nil {
		if errors.Is(err, emaildomain.ErrValidation) {
			log.Printf("[Reconcile] Skipping malformed message %s: %v", messageID, err)
			return nil, historyID, nil
		}
		return nil, historyID, err
	}

	stored, err := w.uploadAttachments(ctx, provider, msg)
	if err != nil {
		return nil, historyID, fmt.Errorf("message %s: %w", messageID, err)
	}
	msg.Record.Attachments = stored

	ok, err := callValue(ctx, w.opts.CallTimeout, func(ctx context.Context) (bool, error) {
		return w.records.InsertIfAbsent(ctx, msg.Record)
	})
	if err != nil {
		if errors.Is(err, emaildomain.ErrConflict) {
			return nil, historyID, nil
		}
		return nil, historyID, err
	}
	if !ok {
		return nil, historyID, nil
	}
	return msg.Record, historyID, nil
}

// callValue runs fn under the per-call timeout
func callValue[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}
