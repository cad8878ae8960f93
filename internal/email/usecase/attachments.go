package usecase

import (
	"context"
	"fmt"
	"strings"

	emaildomain "mailsync-backend/internal/email/domain"

	"golang.org/x/sync/errgroup"
)

// AttachmentPath is deterministic so a retried upload overwrites the same
// object instead of orphaning a new one.
func AttachmentPath(userID, messageID string, index int, filename string) string {
	return fmt.Sprintf("users/%s/messages/%s/%d-%s", userID, messageID, index, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "attachment"
	}
	return name
}

// uploadAttachments fetches and uploads every attachment of msg in parallel.
// The first failure cancels the rest and is returned; nothing is persisted
// by the caller in that case.
func (w *ReconcileWorker) uploadAttachments(ctx context.Context, provider emaildomain.MailProvider, msg *emaildomain.NormalizedMessage) (emaildomain.AttachmentList, error) {
	stored := make(emaildomain.AttachmentList, len(msg.Attachments))
	if len(msg.Attachments) == 0 {
		return stored, nil
	}

	record := msg.Record
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.AttachmentConcurrency)

	for i, att := range msg.Attachments {
		g.Go(func() error {
			data := att.Data
			if data == nil {
				var err error
				data, err = callValue(gctx, w.opts.CallTimeout, func(ctx context.Context) ([]byte, error) {
					return provider.FetchAttachmentBytes(ctx, record.MessageID, att.Ref)
				})
				if err != nil {
					return fmt.Errorf("fetch attachment %s: %w", att.Ref, err)
				}
			}

			path := AttachmentPath(record.UserID, record.MessageID, i, att.Filename)
			metadata := map[string]string{
				"user-id":        record.UserID,
				"message-id":     record.MessageID,
				"attachment-ref": att.Ref,
			}
			url, err := callValue(gctx, w.opts.CallTimeout, func(ctx context.Context) (string, error) {
				return w.blobs.Upload(ctx, path, data, att.MimeType, metadata)
			})
			if err != nil {
				if emaildomain.KindOf(err) == emaildomain.KindUnknown {
					err = fmt.Errorf("%w: %v", emaildomain.ErrTransient, err)
				}
				return fmt.Errorf("upload attachment %s: %w", att.Filename, err)
			}

			size := att.Size
			if size == 0 {
				size = int64(len(data))
			}
			stored[i] = emaildomain.StoredAttachment{
				AttachmentRef: att.Ref,
				Filename:      att.Filename,
				MimeType:      att.MimeType,
				Size:          size,
				DownloadURL:   url,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stored, nil
}
