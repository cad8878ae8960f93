package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	emaildomain "mailsync-backend/internal/email/domain"
	"mailsync-backend/internal/email/repository"
)

// ErrSearchUnavailable is returned when no vector index is configured
var ErrSearchUnavailable = errors.New("vector search not available")

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// VectorIndex stores and queries per-user email embeddings
type VectorIndex interface {
	UpsertEmailEmbedding(ctx context.Context, userID, messageID, subject, body string) error
	SemanticSearch(ctx context.Context, userID, query string, limit int) ([]string, error)
}

type emailUsecase struct {
	records repository.EmailRecordRepository
	vector  VectorIndex
	urls    emaildomain.DownloadURLResolver
}

// NewEmailUsecase creates the read side over stored records. vector and urls
// may be nil; without urls stored attachment references are returned as is.
func NewEmailUsecase(records repository.EmailRecordRepository, vector VectorIndex, urls emaildomain.DownloadURLResolver) EmailUsecase {
	return &emailUsecase{records: records, vector: vector, urls: urls}
}

func (u *emailUsecase) ListEmails(ctx context.Context, userID string, limit, offset int) ([]emaildomain.EmailRecord, int64, error) {
	records, total, err := u.records.ListByUser(ctx, userID, clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, 0, err
	}
	for i := range records {
		if err := u.resolveAttachments(ctx, &records[i]); err != nil {
			return nil, 0, err
		}
	}
	return records, total, nil
}

func (u *emailUsecase) GetEmail(ctx context.Context, userID, messageID string) (*emaildomain.EmailRecord, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, fmt.Errorf("message id is empty: %w", emaildomain.ErrValidation)
	}
	record, err := u.records.FindByMessageID(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if err := u.resolveAttachments(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// resolveAttachments swaps stored attachment references for fetchable URLs
// on this copy of the record
func (u *emailUsecase) resolveAttachments(ctx context.Context, record *emaildomain.EmailRecord) error {
	if u.urls == nil || len(record.Attachments) == 0 {
		return nil
	}
	resolved := make(emaildomain.AttachmentList, len(record.Attachments))
	for i, a := range record.Attachments {
		url, err := u.urls.ResolveDownloadURL(ctx, a.DownloadURL)
		if err != nil {
			return fmt.Errorf("attachment %s of %s: %w", a.Filename, record.MessageID, err)
		}
		a.DownloadURL = url
		resolved[i] = a
	}
	record.Attachments = resolved
	return nil
}

// SemanticSearch returns stored records ranked by the vector index
func (u *emailUsecase) SemanticSearch(ctx context.Context, userID, query string, limit int) ([]emaildomain.EmailRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []emaildomain.EmailRecord{}, nil
	}
	if u.vector == nil {
		return nil, ErrSearchUnavailable
	}

	ids, err := u.vector.SemanticSearch(ctx, userID, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	if len(ids) == 0 {
		return []emaildomain.EmailRecord{}, nil
	}

	found, err := u.records.FindByMessageIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]emaildomain.EmailRecord, len(found))
	for _, r := range found {
		byID[r.MessageID] = r
	}

	// Keep the index's ranking; ids the store no longer has are dropped
	results := make([]emaildomain.EmailRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			if err := u.resolveAttachments(ctx, &r); err != nil {
				return nil, err
			}
			results = append(results, r)
		}
	}
	return results, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
