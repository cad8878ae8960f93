package storage

import (
	"context"
	"fmt"
	"net/url"

	emaildomain "mailsync-backend/internal/email/domain"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
)

const downloadTokenKey = "firebaseStorageDownloadTokens"

// FirebaseStore writes attachments to the app's Cloud Storage bucket and
// returns tokenized Firebase download URLs.
type FirebaseStore struct {
	bucket     *gcs.BucketHandle
	bucketName string
}

var _ emaildomain.BlobStore = (*FirebaseStore)(nil)

func NewFirebaseStore(ctx context.Context, app *firebase.App, bucketName string) (*FirebaseStore, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage client: %w", err)
	}
	bucket, err := client.Bucket(bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", bucketName, err)
	}
	return &FirebaseStore{bucket: bucket, bucketName: bucketName}, nil
}

func (s *FirebaseStore) Upload(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) (string, error) {
	token := uuid.New().String()

	w := s.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		w.Metadata[k] = v
	}
	w.Metadata[downloadTokenKey] = token

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w: %v", path, emaildomain.ErrTransient, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w: %v", path, emaildomain.ErrTransient, err)
	}
	return firebaseDownloadURL(s.bucketName, path, token), nil
}

func firebaseDownloadURL(bucket, path, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(path), url.QueryEscape(token))
}
