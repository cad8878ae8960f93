package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the configuration for creating an S3Store.
type S3Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	PresignTTL      time.Duration
}

// PutObjectAPI is the subset of the S3 client the store uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// PresignGetObjectAPI signs download URLs.
type PresignGetObjectAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store uploads attachments to S3. Upload returns an s3://bucket/key
// reference; ResolveDownloadURL presigns it at read time.
type S3Store struct {
	bucket    string
	ttl       time.Duration
	client    PutObjectAPI
	presigner PresignGetObjectAPI
}

var (
	_ emaildomain.BlobStore           = (*S3Store)(nil)
	_ emaildomain.DownloadURLResolver = (*S3Store)(nil)
)

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return NewS3StoreWithClient(cfg.Bucket, cfg.PresignTTL, client, s3.NewPresignClient(client)), nil
}

// NewS3StoreWithClient creates an S3Store with custom clients, used for testing.
func NewS3StoreWithClient(bucket string, ttl time.Duration, client PutObjectAPI, presigner PresignGetObjectAPI) *S3Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &S3Store{bucket: bucket, ttl: ttl, client: client, presigner: presigner}
}

func (s *S3Store) Upload(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		Metadata:      metadata,
	})
	if err != nil {
		return "", fmt.Errorf("put s3://%s/%s: %w: %v", s.bucket, path, emaildomain.ErrTransient, err)
	}

	return s.reference(path), nil
}

func (s *S3Store) reference(key string) string {
	return "s3://" + s.bucket + "/" + key
}

// ResolveDownloadURL presigns a GET for references to this bucket. Anything
// else is returned unchanged.
func (s *S3Store) ResolveDownloadURL(ctx context.Context, stored string) (string, error) {
	key, ok := strings.CutPrefix(stored, s.reference(""))
	if !ok || key == "" {
		return stored, nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w: %v", stored, emaildomain.ErrTransient, err)
	}
	return req.URL, nil
}
