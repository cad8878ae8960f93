package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string
	DatabaseDriver string
	DatabaseURL    string

	JWTSecret       string
	JWTAccessExpiry time.Duration
	AdminEmails     []string
	CredentialsKey  string

	GoogleClientID           string
	GoogleClientSecret       string
	GoogleProjectID          string
	GooglePubSubTopic        string
	GooglePubSubSubscription string
	GoogleCredentials        string
	GmailFormat              string

	FirebaseCredentials   string
	FirebaseStorageBucket string

	BlobBackend        string
	S3Bucket           string
	S3Region           string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	S3PresignTTL       time.Duration

	WorkerCount           int
	ProviderCallTimeout   time.Duration
	ProcessingTimeout     time.Duration
	StuckAfter            time.Duration
	SweepInterval         time.Duration
	MaxAttempts           int
	RetryBaseDelay        time.Duration
	RetryMaxDelay         time.Duration
	InitialSyncLimit      int
	AttachmentConcurrency int

	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string
	GeminiAPIKey   string
}

// Load reads .env, then the YAML file named by CONFIG_FILE, then the process
// environment. Later sources win.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	file := map[string]string{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		var err error
		file, err = readFile(path)
		if err != nil {
			return nil, err
		}
	}
	s := source{file: file}

	cfg := &Config{
		Port:           s.str("PORT", "8080"),
		DatabaseDriver: s.str("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    s.str("DATABASE_URL", ""),

		JWTSecret:       s.str("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry: s.duration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		AdminEmails:     s.list("ADMIN_EMAILS"),
		CredentialsKey:  s.str("CREDENTIALS_KEY", ""),

		GoogleClientID:           s.str("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:       s.str("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:          s.str("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:        s.str("GOOGLE_PUBSUB_TOPIC", ""),
		GooglePubSubSubscription: s.str("GOOGLE_PUBSUB_SUBSCRIPTION", ""),
		GoogleCredentials:        s.str("GOOGLE_CREDENTIALS", ""),
		GmailFormat:              strings.ToLower(s.str("GMAIL_FORMAT", "full")),

		FirebaseCredentials:   s.str("FIREBASE_CREDENTIALS", ""),
		FirebaseStorageBucket: s.str("FIREBASE_STORAGE_BUCKET", ""),

		BlobBackend:        strings.ToLower(s.str("BLOB_BACKEND", "firebase")),
		S3Bucket:           s.str("S3_BUCKET", ""),
		S3Region:           s.str("S3_REGION", "us-east-1"),
		AWSAccessKeyID:     s.str("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: s.str("AWS_SECRET_ACCESS_KEY", ""),
		S3PresignTTL:       s.duration("S3_PRESIGN_TTL", 7*24*time.Hour),

		WorkerCount:           s.integer("WORKER_COUNT", 4),
		ProviderCallTimeout:   s.duration("PROVIDER_CALL_TIMEOUT", 30*time.Second),
		ProcessingTimeout:     s.duration("PROCESSING_TIMEOUT", 5*time.Minute),
		StuckAfter:            s.duration("STUCK_AFTER", 10*time.Minute),
		SweepInterval:         s.duration("SWEEP_INTERVAL", 1*time.Minute),
		MaxAttempts:           s.integer("MAX_ATTEMPTS", 10),
		RetryBaseDelay:        s.duration("RETRY_BASE_DELAY", 30*time.Second),
		RetryMaxDelay:         s.duration("RETRY_MAX_DELAY", 30*time.Minute),
		InitialSyncLimit:      s.integer("INITIAL_SYNC_LIMIT", 50),
		AttachmentConcurrency: s.integer("ATTACHMENT_CONCURRENCY", 4),

		ChromaAPIKey:   s.str("CHROMA_API_KEY", ""),
		ChromaTenant:   s.str("CHROMA_TENANT", ""),
		ChromaDatabase: s.str("CHROMA_DATABASE", ""),
		GeminiAPIKey:   s.str("GEMINI_API_KEY", ""),
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.BlobBackend != "firebase" && cfg.BlobBackend != "s3" {
		return nil, fmt.Errorf("unsupported BLOB_BACKEND %q", cfg.BlobBackend)
	}
	if cfg.GmailFormat != "full" && cfg.GmailFormat != "raw" {
		return nil, fmt.Errorf("unsupported GMAIL_FORMAT %q", cfg.GmailFormat)
	}
	return cfg, nil
}

// IsAdmin reports whether email is listed in ADMIN_EMAILS.
func (c *Config) IsAdmin(email string) bool {
	for _, admin := range c.AdminEmails {
		if strings.EqualFold(admin, email) {
			return true
		}
	}
	return false
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
		case []interface{}:
			parts := make([]string, 0, len(t))
			for _, p := range t {
				parts = append(parts, fmt.Sprint(p))
			}
			values[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			values[strings.ToUpper(k)] = fmt.Sprint(t)
		}
	}
	return values, nil
}

type source struct {
	file map[string]string
}

func (s source) lookup(key string) (string, bool) {
	if value := os.Getenv(key); value != "" {
		return value, true
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value, true
	}
	return "", false
}

func (s source) str(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (s source) duration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := s.lookup(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (s source) integer(key string, defaultValue int) int {
	if value, ok := s.lookup(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func (s source) list(key string) []string {
	value, ok := s.lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
