package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	authdomain "mailsync-backend/internal/auth/domain"
	authdto "mailsync-backend/internal/auth/dto"
	"mailsync-backend/internal/auth/repository"
	emaildomain "mailsync-backend/internal/email/domain"
	"mailsync-backend/pkg/config"
	"mailsync-backend/pkg/crypto"
	"mailsync-backend/pkg/database"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fakeWatcher struct {
	token   *oauth2.Token
	topic   string
	refresh *oauth2.Token
}

func (w *fakeWatcher) Watch(ctx context.Context, token *oauth2.Token, topicName string, onTokenRefresh emaildomain.TokenUpdateFunc) (string, error) {
	w.token = token
	w.topic = topicName
	if w.refresh != nil {
		if err := onTokenRefresh(w.refresh); err != nil {
			return "", err
		}
	}
	return "4242", nil
}

type testEnv struct {
	uc      AuthUsecase
	users   repository.UserRepository
	tokens  repository.FCMTokenRepository
	sealer  *crypto.Sealer
	watcher *fakeWatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	sealer, err := crypto.NewSealer(testKey)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	cfg := &config.Config{
		JWTSecret:         "test-secret",
		JWTAccessExpiry:   time.Hour,
		GooglePubSubTopic: "projects/p/topics/gmail",
	}
	env := &testEnv{
		users:   repository.NewUserRepository(db),
		tokens:  repository.NewFCMTokenRepository(db),
		sealer:  sealer,
		watcher: &fakeWatcher{},
	}
	env.uc = NewAuthUsecase(env.users, env.tokens, sealer, env.watcher, cfg)
	return env
}

func TestRegisterGoogleMailboxSealsTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.uc.RegisterMailbox(ctx, &authdto.RegisterMailboxRequest{
		Email:        "  Owner@Example.com ",
		Provider:     authdomain.ProviderGoogle,
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
	})
	if err != nil {
		t.Fatalf("RegisterMailbox: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("no access token issued")
	}

	stored, err := env.uc.ResolveUser(ctx, "OWNER@example.com")
	if err != nil {
		t.Fatalf("ResolveUser: %v", err)
	}
	if stored.Email != "owner@example.com" {
		t.Errorf("email = %q", stored.Email)
	}
	if stored.AccessToken == "ya29.access" || stored.RefreshToken == "1//refresh" {
		t.Fatal("tokens stored in plaintext")
	}
	if got, _ := env.sealer.Open(stored.RefreshToken); got != "1//refresh" {
		t.Errorf("unsealed refresh token = %q", got)
	}

	user, err := env.uc.ValidateToken(ctx, resp.AccessToken)
	if err != nil || user.ID != stored.ID {
		t.Fatalf("ValidateToken = %+v, %v", user, err)
	}
}

func TestRegisterMailboxValidation(t *testing.T) {
	tests := []struct {
		name string
		req  authdto.RegisterMailboxRequest
	}{
		{"google without tokens", authdto.RegisterMailboxRequest{Email: "a@x.com", Provider: "google"}},
		{"imap without password", authdto.RegisterMailboxRequest{Email: "a@x.com", Provider: "imap", ImapServer: "imap.x.com", ImapPort: 993}},
		{"unknown provider", authdto.RegisterMailboxRequest{Email: "a@x.com", Provider: "pop3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if _, err := env.uc.RegisterMailbox(context.Background(), &tt.req); !errors.Is(err, emaildomain.ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
			if _, err := env.uc.ResolveUser(context.Background(), "a@x.com"); !errors.Is(err, emaildomain.ErrNotFound) {
				t.Errorf("user created despite validation failure: %v", err)
			}
		})
	}
}

func TestRegisterMailboxDuplicate(t *testing.T) {
	env := newTestEnv(t)
	req := &authdto.RegisterMailboxRequest{
		Email: "a@x.com", Provider: "imap", ImapServer: "imap.x.com", ImapPort: 993, ImapPassword: "pw",
	}
	if _, err := env.uc.RegisterMailbox(context.Background(), req); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := env.uc.RegisterMailbox(context.Background(), req); !errors.Is(err, emaildomain.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestParseTokenRejects(t *testing.T) {
	env := newTestEnv(t)

	other := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1", Email: "a@x.com"})
	forged, _ := other.SignedString([]byte("another-secret"))

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "u1",
		Email:  "a@x.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	stale, _ := expired.SignedString([]byte("test-secret"))

	for name, token := range map[string]string{"forged": forged, "expired": stale, "garbage": "not.a.jwt"} {
		if _, err := env.uc.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v", name, err)
		}
	}

	// Admin tokens carry no mailbox
	admin, err := env.uc.IssueAccessToken("", "ops@x.com")
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	claims, err := env.uc.ParseToken(admin)
	if err != nil || claims.Email != "ops@x.com" {
		t.Fatalf("ParseToken = %+v, %v", claims, err)
	}
	if _, err := env.uc.ValidateToken(context.Background(), admin); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken(admin) err = %v", err)
	}
}

func TestWatchMailboxPersistsRefreshedToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp, err := env.uc.RegisterMailbox(ctx, &authdto.RegisterMailboxRequest{
		Email: "a@x.com", Provider: "google", AccessToken: "old", RefreshToken: "r1",
	})
	if err != nil {
		t.Fatalf("RegisterMailbox: %v", err)
	}
	env.watcher.refresh = &oauth2.Token{AccessToken: "new", RefreshToken: "r2", Expiry: time.Now().Add(time.Hour)}

	historyID, err := env.uc.WatchMailbox(ctx, resp.User.ID)
	if err != nil {
		t.Fatalf("WatchMailbox: %v", err)
	}
	if historyID != "4242" || env.watcher.topic != "projects/p/topics/gmail" {
		t.Errorf("history=%s topic=%s", historyID, env.watcher.topic)
	}
	if env.watcher.token.AccessToken != "old" || env.watcher.token.RefreshToken != "r1" {
		t.Errorf("watch token = %+v", env.watcher.token)
	}

	stored, _ := env.users.FindByID(ctx, resp.User.ID)
	if got, _ := env.sealer.Open(stored.AccessToken); got != "new" {
		t.Errorf("stored access token = %q, want new", got)
	}
}

func TestWatchMailboxRejectsIMAP(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.uc.RegisterMailbox(context.Background(), &authdto.RegisterMailboxRequest{
		Email: "a@x.com", Provider: "imap", ImapServer: "imap.x.com", ImapPort: 993, ImapPassword: "pw",
	})
	if err != nil {
		t.Fatalf("RegisterMailbox: %v", err)
	}
	if _, err := env.uc.WatchMailbox(context.Background(), resp.User.ID); !errors.Is(err, emaildomain.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestResetCursor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp, err := env.uc.RegisterMailbox(ctx, &authdto.RegisterMailboxRequest{
		Email: "a@x.com", Provider: "google", RefreshToken: "r", Cursor: "500",
	})
	if err != nil {
		t.Fatalf("RegisterMailbox: %v", err)
	}
	if err := env.uc.ResetCursor(ctx, resp.User.ID, ""); err != nil {
		t.Fatalf("ResetCursor: %v", err)
	}
	stored, _ := env.users.FindByID(ctx, resp.User.ID)
	if stored.Cursor != "" {
		t.Errorf("cursor = %q", stored.Cursor)
	}
	if err := env.uc.ResetCursor(ctx, "missing", "1"); !errors.Is(err, emaildomain.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestUnregisterFCMTokenOnlyRemovesOwnTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.uc.RegisterFCMToken(ctx, "alice", &authdto.RegisterFCMTokenRequest{Token: "alice-phone"}); err != nil {
		t.Fatalf("RegisterFCMToken: %v", err)
	}
	if err := env.uc.RegisterFCMToken(ctx, "bob", &authdto.RegisterFCMTokenRequest{Token: "bob-phone"}); err != nil {
		t.Fatalf("RegisterFCMToken: %v", err)
	}

	if err := env.uc.UnregisterFCMToken(ctx, "alice", "bob-phone"); !errors.Is(err, emaildomain.ErrNotFound) {
		t.Fatalf("unregister other user's token: err = %v, want not found", err)
	}
	if got, _ := env.tokens.GetTokensByUserID(ctx, "bob"); len(got) != 1 {
		t.Fatalf("bob's tokens = %+v, want untouched", got)
	}

	if err := env.uc.UnregisterFCMToken(ctx, "alice", "alice-phone"); err != nil {
		t.Fatalf("unregister own token: %v", err)
	}
	if got, _ := env.tokens.GetTokensByUserID(ctx, "alice"); len(got) != 0 {
		t.Fatalf("alice's tokens = %+v, want none", got)
	}
}
