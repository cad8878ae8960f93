package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	authdomain "mailsync-backend/internal/auth/domain"
	authdto "mailsync-backend/internal/auth/dto"
	"mailsync-backend/internal/auth/repository"
	emaildomain "mailsync-backend/internal/email/domain"
	"mailsync-backend/pkg/config"
	"mailsync-backend/pkg/crypto"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// ErrInvalidToken is returned for a missing, malformed or expired access token
var ErrInvalidToken = errors.New("invalid token")

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo repository.UserRepository
	fcmRepo  repository.FCMTokenRepository
	sealer   *crypto.Sealer
	watcher  MailboxWatcher
	config   *config.Config
}

// NewAuthUsecase creates a new instance of authUsecase. watcher may be nil
// when Gmail push is not configured.
func NewAuthUsecase(userRepo repository.UserRepository, fcmRepo repository.FCMTokenRepository, sealer *crypto.Sealer, watcher MailboxWatcher, cfg *config.Config) AuthUsecase {
	return &authUsecase{
		userRepo: userRepo,
		fcmRepo:  fcmRepo,
		sealer:   sealer,
		watcher:  watcher,
		config:   cfg,
	}
}

func (u *authUsecase) IssueAccessToken(userID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(u.config.JWTAccessExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(u.config.JWTSecret))
}

func (u *authUsecase) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(u.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (u *authUsecase) ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error) {
	claims, err := u.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	user, err := u.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, emaildomain.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

func (u *authUsecase) ResolveUser(ctx context.Context, email string) (*authdomain.User, error) {
	return u.userRepo.FindByEmail(ctx, normalizeEmail(email))
}

func (u *authUsecase) RegisterMailbox(ctx context.Context, req *authdto.RegisterMailboxRequest) (*authdto.MailboxResponse, error) {
	user := &authdomain.User{
		Email:    normalizeEmail(req.Email),
		Name:     strings.TrimSpace(req.Name),
		Provider: req.Provider,
		Cursor:   strings.TrimSpace(req.Cursor),
	}

	switch req.Provider {
	case authdomain.ProviderGoogle:
		if req.AccessToken == "" && req.RefreshToken == "" {
			return nil, fmt.Errorf("google mailbox needs an access or refresh token: %w", emaildomain.ErrValidation)
		}
		if err := u.sealInto(&user.AccessToken, req.AccessToken); err != nil {
			return nil, err
		}
		if err := u.sealInto(&user.RefreshToken, req.RefreshToken); err != nil {
			return nil, err
		}
		user.TokenExpiry = req.TokenExpiry
	case authdomain.ProviderIMAP:
		if req.ImapServer == "" || req.ImapPort <= 0 || req.ImapPassword == "" {
			return nil, fmt.Errorf("imap mailbox needs server, port and password: %w", emaildomain.ErrValidation)
		}
		if err := u.sealInto(&user.ImapPassword, req.ImapPassword); err != nil {
			return nil, err
		}
		user.ImapServer = strings.TrimSpace(req.ImapServer)
		user.ImapPort = req.ImapPort
	default:
		return nil, fmt.Errorf("unsupported provider %q: %w", req.Provider, emaildomain.ErrValidation)
	}

	if err := u.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	log.Printf("[Auth] Registered %s mailbox %s", user.Provider, user.Email)

	accessToken, err := u.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &authdto.MailboxResponse{AccessToken: accessToken, User: user}, nil
}

func (u *authUsecase) RegisterFCMToken(ctx context.Context, userID string, req *authdto.RegisterFCMTokenRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return fmt.Errorf("fcm token is empty: %w", emaildomain.ErrValidation)
	}
	return u.fcmRepo.SaveToken(ctx, userID, token, req.DeviceInfo)
}

func (u *authUsecase) UnregisterFCMToken(ctx context.Context, userID, token string) error {
	return u.fcmRepo.DeleteUserToken(ctx, userID, strings.TrimSpace(token))
}

// WatchMailbox (re)registers Gmail push for the user and returns the
// mailbox's current history id. Watches expire after seven days.
func (u *authUsecase) WatchMailbox(ctx context.Context, userID string) (string, error) {
	if u.watcher == nil || u.config.GooglePubSubTopic == "" {
		return "", fmt.Errorf("gmail push is not configured: %w", emaildomain.ErrValidation)
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.Provider != authdomain.ProviderGoogle {
		return "", fmt.Errorf("%s mailboxes cannot be watched: %w", user.Provider, emaildomain.ErrValidation)
	}

	accessToken, err := u.sealer.Open(user.AccessToken)
	if err != nil {
		return "", fmt.Errorf("unseal access token: %w", emaildomain.ErrAuth)
	}
	refreshToken, err := u.sealer.Open(user.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("unseal refresh token: %w", emaildomain.ErrAuth)
	}
	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       user.TokenExpiry,
	}

	historyID, err := u.watcher.Watch(ctx, token, u.config.GooglePubSubTopic, func(t *oauth2.Token) error {
		access, err := u.sealer.Seal(t.AccessToken)
		if err != nil {
			return err
		}
		refresh, err := u.sealer.Seal(t.RefreshToken)
		if err != nil {
			return err
		}
		return u.userRepo.UpdateTokens(context.WithoutCancel(ctx), user.ID, access, refresh, t.Expiry)
	})
	if err != nil {
		return "", err
	}
	log.Printf("[Auth] Watching %s from history %s", user.Email, historyID)
	return historyID, nil
}

func (u *authUsecase) ResetCursor(ctx context.Context, userID, cursor string) error {
	cursor = strings.TrimSpace(cursor)
	if err := u.userRepo.UpdateCursor(ctx, userID, cursor); err != nil {
		return err
	}
	log.Printf("[Auth] Cursor for user %s reset to %q", userID, cursor)
	return nil
}

func (u *authUsecase) sealInto(dst *string, plaintext string) error {
	sealed, err := u.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}
	*dst = sealed
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
