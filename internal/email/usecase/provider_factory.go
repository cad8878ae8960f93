package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	authdomain "mailsync-backend/internal/auth/domain"
	emaildomain "mailsync-backend/internal/email/domain"
	"mailsync-backend/pkg/crypto"
	"mailsync-backend/pkg/gmail"
	"mailsync-backend/pkg/imap"

	"golang.org/x/oauth2"
)

// TokenStore persists sealed OAuth tokens after a refresh
type TokenStore interface {
	UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error
}

type providerFactory struct {
	gmailService *gmail.Service
	imapService  *imap.Service
	sealer       *crypto.Sealer
	tokens       TokenStore
}

// NewProviderFactory builds Gmail or IMAP clients from a user's sealed credentials
func NewProviderFactory(gmailService *gmail.Service, imapService *imap.Service, sealer *crypto.Sealer, tokens TokenStore) ProviderFactory {
	return &providerFactory{
		gmailService: gmailService,
		imapService:  imapService,
		sealer:       sealer,
		tokens:       tokens,
	}
}

func (f *providerFactory) ForUser(ctx context.Context, user *authdomain.User) (emaildomain.MailProvider, error) {
	switch user.Provider {
	case authdomain.ProviderGoogle, "":
		accessToken, err := f.sealer.Open(user.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("unseal access token for %s: %w", user.Email, emaildomain.ErrAuth)
		}
		refreshToken, err := f.sealer.Open(user.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("unseal refresh token for %s: %w", user.Email, emaildomain.ErrAuth)
		}
		if accessToken == "" && refreshToken == "" {
			return nil, fmt.Errorf("no Google credentials stored for %s: %w", user.Email, emaildomain.ErrAuth)
		}

		token := &oauth2.Token{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			Expiry:       user.TokenExpiry,
		}
		// Unknown expiry: force a refresh when we can
		if token.Expiry.IsZero() && refreshToken != "" {
			token.Expiry = time.Now()
		}
		return f.gmailService.NewClient(ctx, token, f.onTokenRefresh(user.ID))

	case authdomain.ProviderIMAP:
		password, err := f.sealer.Open(user.ImapPassword)
		if err != nil {
			return nil, fmt.Errorf("unseal IMAP password for %s: %w", user.Email, emaildomain.ErrAuth)
		}
		if user.ImapServer == "" || user.ImapPort == 0 {
			return nil, fmt.Errorf("IMAP server not configured for %s: %w", user.Email, emaildomain.ErrValidation)
		}
		return f.imapService.NewClient(user.ImapServer, user.ImapPort, user.Email, password), nil

	default:
		return nil, fmt.Errorf("unsupported provider %q for %s: %w", user.Provider, user.Email, emaildomain.ErrValidation)
	}
}

func (f *providerFactory) onTokenRefresh(userID string) emaildomain.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		accessToken, err := f.sealer.Seal(token.AccessToken)
		if err != nil {
			return err
		}
		refreshToken, err := f.sealer.Seal(token.RefreshToken)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := f.tokens.UpdateTokens(ctx, userID, accessToken, refreshToken, token.Expiry); err != nil {
			return err
		}
		log.Printf("[Auth] Stored refreshed token for user %s", userID)
		return nil
	}
}
