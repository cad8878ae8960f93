package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	authdomain "mailsync-backend/internal/auth/domain"
	emaildomain "mailsync-backend/internal/email/domain"
	"mailsync-backend/pkg/fcm"
)

// PushSender delivers a push notification to device tokens and returns the
// tokens that were rejected.
type PushSender interface {
	SendToDevices(ctx context.Context, tokens []string, notification fcm.NotificationData) ([]string, error)
}

// DeviceTokenStore is the part of the FCM token repository the listener uses
type DeviceTokenStore interface {
	GetTokensByUserID(ctx context.Context, userID string) ([]authdomain.FCMToken, error)
	DeleteToken(ctx context.Context, token string) error
}

// NewMailPusher tells a user's devices about newly ingested mail
type NewMailPusher struct {
	sender  PushSender
	tokens  DeviceTokenStore
	timeout time.Duration
	async   bool
}

func NewNewMailPusher(sender PushSender, tokens DeviceTokenStore) *NewMailPusher {
	return &NewMailPusher{sender: sender, tokens: tokens, timeout: 15 * time.Second, async: true}
}

func (p *NewMailPusher) OnIngested(ctx context.Context, user *authdomain.User, records []*emaildomain.EmailRecord) {
	if len(records) == 0 {
		return
	}
	if p.async {
		go p.push(context.WithoutCancel(ctx), user, records)
		return
	}
	p.push(ctx, user, records)
}

func (p *NewMailPusher) push(ctx context.Context, user *authdomain.User, records []*emaildomain.EmailRecord) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tokens, err := p.tokens.GetTokensByUserID(ctx, user.ID)
	if err != nil {
		log.Printf("[FCM] Error getting FCM tokens for user %s: %v", user.ID, err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	tokenStrings := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrings = append(tokenStrings, t.Token)
	}

	failedTokens, err := p.sender.SendToDevices(ctx, tokenStrings, buildNewMailNotification(user, records))
	if err != nil {
		log.Printf("[FCM] Error sending notifications: %v", err)
		return
	}
	log.Printf("[FCM] Notified %d devices of %d new emails for %s", len(tokenStrings)-len(failedTokens), len(records), user.Email)

	for _, token := range failedTokens {
		if err := p.tokens.DeleteToken(ctx, token); err != nil {
			log.Printf("[FCM] Failed to delete stale token: %v", err)
		}
	}
}

func buildNewMailNotification(user *authdomain.User, records []*emaildomain.EmailRecord) fcm.NotificationData {
	latest := records[len(records)-1]
	title := fmt.Sprintf("%d new emails", len(records))
	body := latest.Subject
	if len(records) == 1 {
		title = "New email"
		if latest.From != "" {
			title = "New email from " + latest.From
		}
	}
	if body == "" {
		body = "(no subject)"
	}
	if r := []rune(body); len(r) > 100 {
		body = string(r[:97]) + "..."
	}

	return fcm.NotificationData{
		Title: title,
		Body:  body,
		Data: map[string]string{
			"type":      "email_update",
			"email":     user.Email,
			"messageId": latest.MessageID,
			"count":     fmt.Sprintf("%d", len(records)),
		},
		ClickAction: "/emails/" + latest.MessageID,
	}
}
