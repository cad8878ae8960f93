package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Service pulls Gmail push notifications from a Pub/Sub subscription
type Service struct {
	pubsubClient *pubsub.Client
	intake       *Intake
	projectID    string
	topicName    string
	subName      string
}

func NewService(ctx context.Context, projectID, topicName, subName, credentialsFile string, intake *Intake) (*Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	if subName == "" {
		subName = topicName + "-sub" // Convention: topic-sub
	}
	return &Service{
		pubsubClient: client,
		intake:       intake,
		projectID:    projectID,
		topicName:    topicName,
		subName:      subName,
	}, nil
}

// Start blocks receiving messages until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub, err := s.ensureSubscription(ctx)
	if err != nil {
		log.Printf("[PubSub] %v", err)
		return
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.handleMessage(ctx, msg.ID, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

// Close releases the Pub/Sub client
func (s *Service) Close() error {
	return s.pubsubClient.Close()
}

func (s *Service) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("error checking subscription existence: %w", err)
	}
	if exists {
		return sub, nil
	}

	topic := s.pubsubClient.Topic(s.topicName)
	topicExists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("error checking topic existence: %w", err)
	}
	if !topicExists {
		return nil, fmt.Errorf("topic %s does not exist, cannot create subscription", s.topicName)
	}

	sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
		Topic:       topic,
		AckDeadline: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	log.Printf("[PubSub] Created subscription: %s", s.subName)
	return sub, nil
}

// handleMessage reports whether the message should be acked. Malformed
// payloads are acked and dropped; store failures are nacked for redelivery.
func (s *Service) handleMessage(ctx context.Context, id string, data []byte) bool {
	_, err := s.intake.Accept(ctx, data)
	switch {
	case err == nil:
		return true
	case errors.Is(err, emaildomain.ErrValidation):
		log.Printf("[PubSub] Dropping malformed message %s: %v", id, err)
		return true
	default:
		log.Printf("[PubSub] Failed to store message %s, will be redelivered: %v", id, err)
		return false
	}
}
