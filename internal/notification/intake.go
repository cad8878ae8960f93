package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	emaildomain "mailsync-backend/internal/email/domain"
	notificationdomain "mailsync-backend/internal/notification/domain"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const gmailPushSchemaURL = "https://mailsync.local/schemas/gmail-push.json"

// Gmail sends historyId as a number; some relays re-encode it as a string
const gmailPushSchema = `{
	"type": "object",
	"required": ["emailAddress", "historyId"],
	"properties": {
		"emailAddress": {"type": "string", "minLength": 3, "pattern": "^[^@\\s]+@[^@\\s]+$"},
		"historyId": {
			"oneOf": [
				{"type": "integer", "minimum": 1},
				{"type": "string", "pattern": "^[0-9]+$"}
			]
		}
	}
}`

// GmailNotification is the decoded body of a Gmail push message
type GmailNotification struct {
	EmailAddress string      `json:"emailAddress"`
	HistoryID    json.Number `json:"historyId"`
}

// Enqueuer persists a notification
type Enqueuer interface {
	Enqueue(ctx context.Context, userEmail, deltaCursor string) (*notificationdomain.PendingNotification, error)
}

// Submitter hands a stored notification to the worker pool
type Submitter interface {
	Submit(notificationID, userEmail string) bool
}

// Intake validates raw push payloads, stores them and schedules processing.
// It is shared by the Pub/Sub pull subscriber and the push endpoint.
type Intake struct {
	queue     Enqueuer
	submitter Submitter
	schema    *jsonschema.Schema
}

func NewIntake(queue Enqueuer, submitter Submitter) (*Intake, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(gmailPushSchema))
	if err != nil {
		return nil, fmt.Errorf("parse push schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(gmailPushSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add push schema: %w", err)
	}
	schema, err := c.Compile(gmailPushSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile push schema: %w", err)
	}
	return &Intake{queue: queue, submitter: submitter, schema: schema}, nil
}

// Decode validates data against the push schema. Failures wrap ErrValidation.
func (i *Intake) Decode(data []byte) (*GmailNotification, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("push payload is not JSON: %w: %v", emaildomain.ErrValidation, err)
	}
	if err := i.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("push payload rejected: %w: %v", emaildomain.ErrValidation, err)
	}

	var n GmailNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode push payload: %w: %v", emaildomain.ErrValidation, err)
	}
	return &n, nil
}

// Accept stores one push payload. Malformed payloads return an error wrapping
// ErrValidation and must be dropped; any other error means the store is
// unreachable and the message should be redelivered.
func (i *Intake) Accept(ctx context.Context, data []byte) (*notificationdomain.PendingNotification, error) {
	msg, err := i.Decode(data)
	if err != nil {
		return nil, err
	}

	n, err := i.queue.Enqueue(ctx, msg.EmailAddress, msg.HistoryID.String())
	if err != nil {
		return nil, err
	}
	log.Printf("[PubSub] Stored notification %s for %s (historyId: %s)", n.ID, n.UserEmail, n.DeltaCursor)

	if i.submitter != nil {
		i.submitter.Submit(n.ID, n.UserEmail)
	}
	return n, nil
}
