package domain

import (
	"strings"
	"time"
)

// Payload is the message content returned by a MailProvider. It is one of
// *RawPayload or *StructuredPayload; the unexported method seals the set.
type Payload interface {
	ProviderMessageID() string
	ProviderHistoryID() string
	isPayload()
}

// RawPayload carries a complete RFC-822 message that still needs MIME parsing.
type RawPayload struct {
	MessageID    string
	HistoryID    string
	LabelIDs     []string
	Snippet      string
	InternalDate time.Time
	Raw          []byte
}

func (p *RawPayload) ProviderMessageID() string { return p.MessageID }
func (p *RawPayload) ProviderHistoryID() string { return p.HistoryID }
func (*RawPayload) isPayload()                  {}

// StructuredPayload carries headers and body parts already split by the provider.
type StructuredPayload struct {
	MessageID    string
	HistoryID    string
	LabelIDs     []string
	Snippet      string
	InternalDate time.Time
	Root         *MessagePart
}

func (p *StructuredPayload) ProviderMessageID() string { return p.MessageID }
func (p *StructuredPayload) ProviderHistoryID() string { return p.HistoryID }
func (*StructuredPayload) isPayload()                  {}

// Header is a single message header.
type Header struct {
	Name  string
	Value string
}

// MessagePart is one node of a provider-split MIME tree. Data holds decoded
// inline content; attachments that the provider serves separately only carry
// AttachmentRef.
type MessagePart struct {
	PartID        string
	MimeType      string
	Filename      string
	Headers       []Header
	Data          []byte
	AttachmentRef string
	Size          int64
	Parts         []*MessagePart
}

// Header returns the first header value with the given name, case-insensitively.
func (p *MessagePart) Header(name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// PendingAttachment is an attachment between normalization and upload.
// A non-nil Data (possibly empty) holds the complete bytes; nil Data means
// the bytes are fetched from the provider by Ref.
type PendingAttachment struct {
	Ref      string
	Filename string
	MimeType string
	Size     int64
	Data     []byte
}

// NormalizedMessage is an EmailRecord whose attachments are not uploaded yet.
type NormalizedMessage struct {
	Record      *EmailRecord
	Attachments []PendingAttachment
}
