package usecase

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	emaildomain "mailsync-backend/internal/email/domain"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const snippetLength = 200

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// NormalizePayload maps either payload shape onto one EmailRecord.
// A missing provider message id is an ErrValidation; every other header is optional.
func NormalizePayload(userID string, payload emaildomain.Payload) (*emaildomain.NormalizedMessage, error) {
	switch p := payload.(type) {
	case *emaildomain.RawPayload:
		return normalizeRaw(userID, p)
	case *emaildomain.StructuredPayload:
		return normalizeStructured(userID, p)
	case nil:
		return nil, fmt.Errorf("normalize: nil payload: %w", emaildomain.ErrValidation)
	default:
		return nil, fmt.Errorf("normalize: unsupported payload %T: %w", payload, emaildomain.ErrValidation)
	}
}

func normalizeRaw(userID string, p *emaildomain.RawPayload) (*emaildomain.NormalizedMessage, error) {
	if strings.TrimSpace(p.MessageID) == "" {
		return nil, fmt.Errorf("normalize raw message: missing message id: %w", emaildomain.ErrValidation)
	}
	if len(p.Raw) == 0 {
		return nil, fmt.Errorf("normalize raw message %s: empty body: %w", p.MessageID, emaildomain.ErrValidation)
	}

	mr, err := mail.CreateReader(bytes.NewReader(p.Raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("normalize raw message %s: %w: %v", p.MessageID, emaildomain.ErrValidation, err)
	}
	defer mr.Close()

	record := newRecord(userID, p.MessageID, p.HistoryID, p.LabelIDs)
	applyHeader(record, &mr.Header, p.InternalDate)

	var attachments []emaildomain.PendingAttachment
	for index := 0; ; index++ {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			return nil, fmt.Errorf("normalize raw message %s: %w: %v", p.MessageID, emaildomain.ErrValidation, err)
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("normalize raw message %s: read part: %w: %v", p.MessageID, emaildomain.ErrValidation, err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, params, _ := h.ContentType()
			switch {
			case contentType == "text/plain" && record.BodyText == "":
				record.BodyText = string(data)
			case contentType == "text/html" && record.BodyHTML == "":
				record.BodyHTML = string(data)
			case !strings.HasPrefix(contentType, "text/"):
				// inline images and similar are stored like attachments
				_, dispParams, _ := h.ContentDisposition()
				filename := dispParams["filename"]
				if filename == "" {
					filename = params["name"]
				}
				attachments = append(attachments, rawAttachment(index, filename, contentType, data))
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			attachments = append(attachments, rawAttachment(index, filename, contentType, data))
		}
	}

	record.Snippet = buildSnippet(p.Snippet, record.BodyText, record.BodyHTML)
	return &emaildomain.NormalizedMessage{Record: record, Attachments: attachments}, nil
}

func rawAttachment(index int, filename, contentType string, data []byte) emaildomain.PendingAttachment {
	if filename == "" {
		filename = fmt.Sprintf("attachment-%d", index)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if data == nil {
		data = []byte{}
	}
	return emaildomain.PendingAttachment{
		Ref:      fmt.Sprintf("part-%d", index),
		Filename: filename,
		MimeType: contentType,
		Size:     int64(len(data)),
		Data:     data,
	}
}

func normalizeStructured(userID string, p *emaildomain.StructuredPayload) (*emaildomain.NormalizedMessage, error) {
	if strings.TrimSpace(p.MessageID) == "" {
		return nil, fmt.Errorf("normalize structured message: missing message id: %w", emaildomain.ErrValidation)
	}

	record := newRecord(userID, p.MessageID, p.HistoryID, p.LabelIDs)

	var header mail.Header
	if p.Root != nil {
		for _, h := range p.Root.Headers {
			header.Add(h.Name, h.Value)
		}
	}
	applyHeader(record, &header, p.InternalDate)

	var attachments []emaildomain.PendingAttachment
	var walk func(part *emaildomain.MessagePart)
	walk = func(part *emaildomain.MessagePart) {
		if part == nil {
			return
		}
		mimeType := strings.ToLower(part.MimeType)
		switch {
		case part.Filename != "" || part.AttachmentRef != "":
			size := part.Size
			if size == 0 {
				size = int64(len(part.Data))
			}
			if mimeType == "" {
				mimeType = "application/octet-stream"
			}
			// Without a provider attachment id the inline bytes are the whole
			// attachment, even when empty
			data := part.Data
			if part.AttachmentRef == "" && data == nil {
				data = []byte{}
			}
			attachments = append(attachments, emaildomain.PendingAttachment{
				Ref:      attachmentRef(part),
				Filename: attachmentFilename(part, len(attachments)),
				MimeType: mimeType,
				Size:     size,
				Data:     data,
			})
			return
		case mimeType == "text/plain" && record.BodyText == "":
			record.BodyText = string(part.Data)
		case mimeType == "text/html" && record.BodyHTML == "":
			record.BodyHTML = string(part.Data)
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(p.Root)

	record.Snippet = buildSnippet(p.Snippet, record.BodyText, record.BodyHTML)
	return &emaildomain.NormalizedMessage{Record: record, Attachments: attachments}, nil
}

func attachmentRef(part *emaildomain.MessagePart) string {
	if part.AttachmentRef != "" {
		return part.AttachmentRef
	}
	return "part-" + part.PartID
}

func attachmentFilename(part *emaildomain.MessagePart, index int) string {
	if part.Filename != "" {
		return part.Filename
	}
	return fmt.Sprintf("attachment-%d", index)
}

func newRecord(userID, messageID, historyID string, labels []string) *emaildomain.EmailRecord {
	record := &emaildomain.EmailRecord{
		UserID:      userID,
		MessageID:   strings.TrimSpace(messageID),
		HistoryID:   strings.TrimSpace(historyID),
		To:          emaildomain.StringArray{},
		Labels:      emaildomain.StringArray{},
		Attachments: emaildomain.AttachmentList{},
	}
	record.Labels = append(record.Labels, labels...)
	return record
}

// applyHeader fills the header-derived fields. Unparseable headers degrade to
// their raw text rather than failing the message.
func applyHeader(record *emaildomain.EmailRecord, h *mail.Header, internalDate time.Time) {
	if subject, err := h.Subject(); err == nil {
		record.Subject = subject
	} else {
		record.Subject = h.Get("Subject")
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		record.From = formatAddress(from[0])
	} else {
		record.From = strings.TrimSpace(h.Get("From"))
	}

	record.To = append(record.To, parseRecipients(h, "To")...)

	if date, err := h.Date(); err == nil && !date.IsZero() {
		record.Date = &date
	} else if !internalDate.IsZero() {
		d := internalDate
		record.Date = &d
	}
}

func parseRecipients(h *mail.Header, key string) []string {
	if list, err := h.AddressList(key); err == nil {
		out := make([]string, 0, len(list))
		for _, addr := range list {
			out = append(out, formatAddress(addr))
		}
		return out
	}
	var out []string
	for _, part := range strings.Split(h.Get(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatAddress(addr *mail.Address) string {
	if addr.Name == "" {
		return addr.Address
	}
	return addr.Name + " <" + addr.Address + ">"
}

func buildSnippet(providerSnippet, text, htmlBody string) string {
	if s := strings.TrimSpace(providerSnippet); s != "" {
		return s
	}
	preview := text
	if strings.TrimSpace(preview) == "" {
		preview = html.UnescapeString(htmlTagPattern.ReplaceAllString(htmlBody, " "))
	}

	// Collapse multiple spaces into one
	preview = strings.Join(strings.Fields(preview), " ")
	if utf8.RuneCountInString(preview) > snippetLength {
		preview = string([]rune(preview)[:snippetLength]) + "..."
	}
	return preview
}
