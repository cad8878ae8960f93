package gmail

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"

	"google.golang.org/api/gmail/v1"
)

// toPayload converts a Gmail message fetched with format "full" or "raw"
func toPayload(msg *gmail.Message, format string) (emaildomain.Payload, error) {
	if msg == nil {
		return nil, fmt.Errorf("gmail returned no message: %w", emaildomain.ErrNotFound)
	}

	historyID := ""
	if msg.HistoryId != 0 {
		historyID = strconv.FormatUint(msg.HistoryId, 10)
	}
	var internalDate time.Time
	if msg.InternalDate > 0 {
		internalDate = time.UnixMilli(msg.InternalDate).UTC()
	}

	if format == FormatRaw {
		raw, err := decodeBase64URL(msg.Raw)
		if err != nil {
			return nil, fmt.Errorf("decode raw message %s: %w: %v", msg.Id, emaildomain.ErrValidation, err)
		}
		return &emaildomain.RawPayload{
			MessageID:    msg.Id,
			HistoryID:    historyID,
			LabelIDs:     msg.LabelIds,
			Snippet:      msg.Snippet,
			InternalDate: internalDate,
			Raw:          raw,
		}, nil
	}

	root, err := convertPart(msg.Payload)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.Id, err)
	}
	return &emaildomain.StructuredPayload{
		MessageID:    msg.Id,
		HistoryID:    historyID,
		LabelIDs:     msg.LabelIds,
		Snippet:      msg.Snippet,
		InternalDate: internalDate,
		Root:         root,
	}, nil
}

// convertPart copies the Gmail part tree. Undecodable inline bodies are a
// malformed message, not missing data.
func convertPart(part *gmail.MessagePart) (*emaildomain.MessagePart, error) {
	if part == nil {
		return nil, nil
	}
	out := &emaildomain.MessagePart{
		PartID:   part.PartId,
		MimeType: part.MimeType,
		Filename: part.Filename,
	}
	for _, h := range part.Headers {
		out.Headers = append(out.Headers, emaildomain.Header{Name: h.Name, Value: h.Value})
	}
	if part.Body != nil {
		out.AttachmentRef = part.Body.AttachmentId
		out.Size = part.Body.Size
		if part.Body.Data != "" {
			data, err := decodeBase64URL(part.Body.Data)
			if err != nil {
				return nil, fmt.Errorf("decode part %s: %w: %v", part.PartId, emaildomain.ErrValidation, err)
			}
			out.Data = data
		}
	}
	for _, child := range part.Parts {
		converted, err := convertPart(child)
		if err != nil {
			return nil, err
		}
		out.Parts = append(out.Parts, converted)
	}
	return out, nil
}

// decodeBase64URL accepts Gmail's base64url with or without padding
func decodeBase64URL(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.URLEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
