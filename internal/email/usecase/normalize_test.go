package usecase

import (
	"errors"
	"strings"
	"testing"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"
)

const multipartMessage = "From: Alice Example <alice@example.com>\r\n" +
	"To: bob@example.com, Carol <carol@example.com>\r\n" +
	"Subject: =?UTF-8?B?UXVhcnRlcmx5IHJlcG9ydA==?=\r\n" +
	"Date: Tue, 02 Jan 2024 15:04:05 +0000\r\n" +
	"Message-ID: <abc@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=outer\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=inner\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Numbers are up.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Numbers are <b>up</b>.</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--outer--\r\n"

func TestNormalizeRaw(t *testing.T) {
	got, err := NormalizePayload("u1", &emaildomain.RawPayload{
		MessageID: "m1",
		HistoryID: "101",
		LabelIDs:  []string{"INBOX"},
		Raw:       []byte(multipartMessage),
	})
	if err != nil {
		t.Fatalf("NormalizePayload: %v", err)
	}
	r := got.Record
	if r.UserID != "u1" || r.MessageID != "m1" || r.HistoryID != "101" {
		t.Fatalf("identity fields = %+v", r)
	}
	if r.Subject != "Quarterly report" {
		t.Errorf("Subject = %q", r.Subject)
	}
	if r.From != "Alice Example <alice@example.com>" {
		t.Errorf("From = %q", r.From)
	}
	if strings.Join(r.To, "|") != "bob@example.com|Carol <carol@example.com>" {
		t.Errorf("To = %v", r.To)
	}
	if r.Date == nil || !r.Date.Equal(time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)) {
		t.Errorf("Date = %v", r.Date)
	}
	if strings.TrimSpace(r.BodyText) != "Numbers are up." {
		t.Errorf("BodyText = %q", r.BodyText)
	}
	if !strings.Contains(r.BodyHTML, "<b>up</b>") {
		t.Errorf("BodyHTML = %q", r.BodyHTML)
	}
	if r.Snippet != "Numbers are up." {
		t.Errorf("Snippet = %q", r.Snippet)
	}
	if len(r.Labels) != 1 || r.Labels[0] != "INBOX" {
		t.Errorf("Labels = %v", r.Labels)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %+v", got.Attachments)
	}
	a := got.Attachments[0]
	if a.Filename != "report.pdf" || a.MimeType != "application/pdf" || string(a.Data) != "%PDF-1.4" || a.Size != 8 {
		t.Errorf("attachment = %+v", a)
	}
}

func TestNormalizeRawWithoutDateUsesInternalDate(t *testing.T) {
	internal := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	got, err := NormalizePayload("u1", &emaildomain.RawPayload{
		MessageID:    "m2",
		InternalDate: internal,
		Raw:          []byte("From: a@example.com\r\nSubject: hi\r\n\r\nplain body\r\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Record.Date == nil || !got.Record.Date.Equal(internal) {
		t.Fatalf("Date = %v", got.Record.Date)
	}
	if len(got.Attachments) != 0 || len(got.Record.To) != 0 {
		t.Fatalf("unexpected optional fields: %+v", got)
	}
}

func TestNormalizeRawWithoutAnyDate(t *testing.T) {
	got, err := NormalizePayload("u1", &emaildomain.RawPayload{
		MessageID: "m3",
		Raw:       []byte("Subject: no date\r\n\r\nbody\r\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Record.Date != nil {
		t.Fatalf("Date = %v, want nil", got.Record.Date)
	}
}

func TestNormalizeStructured(t *testing.T) {
	payload := &emaildomain.StructuredPayload{
		MessageID: "m1",
		HistoryID: "200",
		LabelIDs:  []string{"INBOX", "UNREAD"},
		Snippet:   "provider snippet",
		Root: &emaildomain.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []emaildomain.Header{
				{Name: "From", Value: "Alice <alice@example.com>"},
				{Name: "To", Value: "bob@example.com"},
				{Name: "Subject", Value: "Invoice"},
				{Name: "Date", Value: "Mon, 01 Jan 2024 09:00:00 +0000"},
			},
			Parts: []*emaildomain.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*emaildomain.MessagePart{
						{PartID: "0.0", MimeType: "text/plain", Data: []byte("Please pay")},
						{PartID: "0.1", MimeType: "text/html", Data: []byte("<p>Please pay</p>")},
					},
				},
				{PartID: "1", MimeType: "application/pdf", Filename: "invoice.pdf", AttachmentRef: "ANGjdJ", Size: 2048},
			},
		},
	}

	got, err := NormalizePayload("u1", payload)
	if err != nil {
		t.Fatal(err)
	}
	r := got.Record
	if r.Subject != "Invoice" || r.From != "Alice <alice@example.com>" || r.BodyText != "Please pay" || r.BodyHTML != "<p>Please pay</p>" {
		t.Fatalf("record = %+v", r)
	}
	if r.Snippet != "provider snippet" {
		t.Errorf("Snippet = %q", r.Snippet)
	}
	if len(r.To) != 1 || r.To[0] != "bob@example.com" {
		t.Errorf("To = %v", r.To)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %+v", got.Attachments)
	}
	a := got.Attachments[0]
	if a.Ref != "ANGjdJ" || a.Filename != "invoice.pdf" || a.Size != 2048 || a.Data != nil {
		t.Errorf("attachment = %+v", a)
	}
}

func TestNormalizeStructuredZeroByteAttachment(t *testing.T) {
	payload := &emaildomain.StructuredPayload{
		MessageID: "m1",
		Root: &emaildomain.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*emaildomain.MessagePart{
				{PartID: "1", MimeType: "text/plain", Filename: "empty.txt", Size: 0},
			},
		},
	}

	got, err := NormalizePayload("u1", payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("attachments = %+v", got.Attachments)
	}
	a := got.Attachments[0]
	if a.Ref != "part-1" || a.Data == nil || len(a.Data) != 0 || a.Size != 0 {
		t.Errorf("attachment = %+v, want inline empty data", a)
	}
}

func TestNormalizeBothShapesAgree(t *testing.T) {
	raw, err := NormalizePayload("u1", &emaildomain.RawPayload{
		MessageID: "m1",
		Raw:       []byte("From: a@example.com\r\nTo: b@example.com\r\nSubject: same\r\nDate: Mon, 01 Jan 2024 09:00:00 +0000\r\nContent-Type: text/plain\r\n\r\nhello\r\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	structured, err := NormalizePayload("u1", &emaildomain.StructuredPayload{
		MessageID: "m1",
		Root: &emaildomain.MessagePart{
			MimeType: "text/plain",
			Headers: []emaildomain.Header{
				{Name: "From", Value: "a@example.com"},
				{Name: "To", Value: "b@example.com"},
				{Name: "Subject", Value: "same"},
				{Name: "Date", Value: "Mon, 01 Jan 2024 09:00:00 +0000"},
			},
			Data: []byte("hello\r\n"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	a, b := raw.Record, structured.Record
	if a.Subject != b.Subject || a.From != b.From || strings.Join(a.To, ",") != strings.Join(b.To, ",") ||
		a.BodyText != b.BodyText || a.Snippet != b.Snippet || !a.Date.Equal(*b.Date) {
		t.Fatalf("shapes disagree:\nraw        %+v\nstructured %+v", a, b)
	}
}

func TestNormalizeMissingMessageID(t *testing.T) {
	for name, payload := range map[string]emaildomain.Payload{
		"raw":        &emaildomain.RawPayload{Raw: []byte("Subject: x\r\n\r\nbody")},
		"structured": &emaildomain.StructuredPayload{MessageID: "  "},
		"nil":        nil,
	} {
		if _, err := NormalizePayload("u1", payload); !errors.Is(err, emaildomain.ErrValidation) {
			t.Errorf("%s: err = %v, want ErrValidation", name, err)
		}
	}
}

func TestBuildSnippet(t *testing.T) {
	long := strings.Repeat("word ", 100)
	tests := []struct {
		name, provider, text, html, want string
	}{
		{"provider wins", "given", "text", "", "given"},
		{"text collapsed", "", "  a \n\n b  ", "", "a b"},
		{"html stripped", "", "", "<p>Hi &amp; bye</p>", "Hi & bye"},
		{"html entities", "", "", "<p>Caf&eacute;&nbsp;&#8212; &#x2713; &hellip;</p>", "Café \u2014 \u2713 \u2026"},
		{"truncated", "", long, "", strings.TrimSpace(long)[:200] + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSnippet(tt.provider, tt.text, tt.html); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}
