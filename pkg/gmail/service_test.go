package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	emaildomain "mailsync-backend/internal/email/domain"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, format string, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	srv, err := gmail.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"),
		option.WithHTTPClient(ts.Client()),
	)
	if err != nil {
		t.Fatalf("gmail.NewService: %v", err)
	}
	return NewService("id", "secret", format, 10).WrapService(srv)
}

func TestListChangedMessageIDsPagesAndDedups(t *testing.T) {
	c := newTestClient(t, FormatFull, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/history") {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("startHistoryId"); got != "90" {
			t.Errorf("startHistoryId = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			fmt.Fprint(w, `{"history":[{"id":"95","messagesAdded":[{"message":{"id":"m1"}},{"message":{"id":"m2"}}]}],"historyId":"100","nextPageToken":"p2"}`)
			return
		}
		fmt.Fprint(w, `{"history":[{"id":"101","messagesAdded":[{"message":{"id":"m2"}},{"message":{"id":"m3"}}]}],"historyId":"105"}`)
	})

	delta, err := c.ListChangedMessageIDs(context.Background(), "90")
	if err != nil {
		t.Fatalf("ListChangedMessageIDs: %v", err)
	}
	if strings.Join(delta.MessageIDs, ",") != "m1,m2,m3" {
		t.Fatalf("ids = %v", delta.MessageIDs)
	}
	if delta.LatestCursor != "105" {
		t.Fatalf("LatestCursor = %q", delta.LatestCursor)
	}
}

func TestListChangedMessageIDsExpiredCursorFallsBack(t *testing.T) {
	c := newTestClient(t, FormatFull, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/history"):
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":404,"message":"Requested entity was not found."}}`)
		case strings.HasSuffix(r.URL.Path, "/users/me/profile"):
			fmt.Fprint(w, `{"emailAddress":"a@x.com","historyId":"500"}`)
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			if r.URL.Query().Get("maxResults") != "10" {
				t.Errorf("maxResults = %q", r.URL.Query().Get("maxResults"))
			}
			fmt.Fprint(w, `{"messages":[{"id":"newest"},{"id":"older"}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	delta, err := c.ListChangedMessageIDs(context.Background(), "1")
	if err != nil {
		t.Fatalf("ListChangedMessageIDs: %v", err)
	}
	if strings.Join(delta.MessageIDs, ",") != "older,newest" {
		t.Fatalf("ids = %v", delta.MessageIDs)
	}
	if delta.LatestCursor != "500" {
		t.Fatalf("LatestCursor = %q", delta.LatestCursor)
	}
}

func TestFetchMessageFull(t *testing.T) {
	c := newTestClient(t, FormatFull, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "full" {
			t.Errorf("format = %q", r.URL.Query().Get("format"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"m1","historyId":"101","labelIds":["INBOX"],"snippet":"hi","internalDate":"1704186245000",
			"payload":{"mimeType":"multipart/mixed","headers":[{"name":"Subject","value":"Hello"}],
			"parts":[{"partId":"0","mimeType":"text/plain","body":{"size":5,"data":"aGVsbG8"}},
			{"partId":"1","mimeType":"application/pdf","filename":"a.pdf","body":{"attachmentId":"att-1","size":42}}]}}`)
	})

	payload, err := c.FetchMessage(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	p, ok := payload.(*emaildomain.StructuredPayload)
	if !ok {
		t.Fatalf("payload type %T", payload)
	}
	if p.MessageID != "m1" || p.HistoryID != "101" || p.InternalDate.UnixMilli() != 1704186245000 {
		t.Fatalf("payload = %+v", p)
	}
	if p.Root.Header("subject") != "Hello" {
		t.Fatalf("subject header missing")
	}
	if string(p.Root.Parts[0].Data) != "hello" {
		t.Fatalf("text part = %q", p.Root.Parts[0].Data)
	}
	if p.Root.Parts[1].AttachmentRef != "att-1" || p.Root.Parts[1].Size != 42 {
		t.Fatalf("attachment part = %+v", p.Root.Parts[1])
	}
}

func TestFetchMessageFullRejectsUndecodablePart(t *testing.T) {
	c := newTestClient(t, FormatFull, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"m1","historyId":"101",
			"payload":{"mimeType":"multipart/mixed",
			"parts":[{"partId":"1","mimeType":"text/plain","filename":"a.txt","body":{"size":3,"data":"!!not base64!!"}}]}}`)
	})

	_, err := c.FetchMessage(context.Background(), "m1")
	if !errors.Is(err, emaildomain.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestFetchMessageRaw(t *testing.T) {
	c := newTestClient(t, FormatRaw, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// "Subject: x\r\n\r\nbody"
		fmt.Fprint(w, `{"id":"m1","historyId":"7","raw":"U3ViamVjdDogeA0KDQpib2R5"}`)
	})
	payload, err := c.FetchMessage(context.Background(), "m1")
	if err != nil {
		t.Fatal(err)
	}
	p, ok := payload.(*emaildomain.RawPayload)
	if !ok {
		t.Fatalf("payload type %T", payload)
	}
	if string(p.Raw) != "Subject: x\r\n\r\nbody" {
		t.Fatalf("raw = %q", p.Raw)
	}
}

func TestFetchAttachmentBytes(t *testing.T) {
	c := newTestClient(t, FormatFull, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages/m1/attachments/att-1") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"size":8,"data":"JVBERi0xLjQ="}`)
	})
	data, err := c.FetchAttachmentBytes(context.Background(), "m1", "att-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.4" {
		t.Fatalf("data = %q", data)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, emaildomain.ErrAuth},
		{"forbidden", &googleapi.Error{Code: 403, Message: "Insufficient Permission"}, emaildomain.ErrAuth},
		{"rate limit reason", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, emaildomain.ErrTransient},
		{"rate limit message", &googleapi.Error{Code: 403, Message: "User Rate Limit Exceeded"}, emaildomain.ErrTransient},
		{"not found", &googleapi.Error{Code: 404}, emaildomain.ErrNotFound},
		{"too many", &googleapi.Error{Code: 429}, emaildomain.ErrTransient},
		{"server", &googleapi.Error{Code: 503}, emaildomain.ErrTransient},
		{"refresh", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, emaildomain.ErrAuth},
		{"network", errors.New("connection reset"), emaildomain.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError("op", tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("classifyError = %v, want %v", got, tt.want)
			}
		})
	}
}
