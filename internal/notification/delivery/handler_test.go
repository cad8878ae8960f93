package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mailsync-backend/internal/notification"
	notificationdomain "mailsync-backend/internal/notification/domain"
	"mailsync-backend/internal/notification/repository"
	"mailsync-backend/internal/notification/usecase"
	"mailsync-backend/pkg/database"

	"github.com/gin-gonic/gin"
)

func newTestQueue(t *testing.T) usecase.NotificationQueue {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return usecase.NewNotificationQueue(repository.NewNotificationRepository(db))
}

type fakeSubmitter struct {
	ids    []string
	reject bool
}

func (s *fakeSubmitter) Submit(id, email string) bool {
	if s.reject {
		return false
	}
	s.ids = append(s.ids, id)
	return true
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(ctx context.Context, userEmail, deltaCursor string) (*notificationdomain.PendingNotification, error) {
	return nil, errors.New("connection refused")
}

func pushBody(data string) string {
	envelope := map[string]any{
		"message": map[string]any{
			"data":      base64.StdEncoding.EncodeToString([]byte(data)),
			"messageId": "123",
		},
		"subscription": "projects/p/subscriptions/gmail-sub",
	}
	b, _ := json.Marshal(envelope)
	return string(b)
}

func newPushRouter(t *testing.T, enqueuer notification.Enqueuer, sub notification.Submitter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	intake, err := notification.NewIntake(enqueuer, sub)
	if err != nil {
		t.Fatalf("NewIntake: %v", err)
	}
	r := gin.New()
	r.POST("/api/pubsub/push", NewPushHandler(intake).Receive)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPushReceive(t *testing.T) {
	q := newTestQueue(t)
	sub := &fakeSubmitter{}
	r := newPushRouter(t, q, sub)

	w := post(r, "/api/pubsub/push", pushBody(`{"emailAddress":"a@x.com","historyId":100}`))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	pending, _ := q.ListByStatus(context.Background(), notificationdomain.StatusPending, 0)
	if len(pending) != 1 || pending[0].DeltaCursor != "100" {
		t.Fatalf("pending = %+v", pending)
	}
	if len(sub.ids) != 1 {
		t.Errorf("submitted %v", sub.ids)
	}
}

func TestPushReceiveDropsMalformed(t *testing.T) {
	q := newTestQueue(t)
	r := newPushRouter(t, q, &fakeSubmitter{})

	bodies := map[string]string{
		"bad envelope": `not json`,
		"bad base64":   `{"message":{"data":"%%%","messageId":"1"}}`,
		"bad payload":  pushBody(`{"emailAddress":"a@x.com"}`),
	}
	for name, body := range bodies {
		if w := post(r, "/api/pubsub/push", body); w.Code != http.StatusNoContent {
			t.Errorf("%s: status = %d", name, w.Code)
		}
	}
	pending, _ := q.ListByStatus(context.Background(), notificationdomain.StatusPending, 0)
	if len(pending) != 0 {
		t.Errorf("stored %d malformed notifications", len(pending))
	}
}

func TestPushReceiveStoreFailure(t *testing.T) {
	r := newPushRouter(t, failingEnqueuer{}, &fakeSubmitter{})
	w := post(r, "/api/pubsub/push", pushBody(`{"emailAddress":"a@x.com","historyId":100}`))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func newOpsRouter(q usecase.NotificationQueue, sub notification.Submitter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewOpsHandler(q, sub)
	r := gin.New()
	r.GET("/api/notifications", h.List)
	r.GET("/api/notifications/:id", h.Get)
	r.POST("/api/notifications/:id/retry", h.Retry)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestOpsListAndGet(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	failed, _ := q.Enqueue(ctx, "a@x.com", "1")
	q.MarkProcessing(ctx, failed.ID)
	q.MarkError(ctx, failed.ID, "transient", "timeout")
	q.Enqueue(ctx, "b@x.com", "2")
	r := newOpsRouter(q, &fakeSubmitter{})

	w := get(r, "/api/notifications")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var resp notificationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Notifications) != 1 || resp.Notifications[0].ID != failed.ID || resp.Status != notificationdomain.StatusError {
		t.Fatalf("list = %+v", resp)
	}

	if w := get(r, "/api/notifications?status=bogus"); w.Code != http.StatusBadRequest {
		t.Errorf("bogus status: %d", w.Code)
	}
	if w := get(r, "/api/notifications/"+failed.ID); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"attempts":2`) {
		t.Errorf("get = %d %s", w.Code, w.Body.String())
	}
	if w := get(r, "/api/notifications/missing"); w.Code != http.StatusNotFound {
		t.Errorf("missing: %d", w.Code)
	}
}

func TestOpsRetry(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	failed, _ := q.Enqueue(ctx, "a@x.com", "1")
	q.MarkProcessing(ctx, failed.ID)
	q.MarkError(ctx, failed.ID, "auth", "token revoked")
	done, _ := q.Enqueue(ctx, "a@x.com", "2")
	q.MarkProcessing(ctx, done.ID)
	q.MarkDone(ctx, done.ID)

	sub := &fakeSubmitter{}
	r := newOpsRouter(q, sub)

	if w := post(r, "/api/notifications/"+failed.ID+"/retry", ""); w.Code != http.StatusAccepted {
		t.Fatalf("retry error item: %d %s", w.Code, w.Body.String())
	}
	if len(sub.ids) != 1 || sub.ids[0] != failed.ID {
		t.Errorf("submitted %v", sub.ids)
	}
	if w := post(r, "/api/notifications/"+done.ID+"/retry", ""); w.Code != http.StatusConflict {
		t.Errorf("retry done item: %d", w.Code)
	}

	sub.reject = true
	if w := post(r, "/api/notifications/"+failed.ID+"/retry", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("retry with busy workers: %d", w.Code)
	}
}
