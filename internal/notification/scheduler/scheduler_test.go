package scheduler

import (
	"context"
	"testing"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"
	notificationdomain "mailsync-backend/internal/notification/domain"
)

type fakeQueue struct {
	stuck     []notificationdomain.PendingNotification
	retryable []notificationdomain.PendingNotification
	orphaned  []notificationdomain.PendingNotification
	marked    map[string]string
	maxSeen   int
}

func (q *fakeQueue) Enqueue(ctx context.Context, userEmail, deltaCursor string) (*notificationdomain.PendingNotification, error) {
	return nil, nil
}
func (q *fakeQueue) MarkProcessing(ctx context.Context, id string) error { return nil }
func (q *fakeQueue) MarkDone(ctx context.Context, id string) error       { return nil }
func (q *fakeQueue) MarkError(ctx context.Context, id, kind, message string) error {
	q.marked[id] = kind + ": " + message
	return nil
}
func (q *fakeQueue) Get(ctx context.Context, id string) (*notificationdomain.PendingNotification, error) {
	return nil, emaildomain.ErrNotFound
}
func (q *fakeQueue) ListByStatus(ctx context.Context, status notificationdomain.Status, limit int) ([]notificationdomain.PendingNotification, error) {
	return nil, nil
}
func (q *fakeQueue) FindStuck(ctx context.Context, olderThan time.Duration) ([]notificationdomain.PendingNotification, error) {
	return q.stuck, nil
}
func (q *fakeQueue) FindRetryable(ctx context.Context, maxAttempts int) ([]notificationdomain.PendingNotification, error) {
	q.maxSeen = maxAttempts
	return q.retryable, nil
}
func (q *fakeQueue) FindOrphaned(ctx context.Context, olderThan time.Duration) ([]notificationdomain.PendingNotification, error) {
	return q.orphaned, nil
}

type fakeSubmitter struct {
	ids []string
}

func (s *fakeSubmitter) Submit(id, email string) bool {
	s.ids = append(s.ids, id)
	return true
}

func newTestScheduler(q *fakeQueue, sub *fakeSubmitter) *RecoveryScheduler {
	return NewRecoveryScheduler(q, sub, Options{
		StuckAfter:     10 * time.Minute,
		MaxAttempts:    10,
		RetryBaseDelay: 30 * time.Second,
		RetryMaxDelay:  30 * time.Minute,
	})
}

func TestReapStuck(t *testing.T) {
	q := &fakeQueue{
		marked: map[string]string{},
		stuck:  []notificationdomain.PendingNotification{{ID: "n1"}, {ID: "n2"}},
	}
	s := newTestScheduler(q, &fakeSubmitter{})

	if got := s.ReapStuck(context.Background()); got != 2 {
		t.Fatalf("reaped %d, want 2", got)
	}
	if q.marked["n1"] != "transient: processing timed out" {
		t.Errorf("n1 marked %q", q.marked["n1"])
	}
}

func TestSweepRetriesHonoursBackoff(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q := &fakeQueue{
		marked: map[string]string{},
		retryable: []notificationdomain.PendingNotification{
			// 2 attempts: 2 minutes of backoff
			{ID: "due", UserEmail: "a@x.com", Attempts: 2, UpdatedAt: now.Add(-3 * time.Minute)},
			{ID: "early", UserEmail: "b@x.com", Attempts: 2, UpdatedAt: now.Add(-time.Minute)},
		},
		orphaned: []notificationdomain.PendingNotification{{ID: "orphan", UserEmail: "c@x.com"}},
	}
	sub := &fakeSubmitter{}
	s := newTestScheduler(q, sub)
	s.now = func() time.Time { return now }

	if got := s.SweepRetries(context.Background()); got != 2 {
		t.Fatalf("submitted %d, want 2", got)
	}
	if len(sub.ids) != 2 || sub.ids[0] != "due" || sub.ids[1] != "orphan" {
		t.Errorf("submitted %v", sub.ids)
	}
	if q.maxSeen != 10 {
		t.Errorf("FindRetryable maxAttempts = %d", q.maxSeen)
	}
}

func TestBackoff(t *testing.T) {
	s := newTestScheduler(&fakeQueue{}, &fakeSubmitter{})
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{4, 8 * time.Minute},
		{6, 30 * time.Minute},
		{20, 30 * time.Minute},
	}
	for _, tt := range tests {
		if got := s.Backoff(tt.attempts); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.attempts, got, tt.want)
		}
	}
}
