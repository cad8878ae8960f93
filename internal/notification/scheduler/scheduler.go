package scheduler

import (
	"context"
	"log"
	"time"

	emaildomain "mailsync-backend/internal/email/domain"
	"mailsync-backend/internal/notification/usecase"
)

// Submitter hands a stored notification to the worker pool
type Submitter interface {
	Submit(notificationID, userEmail string) bool
}

type Options struct {
	Interval       time.Duration
	StuckAfter     time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// RecoveryScheduler reaps notifications stuck in processing and re-drives
// retryable failures and orphaned pending items on a fixed interval.
type RecoveryScheduler struct {
	queue     usecase.NotificationQueue
	submitter Submitter
	opts      Options
	now       func() time.Time
	stopChan  chan struct{}
}

// NewRecoveryScheduler creates a new scheduler
func NewRecoveryScheduler(queue usecase.NotificationQueue, submitter Submitter, opts Options) *RecoveryScheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &RecoveryScheduler{
		queue:     queue,
		submitter: submitter,
		opts:      opts,
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the scheduler loop
func (s *RecoveryScheduler) Start(ctx context.Context) {
	log.Printf("[Scheduler] Starting recovery scheduler (interval: %s)", s.opts.Interval)

	go func() {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.ReapStuck(ctx)
				s.SweepRetries(ctx)
			case <-ctx.Done():
				log.Println("[Scheduler] Scheduler stopped")
				return
			case <-s.stopChan:
				log.Println("[Scheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *RecoveryScheduler) Stop() {
	close(s.stopChan)
}

// ReapStuck marks processing items older than StuckAfter as transient errors
// and returns how many it reaped.
func (s *RecoveryScheduler) ReapStuck(ctx context.Context) int {
	stuck, err := s.queue.FindStuck(ctx, s.opts.StuckAfter)
	if err != nil {
		log.Printf("[Reaper] Error finding stuck notifications: %v", err)
		return 0
	}

	reaped := 0
	for _, n := range stuck {
		if err := s.queue.MarkError(ctx, n.ID, emaildomain.KindTransient, "processing timed out"); err != nil {
			log.Printf("[Reaper] Error marking notification %s: %v", n.ID, err)
			continue
		}
		reaped++
	}
	if reaped > 0 {
		log.Printf("[Reaper] Marked %d stuck notifications as error", reaped)
	}
	return reaped
}

// SweepRetries re-submits retryable errors whose backoff has elapsed and
// pending items no worker picked up. Returns how many were submitted.
func (s *RecoveryScheduler) SweepRetries(ctx context.Context) int {
	submitted := 0

	failed, err := s.queue.FindRetryable(ctx, s.opts.MaxAttempts)
	if err != nil {
		log.Printf("[Sweeper] Error finding retryable notifications: %v", err)
	}
	now := s.now()
	for _, n := range failed {
		if now.Sub(n.UpdatedAt) < s.Backoff(n.Attempts) {
			continue
		}
		if s.submitter.Submit(n.ID, n.UserEmail) {
			submitted++
		}
	}

	orphaned, err := s.queue.FindOrphaned(ctx, s.opts.StuckAfter)
	if err != nil {
		log.Printf("[Sweeper] Error finding orphaned notifications: %v", err)
	}
	for _, n := range orphaned {
		if s.submitter.Submit(n.ID, n.UserEmail) {
			submitted++
		}
	}

	if submitted > 0 {
		log.Printf("[Sweeper] Re-submitted %d notifications", submitted)
	}
	return submitted
}

// Backoff is RetryBaseDelay * 2^attempts, capped at RetryMaxDelay
func (s *RecoveryScheduler) Backoff(attempts int) time.Duration {
	delay := s.opts.RetryBaseDelay
	for i := 0; i < attempts; i++ {
		delay *= 2
		if s.opts.RetryMaxDelay > 0 && delay >= s.opts.RetryMaxDelay {
			return s.opts.RetryMaxDelay
		}
	}
	return delay
}
