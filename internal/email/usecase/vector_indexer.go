package usecase

import (
	"context"
	"log"
	"sync"
	"time"

	authdomain "mailsync-backend/internal/auth/domain"
	emaildomain "mailsync-backend/internal/email/domain"
	"mailsync-backend/internal/email/repository"
)

// indexJob is one record waiting to be embedded
type indexJob struct {
	UserID    string
	MessageID string
	Subject   string
	Body      string
}

// VectorIndexer embeds newly ingested records in the background. It is an
// IngestListener: a full queue drops the job rather than slowing ingestion,
// and the backfill sweep catches it up later.
type VectorIndexer struct {
	index   VectorIndex
	history repository.EmailSyncHistoryRepository
	jobs    chan indexJob
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewVectorIndexer(index VectorIndex, history repository.EmailSyncHistoryRepository, queueSize int) *VectorIndexer {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &VectorIndexer{
		index:   index,
		history: history,
		jobs:    make(chan indexJob, queueSize),
		timeout: 30 * time.Second,
	}
}

// Start launches workerCount workers that run until ctx is cancelled
func (v *VectorIndexer) Start(ctx context.Context, workerCount int) {
	for i := 0; i < workerCount; i++ {
		v.wg.Add(1)
		go v.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited
func (v *VectorIndexer) Wait() {
	v.wg.Wait()
}

func (v *VectorIndexer) OnIngested(ctx context.Context, user *authdomain.User, records []*emaildomain.EmailRecord) {
	for _, r := range records {
		job, ok := jobFor(r)
		if !ok {
			continue
		}
		if !v.enqueue(job) {
			log.Printf("[VectorSync] Queue full, skipping message %s", r.MessageID)
		}
	}
}

// StartBackfill re-queues records that never reached the index (dropped on a
// full queue, or released after a failed write) every interval until ctx is
// cancelled.
func (v *VectorIndexer) StartBackfill(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		interval = time.Minute
	}
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := v.Backfill(ctx, batch); err != nil {
					log.Printf("[VectorSync] Backfill failed: %v", err)
				} else if n > 0 {
					log.Printf("[VectorSync] Backfill queued %d messages", n)
				}
			}
		}
	}()
}

// Backfill queues up to limit unindexed records and returns how many fit
func (v *VectorIndexer) Backfill(ctx context.Context, limit int) (int, error) {
	records, err := v.history.ListUnsynced(ctx, limit)
	if err != nil {
		return 0, err
	}
	queued := 0
	for i := range records {
		job, ok := jobFor(&records[i])
		if !ok {
			continue
		}
		if !v.enqueue(job) {
			break
		}
		queued++
	}
	return queued, nil
}

func (v *VectorIndexer) enqueue(job indexJob) bool {
	select {
	case v.jobs <- job:
		return true
	default:
		return false
	}
}

func jobFor(r *emaildomain.EmailRecord) (indexJob, bool) {
	body := r.BodyText
	if body == "" {
		body = r.Snippet
	}
	if r.Subject == "" && body == "" {
		return indexJob{}, false
	}
	return indexJob{UserID: r.UserID, MessageID: r.MessageID, Subject: r.Subject, Body: body}, true
}

func (v *VectorIndexer) worker(ctx context.Context, workerID int) {
	defer v.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-v.jobs:
			v.handle(ctx, workerID, job)
		}
	}
}

func (v *VectorIndexer) handle(ctx context.Context, workerID int, job indexJob) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	alreadySynced, err := v.history.EnsureEmailSynced(ctx, job.UserID, job.MessageID)
	if err != nil {
		log.Printf("[VectorSync] Worker %d: Error claiming %s: %v", workerID, job.MessageID, err)
		return
	}
	if alreadySynced {
		return
	}

	if err := v.index.UpsertEmailEmbedding(ctx, job.UserID, job.MessageID, job.Subject, job.Body); err != nil {
		log.Printf("[VectorSync] Worker %d: Failed to sync message %s: %v", workerID, job.MessageID, err)
		// Release the claim so the backfill picks the record up again
		releaseCtx, release := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer release()
		if delErr := v.history.DeleteSyncHistory(releaseCtx, job.UserID, job.MessageID); delErr != nil {
			log.Printf("[VectorSync] Worker %d: Failed to release %s: %v", workerID, job.MessageID, delErr)
		}
		return
	}
	log.Printf("[VectorSync] Worker %d: Successfully synced message %s", workerID, job.MessageID)
}
