package usecase

import (
	"context"
	"hash/fnv"
	"log"
	"strings"
	"sync"

	notificationdomain "mailsync-backend/internal/notification/domain"
)

// Processor drives one stored notification to a terminal status
type Processor interface {
	Process(ctx context.Context, notificationID string) error
}

// Dispatcher runs notifications on a fixed set of shard workers. A user's
// notifications always hash to the same shard, so they run one at a time in
// submission order while different users proceed in parallel.
type Dispatcher struct {
	processor Processor
	queue     NotificationQueue
	shards    []chan string

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(processor Processor, queue NotificationQueue, workerCount, shardBuffer int) *Dispatcher {
	if workerCount <= 0 {
		workerCount = 1
	}
	if shardBuffer <= 0 {
		shardBuffer = 100
	}
	shards := make([]chan string, workerCount)
	for i := range shards {
		shards[i] = make(chan string, shardBuffer)
	}
	return &Dispatcher{
		processor: processor,
		queue:     queue,
		shards:    shards,
		inflight:  make(map[string]struct{}),
	}
}

// Start launches the shard workers and re-submits every pending
// notification left over from a previous run.
func (d *Dispatcher) Start(ctx context.Context) {
	log.Printf("[Dispatcher] Starting %d shard workers", len(d.shards))
	for i := range d.shards {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}

	pending, err := d.queue.ListByStatus(ctx, notificationdomain.StatusPending, 0)
	if err != nil {
		log.Printf("[Dispatcher] Error listing pending notifications: %v", err)
		return
	}
	resubmitted := 0
	for _, n := range pending {
		if d.Submit(n.ID, n.UserEmail) {
			resubmitted++
		}
	}
	if resubmitted > 0 {
		log.Printf("[Dispatcher] Re-submitted %d pending notifications", resubmitted)
	}
}

// Wait blocks until every shard worker has exited
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Submit hands a stored notification to its shard without blocking. It
// returns false when the id is already queued or the shard is full; the item
// then stays in the store for the sweeper to re-drive.
func (d *Dispatcher) Submit(notificationID, userEmail string) bool {
	d.mu.Lock()
	if _, ok := d.inflight[notificationID]; ok {
		d.mu.Unlock()
		return false
	}
	d.inflight[notificationID] = struct{}{}
	d.mu.Unlock()

	select {
	case d.shards[d.shardFor(userEmail)] <- notificationID:
		return true
	default:
		d.release(notificationID)
		log.Printf("[Dispatcher] Shard full, leaving notification %s for the sweeper", notificationID)
		return false
	}
}

func (d *Dispatcher) shardFor(userEmail string) int {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(userEmail))))
	return int(h.Sum32() % uint32(len(d.shards)))
}

func (d *Dispatcher) release(notificationID string) {
	d.mu.Lock()
	delete(d.inflight, notificationID)
	d.mu.Unlock()
}

func (d *Dispatcher) worker(ctx context.Context, shard int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.shards[shard]:
			if err := d.processor.Process(ctx, id); err != nil {
				log.Printf("[Dispatcher] Shard %d: notification %s failed: %v", shard, id, err)
			}
			d.release(id)
		}
	}
}
