package usecase

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingProcessor struct {
	mu      sync.Mutex
	order   []string
	active  int
	maxSeen int
	delay   time.Duration
	done    chan string
}

func (p *recordingProcessor) Process(ctx context.Context, id string) error {
	p.mu.Lock()
	p.active++
	if p.active > p.maxSeen {
		p.maxSeen = p.active
	}
	p.order = append(p.order, id)
	p.mu.Unlock()

	time.Sleep(p.delay)

	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	p.done <- id
	return nil
}

func waitProcessed(t *testing.T, done <-chan string, n int) []string {
	t.Helper()
	var got []string
	for len(got) < n {
		select {
		case id := <-done:
			got = append(got, id)
		case <-time.After(5 * time.Second):
			t.Fatalf("processed %d of %d", len(got), n)
		}
	}
	return got
}

func TestDispatcherRunsOneUserInOrder(t *testing.T) {
	q := newTestQueue(t)
	proc := &recordingProcessor{delay: 5 * time.Millisecond, done: make(chan string, 10)}
	d := NewDispatcher(proc, q, 4, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		d.Wait()
	}()
	d.Start(ctx)

	ids := []string{"n1", "n2", "n3", "n4"}
	for _, id := range ids {
		if !d.Submit(id, "Alice@example.com ") {
			t.Fatalf("Submit(%s) rejected", id)
		}
	}
	waitProcessed(t, proc.done, len(ids))

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if proc.maxSeen != 1 {
		t.Errorf("max concurrent for one user = %d, want 1", proc.maxSeen)
	}
	for i, id := range ids {
		if proc.order[i] != id {
			t.Fatalf("order = %v, want %v", proc.order, ids)
		}
	}
}

func TestDispatcherSameUserSameShard(t *testing.T) {
	d := NewDispatcher(&recordingProcessor{}, newTestQueue(t), 8, 1)
	if d.shardFor("alice@example.com") != d.shardFor(" ALICE@example.com") {
		t.Fatal("case or whitespace changed the shard")
	}
}

func TestDispatcherSubmitDedupAndOverflow(t *testing.T) {
	d := NewDispatcher(&recordingProcessor{}, newTestQueue(t), 1, 1)

	if !d.Submit("n1", "a@x.com") {
		t.Fatal("first submit rejected")
	}
	if d.Submit("n1", "a@x.com") {
		t.Error("duplicate id accepted while queued")
	}
	if d.Submit("n2", "a@x.com") {
		t.Error("submit accepted on a full shard")
	}
	// The rejected id is not left marked in flight
	<-d.shards[0]
	d.release("n1")
	if !d.Submit("n2", "a@x.com") {
		t.Error("n2 rejected after shard drained")
	}
}

func TestDispatcherStartResubmitsPending(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := q.Enqueue(ctx, "a@x.com", "1")
	b, _ := q.Enqueue(ctx, "b@x.com", "2")
	c, _ := q.Enqueue(ctx, "c@x.com", "3")
	q.MarkProcessing(ctx, c.ID)
	q.MarkDone(ctx, c.ID)

	proc := &recordingProcessor{done: make(chan string, 10)}
	d := NewDispatcher(proc, q, 2, 10)
	d.Start(ctx)
	got := waitProcessed(t, proc.done, 2)

	seen := map[string]bool{}
	for _, id := range got {
		seen[id] = true
	}
	if !seen[a.ID] || !seen[b.ID] {
		t.Fatalf("processed %v, want %s and %s", got, a.ID, b.ID)
	}
	select {
	case id := <-proc.done:
		t.Fatalf("unexpected extra processing of %s", id)
	case <-time.After(100 * time.Millisecond):
	}
	cancel()
	d.Wait()
}
