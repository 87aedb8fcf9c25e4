// Package queue provides the bounded FIFO that decouples trigger intake from
// job execution.
package queue

import (
	"context"
	"sync"
	"time"
)

// Trigger sources.
const (
	SourceBus   = "bus"
	SourceAPI   = "api"
	SourceBatch = "batch"
)

// Trigger is one request to run a training job. The payload is opaque and
// duplicates are tolerated.
type Trigger struct {
	Seq        uint64
	Payload    []byte
	ReceivedAt time.Time
	Source     string
}

// Queue is a bounded FIFO of triggers. Enqueue blocks while the queue is
// full; nothing accepted is ever dropped.
type Queue struct {
	slots chan struct{} // free capacity
	ready chan struct{} // one token per queued item

	mu    sync.Mutex
	items []Trigger
	seq   uint64
}

// New creates a queue holding at most capacity triggers.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		slots: make(chan struct{}, capacity),
		ready: make(chan struct{}, capacity),
		items: make([]Trigger, 0, capacity),
	}
	for range capacity {
		q.slots <- struct{}{}
	}
	return q
}

// Enqueue appends a trigger, blocking until there is room or ctx is done.
// The sequence number is assigned at insertion so it always matches dequeue
// order.
func (q *Queue) Enqueue(ctx context.Context, payload []byte, source string) (Trigger, error) {
	select {
	case <-q.slots:
	case <-ctx.Done():
		return Trigger{}, ctx.Err()
	}

	q.mu.Lock()
	q.seq++
	t := Trigger{
		Seq:        q.seq,
		Payload:    payload,
		ReceivedAt: time.Now(),
		Source:     source,
	}
	q.items = append(q.items, t)
	q.mu.Unlock()

	q.ready <- struct{}{}
	return t, nil
}

// Dequeue removes the oldest trigger, blocking until one is available or ctx
// is done.
func (q *Queue) Dequeue(ctx context.Context) (Trigger, error) {
	if err := ctx.Err(); err != nil {
		return Trigger{}, err
	}

	select {
	case <-q.ready:
	case <-ctx.Done():
		return Trigger{}, ctx.Err()
	}

	q.mu.Lock()
	t := q.items[0]
	q.items[0] = Trigger{}
	q.items = q.items[1:]
	q.mu.Unlock()

	q.slots <- struct{}{}
	return t, nil
}

// Len returns the number of queued triggers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.slots)
}
