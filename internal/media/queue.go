package media

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eleven-am/trackie/internal/shared"
)

// ErrClosed is returned by Pop once the queue is closed and drained, and by
// Push after Close.
var ErrClosed = shared.ErrClosed

type entry struct {
	payload  Payload
	priority bool
}

// Queue is a bounded FIFO with drop-oldest overflow. Priority items are kept
// ahead of ordinary ones and are only evicted when nothing ordinary is left,
// oldest first.
type Queue struct {
	name     string
	capacity int
	logger   *slog.Logger

	mu      sync.Mutex
	items   []entry
	closed  bool
	dropped int64

	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewQueue(name string, capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		name:     name,
		capacity: capacity,
		logger:   logger.With("component", "media-queue", "queue", name),
		items:    make([]entry, 0, capacity),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push appends an ordinary item. At capacity the oldest ordinary item is
// evicted, or the oldest item of all when only priority items are queued.
func (q *Queue) Push(p Payload) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	if len(q.items) >= q.capacity {
		idx := q.oldestOrdinary()
		if idx < 0 {
			idx = 0
		}
		q.evict(idx)
	}

	q.items = append(q.items, entry{payload: p})
	q.mu.Unlock()

	q.signal()
	return nil
}

// PushPriority inserts p after any queued priority items and before every
// ordinary one.
func (q *Queue) PushPriority(p Payload) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}

	if len(q.items) >= q.capacity {
		idx := q.oldestOrdinary()
		if idx < 0 {
			idx = 0
		}
		q.evict(idx)
	}

	pos := 0
	for pos < len(q.items) && q.items[pos].priority {
		pos++
	}
	q.items = append(q.items, entry{})
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = entry{payload: p, priority: true}
	q.mu.Unlock()

	q.signal()
	return nil
}

// Pop blocks until an item is available, the queue is closed and empty, or
// ctx is done.
func (q *Queue) Pop(ctx context.Context) (Payload, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = entry{}
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()

			if remaining > 0 {
				q.signal()
			}
			return e.payload, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Payload{}, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Payload{}, ctx.Err()
		case <-q.notify:
		case <-q.done:
		}
	}
}

// Close stops accepting new items. Items already queued remain poppable.
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
		q.logger.Debug("queue closed", "pending", q.Len(), "dropped", q.Dropped())
	})
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Cap() int {
	return q.capacity
}

// Dropped reports how many items were evicted or rejected for lack of room.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) oldestOrdinary() int {
	for i, e := range q.items {
		if !e.priority {
			return i
		}
	}
	return -1
}

func (q *Queue) evict(idx int) {
	evicted := q.items[idx]
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	q.dropped++
	if q.dropped == 1 || q.dropped%100 == 0 {
		q.logger.Warn("queue full, dropped oldest item",
			"kind", evicted.payload.Kind,
			"priority", evicted.priority,
			"dropped_total", q.dropped,
		)
	}
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
