package queue

import (
	"context"
	"slices"
	"sync"

	"github.com/jwebster45206/quantum-theater/pkg/board"
)

// MemoryEventQueue is the in-process EventQueue used when no Redis is
// configured. Pending events do not survive a restart.
type MemoryEventQueue struct {
	mu       sync.Mutex
	pending  []board.BoardEvent
	inflight []board.BoardEvent
	seq      int64
	closed   bool

	notify chan struct{}
	done   chan struct{}
}

var _ EventQueue = (*MemoryEventQueue)(nil)

func NewMemoryEventQueue() *MemoryEventQueue {
	return &MemoryEventQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *MemoryEventQueue) Enqueue(_ context.Context, events ...board.BoardEvent) ([]board.BoardEvent, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	out := make([]board.BoardEvent, len(events))
	for i, ev := range events {
		q.seq++
		ev.Seq = q.seq
		out[i] = ev
	}
	q.pending = append(q.pending, out...)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return out, nil
}

func (q *MemoryEventQueue) Dequeue(ctx context.Context) (Delivery, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Delivery{}, ErrQueueClosed
		}
		if len(q.pending) > 0 {
			ev := q.pending[0]
			q.pending = q.pending[1:]
			q.inflight = append(q.inflight, ev)
			q.mu.Unlock()
			return Delivery{Event: ev}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		case <-q.done:
		case <-q.notify:
		}
	}
}

func (q *MemoryEventQueue) Ack(_ context.Context, d Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight = slices.DeleteFunc(q.inflight, func(ev board.BoardEvent) bool {
		return ev.Seq == d.Event.Seq
	})
	return nil
}

func (q *MemoryEventQueue) Recover(_ context.Context) (int, error) {
	q.mu.Lock()
	n := len(q.inflight)
	q.pending = append(q.inflight, q.pending...)
	q.inflight = nil
	q.mu.Unlock()

	if n > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return n, nil
}

func (q *MemoryEventQueue) SeedSequence(_ context.Context, floor int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq = max(q.seq, floor)
	return nil
}

func (q *MemoryEventQueue) Depth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.inflight), nil
}

// Close wakes any blocked Dequeue; later calls return ErrQueueClosed.
func (q *MemoryEventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}
