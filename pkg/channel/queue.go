package channel

import (
	"context"
	"sync/atomic"

	"github.com/aretw0/parley/pkg/domain"
)

// Queue is the bounded inbound queue of a channel. Put applies backpressure
// when full; Get blocks until an item arrives or the queue is closed and
// drained. Closing never loses already-enqueued envelopes.
type Queue struct {
	ch     chan *domain.Envelope
	done   chan struct{}
	closed atomic.Bool
}

// NewQueue creates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan *domain.Envelope, capacity),
		done: make(chan struct{}),
	}
}

// Put enqueues an envelope, blocking while the queue is full. It returns
// domain.ErrQueueClosed after Close, or the context error on cancellation.
func (q *Queue) Put(ctx context.Context, env *domain.Envelope) error {
	if q.closed.Load() {
		return domain.ErrQueueClosed
	}
	select {
	case q.ch <- env:
		return nil
	case <-q.done:
		return domain.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the next envelope in FIFO order. After Close it keeps
// returning buffered envelopes until the queue is drained, then reports
// domain.ErrQueueClosed. A cancelled wait returns the context error.
func (q *Queue) Get(ctx context.Context) (*domain.Envelope, error) {
	// Drain buffered items first so closing never drops envelopes.
	select {
	case env := <-q.ch:
		return env, nil
	default:
	}
	select {
	case env := <-q.ch:
		return env, nil
	case <-q.done:
		select {
		case env := <-q.ch:
			return env, nil
		default:
			return nil, domain.ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks the queue closed, unblocking pending Put and Get calls.
// It is idempotent.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// Len returns the number of buffered envelopes.
func (q *Queue) Len() int { return len(q.ch) }
