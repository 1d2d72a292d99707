package bus

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"tradecore/internal/schema"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Queue is a bounded event queue for one category.
type Queue struct {
	ch      chan schema.Event
	done    chan struct{}
	closed  atomic.Bool
	senders atomic.Int64
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan schema.Event, capacity),
		done: make(chan struct{}),
	}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e schema.Event) error {
	q.senders.Add(1)
	defer q.senders.Add(-1)
	return q.tryPublish(e)
}

func (q *Queue) tryPublish(e schema.Event) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// PublishWait enqueues an event, waiting up to timeout for free space.
// A zero timeout never waits; a negative timeout waits until space frees or
// the queue closes.
func (q *Queue) PublishWait(e schema.Event, timeout time.Duration) error {
	q.senders.Add(1)
	defer q.senders.Add(-1)

	err := q.tryPublish(e)
	if err != ErrQueueFull || timeout == 0 {
		return err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case q.ch <- e:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-expired:
		return ErrQueueFull
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Close stops the queue from accepting new events. Events already queued are
// still handed to Run.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// Run consumes events until the context is done, or until the queue is
// closed and drained.
func (q *Queue) Run(ctx context.Context, handler func(schema.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-q.ch:
			handler(e)
		case <-q.done:
			q.drainClosed(handler)
			return
		}
	}
}

// drainClosed keeps draining until no publisher that passed the closed check
// is still sending, so every accepted event reaches handler.
func (q *Queue) drainClosed(handler func(schema.Event)) {
	for {
		q.drain(handler)
		if q.senders.Load() == 0 {
			q.drain(handler)
			return
		}
		runtime.Gosched()
	}
}

func (q *Queue) drain(handler func(schema.Event)) {
	for {
		select {
		case e := <-q.ch:
			handler(e)
		default:
			return
		}
	}
}
