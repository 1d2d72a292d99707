package persist

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/schema"
)

// Backlog reports asynchronous write work still outstanding.
type Backlog interface {
	PendingQueueSize() int
	ActiveWriterCount() int
}

// Store persists bus events. Insert may buffer; WriteToDisk pushes buffered
// records to durable storage and FinalizeDisk does so one last time before
// the store is released.
type Store interface {
	Backlog
	Insert(e schema.Event) error
	WriteToDisk() error
	FinalizeDisk() error
}

const defaultPoll = 10 * time.Millisecond

// WaitIdle blocks until b has no queued or in-flight writes.
func WaitIdle(ctx context.Context, b Backlog, poll time.Duration) error {
	if poll <= 0 {
		poll = defaultPoll
	}
	start := time.Now()
	for {
		pending, active := b.PendingQueueSize(), b.ActiveWriterCount()
		if pending == 0 && active == 0 {
			if waited := time.Since(start); waited > time.Second {
				logs.Infof("persistence backlog drained after %s", waited.Round(time.Millisecond))
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

var _ bus.EventListener = (*Listener)(nil)

// Listener writes every event it receives to a store.
type Listener struct {
	name  string
	store Store
}

func NewListener(name string, store Store) *Listener {
	return &Listener{name: name, store: store}
}

func (l *Listener) Name() string {
	return l.name
}

func (l *Listener) OnEvent(e schema.Event) error {
	return l.store.Insert(e)
}

// Register attaches a Listener for store to every category in categories, or
// to all categories when none are given.
func Register(b bus.Bus, name string, store Store, categories ...schema.EventCategory) (*Listener, error) {
	if len(categories) == 0 {
		categories = schema.Categories()
	}
	l := NewListener(name, store)
	if err := b.RegisterListeners(categories, l); err != nil {
		return nil, err
	}
	return l, nil
}
