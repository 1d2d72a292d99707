package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

var _ Bus = (*Concurrent)(nil)

const dropLogEvery = 1000

// Concurrent fans events out with low latency. Each category has its own
// bounded queue and consumer goroutine; the consumer appends one task per
// listener to that listener's lane on a shared pool without waiting, so a
// slow listener delays only its own work.
//
// Ordering is FIFO per category queue. There is no order across categories
// and no completion order between listeners.
type Concurrent struct {
	cfg     Config
	reg     registry
	queues  [schema.CategoryCount]*Queue
	lanes   [schema.CategoryCount][]*Lane
	pool    *Pool
	metrics *obs.Metrics

	started   atomic.Bool
	closed    atomic.Bool
	consumers sync.WaitGroup
	cancel    context.CancelFunc
}

// NewConcurrent allocates queues sized by cfg. Consumers start with Start.
func NewConcurrent(cfg Config) (*Concurrent, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Concurrent{
		cfg:     cfg,
		metrics: cfg.Metrics,
		pool:    NewPool(cfg.Workers, cfg.Metrics),
		cancel:  func() {},
	}
	for _, c := range schema.Categories() {
		b.queues[c] = NewQueue(cfg.QueueCapacity[c])
	}
	return b, nil
}

func (b *Concurrent) RegisterListener(c schema.EventCategory, l Listener) error {
	return b.reg.register(c, l)
}

func (b *Concurrent) RegisterListeners(categories []schema.EventCategory, l Listener) error {
	return b.reg.registerAll(categories, l)
}

func (b *Concurrent) Freeze() {
	b.reg.freeze()
}

// Start freezes registrations and launches one consumer per category.
func (b *Concurrent) Start(ctx context.Context) error {
	if b.closed.Load() {
		return exception.ErrBusClosed
	}
	if !b.started.CompareAndSwap(false, true) {
		return exception.ErrBusAlreadyStarted
	}
	b.reg.freeze()
	for _, c := range schema.Categories() {
		lanes := make([]*Lane, b.reg.count(c))
		for i := range lanes {
			lanes[i] = &Lane{}
		}
		b.lanes[c] = lanes
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	for _, c := range schema.Categories() {
		q := b.queues[c]
		b.consumers.Add(1)
		go func() {
			defer b.consumers.Done()
			q.Run(ctx, b.dispatch)
		}()
	}
	if b.cfg.StatusInterval > 0 {
		go b.reportStatus(ctx, b.cfg.StatusInterval)
	}
	return nil
}

// Close stops accepting events, drains the queues and waits for in-flight
// listener tasks.
func (b *Concurrent) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, c := range schema.Categories() {
		b.queues[c].Close()
	}
	b.consumers.Wait()
	b.pool.Wait()
	b.cancel()
	return nil
}

func (b *Concurrent) Publish(e schema.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if b.closed.Load() {
		b.metrics.IncQueueClosed()
		return exception.ErrBusClosed
	}

	c := e.Category()
	timeout := b.cfg.EnqueueTimeout
	if b.cfg.Overflow[c] == OverflowBlock {
		timeout = -1
	}

	switch err := b.queues[c].PublishWait(e, timeout); err {
	case nil:
		b.metrics.ObservePublish(e.Header)
	case ErrQueueFull:
		if n := b.metrics.IncDrop(c); n == 1 || n%dropLogEvery == 0 {
			logs.Errorf("bus queue %s full after %s, event seq %d dropped (%d dropped so far)", c, timeout, e.Header.Seq, n)
		}
	case ErrQueueClosed:
		b.metrics.IncQueueClosed()
		return exception.ErrBusClosed
	}
	return nil
}

func (b *Concurrent) dispatch(e schema.Event) {
	c := e.Category()
	lanes := b.lanes[c]
	for i, ent := range b.reg.entries(c) {
		b.pool.Submit(lanes[i], func() {
			invoke(ent, e, b.metrics)
		})
	}
}

// QueueDepths reports the fill level of every category queue.
func (b *Concurrent) QueueDepths() []obs.QueueDepth {
	out := make([]obs.QueueDepth, 0, schema.CategoryCount-1)
	for _, c := range schema.Categories() {
		q := b.queues[c]
		out = append(out, obs.QueueDepth{Category: c, Depth: q.Len(), Capacity: q.Cap()})
	}
	return out
}

func (b *Concurrent) Stats() Stats {
	return Stats{
		Engine:          EngineConcurrent,
		Queues:          b.QueueDepths(),
		ActiveDispatch:  b.metrics.ActiveDispatch(),
		PendingDispatch: b.pool.Queued(),
		Metrics:         b.metrics.Snapshot(),
	}
}

func (b *Concurrent) Metrics() *obs.Metrics {
	return b.metrics
}

func (b *Concurrent) reportStatus(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := b.Stats()
			depths := make(map[string]int, len(stats.Queues))
			for _, q := range stats.Queues {
				if q.Depth > 0 {
					depths[q.Category.String()] = q.Depth
				}
			}
			logs.Infof("bus status: queued=%v active_dispatch=%d pending_dispatch=%d dropped=%d", depths, stats.ActiveDispatch, stats.PendingDispatch, stats.Metrics.TotalDropped())
		}
	}
}
