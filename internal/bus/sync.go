package bus

import (
	"context"
	"sync/atomic"

	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

var _ Bus = (*Sync)(nil)

// Sync delivers every event on the publisher's goroutine, to each listener in
// registration order. It gives a total, reproducible order across categories
// and is the engine used for backtests.
type Sync struct {
	reg     registry
	metrics *obs.Metrics
	closed  atomic.Bool
}

// NewSync creates a synchronous engine. Only cfg.Metrics is used.
func NewSync(cfg Config) *Sync {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	return &Sync{metrics: metrics}
}

func (b *Sync) RegisterListener(c schema.EventCategory, l Listener) error {
	return b.reg.register(c, l)
}

func (b *Sync) RegisterListeners(categories []schema.EventCategory, l Listener) error {
	return b.reg.registerAll(categories, l)
}

func (b *Sync) Freeze() {
	b.reg.freeze()
}

// Start freezes registrations. The engine owns no goroutines.
func (b *Sync) Start(context.Context) error {
	b.reg.freeze()
	return nil
}

func (b *Sync) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *Sync) Publish(e schema.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if b.closed.Load() {
		return exception.ErrBusClosed
	}
	b.metrics.ObservePublish(e.Header)
	for _, ent := range b.reg.entries(e.Category()) {
		invoke(ent, e, b.metrics)
	}
	return nil
}

func (b *Sync) Stats() Stats {
	return Stats{
		Engine:  EngineSync,
		Metrics: b.metrics.Snapshot(),
	}
}

func (b *Sync) Metrics() *obs.Metrics {
	return b.metrics
}
