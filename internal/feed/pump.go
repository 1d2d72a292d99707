package feed

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/clock"
	"tradecore/internal/schema"
)

// PumpStats counts what a pump has handled.
type PumpStats struct {
	Received uint64
	Failed   uint64
}

// Pump drives live operation: each update advances the clock to its event
// time and is then published. The clock is reset on the first update.
// Handle must be called from one goroutine, which Feed guarantees.
type Pump struct {
	clock    *clock.Clock
	em       *bus.Emitter
	models   []string
	started  bool
	tradable bool

	received atomic.Uint64
	failed   atomic.Uint64
}

// NewPump publishes through em. The clock must publish its notifications
// to the same bus.
func NewPump(c *clock.Clock, em *bus.Emitter, models ...string) *Pump {
	if len(models) == 0 {
		models = []string{""}
	}
	return &Pump{clock: c, em: em, models: models}
}

func (p *Pump) Run(ctx context.Context, f Feed) error {
	err := f.Run(ctx, p.Handle)
	if p.tradable {
		p.setTradable(false, time.Now())
	}
	s := p.Stats()
	logs.Infof("feed stopped after %d updates, %d failed", s.Received, s.Failed)
	return err
}

// Handle processes one update. Failures are logged and the update is
// skipped.
func (p *Pump) Handle(md schema.MarketUpdate) {
	p.received.Add(1)
	if err := p.handle(md); err != nil {
		p.failed.Add(1)
		logs.Errorf("live update %s at %s, err: %+v", md.Symbol, md.EventTime, err)
	}
}

func (p *Pump) handle(md schema.MarketUpdate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if md.EventTime.IsZero() {
		return fmt.Errorf("update has no event time")
	}
	if !p.started {
		p.clock.Reset(md.EventTime)
		p.started = true
	}
	if eligible := p.clock.Session().IsTradable(md.EventTime); eligible != p.tradable {
		p.setTradable(eligible, md.EventTime)
	}
	if _, err := p.clock.Advance(md.EventTime); err != nil {
		return err
	}
	return p.em.MarketUpdate(md)
}

func (p *Pump) setTradable(tradable bool, at time.Time) {
	p.tradable = tradable
	action := schema.ModelActionStop
	if tradable {
		action = schema.ModelActionStart
	}
	for _, m := range p.models {
		if err := p.em.ModelInfo(schema.ModelInfo{Model: m, Action: action, Tradable: tradable, Time: at}); err != nil {
			logs.Errorf("publish model %q %s, err: %+v", m, action, err)
		}
	}
}

func (p *Pump) Stats() PumpStats {
	return PumpStats{Received: p.received.Load(), Failed: p.failed.Load()}
}
