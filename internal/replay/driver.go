package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/clock"
	"tradecore/internal/persist"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// SourceID stamps the headers of events the driver publishes.
const SourceID uint16 = 0xB7

// Config describes one historical run.
type Config struct {
	Start         time.Time
	End           time.Time
	IncrementDays int
	// SeedDays prepends a warm-up window that ends at Start. Its events carry
	// FlagWarmup and models are never started during it.
	SeedDays int
	Symbols  []string
	Binning  Binning
	// Models receive start/stop ModelInfo on eligibility changes. When empty
	// a single notice with no model name is sent.
	Models []string
	// RetentionHorizon enables pruning of state older than the last record of
	// a window minus the horizon.
	RetentionHorizon time.Duration
	// FlushToDisk writes the store after every window and waits for its
	// backlog to drain.
	FlushToDisk bool
	DrainPoll   time.Duration
}

func (c Config) withDefaults() Config {
	if c.IncrementDays == 0 {
		c.IncrementDays = 7
	}
	if c.DrainPoll == 0 {
		c.DrainPoll = 10 * time.Millisecond
	}
	return c
}

// Validate checks if the config is usable.
func (c Config) Validate() error {
	if !c.End.After(c.Start) {
		return errors.Wrapf(exception.ErrInvalidReplayRange, "end %s is not after start %s", c.End, c.Start)
	}
	if c.IncrementDays < 0 || c.SeedDays < 0 {
		return errors.Wrapf(exception.ErrInvalidReplayRange, "increment %d and seed %d days must be >= 0", c.IncrementDays, c.SeedDays)
	}
	if c.RetentionHorizon < 0 {
		return fmt.Errorf("invalid replay config: RetentionHorizon must be >= 0")
	}
	return nil
}

// Pruner drops state older than a cutoff and returns how much it removed.
type Pruner interface {
	PruneBefore(cutoff time.Time) int
}

// Result summarizes a run.
type Result struct {
	Windows       int
	EmptyWindows  int
	Records       int
	WarmupRecords int
	Failures      int
	First         time.Time
	Last          time.Time
}

type Option func(*Driver)

// WithPruner adds state to prune after every window.
func WithPruner(p Pruner) Option {
	return func(d *Driver) { d.pruners = append(d.pruners, p) }
}

// WithStore sets the store flushed after windows and finalized at the end.
func WithStore(s persist.Store) Option {
	return func(d *Driver) { d.store = s }
}

// Driver feeds archived market data through the clock and the bus in event
// time order, standing in for the live feed.
type Driver struct {
	cfg     Config
	source  Source
	session *clock.Session
	clock   *clock.Clock

	live    *bus.Emitter
	warm    *bus.Emitter
	current *bus.Emitter

	pruners []Pruner
	store   persist.Store

	tradable bool
	result   Result
}

// NewDriver wires a driver publishing to pub. The driver owns its clock;
// timer notifications go through pub ahead of the record that caused them.
func NewDriver(cfg Config, source Source, session *clock.Session, pub bus.Publisher, opts ...Option) (*Driver, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, exception.ErrNilSource
	}
	if pub == nil {
		return nil, exception.ErrNilPublisher
	}
	if session == nil {
		session = clock.DefaultSession()
	}

	live := bus.NewEmitter(pub, SourceID, bus.WithFlags(schema.FlagReplay), bus.WithRecvClock(nil))
	d := &Driver{
		cfg:     cfg,
		source:  source,
		session: session,
		live:    live,
		warm:    live.Derive(bus.WithFlags(schema.FlagReplay | schema.FlagWarmup)),
	}
	d.current = d.live
	d.clock = clock.New(session, timerRelay{d})
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// timerRelay lets the clock publish through whichever emitter the current
// window uses.
type timerRelay struct{ d *Driver }

func (r timerRelay) Timer(ti schema.TimerInfo) error {
	return r.d.current.Timer(ti)
}

// Clock returns the clock the driver advances.
func (d *Driver) Clock() *clock.Clock {
	return d.clock
}

// Run replays every window and returns once the last one is done. Record
// level failures are logged and counted; only setup errors and
// cancellation end a run early.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	windows, err := Plan(d.cfg.Start, d.cfg.End, d.cfg.IncrementDays, d.session)
	if err != nil {
		return d.result, err
	}

	seed, hasSeed := SeedWindow(d.cfg.Start, d.cfg.SeedDays)
	if hasSeed {
		d.clock.Reset(seed.Start)
	} else {
		d.clock.Reset(d.cfg.Start)
	}
	logs.Infof("replay %s to %s in %d windows, seed days %d", d.cfg.Start, d.cfg.End, len(windows), d.cfg.SeedDays)

	if hasSeed {
		if err := d.runWindow(ctx, seed); err != nil {
			return d.result, err
		}
	}
	for _, w := range windows {
		if err := d.runWindow(ctx, w); err != nil {
			return d.result, err
		}
		d.result.Windows++
		if err := d.afterWindow(ctx, w); err != nil {
			return d.result, err
		}
	}

	d.current = d.live
	if d.tradable {
		d.setTradable(false, d.cfg.End)
	}
	d.publishSystem(schema.SystemReplayComplete, d.cfg.End,
		fmt.Sprintf("replayed %d records in %d windows, %d failures", d.result.Records, d.result.Windows, d.result.Failures))
	if d.store != nil {
		if err := d.store.FinalizeDisk(); err != nil {
			logs.Errorf("finalize store, err: %+v", err)
		}
	}
	logs.Infof("replay complete: %+v", d.result)
	return d.result, nil
}

func (d *Driver) runWindow(ctx context.Context, w Window) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.current = d.live
	if w.Warmup {
		d.current = d.warm
	}
	d.publishSystem(schema.SystemWindowStart, w.Start, w.String())

	records, err := d.source.Load(ctx, w.Query(d.cfg.Symbols))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logs.Errorf("load %s, err: %+v", w, err)
	}
	if len(records) == 0 {
		d.result.EmptyWindows++
		logs.Errorf("%s has no market data", w)
	}
	records = d.cfg.Binning.Apply(records, d.session.Location())

	for i, md := range records {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := d.step(md, w.Warmup); err != nil {
			d.result.Failures++
			logs.Errorf("replay record %s at %s, err: %+v", md.Symbol, md.EventTime, err)
			continue
		}
		if w.Warmup {
			d.result.WarmupRecords++
			continue
		}
		d.result.Records++
		if d.result.First.IsZero() {
			d.result.First = md.EventTime
		}
		d.result.Last = md.EventTime
	}

	d.publishSystem(schema.SystemWindowEnd, w.End, w.String())
	return nil
}

func (d *Driver) step(md schema.MarketUpdate, warmup bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if eligible := !warmup && d.session.IsTradable(md.EventTime); eligible != d.tradable {
		d.setTradable(eligible, md.EventTime)
	}
	if _, err := d.clock.Advance(md.EventTime); err != nil {
		return err
	}
	return d.current.MarketUpdate(md)
}

func (d *Driver) setTradable(tradable bool, at time.Time) {
	d.tradable = tradable
	action := schema.ModelActionStop
	if tradable {
		action = schema.ModelActionStart
	}
	models := d.cfg.Models
	if len(models) == 0 {
		models = []string{""}
	}
	for _, m := range models {
		info := schema.ModelInfo{Model: m, Action: action, Tradable: tradable, Time: at}
		if err := d.current.ModelInfo(info); err != nil {
			logs.Errorf("publish model %q %s, err: %+v", m, action, err)
		}
	}
}

func (d *Driver) afterWindow(ctx context.Context, w Window) error {
	if d.cfg.RetentionHorizon > 0 && !d.result.Last.IsZero() {
		cutoff := d.result.Last.Add(-d.cfg.RetentionHorizon)
		for _, p := range d.pruners {
			if n := p.PruneBefore(cutoff); n > 0 {
				logs.Infof("%s: pruned %d entries before %s", w, n, cutoff)
			}
		}
	}

	if !d.cfg.FlushToDisk || d.store == nil {
		return nil
	}
	if err := d.store.WriteToDisk(); err != nil {
		logs.Errorf("%s: write store, err: %+v", w, err)
		return nil
	}
	return persist.WaitIdle(ctx, d.store, d.cfg.DrainPoll)
}

func (d *Driver) publishSystem(kind schema.SystemKind, at time.Time, msg string) {
	if err := d.current.System(schema.SystemInfo{Kind: kind, Message: msg, Time: at}); err != nil {
		logs.Errorf("publish system notice %q, err: %+v", msg, err)
	}
}
