package clock

import (
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/period"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// clocked lists the periods the clock tracks, shortest first. Each must share
// its boundaries with the one before it; 4h does not align with the daily
// close and is left to bar builders.
var clocked = [...]period.Period{
	period.Min1,
	period.Min5,
	period.Min15,
	period.Min30,
	period.Hour1,
	period.Day1,
}

// Periods returns the clocked periods, shortest first.
func Periods() []period.Period {
	out := make([]period.Period, len(clocked))
	copy(out, clocked[:])
	return out
}

// Boundary is the state of one clocked period.
type Boundary struct {
	Period period.Period
	Last   time.Time
	Next   time.Time
}

// Notifier receives timer notifications. *bus.Emitter satisfies it.
type Notifier interface {
	Timer(schema.TimerInfo) error
}

// Snapshot is a consistent copy of the clock state.
type Snapshot struct {
	Boundaries  []Boundary
	WeekEnded   bool
	WeekEndAt   time.Time
	WeekStartAt time.Time
}

// Clock turns observed event times into period boundary notifications.
//
// The caller supplies time: the feed in live trading, the replay driver in a
// backtest. Advance is safe for concurrent use; state changes for one call are
// applied atomically and its notifications are delivered before those of any
// later call.
type Clock struct {
	session *Session
	out     Notifier

	emitMu sync.Mutex
	mu     sync.RWMutex
	ready  bool
	state  [len(clocked)]Boundary

	weekEnded   bool
	weekEndAt   time.Time
	weekStartAt time.Time
}

// New creates a clock. out may be nil when the caller only consumes the
// notifications returned by Advance.
func New(session *Session, out Notifier) *Clock {
	if session == nil {
		session = DefaultSession()
	}
	return &Clock{session: session, out: out}
}

// Session returns the trading calendar the clock runs on.
func (c *Clock) Session() *Session {
	return c.session
}

// Reset places every period on the boundaries surrounding base and rearms the
// weekly gate.
func (c *Clock) Reset(base time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetPeriods(base)
	c.armWeek(base)
	c.ready = true
	logs.Infof("clock reset at %s, next week end %s", base.In(c.session.Location()), c.weekEndAt)
}

func (c *Clock) resetPeriods(base time.Time) {
	loc := c.session.Location()
	for i, p := range clocked {
		b := Boundary{Period: p}
		if p == period.Day1 {
			b.Last = c.session.LastDailyClose(base)
			b.Next = c.session.NextDailyClose(base)
		} else {
			b.Last = p.Floor(base, loc)
			b.Next = b.Last.Add(p.Duration())
		}
		c.state[i] = b
	}
}

func (c *Clock) armWeek(base time.Time) {
	c.weekEnded = false
	c.weekEndAt = c.session.WeekClose(base)
	c.weekStartAt = c.session.WeekOpen(base)
}

// Advance moves the clock to observed and publishes the resulting
// notifications in time order: at each instant the weekly edge comes first,
// then boundaries shortest period first. Calls with a time before the next minute boundary change no period,
// so non-increasing calls are no-ops.
func (c *Clock) Advance(observed time.Time) ([]schema.TimerInfo, error) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if !c.ready {
		c.mu.Unlock()
		return nil, exception.ErrClockNotReset
	}
	fired := c.advanceLocked(observed)
	c.mu.Unlock()

	if c.out != nil {
		for _, ti := range fired {
			if err := c.out.Timer(ti); err != nil {
				logs.Errorf("publish %s %s timer at %s, err: %+v", ti.Kind, ti.Period, ti.Current, err)
			}
		}
	}
	return fired, nil
}

func (c *Clock) advanceLocked(observed time.Time) []schema.TimerInfo {
	var fired []schema.TimerInfo
	for !observed.Before(c.state[0].Next) {
		next := c.state[0].Next
		fired = c.weekEdges(fired, next)
		if c.session.IsClosed(next) {
			open := c.session.NextOpen(next)
			c.resetPeriods(open)
			logs.Infof("market closed at %s, clock skipped to %s", next, open)
			continue
		}

		for i := range c.state {
			b := &c.state[i]
			if i > 0 && c.state[i-1].Last.Before(b.Next) {
				break
			}
			b.Last = b.Next
			if b.Period == period.Day1 {
				b.Next = c.session.NextDailyClose(b.Last)
			} else {
				b.Next = b.Last.Add(b.Period.Duration())
			}
			fired = append(fired, schema.TimerInfo{
				Kind:    schema.TimerBoundary,
				Period:  b.Period,
				Current: b.Last,
				Next:    b.Next,
			})
		}
	}

	return c.weekEdges(fired, observed)
}

// weekEdges appends the weekly notices due at t. It runs before every
// boundary so notices keep time order with boundaries.
func (c *Clock) weekEdges(fired []schema.TimerInfo, t time.Time) []schema.TimerInfo {
	if !c.weekEnded && !t.Before(c.weekEndAt.Add(-c.session.WeekEndLead())) {
		c.weekEnded = true
		fired = append(fired, schema.TimerInfo{Kind: schema.TimerWeekEnd, Current: c.weekEndAt, Next: c.weekStartAt})
	}
	if c.weekEnded && !t.Before(c.weekStartAt) {
		start := c.weekStartAt
		c.armWeek(start)
		fired = append(fired, schema.TimerInfo{Kind: schema.TimerWeekStart, Current: start, Next: c.weekEndAt})
	}
	return fired
}

// State returns the boundaries of a clocked period.
func (c *Clock) State(p period.Period) (Boundary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return Boundary{}, false
	}
	for _, b := range c.state {
		if b.Period == p {
			return b, true
		}
	}
	return Boundary{}, false
}

// WeekEnded reports whether the week-end notice fired and the week has not
// restarted yet.
func (c *Clock) WeekEnded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.weekEnded
}

// Snapshot copies the boundaries and the weekly gate.
func (c *Clock) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := Snapshot{
		WeekEnded:   c.weekEnded,
		WeekEndAt:   c.weekEndAt,
		WeekStartAt: c.weekStartAt,
	}
	if c.ready {
		out.Boundaries = append(out.Boundaries, c.state[:]...)
	}
	return out
}
