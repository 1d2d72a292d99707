package bus

import (
	"sync/atomic"
	"time"

	"tradecore/internal/obs"
	"tradecore/internal/schema"
)

// Emitter stamps headers and offers one publish method per category.
type Emitter struct {
	pub    Publisher
	source uint16
	flags  uint16
	seq    *atomic.Uint64
	trace  *obs.TraceGenerator
	recv   func() time.Time
}

// EmitterOption customizes an Emitter.
type EmitterOption func(*Emitter)

// WithFlags sets header flags on every emitted event.
func WithFlags(flags uint16) EmitterOption {
	return func(em *Emitter) { em.flags = flags }
}

// WithRecvClock sets the receive-time source. A nil clock stamps the event
// time as receive time, which keeps replayed headers reproducible.
func WithRecvClock(now func() time.Time) EmitterOption {
	return func(em *Emitter) { em.recv = now }
}

// WithTrace sets the trace ID generator.
func WithTrace(trace *obs.TraceGenerator) EmitterOption {
	return func(em *Emitter) { em.trace = trace }
}

// NewEmitter wraps a publisher. source identifies the producer in headers.
func NewEmitter(pub Publisher, source uint16, opts ...EmitterOption) *Emitter {
	em := &Emitter{
		pub:    pub,
		source: source,
		seq:    &atomic.Uint64{},
		recv:   time.Now,
	}
	for _, opt := range opts {
		opt(em)
	}
	return em
}

// Derive returns an emitter sharing the sequence counter with different
// options, e.g. warm-up flags.
func (em *Emitter) Derive(opts ...EmitterOption) *Emitter {
	cp := *em
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// Emit publishes a payload under its own category.
func (em *Emitter) Emit(p schema.Payload) error {
	e := schema.NewEvent(p)
	if p != nil {
		e.Header.TsEvent = unixNano(schema.EventTime(p))
	}
	e.Header.Source = em.source
	e.Header.Flags = em.flags
	e.Header.Seq = em.seq.Add(1)
	e.Header.TraceID = em.trace.Next()
	if em.recv != nil {
		e.Header.TsRecv = unixNano(em.recv())
	} else {
		e.Header.TsRecv = e.Header.TsEvent
	}
	return em.pub.Publish(e)
}

func (em *Emitter) MarketUpdate(p schema.MarketUpdate) error { return em.Emit(p) }
func (em *Emitter) MarketOrder(p schema.MarketOrder) error   { return em.Emit(p) }
func (em *Emitter) OrderStatus(p schema.OrderStatus) error   { return em.Emit(p) }
func (em *Emitter) Position(p schema.PositionUpdate) error   { return em.Emit(p) }
func (em *Emitter) Indicator(p schema.IndicatorUpdate) error { return em.Emit(p) }
func (em *Emitter) ModelInfo(p schema.ModelInfo) error       { return em.Emit(p) }
func (em *Emitter) PL(p schema.PLInfo) error                 { return em.Emit(p) }
func (em *Emitter) Execution(p schema.ExecutionInfo) error   { return em.Emit(p) }
func (em *Emitter) Timer(p schema.TimerInfo) error           { return em.Emit(p) }
func (em *Emitter) System(p schema.SystemInfo) error         { return em.Emit(p) }

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
