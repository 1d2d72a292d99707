package obs

import (
	"sync/atomic"
	"time"

	"tradecore/internal/schema"
)

// Metrics collects lightweight per-category counters and latency stats.
type Metrics struct {
	published        [schema.CategoryCount]uint64
	delivered        [schema.CategoryCount]uint64
	dropped          [schema.CategoryCount]uint64
	listenerFailures [schema.CategoryCount]uint64
	queueClosed      uint64
	activeDispatch   int64

	dispatchLatency LatencyStats
	eventLatency    LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// CategoryCounters is the per-category slice of a Snapshot.
type CategoryCounters struct {
	Published        uint64
	Delivered        uint64
	Dropped          uint64
	ListenerFailures uint64
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Categories      map[schema.EventCategory]CategoryCounters
	QueueClosed     uint64
	ActiveDispatch  int64
	DispatchLatency LatencySnapshot
	EventLatency    LatencySnapshot
}

// TotalDropped sums drops over every category.
func (s Snapshot) TotalDropped() uint64 {
	var n uint64
	for _, c := range s.Categories {
		n += c.Dropped
	}
	return n
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func index(c schema.EventCategory) (int, bool) {
	idx := int(c)
	return idx, c.IsAvailable() && idx < schema.CategoryCount
}

// ObservePublish counts an accepted publish and tracks feed latency when both
// timestamps are present.
func (m *Metrics) ObservePublish(header schema.EventHeader) {
	if m == nil {
		return
	}
	if idx, ok := index(header.Category); ok {
		atomic.AddUint64(&m.published[idx], 1)
	}
	if header.TsEvent > 0 && header.TsRecv > 0 {
		if delta := header.TsRecv - header.TsEvent; delta >= 0 {
			m.eventLatency.Observe(time.Duration(delta))
		}
	}
}

// ObserveDelivery counts one handler invocation and its duration.
func (m *Metrics) ObserveDelivery(c schema.EventCategory, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	if idx, ok := index(c); ok {
		atomic.AddUint64(&m.delivered[idx], 1)
		if failed {
			atomic.AddUint64(&m.listenerFailures[idx], 1)
		}
	}
	m.dispatchLatency.Observe(d)
}

// IncDrop records an event shed by backpressure.
func (m *Metrics) IncDrop(c schema.EventCategory) uint64 {
	if m == nil {
		return 0
	}
	if idx, ok := index(c); ok {
		return atomic.AddUint64(&m.dropped[idx], 1)
	}
	return 0
}

// IncQueueClosed records a closed-queue publish attempt.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.queueClosed, 1)
}

// DispatchStarted and DispatchDone track in-flight handler tasks.
func (m *Metrics) DispatchStarted() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.activeDispatch, 1)
}

func (m *Metrics) DispatchDone() {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.activeDispatch, -1)
}

// ActiveDispatch returns the number of in-flight handler tasks.
func (m *Metrics) ActiveDispatch() int64 {
	if m == nil {
		return 0
	}
	return atomic.LoadInt64(&m.activeDispatch)
}

// Dropped returns the drop count of one category.
func (m *Metrics) Dropped(c schema.EventCategory) uint64 {
	if m == nil {
		return 0
	}
	if idx, ok := index(c); ok {
		return atomic.LoadUint64(&m.dropped[idx])
	}
	return 0
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	categories := make(map[schema.EventCategory]CategoryCounters)
	for _, c := range schema.Categories() {
		idx := int(c)
		counters := CategoryCounters{
			Published:        atomic.LoadUint64(&m.published[idx]),
			Delivered:        atomic.LoadUint64(&m.delivered[idx]),
			Dropped:          atomic.LoadUint64(&m.dropped[idx]),
			ListenerFailures: atomic.LoadUint64(&m.listenerFailures[idx]),
		}
		if counters != (CategoryCounters{}) {
			categories[c] = counters
		}
	}
	return Snapshot{
		Categories:      categories,
		QueueClosed:     atomic.LoadUint64(&m.queueClosed),
		ActiveDispatch:  atomic.LoadInt64(&m.activeDispatch),
		DispatchLatency: m.dispatchLatency.Snapshot(),
		EventLatency:    m.eventLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
