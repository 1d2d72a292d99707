package state

import (
	"sort"
	"sync"
	"time"

	"tradecore/internal/bus"
	"tradecore/internal/period"
	"tradecore/internal/replay"
	"tradecore/internal/schema"
)

var (
	_ bus.IndicatorListener = (*History)(nil)
	_ replay.Pruner         = (*History)(nil)
)

// SeriesKey identifies one indicator series.
type SeriesKey struct {
	Name   string
	Symbol string
	Period period.Period
}

// History keeps indicator values per series in time order. The replay
// driver prunes it after every window.
type History struct {
	mu     sync.RWMutex
	series map[SeriesKey][]schema.IndicatorUpdate
}

func NewHistory() *History {
	return &History{series: make(map[SeriesKey][]schema.IndicatorUpdate)}
}

func (h *History) Name() string {
	return "indicator-history"
}

func (h *History) OnIndicator(u schema.IndicatorUpdate) error {
	key := SeriesKey{Name: u.Name, Symbol: u.Symbol, Period: u.Period}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.series[key]
	if n := len(s); n == 0 || !u.Time.Before(s[n-1].Time) {
		h.series[key] = append(s, u)
		return nil
	}
	i := sort.Search(len(s), func(i int) bool { return s[i].Time.After(u.Time) })
	s = append(s, schema.IndicatorUpdate{})
	copy(s[i+1:], s[i:])
	s[i] = u
	h.series[key] = s
	return nil
}

// PruneBefore drops values older than cutoff and returns how many went.
func (h *History) PruneBefore(cutoff time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for key, s := range h.series {
		i := sort.Search(len(s), func(i int) bool { return !s[i].Time.Before(cutoff) })
		if i == 0 {
			continue
		}
		removed += i
		if i == len(s) {
			delete(h.series, key)
			continue
		}
		h.series[key] = append(s[:0:0], s[i:]...)
	}
	return removed
}

// Series returns a copy of the values held for key.
func (h *History) Series(key SeriesKey) []schema.IndicatorUpdate {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]schema.IndicatorUpdate(nil), h.series[key]...)
}

func (h *History) Latest(key SeriesKey) (schema.IndicatorUpdate, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.series[key]
	if len(s) == 0 {
		return schema.IndicatorUpdate{}, false
	}
	return s[len(s)-1], true
}

// Len returns the number of values held across all series.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.series {
		n += len(s)
	}
	return n
}
