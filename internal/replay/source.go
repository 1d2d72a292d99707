package replay

import (
	"context"
	"slices"
	"sort"
	"time"

	"tradecore/internal/schema"
)

// Query selects historical market updates in [Start, End). An empty symbol
// set selects every symbol.
type Query struct {
	Start   time.Time
	End     time.Time
	Symbols []string
}

// Contains reports whether md falls inside the query.
func (q Query) Contains(md schema.MarketUpdate) bool {
	if md.EventTime.Before(q.Start) || !md.EventTime.Before(q.End) {
		return false
	}
	return len(q.Symbols) == 0 || slices.Contains(q.Symbols, md.Symbol)
}

// Source loads archived market updates ordered by event time.
type Source interface {
	Load(ctx context.Context, q Query) ([]schema.MarketUpdate, error)
}

// SliceSource serves records held in memory.
type SliceSource struct {
	records []schema.MarketUpdate
}

// NewSliceSource copies and time-orders records.
func NewSliceSource(records []schema.MarketUpdate) *SliceSource {
	cp := slices.Clone(records)
	SortByTime(cp)
	return &SliceSource{records: cp}
}

func (s *SliceSource) Load(ctx context.Context, q Query) ([]schema.MarketUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lo := sort.Search(len(s.records), func(i int) bool { return !s.records[i].EventTime.Before(q.Start) })
	var out []schema.MarketUpdate
	for _, md := range s.records[lo:] {
		if !md.EventTime.Before(q.End) {
			break
		}
		if q.Contains(md) {
			out = append(out, md)
		}
	}
	return out, nil
}

// SortByTime orders records by event time, keeping arrival order for ties.
func SortByTime(records []schema.MarketUpdate) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].EventTime.Before(records[j].EventTime)
	})
}
