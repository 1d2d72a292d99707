package replay

import (
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/period"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// BinFunc picks the representative record of a bucket.
type BinFunc uint8

const (
	// BinLast keeps the last record of the bucket.
	BinLast BinFunc = iota
	// BinFirst keeps the first record of the bucket.
	BinFirst
	// BinMid keeps the last record with bid and ask replaced by the mean
	// midpoint of the bucket.
	BinMid
)

func (f BinFunc) String() string {
	switch f {
	case BinFirst:
		return "first"
	case BinMid:
		return "mid"
	default:
		return "last"
	}
}

func (f BinFunc) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *BinFunc) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "", "last":
		*f = BinLast
	case "first":
		*f = BinFirst
	case "mid":
		*f = BinMid
	default:
		return errors.Wrap(exception.ErrUnknownBinFunc, string(text))
	}
	return nil
}

// Binning pre-aggregates records per symbol. Time periods bucket by the
// period floor in the session location, tick periods by record count. A zero
// Period disables binning.
type Binning struct {
	Period period.Period `json:"period" yaml:"period"`
	Func   BinFunc       `json:"func" yaml:"func"`
}

func (b Binning) Enabled() bool {
	return b.Period.IsAvailable()
}

type bucket struct {
	first schema.MarketUpdate
	last  schema.MarketUpdate
	mids  int64
	n     int64
}

func (k *bucket) add(md schema.MarketUpdate) {
	if k.n == 0 {
		k.first = md
	}
	k.last = md
	k.mids += int64(md.Mid())
	k.n++
}

func (k *bucket) emit(f BinFunc) schema.MarketUpdate {
	switch f {
	case BinFirst:
		return k.first
	case BinMid:
		md := k.last
		mid := schema.Price(k.mids / k.n)
		md.Bid, md.Ask = mid, mid
		return md
	default:
		return k.last
	}
}

// Apply bins time-ordered records and returns the representatives ordered by
// event time.
func (b Binning) Apply(records []schema.MarketUpdate, loc *time.Location) []schema.MarketUpdate {
	if !b.Enabled() || len(records) == 0 {
		return records
	}

	type state struct {
		cur   bucket
		key   time.Time
		count int
	}
	open := map[string]*state{}
	out := make([]schema.MarketUpdate, 0, len(records)/2+1)
	size := b.Period.Magnitude()

	for _, md := range records {
		st := open[md.Symbol]
		if st == nil {
			st = &state{}
			open[md.Symbol] = st
		}
		if b.Period.IsTimeBased() {
			key := b.Period.Floor(md.EventTime, loc)
			if st.cur.n > 0 && !key.Equal(st.key) {
				out = append(out, st.cur.emit(b.Func))
				st.cur = bucket{}
			}
			st.key = key
			st.cur.add(md)
			continue
		}

		st.cur.add(md)
		st.count++
		if st.count == size {
			out = append(out, st.cur.emit(b.Func))
			st.cur, st.count = bucket{}, 0
		}
	}

	for _, md := range records {
		if st := open[md.Symbol]; st != nil {
			if st.cur.n > 0 {
				out = append(out, st.cur.emit(b.Func))
			}
			delete(open, md.Symbol)
		}
	}
	SortByTime(out)
	return out
}
