package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/period"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

func quote(symbol string, at time.Time, bid, ask schema.Price) schema.MarketUpdate {
	return schema.MarketUpdate{Symbol: symbol, Bid: bid, Ask: ask, EventTime: at}
}

func TestBinningTimeBuckets(t *testing.T) {
	base := jst(2024, 1, 2, 9, 0)
	records := []schema.MarketUpdate{
		quote("A", base.Add(10*time.Second), 100, 102),
		quote("B", base.Add(20*time.Second), 500, 502),
		quote("A", base.Add(40*time.Second), 104, 106),
		quote("A", base.Add(70*time.Second), 110, 112),
		quote("B", base.Add(80*time.Second), 510, 512),
	}

	last := Binning{Period: period.Min1, Func: BinLast}.Apply(records, session.Location())
	require.Len(t, last, 4)
	assert.Equal(t, []schema.MarketUpdate{records[1], records[2], records[3], records[4]}, last)

	first := Binning{Period: period.Min1, Func: BinFirst}.Apply(records, session.Location())
	assert.Equal(t, []schema.MarketUpdate{records[0], records[1], records[3], records[4]}, first)

	mid := Binning{Period: period.Min1, Func: BinMid}.Apply(records, session.Location())
	require.Len(t, mid, 4)
	assert.Equal(t, "A", mid[1].Symbol)
	assert.Equal(t, schema.Price(103), mid[1].Bid)
	assert.Equal(t, schema.Price(103), mid[1].Ask)
	assert.Equal(t, records[2].EventTime, mid[1].EventTime)
}

func TestBinningTickBuckets(t *testing.T) {
	base := jst(2024, 1, 2, 9, 0)
	var records []schema.MarketUpdate
	for i := 0; i < 25; i++ {
		records = append(records, quote("A", base.Add(time.Duration(i)*time.Second), schema.Price(i), schema.Price(i)))
	}
	out := Binning{Period: period.Tick10}.Apply(records, session.Location())
	require.Len(t, out, 3)
	assert.Equal(t, schema.Price(9), out[0].Bid)
	assert.Equal(t, schema.Price(19), out[1].Bid)
	assert.Equal(t, schema.Price(24), out[2].Bid, "partial tail bucket is kept")
}

func TestBinningDisabled(t *testing.T) {
	records := []schema.MarketUpdate{quote("A", jst(2024, 1, 2, 9, 0), 1, 2)}
	assert.Equal(t, records, Binning{}.Apply(records, session.Location()))
}

func TestBinFuncText(t *testing.T) {
	var f BinFunc
	require.NoError(t, f.UnmarshalText([]byte("MID")))
	assert.Equal(t, BinMid, f)
	require.ErrorIs(t, f.UnmarshalText([]byte("median")), exception.ErrUnknownBinFunc)
}
