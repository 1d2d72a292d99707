package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/bus"
	"tradecore/internal/period"
	"tradecore/internal/recorder"
	"tradecore/internal/schema"
)

func at(min int) time.Time {
	return time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC).Add(time.Duration(min) * time.Minute)
}

func buy(symbol string, qty schema.Quantity, min int) schema.ExecutionInfo {
	return schema.ExecutionInfo{Symbol: symbol, Side: schema.OrderSideBuy, Qty: qty, Time: at(min)}
}

func sell(symbol string, qty schema.Quantity, min int) schema.ExecutionInfo {
	return schema.ExecutionInfo{Symbol: symbol, Side: schema.OrderSideSell, Qty: qty, Time: at(min)}
}

func TestPositionsFromBus(t *testing.T) {
	b := bus.NewSync(bus.Config{})
	positions := NewPositions()
	require.NoError(t, b.RegisterListener(schema.CategoryExecutionInfo, positions))
	require.NoError(t, b.Start(t.Context()))
	defer b.Close()

	em := bus.NewEmitter(b, 1)
	require.NoError(t, em.Execution(buy("EURUSD", 10, 0)))
	require.NoError(t, em.Execution(sell("EURUSD", 4, 1)))
	require.NoError(t, em.Execution(sell("USDJPY", 3, 2)))
	require.NoError(t, em.Execution(schema.ExecutionInfo{Symbol: "USDJPY", Qty: 99, Time: at(3)}))

	assert.Equal(t, schema.Quantity(6), positions.Position("EURUSD"))
	assert.Equal(t, schema.Quantity(-3), positions.Position("USDJPY"))
	assert.Equal(t, 2, positions.Count())
}

func TestSnapshotRoundTrip(t *testing.T) {
	positions := NewPositions()
	positions.Apply(buy("USDJPY", 5, 0))
	positions.Apply(buy("EURUSD", 2, 4))

	snap := positions.Snapshot()
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "EURUSD", snap.Positions[0].Symbol)
	assert.True(t, snap.LastEventTime.Equal(at(4)))

	path := filepath.Join(t.TempDir(), "snap", "positions.json")
	require.NoError(t, WriteSnapshot(path, snap))
	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, CompareSnapshots(snap, loaded))

	restored := NewPositions()
	restored.Apply(buy("GBPUSD", 1, 0))
	restored.ApplySnapshot(loaded)
	assert.Equal(t, 2, restored.Count())
	assert.Equal(t, schema.Quantity(5), restored.Position("USDJPY"))

	loaded.Positions[0].Qty++
	require.Error(t, CompareSnapshots(snap, loaded))
}

func TestRecoverPositions(t *testing.T) {
	dir := t.TempDir()
	store, err := recorder.NewStore(recorder.DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, store.Start(t.Context()))
	em := bus.NewEmitter(recordTo{store}, 1)
	for _, exec := range []schema.ExecutionInfo{buy("EURUSD", 10, 0), sell("EURUSD", 3, 5), buy("USDJPY", 7, 6)} {
		require.NoError(t, em.Execution(exec))
	}
	require.NoError(t, em.MarketUpdate(schema.MarketUpdate{Symbol: "EURUSD", EventTime: at(7)}))
	require.NoError(t, store.FinalizeDisk())

	full, err := RecoverPositions(t.Context(), RecoverConfig{WALDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 3, full.Applied)
	assert.Equal(t, uint64(3), full.LastSeq)
	assert.Equal(t, schema.Quantity(7), full.Positions.Position("EURUSD"))

	snapPath := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, WriteSnapshot(snapPath, Snapshot{
		LastEventTime: at(0),
		Positions:     []PositionEntry{{Symbol: "EURUSD", Qty: 10}},
	}))
	tail, err := RecoverPositions(t.Context(), RecoverConfig{WALDir: dir, SnapshotPath: snapPath})
	require.NoError(t, err)
	assert.Equal(t, 2, tail.Applied)
	require.NoError(t, CompareSnapshots(full.Positions.Snapshot(), tail.Positions.Snapshot()))

	_, err = RecoverPositions(t.Context(), RecoverConfig{})
	require.Error(t, err)
}

type recordTo struct{ s *recorder.Store }

func (r recordTo) Publish(e schema.Event) error { return r.s.Insert(e) }

func TestHistoryPrune(t *testing.T) {
	h := NewHistory()
	key := SeriesKey{Name: "sma", Symbol: "EURUSD", Period: period.Min5}
	other := SeriesKey{Name: "sma", Symbol: "USDJPY", Period: period.Min5}
	for _, m := range []int{0, 10, 5, 20} {
		require.NoError(t, h.OnIndicator(schema.IndicatorUpdate{Name: key.Name, Symbol: key.Symbol, Period: key.Period, Value: float64(m), Time: at(m)}))
	}
	require.NoError(t, h.OnIndicator(schema.IndicatorUpdate{Name: other.Name, Symbol: other.Symbol, Period: other.Period, Time: at(1)}))

	series := h.Series(key)
	require.Len(t, series, 4)
	assert.Equal(t, []float64{0, 5, 10, 20}, []float64{series[0].Value, series[1].Value, series[2].Value, series[3].Value})

	assert.Equal(t, 3, h.PruneBefore(at(10)))
	assert.Equal(t, 2, h.Len())
	assert.Empty(t, h.Series(other))
	latest, ok := h.Latest(key)
	require.True(t, ok)
	assert.Equal(t, 20.0, latest.Value)

	assert.Zero(t, h.PruneBefore(at(10)))
	_, ok = h.Latest(other)
	assert.False(t, ok)
}
