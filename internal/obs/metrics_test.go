package obs

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/schema"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObservePublish(schema.EventHeader{Category: schema.CategoryMarketData, TsEvent: 10, TsRecv: 30})
	m.ObservePublish(schema.EventHeader{Category: schema.CategoryMarketData})
	m.ObserveDelivery(schema.CategoryMarketData, time.Millisecond, false)
	m.ObserveDelivery(schema.CategoryMarketData, 3*time.Millisecond, true)
	assert.Equal(t, uint64(1), m.IncDrop(schema.CategoryTimerInfo))
	assert.Equal(t, uint64(2), m.IncDrop(schema.CategoryTimerInfo))
	m.DispatchStarted()

	snap := m.Snapshot()
	md := snap.Categories[schema.CategoryMarketData]
	assert.Equal(t, uint64(2), md.Published)
	assert.Equal(t, uint64(2), md.Delivered)
	assert.Equal(t, uint64(1), md.ListenerFailures)
	assert.Equal(t, uint64(2), snap.TotalDropped())
	assert.Equal(t, uint64(2), m.Dropped(schema.CategoryTimerInfo))
	assert.Equal(t, int64(1), snap.ActiveDispatch)
	assert.Equal(t, time.Millisecond, snap.DispatchLatency.Min)
	assert.Equal(t, 3*time.Millisecond, snap.DispatchLatency.Max)
	assert.Equal(t, 2*time.Millisecond, snap.DispatchLatency.Avg)
	assert.Equal(t, time.Duration(20), snap.EventLatency.Avg)

	_, ok := snap.Categories[schema.CategoryPLInfo]
	assert.False(t, ok)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObservePublish(schema.EventHeader{Category: schema.CategoryMarketData})
	m.IncQueueClosed()
	m.DispatchStarted()
	assert.Zero(t, m.ActiveDispatch())
	assert.Empty(t, m.Snapshot().Categories)
}

func TestBusCollector(t *testing.T) {
	m := NewMetrics()
	m.ObservePublish(schema.EventHeader{Category: schema.CategoryMarketData})
	m.IncDrop(schema.CategoryMarketData)

	c := NewBusCollector("tradecore", m, func() []QueueDepth {
		return []QueueDepth{{Category: schema.CategoryMarketData, Depth: 3, Capacity: 8}}
	})

	expected := `
# HELP tradecore_bus_queue_depth Events waiting in a category queue.
# TYPE tradecore_bus_queue_depth gauge
tradecore_bus_queue_depth{category="MarketData"} 3
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "tradecore_bus_queue_depth"))
	assert.Equal(t, 7, testutil.CollectAndCount(c))
}
