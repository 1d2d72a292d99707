package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/period"
	"tradecore/pkg/exception"
)

func TestEveryCategoryHasOnePayload(t *testing.T) {
	payloads := []Payload{
		MarketUpdate{}, MarketOrder{}, OrderStatus{}, PositionUpdate{}, IndicatorUpdate{},
		ModelInfo{}, PLInfo{}, ExecutionInfo{}, TimerInfo{}, SystemInfo{},
	}
	require.Len(t, payloads, CategoryCount-1)

	seen := make(map[EventCategory]bool)
	for _, p := range payloads {
		c := p.Category()
		assert.True(t, c.IsAvailable(), "%T", p)
		assert.False(t, seen[c], "category %s bound twice", c)
		seen[c] = true
	}
	assert.Len(t, seen, len(Categories()))
}

func TestEventValidate(t *testing.T) {
	e := NewEvent(MarketUpdate{Symbol: "USDJPY"})
	require.NoError(t, e.Validate())
	assert.Equal(t, CategoryMarketData, e.Category())

	mismatch := Event{Header: EventHeader{Category: CategoryTimerInfo}, Payload: MarketUpdate{}}
	require.ErrorIs(t, mismatch.Validate(), exception.ErrCategoryMismatch)

	unknown := Event{Header: EventHeader{Category: _category_end}, Payload: MarketUpdate{}}
	require.ErrorIs(t, unknown.Validate(), exception.ErrUnknownCategory)

	nilPayload := Event{Header: EventHeader{Category: CategorySystemInfo}}
	require.ErrorIs(t, nilPayload.Validate(), exception.ErrNilPayload)
}

func TestCategoryText(t *testing.T) {
	for _, c := range Categories() {
		text, err := c.MarshalText()
		require.NoError(t, err)

		var back EventCategory
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, c, back)
	}

	_, err := ParseCategory("Nope")
	require.ErrorIs(t, err, exception.ErrUnknownCategory)
}

func TestEventTime(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, ts, EventTime(MarketUpdate{EventTime: ts}))
	assert.Equal(t, ts, EventTime(TimerInfo{Period: period.Min1, Current: ts}))
	assert.Equal(t, ts, EventTime(SystemInfo{Time: ts}))
	assert.Equal(t, Price(150), MarketUpdate{Bid: 100, Ask: 200}.Mid())
	assert.Equal(t, "EURUSD", Symbol(ExecutionInfo{Symbol: "EURUSD"}))
	assert.Empty(t, Symbol(TimerInfo{}))
}
