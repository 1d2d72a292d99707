package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/period"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

func TestMarketUpdateBinary(t *testing.T) {
	md := schema.MarketUpdate{
		Symbol:    "USDJPY",
		Bid:       14_512_300,
		Ask:       14_512_700,
		BidSize:   1_000_000,
		AskSize:   2_000_000,
		Condition: schema.QuoteConditionFast,
		Flags:     3,
		EventTime: time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC),
	}
	buf := EncodeMarketUpdate(nil, md)
	require.Len(t, buf, MarketUpdateSize(md))

	got, ok := DecodeMarketUpdate(buf)
	require.True(t, ok)
	assert.Equal(t, md, got)

	_, ok = DecodeMarketUpdate(buf[:len(buf)-1])
	assert.False(t, ok, "truncated symbol")
	_, ok = DecodeMarketUpdate(buf[:10])
	assert.False(t, ok)

	reused := EncodeMarketUpdate(buf, schema.MarketUpdate{Symbol: "EURUSD"})
	assert.Equal(t, &buf[0], &reused[0], "buffer with enough capacity is reused")
}

func TestEncodeDecodeEvent(t *testing.T) {
	at := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	payloads := []schema.Payload{
		schema.MarketUpdate{Symbol: "EURUSD", Bid: 1, Ask: 2, EventTime: at},
		schema.MarketOrder{OrderID: 9, Model: "mr", Symbol: "EURUSD", Side: schema.OrderSideSell, Qty: 5, Time: at},
		schema.IndicatorUpdate{Name: "sma", Symbol: "EURUSD", Period: period.Min15, Value: 1.25, Time: at},
		schema.TimerInfo{Kind: schema.TimerBoundary, Period: period.Hour1, Current: at, Next: at.Add(time.Hour)},
		schema.SystemInfo{Kind: schema.SystemReplayComplete, Message: "done", Time: at},
	}
	for _, p := range payloads {
		e := schema.NewEvent(p)
		e.Header.Seq = 42
		buf, err := Encode(nil, e)
		require.NoError(t, err, p.Category().String())

		got, err := Decode(e.Header, buf)
		require.NoError(t, err, p.Category().String())
		assert.Equal(t, e.Header, got.Header)
		assert.Equal(t, schema.EventTime(p).UnixNano(), schema.EventTime(got.Payload).UnixNano(), p.Category().String())
		assert.Equal(t, p.Category(), got.Payload.Category())
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodePayload(schema.CategoryMarketData, []byte{1, 2})
	require.ErrorIs(t, err, exception.ErrPayloadDecode)

	_, err = DecodePayload(schema.CategoryOrderStatus, []byte("{"))
	require.ErrorIs(t, err, exception.ErrPayloadDecode)

	_, err = DecodePayload(schema.EventCategory(200), nil)
	require.ErrorIs(t, err, exception.ErrUnknownCategory)

	_, err = Encode(nil, schema.Event{Header: schema.EventHeader{Category: schema.CategoryPLInfo}, Payload: schema.SystemInfo{}})
	require.ErrorIs(t, err, exception.ErrCategoryMismatch)
}

func TestJSONCoversMarketData(t *testing.T) {
	md := schema.MarketUpdate{Symbol: "EURUSD", Bid: 10, Ask: 12, EventTime: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	buf, err := EncodeJSON(schema.NewEvent(md))
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"symbol":"EURUSD"`)

	p, err := DecodeJSON(schema.CategoryMarketData, buf)
	require.NoError(t, err)
	got := p.(schema.MarketUpdate)
	assert.Equal(t, md.Symbol, got.Symbol)
	assert.True(t, md.EventTime.Equal(got.EventTime))

	_, err = DecodeJSON(schema.CategoryMarketData, []byte("{"))
	require.ErrorIs(t, err, exception.ErrPayloadDecode)
}
