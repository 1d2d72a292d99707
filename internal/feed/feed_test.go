package feed

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/bus"
	"tradecore/internal/clock"
	"tradecore/internal/codec"
	"tradecore/internal/period"
	"tradecore/internal/schema"
)

type capture struct{ events []schema.Event }

func (c *capture) Publish(e schema.Event) error {
	c.events = append(c.events, e)
	return nil
}

func (c *capture) count(cat schema.EventCategory) int {
	n := 0
	for _, e := range c.events {
		if e.Category() == cat {
			n++
		}
	}
	return n
}

type fakeReader struct {
	msgs   []kafka.Message
	err    error
	cancel context.CancelFunc
	closed bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		if f.err != nil {
			return kafka.Message{}, f.err
		}
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestSyntheticSimulatedTime(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	g, err := NewSynthetic(SyntheticConfig{
		Symbols:   []string{"EURUSD", "USDJPY"},
		BasePrice: 1000,
		Spread:    2,
		Interval:  time.Second,
		Start:     start,
		Count:     5,
	})
	require.NoError(t, err)

	var got []schema.MarketUpdate
	require.NoError(t, g.Run(t.Context(), func(md schema.MarketUpdate) { got = append(got, md) }))
	require.Len(t, got, 5)
	assert.Equal(t, "EURUSD", got[0].Symbol)
	assert.Equal(t, "USDJPY", got[1].Symbol)
	assert.Equal(t, "EURUSD", got[4].Symbol)
	assert.Equal(t, start.Add(4*time.Second), got[4].EventTime)
	assert.Equal(t, schema.Price(4), got[0].Ask-got[0].Bid)
	assert.Equal(t, schema.Quantity(1), got[0].BidSize)
}

func TestSyntheticWallClock(t *testing.T) {
	g, err := NewSynthetic(SyntheticConfig{Symbols: []string{"EURUSD"}, Interval: time.Millisecond, Count: 3})
	require.NoError(t, err)
	n := 0
	require.NoError(t, g.Run(t.Context(), func(schema.MarketUpdate) { n++ }))
	assert.Equal(t, 3, n)

	_, err = NewSynthetic(SyntheticConfig{Interval: time.Second})
	require.Error(t, err)
	_, err = NewSynthetic(SyntheticConfig{Symbols: []string{"EURUSD"}})
	require.Error(t, err)
}

func TestKafkaDecodesAndSkips(t *testing.T) {
	at := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Value: codec.EncodeMarketUpdate(nil, schema.MarketUpdate{Symbol: "EURUSD", Bid: 1, Ask: 3, EventTime: at})},
		{Value: []byte{1, 2, 3}, Topic: "md", Offset: 7},
		{Key: []byte("USDJPY"), Time: at.Add(time.Second), Value: codec.EncodeMarketUpdate(nil, schema.MarketUpdate{Bid: 5, Ask: 6})},
	}}
	k := newKafka(KafkaConfig{Brokers: []string{"b:9092"}, Topic: "md"}.withDefaults(), reader)

	var got []schema.MarketUpdate
	require.NoError(t, k.Run(ctx, func(md schema.MarketUpdate) { got = append(got, md) }))
	require.Len(t, got, 2)
	assert.True(t, got[0].EventTime.Equal(at))
	assert.Equal(t, "USDJPY", got[1].Symbol)
	assert.True(t, got[1].EventTime.Equal(at.Add(time.Second)))
	assert.Equal(t, uint64(1), k.Invalid())
	assert.True(t, reader.closed)
}

func TestKafkaJSONAndReadError(t *testing.T) {
	buf, err := codec.EncodeJSON(schema.NewEvent(schema.MarketUpdate{Symbol: "EURUSD", EventTime: time.Unix(10, 0)}))
	require.NoError(t, err)
	reader := &fakeReader{err: io.ErrUnexpectedEOF, msgs: []kafka.Message{{Value: buf}}}
	k := newKafka(KafkaConfig{Brokers: []string{"b:9092"}, Topic: "md", Encoding: EncodingJSON}.withDefaults(), reader)

	n := 0
	err = k.Run(t.Context(), func(schema.MarketUpdate) { n++ })
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 1, n)
}

func TestKafkaConfigValidate(t *testing.T) {
	require.NoError(t, KafkaConfig{Brokers: []string{"b"}, Topic: "t"}.withDefaults().Validate())
	require.Error(t, KafkaConfig{Topic: "t"}.withDefaults().Validate())
	require.Error(t, KafkaConfig{Brokers: []string{"b"}}.withDefaults().Validate())
	require.Error(t, KafkaConfig{Brokers: []string{"b"}, Topic: "t", Encoding: "avro"}.withDefaults().Validate())
}

func TestPumpDrivesClock(t *testing.T) {
	session := clock.DefaultSession()
	out := &capture{}
	em := bus.NewEmitter(out, 1, bus.WithRecvClock(nil))
	c := clock.New(session, em)

	g, err := NewSynthetic(SyntheticConfig{
		Symbols:  []string{"EURUSD"},
		Interval: time.Minute,
		Start:    time.Date(2024, 1, 2, 10, 0, 0, 0, session.Location()),
		Count:    6,
	})
	require.NoError(t, err)

	p := NewPump(c, em)
	require.NoError(t, p.Run(t.Context(), g))

	assert.Equal(t, PumpStats{Received: 6}, p.Stats())
	assert.Equal(t, 6, out.count(schema.CategoryMarketData))
	// Min1 at 10:01..10:05 plus Min5 at 10:05.
	assert.Equal(t, 6, out.count(schema.CategoryTimerInfo))
	require.Equal(t, 2, out.count(schema.CategoryModelInfo))

	first := out.events[0].Payload.(schema.ModelInfo)
	assert.Equal(t, schema.ModelActionStart, first.Action)
	assert.Equal(t, schema.CategoryMarketData, out.events[1].Category())
	last := out.events[len(out.events)-1].Payload.(schema.ModelInfo)
	assert.Equal(t, schema.ModelActionStop, last.Action)

	b, ok := c.State(period.Min1)
	require.True(t, ok)
	assert.True(t, b.Last.Equal(time.Date(2024, 1, 2, 10, 5, 0, 0, session.Location())))
}

func TestPumpSkipsUndatedUpdate(t *testing.T) {
	out := &capture{}
	em := bus.NewEmitter(out, 1)
	p := NewPump(clock.New(clock.DefaultSession(), em), em)

	p.Handle(schema.MarketUpdate{Symbol: "EURUSD"})
	assert.Equal(t, PumpStats{Received: 1, Failed: 1}, p.Stats())
	assert.Empty(t, out.events)
}
