package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/bus"
	"tradecore/internal/schema"
)

type memStore struct {
	mu      sync.Mutex
	events  []schema.Event
	pending int
	active  int
}

func (s *memStore) Insert(e schema.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memStore) WriteToDisk() error  { return nil }
func (s *memStore) FinalizeDisk() error { return nil }

func (s *memStore) PendingQueueSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending > 0 {
		s.pending--
		return s.pending + 1
	}
	return 0
}

func (s *memStore) ActiveWriterCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active > 0 {
		s.active--
		return 1
	}
	return 0
}

func TestWaitIdle(t *testing.T) {
	s := &memStore{pending: 3, active: 2}
	require.NoError(t, WaitIdle(t.Context(), s, time.Millisecond))
	assert.Zero(t, s.pending)
	assert.Zero(t, s.active)
}

func TestWaitIdleCanceled(t *testing.T) {
	s := &memStore{pending: 1 << 30}
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, WaitIdle(ctx, s, time.Millisecond), context.DeadlineExceeded)
}

func TestRegisterRecordsSelectedCategories(t *testing.T) {
	b := bus.NewSync(bus.Config{})
	s := &memStore{}
	l, err := Register(b, "journal", s, schema.CategoryExecutionInfo, schema.CategorySystemInfo)
	require.NoError(t, err)
	assert.Equal(t, "journal", l.Name())
	require.NoError(t, b.Start(t.Context()))

	em := bus.NewEmitter(b, 1)
	require.NoError(t, em.Execution(schema.ExecutionInfo{OrderID: 1}))
	require.NoError(t, em.MarketUpdate(schema.MarketUpdate{Symbol: "EURUSD"}))
	require.NoError(t, em.System(schema.SystemInfo{Message: "hi"}))

	require.Len(t, s.events, 2)
	assert.Equal(t, schema.CategoryExecutionInfo, s.events[0].Category())
	assert.Equal(t, schema.CategorySystemInfo, s.events[1].Category())
}
