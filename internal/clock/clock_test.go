package clock

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/period"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

type notifications struct {
	mu  sync.Mutex
	got []schema.TimerInfo
}

func (n *notifications) Timer(ti schema.TimerInfo) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, ti)
	return nil
}

func countBy(fired []schema.TimerInfo) map[period.Period]int {
	out := map[period.Period]int{}
	for _, ti := range fired {
		if ti.Kind == schema.TimerBoundary {
			out[ti.Period]++
		}
	}
	return out
}

func countKind(fired []schema.TimerInfo, kind schema.TimerKind) int {
	n := 0
	for _, ti := range fired {
		if ti.Kind == kind {
			n++
		}
	}
	return n
}

func TestAdvanceRequiresReset(t *testing.T) {
	c := New(nil, nil)
	_, err := c.Advance(jst(2024, 1, 2, 0, 1))
	require.ErrorIs(t, err, exception.ErrClockNotReset)
	_, ok := c.State(period.Min1)
	assert.False(t, ok)
}

func TestResetBoundaries(t *testing.T) {
	c := New(nil, nil)
	c.Reset(jst(2024, 1, 2, 10, 37))

	want := map[period.Period][2]time.Time{
		period.Min1:  {jst(2024, 1, 2, 10, 37), jst(2024, 1, 2, 10, 38)},
		period.Min5:  {jst(2024, 1, 2, 10, 35), jst(2024, 1, 2, 10, 40)},
		period.Min15: {jst(2024, 1, 2, 10, 30), jst(2024, 1, 2, 10, 45)},
		period.Min30: {jst(2024, 1, 2, 10, 30), jst(2024, 1, 2, 11, 0)},
		period.Hour1: {jst(2024, 1, 2, 10, 0), jst(2024, 1, 2, 11, 0)},
		period.Day1:  {jst(2024, 1, 2, 7, 0), jst(2024, 1, 3, 7, 0)},
	}
	for p, w := range want {
		b, ok := c.State(p)
		require.True(t, ok, p.String())
		assert.Equal(t, w[0], b.Last, p.String())
		assert.Equal(t, w[1], b.Next, p.String())
	}

	_, ok := c.State(period.Hour4)
	assert.False(t, ok)
	assert.Len(t, c.Snapshot().Boundaries, len(Periods()))
}

func TestAdvanceOneMinuteOnTuesday(t *testing.T) {
	out := &notifications{}
	c := New(nil, out)
	c.Reset(jst(2024, 1, 2, 0, 0))

	fired, err := c.Advance(jst(2024, 1, 2, 0, 1))
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, schema.TimerInfo{
		Kind:    schema.TimerBoundary,
		Period:  period.Min1,
		Current: jst(2024, 1, 2, 0, 1),
		Next:    jst(2024, 1, 2, 0, 2),
	}, fired[0])
	assert.Equal(t, fired, out.got)
}

func TestAdvanceNoOpBeforeNextMinute(t *testing.T) {
	c := New(nil, nil)
	c.Reset(jst(2024, 1, 2, 0, 0))

	fired, err := c.Advance(jst(2024, 1, 2, 0, 0).Add(59 * time.Second))
	require.NoError(t, err)
	assert.Empty(t, fired)

	fired, err = c.Advance(jst(2024, 1, 2, 0, 3))
	require.NoError(t, err)
	assert.Len(t, fired, 3)

	before := c.Snapshot()
	for _, at := range []time.Time{jst(2024, 1, 2, 0, 3), jst(2024, 1, 2, 0, 2), jst(2023, 12, 31, 0, 0)} {
		fired, err = c.Advance(at)
		require.NoError(t, err)
		assert.Empty(t, fired)
	}
	assert.Equal(t, before, c.Snapshot())
}

func TestAdvanceCascadeOrder(t *testing.T) {
	c := New(nil, nil)
	c.Reset(jst(2024, 1, 2, 6, 0))

	fired, err := c.Advance(jst(2024, 1, 2, 7, 0))
	require.NoError(t, err)
	assert.Equal(t, map[period.Period]int{
		period.Min1:  60,
		period.Min5:  12,
		period.Min15: 4,
		period.Min30: 2,
		period.Hour1: 1,
		period.Day1:  1,
	}, countBy(fired))

	tail := fired[len(fired)-6:]
	for i, p := range Periods() {
		assert.Equal(t, p, tail[i].Period)
		assert.Equal(t, jst(2024, 1, 2, 7, 0), tail[i].Current)
	}
	assert.Equal(t, jst(2024, 1, 3, 7, 0), tail[5].Next)
}

func TestAdvanceDailyCloseSkipsMonday(t *testing.T) {
	c := New(nil, nil)
	c.Reset(jst(2024, 1, 8, 7, 0))

	fired, err := c.Advance(jst(2024, 1, 9, 7, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, countBy(fired)[period.Day1])

	day, _ := c.State(period.Day1)
	assert.Equal(t, jst(2024, 1, 9, 7, 0), day.Last)
	assert.Equal(t, jst(2024, 1, 10, 7, 0), day.Next)
}

func TestAdvanceMonotonicAndShorterFirst(t *testing.T) {
	c := New(nil, nil)
	start := jst(2024, 3, 1, 9, 0)
	c.Reset(start)

	r := rand.New(rand.NewSource(7))
	last := map[period.Period]time.Time{}
	seen := map[period.Period]map[time.Time]bool{}
	at := start
	for at.Before(start.AddDate(0, 0, 21)) {
		at = at.Add(time.Duration(r.Int63n(int64(45 * time.Minute))))
		fired, err := c.Advance(at)
		require.NoError(t, err)

		for _, ti := range fired {
			if ti.Kind != schema.TimerBoundary {
				continue
			}
			require.True(t, ti.Next.After(ti.Current), "%s at %s", ti.Period, ti.Current)
			require.False(t, ti.Current.Before(last[ti.Period]), "%s went backwards", ti.Period)
			require.False(t, ti.Current.After(at))
			last[ti.Period] = ti.Current

			if i := indexOf(ti.Period); i > 0 {
				shorter := clocked[i-1]
				require.True(t, seen[shorter][ti.Current], "%s fired before %s at %s", ti.Period, shorter, ti.Current)
			}
			if seen[ti.Period] == nil {
				seen[ti.Period] = map[time.Time]bool{}
			}
			seen[ti.Period][ti.Current] = true
		}
		for _, b := range c.Snapshot().Boundaries {
			require.True(t, b.Next.After(b.Last))
		}
	}
	assert.NotEmpty(t, seen[period.Day1])
}

func indexOf(p period.Period) int {
	for i, q := range clocked {
		if q == p {
			return i
		}
	}
	return -1
}

func TestWeekendGapSkippedWithoutNotifications(t *testing.T) {
	c := New(nil, nil)
	c.Reset(jst(2024, 1, 6, 6, 0))

	fired, err := c.Advance(jst(2024, 1, 7, 12, 0))
	require.NoError(t, err)
	for _, ti := range fired {
		if ti.Kind == schema.TimerBoundary {
			assert.False(t, ti.Current.After(jst(2024, 1, 6, 7, 0)), "boundary %s inside weekend gap", ti.Current)
		}
	}
	assert.Equal(t, 1, countBy(fired)[period.Day1])

	min1, _ := c.State(period.Min1)
	assert.Equal(t, jst(2024, 1, 8, 7, 0), min1.Last)
	assert.Equal(t, jst(2024, 1, 8, 7, 1), min1.Next)
	day, _ := c.State(period.Day1)
	assert.Equal(t, jst(2024, 1, 6, 7, 0), day.Last)
	assert.Equal(t, jst(2024, 1, 9, 7, 0), day.Next)

	fresh := New(nil, nil)
	fresh.Reset(jst(2024, 1, 8, 7, 0))
	assert.Equal(t, fresh.Snapshot().Boundaries, c.Snapshot().Boundaries)
}

func TestWeeklyGateEdges(t *testing.T) {
	out := &notifications{}
	c := New(nil, out)
	c.Reset(jst(2024, 1, 5, 12, 0))

	for _, at := range []time.Time{
		jst(2024, 1, 6, 8, 0),
		jst(2024, 1, 6, 9, 30),
		jst(2024, 1, 6, 23, 0),
		jst(2024, 1, 7, 4, 0),
		jst(2024, 1, 7, 18, 0),
		jst(2024, 1, 8, 6, 59),
	} {
		_, err := c.Advance(at)
		require.NoError(t, err)
		assert.True(t, c.WeekEnded())
	}
	assert.Equal(t, 1, countKind(out.got, schema.TimerWeekEnd))
	assert.Zero(t, countKind(out.got, schema.TimerWeekStart))

	_, err := c.Advance(jst(2024, 1, 8, 7, 0))
	require.NoError(t, err)
	_, err = c.Advance(jst(2024, 1, 8, 7, 30))
	require.NoError(t, err)
	assert.False(t, c.WeekEnded())
	assert.Equal(t, 1, countKind(out.got, schema.TimerWeekEnd))
	require.Equal(t, 1, countKind(out.got, schema.TimerWeekStart))

	for _, ti := range out.got {
		switch ti.Kind {
		case schema.TimerWeekEnd:
			assert.Equal(t, jst(2024, 1, 6, 7, 0), ti.Current)
			assert.Equal(t, jst(2024, 1, 8, 7, 0), ti.Next)
		case schema.TimerWeekStart:
			assert.Equal(t, jst(2024, 1, 8, 7, 0), ti.Current)
			assert.Equal(t, jst(2024, 1, 13, 7, 0), ti.Next)
		}
	}
	assert.Equal(t, jst(2024, 1, 13, 7, 0), c.Snapshot().WeekEndAt)
}

func TestWeekEndLead(t *testing.T) {
	c := New(nil, nil)
	c.Reset(jst(2024, 1, 6, 6, 0))

	fired, err := c.Advance(jst(2024, 1, 6, 6, 49))
	require.NoError(t, err)
	assert.Zero(t, countKind(fired, schema.TimerWeekEnd))

	fired, err = c.Advance(jst(2024, 1, 6, 6, 50))
	require.NoError(t, err)
	require.Equal(t, 1, countKind(fired, schema.TimerWeekEnd))
	assert.Equal(t, schema.TimerWeekEnd, fired[0].Kind, "weekly edge precedes boundaries at the same instant")
	assert.Equal(t, 2, countBy(fired)[period.Min1]+countBy(fired)[period.Min5])
}

func TestWeeklyEdgesInterleaveWithBoundaries(t *testing.T) {
	c := New(nil, nil)
	c.Reset(jst(2024, 1, 6, 6, 40))

	fired, err := c.Advance(jst(2024, 1, 8, 7, 5))
	require.NoError(t, err)
	require.Equal(t, 1, countKind(fired, schema.TimerWeekEnd))
	require.Equal(t, 1, countKind(fired, schema.TimerWeekStart))

	lead := jst(2024, 1, 6, 6, 50)
	open := jst(2024, 1, 8, 7, 0)
	var ended, started bool
	var mondayMinutes int
	for _, ti := range fired {
		switch ti.Kind {
		case schema.TimerWeekEnd:
			ended = true
		case schema.TimerWeekStart:
			require.True(t, ended)
			started = true
		case schema.TimerBoundary:
			switch {
			case !ended:
				assert.True(t, ti.Current.Before(lead), "boundary %s before week end notice", ti.Current)
			case !started:
				assert.False(t, ti.Current.Before(lead), "boundary %s after week end notice", ti.Current)
				assert.True(t, ti.Current.Before(open), "boundary %s before week start notice", ti.Current)
			default:
				assert.True(t, ti.Current.After(open), "boundary %s after week start notice", ti.Current)
				if ti.Period == period.Min1 {
					mondayMinutes++
				}
			}
		}
	}
	assert.Equal(t, 5, mondayMinutes)
	assert.False(t, c.WeekEnded())
}

func TestConcurrentAdvanceDeliversInOrder(t *testing.T) {
	out := &notifications{}
	c := New(nil, out)
	base := jst(2024, 1, 2, 9, 0)
	c.Reset(base)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := 1; m <= 120; m++ {
				_, _ = c.Advance(base.Add(time.Duration(m) * time.Minute))
			}
		}()
	}
	wg.Wait()

	var mins []time.Time
	for _, ti := range out.got {
		if ti.Period == period.Min1 {
			mins = append(mins, ti.Current)
		}
	}
	require.Len(t, mins, 120)
	for i, at := range mins {
		assert.Equal(t, base.Add(time.Duration(i+1)*time.Minute), at)
	}
}
