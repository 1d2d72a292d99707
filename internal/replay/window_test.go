package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/clock"
	"tradecore/pkg/exception"
)

var session = clock.DefaultSession()

func jst(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, session.Location())
}

func requireContiguous(t *testing.T, windows []Window, start, end time.Time) {
	t.Helper()
	require.NotEmpty(t, windows)
	assert.Equal(t, start, windows[0].Start)
	assert.Equal(t, end, windows[len(windows)-1].End)
	for i, w := range windows {
		assert.Equal(t, i, w.Index)
		assert.True(t, w.End.After(w.Start), w.String())
		if i > 0 {
			assert.Equal(t, windows[i-1].End, w.Start, "gap or overlap before %s", w)
		}
	}
}

func TestPlanShortRangeIsOneWindow(t *testing.T) {
	for _, start := range []time.Time{jst(2024, 1, 1, 0, 0), jst(2024, 1, 3, 12, 0), jst(2024, 1, 6, 9, 0)} {
		end := start.AddDate(0, 0, 10)
		windows, err := Plan(start, end, 14, session)
		require.NoError(t, err)
		require.Len(t, windows, 1, start.String())
		assert.Equal(t, Window{Start: start, End: end}, windows[0])
	}
}

func TestPlanEndsOnSaturdays(t *testing.T) {
	start := jst(2024, 1, 1, 0, 0)
	end := start.AddDate(0, 0, 30)
	windows, err := Plan(start, end, 7, session)
	require.NoError(t, err)
	requireContiguous(t, windows, start, end)

	require.Len(t, windows, 5)
	for _, w := range windows[:len(windows)-1] {
		assert.Equal(t, time.Saturday, w.End.Weekday(), w.String())
		assert.Equal(t, session.CloseOn(w.End), w.End, w.String())
	}
	assert.Equal(t, jst(2024, 1, 6, 7, 0), windows[0].End)
	assert.Equal(t, jst(2024, 1, 27, 7, 0), windows[3].End)
}

func TestPlanSnapsAcrossSeasons(t *testing.T) {
	start := jst(2024, 2, 20, 9, 0)
	end := jst(2024, 4, 20, 9, 0)
	windows, err := Plan(start, end, 10, session)
	require.NoError(t, err)
	requireContiguous(t, windows, start, end)
	for _, w := range windows[:len(windows)-1] {
		assert.Equal(t, time.Saturday, w.End.Weekday(), w.String())
		assert.Equal(t, session.CloseOn(w.End), w.End, w.String())
	}
	assert.Contains(t, []int{6, 7}, windows[len(windows)-2].End.Hour())
}

func TestPlanShortIncrementSnapsForward(t *testing.T) {
	start := jst(2024, 1, 2, 9, 0)
	end := jst(2024, 1, 20, 9, 0)
	windows, err := Plan(start, end, 2, session)
	require.NoError(t, err)
	requireContiguous(t, windows, start, end)
	assert.Equal(t, jst(2024, 1, 6, 7, 0), windows[0].End)
	assert.Equal(t, jst(2024, 1, 13, 7, 0), windows[1].End)
	assert.Equal(t, jst(2024, 1, 20, 7, 0), windows[2].End)
	assert.Len(t, windows, 4)
}

func TestPlanRejectsBadInput(t *testing.T) {
	at := jst(2024, 1, 2, 0, 0)
	_, err := Plan(at, at, 7, session)
	require.ErrorIs(t, err, exception.ErrInvalidReplayRange)
	_, err = Plan(at, at.Add(time.Hour), 0, session)
	require.ErrorIs(t, err, exception.ErrInvalidReplayRange)
}

func TestSeedWindow(t *testing.T) {
	start := jst(2024, 1, 8, 7, 0)
	w, ok := SeedWindow(start, 7)
	require.True(t, ok)
	assert.True(t, w.Warmup)
	assert.Equal(t, jst(2024, 1, 1, 7, 0), w.Start)
	assert.Equal(t, start, w.End)

	_, ok = SeedWindow(start, 0)
	assert.False(t, ok)
}
