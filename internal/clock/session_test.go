package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/pkg/exception"
)

var tokyo = DefaultSession().Location()

func jst(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, tokyo)
}

func TestSessionSeasonalClose(t *testing.T) {
	s := DefaultSession()
	assert.Equal(t, jst(2024, 1, 6, 7, 0), s.CloseOn(jst(2024, 1, 6, 1, 0)))
	assert.Equal(t, jst(2024, 7, 6, 6, 0), s.CloseOn(jst(2024, 7, 6, 1, 0)))
	assert.False(t, s.IsSummer(jst(2024, 1, 6, 0, 0)))
	assert.True(t, s.IsSummer(jst(2024, 7, 6, 0, 0)))
}

func TestSessionWeekendGap(t *testing.T) {
	s := DefaultSession()
	cases := []struct {
		at     time.Time
		closed bool
	}{
		{jst(2024, 1, 5, 23, 0), false},
		{jst(2024, 1, 6, 6, 59), false},
		{jst(2024, 1, 6, 7, 0), false},
		{jst(2024, 1, 6, 7, 1), true},
		{jst(2024, 1, 7, 12, 0), true},
		{jst(2024, 1, 8, 6, 59), true},
		{jst(2024, 1, 8, 7, 0), false},
		{jst(2024, 7, 6, 6, 30), true},
		{jst(2024, 7, 8, 6, 0), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.closed, s.IsClosed(tc.at), tc.at.String())
		assert.Equal(t, !tc.closed, s.IsTradable(tc.at), tc.at.String())
	}

	assert.Equal(t, jst(2024, 1, 8, 7, 0), s.NextOpen(jst(2024, 1, 6, 9, 0)))
	assert.Equal(t, jst(2024, 1, 8, 7, 0), s.NextOpen(jst(2024, 1, 7, 9, 0)))
	assert.Equal(t, jst(2024, 1, 8, 7, 0), s.NextOpen(jst(2024, 1, 8, 3, 0)))
	assert.Equal(t, jst(2024, 1, 3, 9, 0), s.NextOpen(jst(2024, 1, 3, 9, 0)))
}

func TestSessionWeekBounds(t *testing.T) {
	s := DefaultSession()
	sat := jst(2024, 1, 6, 7, 0)
	mon := jst(2024, 1, 8, 7, 0)
	for _, at := range []time.Time{
		jst(2024, 1, 1, 8, 0),
		jst(2024, 1, 3, 12, 0),
		jst(2024, 1, 6, 7, 0),
		jst(2024, 1, 6, 20, 0),
		jst(2024, 1, 7, 20, 0),
		jst(2024, 1, 8, 6, 0),
	} {
		assert.Equal(t, sat, s.WeekClose(at), at.String())
		assert.Equal(t, mon, s.WeekOpen(at), at.String())
	}
	assert.Equal(t, jst(2024, 1, 13, 7, 0), s.WeekClose(mon))
}

func TestSessionDailyCloses(t *testing.T) {
	s := DefaultSession()
	assert.Equal(t, jst(2023, 12, 30, 7, 0), s.LastDailyClose(jst(2024, 1, 2, 0, 0)))
	assert.Equal(t, jst(2024, 1, 2, 7, 0), s.NextDailyClose(jst(2024, 1, 2, 0, 0)))
	assert.Equal(t, jst(2024, 1, 2, 7, 0), s.LastDailyClose(jst(2024, 1, 2, 7, 0)))
	assert.Equal(t, jst(2024, 1, 3, 7, 0), s.NextDailyClose(jst(2024, 1, 2, 7, 0)))
	assert.Equal(t, jst(2024, 1, 9, 7, 0), s.NextDailyClose(jst(2024, 1, 6, 7, 0)))
	assert.Equal(t, jst(2024, 1, 9, 7, 0), s.NextDailyClose(jst(2024, 1, 8, 12, 0)))

	assert.Equal(t, time.Friday, s.TradeDate(jst(2024, 1, 6, 3, 0)).Weekday())
	assert.Equal(t, time.Monday, s.TradeDate(jst(2024, 1, 8, 12, 0)).Weekday())
}

func TestNewSessionConfig(t *testing.T) {
	s, err := NewSession(SessionConfig{
		Location:    "UTC",
		SummerClose: "21:00",
		WinterClose: "22:00",
		WeekEndLead: "30m",
	})
	require.NoError(t, err)
	utc := func(m time.Month, d, hh int) time.Time { return time.Date(2024, m, d, hh, 0, 0, 0, time.UTC) }
	assert.Equal(t, utc(1, 6, 22), s.CloseOn(utc(1, 6, 0)))
	assert.Equal(t, utc(7, 6, 21), s.OpenOn(utc(7, 6, 0)))
	assert.Equal(t, 30*time.Minute, s.WeekEndLead())

	_, err = NewSession(SessionConfig{Location: "Mars/Olympus"})
	require.ErrorIs(t, err, exception.ErrUnknownLocation)

	_, err = NewSession(SessionConfig{WinterClose: "7am"})
	require.ErrorIs(t, err, exception.ErrInvalidSession)

	_, err = NewSession(SessionConfig{WeekEndLead: "-1m"})
	require.ErrorIs(t, err, exception.ErrInvalidSession)
}

func TestSessionHolidayCalendar(t *testing.T) {
	s, err := NewSession(SessionConfig{HolidayMIC: "XNYS"})
	require.NoError(t, err)
	assert.False(t, s.IsTradable(jst(2024, 1, 7, 12, 0)), "weekend gap stays closed")

	_, err = NewSession(SessionConfig{HolidayMIC: "nope"})
	require.ErrorIs(t, err, exception.ErrInvalidSession)
}
