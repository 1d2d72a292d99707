package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/scmhub/calendar"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

const (
	defaultLocation    = "Asia/Tokyo"
	defaultSeasonRef   = "America/New_York"
	defaultSummerClose = "06:00"
	defaultWinterClose = "07:00"
	defaultWeekEndLead = 10 * time.Minute
)

// SessionConfig describes the trading week. Times of day are "HH:MM" on the
// wall clock of Location. Summer is when SeasonRef observes daylight saving.
type SessionConfig struct {
	Location    string `json:"location" yaml:"location"`
	SeasonRef   string `json:"seasonRef" yaml:"seasonRef"`
	SummerClose string `json:"summerClose" yaml:"summerClose"`
	WinterClose string `json:"winterClose" yaml:"winterClose"`
	SummerOpen  string `json:"summerOpen" yaml:"summerOpen"`
	WinterOpen  string `json:"winterOpen" yaml:"winterOpen"`
	WeekEndLead string `json:"weekEndLead" yaml:"weekEndLead"`
	// HolidayMIC optionally names an exchange calendar (ISO 10383, e.g. "xnys")
	// whose holidays are not tradable. It never changes the clock.
	HolidayMIC string `json:"holidayMic" yaml:"holidayMic"`
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Location == "" {
		c.Location = defaultLocation
	}
	if c.SeasonRef == "" {
		c.SeasonRef = defaultSeasonRef
	}
	if c.SummerClose == "" {
		c.SummerClose = defaultSummerClose
	}
	if c.WinterClose == "" {
		c.WinterClose = defaultWinterClose
	}
	if c.SummerOpen == "" {
		c.SummerOpen = c.SummerClose
	}
	if c.WinterOpen == "" {
		c.WinterOpen = c.WinterClose
	}
	if c.WeekEndLead == "" {
		c.WeekEndLead = defaultWeekEndLead.String()
	}
	return c
}

// Session answers calendar questions about the trading week: daily closes
// fall on Tuesday to Saturday, and the market is closed from the Saturday
// close until the Monday open.
type Session struct {
	loc       *time.Location
	seasonRef *time.Location

	summerClose time.Duration
	winterClose time.Duration
	summerOpen  time.Duration
	winterOpen  time.Duration
	lead        time.Duration

	holidays *calendar.Calendar
}

// NewSession builds a session from config, filling unset fields with the
// Tokyo FX defaults.
func NewSession(cfg SessionConfig) (*Session, error) {
	cfg = cfg.withDefaults()

	loc, err := loadLocation(cfg.Location)
	if err != nil {
		return nil, err
	}
	ref, err := loadLocation(cfg.SeasonRef)
	if err != nil {
		return nil, err
	}

	s := &Session{loc: loc, seasonRef: ref}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"summerClose", cfg.SummerClose, &s.summerClose},
		{"winterClose", cfg.WinterClose, &s.winterClose},
		{"summerOpen", cfg.SummerOpen, &s.summerOpen},
		{"winterOpen", cfg.WinterOpen, &s.winterOpen},
	} {
		if *f.dst, err = parseTimeOfDay(f.raw); err != nil {
			return nil, errors.Wrapf(exception.ErrInvalidSession, "%s: %s", f.name, err)
		}
	}

	if s.lead, err = time.ParseDuration(cfg.WeekEndLead); err != nil || s.lead < 0 {
		return nil, errors.Wrapf(exception.ErrInvalidSession, "weekEndLead: %q", cfg.WeekEndLead)
	}

	if cfg.HolidayMIC != "" {
		s.holidays = calendar.GetCalendar(strings.ToLower(cfg.HolidayMIC))
		if s.holidays == nil {
			return nil, errors.Wrapf(exception.ErrInvalidSession, "unknown holiday calendar %q", cfg.HolidayMIC)
		}
	}
	return s, nil
}

// DefaultSession returns the Tokyo FX session without a holiday calendar.
func DefaultSession() *Session {
	s, err := NewSession(SessionConfig{})
	if err != nil {
		panic(err)
	}
	return s
}

var locations sync.Map

// loadLocation shares one *time.Location per name so times built by different
// sessions compare equal.
func loadLocation(name string) (*time.Location, error) {
	if v, ok := locations.Load(name); ok {
		return v.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrap(exception.ErrUnknownLocation, name)
	}
	v, _ := locations.LoadOrStore(name, loc)
	return v.(*time.Location), nil
}

func parseTimeOfDay(raw string) (time.Duration, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("time of day %q: want HH:MM", raw)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Location returns the session time zone.
func (s *Session) Location() *time.Location {
	return s.loc
}

// WeekEndLead is how long before the Saturday close the week-end notice fires.
func (s *Session) WeekEndLead() time.Duration {
	return s.lead
}

// IsSummer reports whether the day containing t uses the summer schedule.
func (s *Session) IsSummer(t time.Time) bool {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 12, 0, 0, 0, s.seasonRef).IsDST()
}

// CloseOn returns the daily close time on the calendar day containing t.
func (s *Session) CloseOn(t time.Time) time.Time {
	if s.IsSummer(t) {
		return s.at(t, s.summerClose)
	}
	return s.at(t, s.winterClose)
}

// OpenOn returns the open time on the calendar day containing t.
func (s *Session) OpenOn(t time.Time) time.Time {
	if s.IsSummer(t) {
		return s.at(t, s.summerOpen)
	}
	return s.at(t, s.winterOpen)
}

func (s *Session) at(t time.Time, tod time.Duration) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, int(tod/time.Minute), 0, 0, s.loc)
}

// day returns noon of the calendar day n days after the one containing t.
func (s *Session) day(t time.Time, n int) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d+n, 12, 0, 0, 0, s.loc)
}

// IsClosed reports whether t falls in the weekend gap: strictly after the
// Saturday close and strictly before the Monday open.
func (s *Session) IsClosed(t time.Time) bool {
	switch t.In(s.loc).Weekday() {
	case time.Saturday:
		return t.After(s.CloseOn(t))
	case time.Sunday:
		return true
	case time.Monday:
		return t.Before(s.OpenOn(t))
	default:
		return false
	}
}

// NextOpen returns t when the market is open, otherwise the Monday open that
// ends the weekend gap.
func (s *Session) NextOpen(t time.Time) time.Time {
	if !s.IsClosed(t) {
		return t
	}
	days := (8 - int(t.In(s.loc).Weekday())) % 7
	return s.OpenOn(s.day(t, days))
}

// WeekClose returns the Saturday close ending the trading week that contains
// t. During the weekend gap that is the close just passed.
func (s *Session) WeekClose(t time.Time) time.Time {
	wd := int(t.In(s.loc).Weekday())
	sat := s.day(t, int(time.Saturday)-wd)
	if wd == int(time.Sunday) || (wd == int(time.Monday) && s.IsClosed(t)) {
		sat = s.day(t, -(wd + 1))
	}
	return s.CloseOn(sat)
}

// WeekOpen returns the Monday open following WeekClose(t).
func (s *Session) WeekOpen(t time.Time) time.Time {
	return s.OpenOn(s.day(s.WeekClose(t), 2))
}

func hasDailyClose(wd time.Weekday) bool {
	return wd >= time.Tuesday && wd <= time.Saturday
}

// LastDailyClose returns the latest daily close at or before t.
func (s *Session) LastDailyClose(t time.Time) time.Time {
	for n := 0; n > -8; n-- {
		d := s.day(t, n)
		if !hasDailyClose(d.Weekday()) {
			continue
		}
		if c := s.CloseOn(d); !c.After(t) {
			return c
		}
	}
	return time.Time{}
}

// NextDailyClose returns the earliest daily close strictly after t.
func (s *Session) NextDailyClose(t time.Time) time.Time {
	for n := 0; n < 8; n++ {
		d := s.day(t, n)
		if !hasDailyClose(d.Weekday()) {
			continue
		}
		if c := s.CloseOn(d); c.After(t) {
			return c
		}
	}
	return time.Time{}
}

// TradeDate returns the business date whose session contains t: the day
// before the next daily close.
func (s *Session) TradeDate(t time.Time) time.Time {
	return s.day(s.NextDailyClose(t), -1)
}

// IsTradable reports whether models may trade at t: the market is open and,
// with a holiday calendar, the trade date is a business day.
func (s *Session) IsTradable(t time.Time) bool {
	if s.IsClosed(t) {
		return false
	}
	if s.holidays == nil {
		return true
	}
	y, m, d := s.TradeDate(t).Date()
	loc := s.holidays.Loc
	if loc == nil {
		loc = s.loc
	}
	return s.holidays.IsBusinessDay(time.Date(y, m, d, 12, 0, 0, 0, loc))
}
