package period

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Unit is the measure a period counts in.
type Unit uint8

const (
	UnitTick Unit = iota + 1
	UnitSecond
	UnitMinute
	UnitHour
	UnitDay
)

func (u Unit) String() string {
	switch u {
	case UnitTick:
		return "tick"
	case UnitSecond:
		return "second"
	case UnitMinute:
		return "minute"
	case UnitHour:
		return "hour"
	case UnitDay:
		return "day"
	default:
		return fmt.Sprintf("Unit(%d)", u)
	}
}

// Period is a bucket width used to aggregate market data and schedule
// indicator recomputation.
//
// The declaration order is not meaningful: tick periods are appended after the
// time periods. Compare periods with Less/Compare, which use Order.
type Period uint8

const (
	_period_beg Period = iota
	Sec30
	Min1
	Min5
	Min15
	Min30
	Hour1
	Hour4
	Day1
	Tick1
	Tick10
	Tick100
	Tick1000
	_period_end
)

type attr struct {
	name      string
	magnitude int
	unit      Unit
	order     int
}

var attrs = [_period_end]attr{
	Sec30:    {name: "30s", magnitude: 30, unit: UnitSecond, order: 10},
	Min1:     {name: "1m", magnitude: 1, unit: UnitMinute, order: 11},
	Min5:     {name: "5m", magnitude: 5, unit: UnitMinute, order: 12},
	Min15:    {name: "15m", magnitude: 15, unit: UnitMinute, order: 13},
	Min30:    {name: "30m", magnitude: 30, unit: UnitMinute, order: 14},
	Hour1:    {name: "1h", magnitude: 1, unit: UnitHour, order: 15},
	Hour4:    {name: "4h", magnitude: 4, unit: UnitHour, order: 16},
	Day1:     {name: "1d", magnitude: 1, unit: UnitDay, order: 17},
	Tick1:    {name: "1t", magnitude: 1, unit: UnitTick, order: 1},
	Tick10:   {name: "10t", magnitude: 10, unit: UnitTick, order: 2},
	Tick100:  {name: "100t", magnitude: 100, unit: UnitTick, order: 3},
	Tick1000: {name: "1000t", magnitude: 1000, unit: UnitTick, order: 4},
}

// All returns every period sorted by Order.
func All() []Period {
	all := make([]Period, 0, int(_period_end)-1)
	for p := _period_beg + 1; p < _period_end; p++ {
		all = append(all, p)
	}
	Sort(all)
	return all
}

func (p Period) IsAvailable() bool {
	return p > _period_beg && p < _period_end
}

func (p Period) String() string {
	if !p.IsAvailable() {
		return fmt.Sprintf("Period(%d)", p)
	}
	return attrs[p].name
}

func (p Period) Magnitude() int {
	if !p.IsAvailable() {
		return 0
	}
	return attrs[p].magnitude
}

func (p Period) Unit() Unit {
	if !p.IsAvailable() {
		return 0
	}
	return attrs[p].unit
}

// Order is the position of the period in the hierarchy. Tick periods sort
// before every time period.
func (p Period) Order() int {
	if !p.IsAvailable() {
		return 0
	}
	return attrs[p].order
}

func (p Period) IsTimeBased() bool {
	return p.IsAvailable() && attrs[p].unit != UnitTick
}

// Duration returns the nominal width of a time period and 0 for tick periods.
func (p Period) Duration() time.Duration {
	if !p.IsTimeBased() {
		return 0
	}
	a := attrs[p]
	switch a.unit {
	case UnitSecond:
		return time.Duration(a.magnitude) * time.Second
	case UnitMinute:
		return time.Duration(a.magnitude) * time.Minute
	case UnitHour:
		return time.Duration(a.magnitude) * time.Hour
	case UnitDay:
		return time.Duration(a.magnitude) * 24 * time.Hour
	}
	return 0
}

// Less reports whether p is shorter than other.
func (p Period) Less(other Period) bool {
	return p.Order() < other.Order()
}

// Compare returns -1, 0 or +1 by Order.
func (p Period) Compare(other Period) int {
	switch a, b := p.Order(), other.Order(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Sort orders periods shortest first.
func Sort(ps []Period) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Less(ps[j]) })
}

// Floor returns the start of the bucket containing t, computed on the wall
// clock of loc. Day buckets start at midnight. Tick periods return t.
func (p Period) Floor(t time.Time, loc *time.Location) time.Time {
	if !p.IsTimeBased() {
		return t
	}
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	y, mo, d := t.Date()
	a := attrs[p]
	switch a.unit {
	case UnitSecond:
		sec := t.Second() - t.Second()%a.magnitude
		return time.Date(y, mo, d, t.Hour(), t.Minute(), sec, 0, loc)
	case UnitMinute:
		min := t.Minute() - t.Minute()%a.magnitude
		return time.Date(y, mo, d, t.Hour(), min, 0, 0, loc)
	case UnitHour:
		hour := t.Hour() - t.Hour()%a.magnitude
		return time.Date(y, mo, d, hour, 0, 0, 0, loc)
	default:
		return time.Date(y, mo, d, 0, 0, 0, 0, loc)
	}
}

// Parse resolves a period by its name, e.g. "5m" or "100t".
func Parse(name string) (Period, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	for p := _period_beg + 1; p < _period_end; p++ {
		if attrs[p].name == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown period: %q", name)
}

func (p Period) MarshalText() ([]byte, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("unknown period: %d", p)
	}
	return []byte(attrs[p].name), nil
}

func (p *Period) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
