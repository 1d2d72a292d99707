package replay

import (
	"fmt"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/clock"
	"tradecore/pkg/exception"
)

// Window is a contiguous slice [Start, End) of a replay run.
type Window struct {
	Index  int
	Start  time.Time
	End    time.Time
	Warmup bool
}

func (w Window) String() string {
	kind := "window"
	if w.Warmup {
		kind = "seed window"
	}
	return fmt.Sprintf("%s %d [%s, %s)", kind, w.Index, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Query returns the data query covering w.
func (w Window) Query(symbols []string) Query {
	return Query{Start: w.Start, End: w.End, Symbols: symbols}
}

// Plan splits [start, end) into windows of about incrementDays days. Every
// window but the last ends on a Saturday close of session, the latest one
// inside the increment, or the next one when the increment holds none. The
// last window ends exactly at end.
func Plan(start, end time.Time, incrementDays int, session *clock.Session) ([]Window, error) {
	if !end.After(start) {
		return nil, errors.Wrapf(exception.ErrInvalidReplayRange, "end %s is not after start %s", end, start)
	}
	if incrementDays <= 0 {
		return nil, errors.Wrapf(exception.ErrInvalidReplayRange, "increment of %d days", incrementDays)
	}
	if session == nil {
		session = clock.DefaultSession()
	}

	var windows []Window
	for cur := start; cur.Before(end); {
		stop := end
		if target := cur.In(session.Location()).AddDate(0, 0, incrementDays); target.Before(end) {
			stop = saturdayCloseAtOrBefore(session, target)
			if !stop.After(cur) {
				stop = saturdayCloseAfter(session, cur)
			}
			if stop.After(end) {
				stop = end
			}
		}
		windows = append(windows, Window{Index: len(windows), Start: cur, End: stop})
		cur = stop
	}
	return windows, nil
}

// SeedWindow is the warm-up window of seedDays days ending at start.
func SeedWindow(start time.Time, seedDays int) (Window, bool) {
	if seedDays <= 0 {
		return Window{}, false
	}
	return Window{Index: -1, Start: start.AddDate(0, 0, -seedDays), End: start, Warmup: true}, true
}

func saturdayCloseAtOrBefore(s *clock.Session, t time.Time) time.Time {
	sat := s.WeekClose(t)
	if sat.After(t) {
		sat = s.CloseOn(sat.AddDate(0, 0, -7))
	}
	return sat
}

func saturdayCloseAfter(s *clock.Session, t time.Time) time.Time {
	sat := s.WeekClose(t)
	if !sat.After(t) {
		sat = s.CloseOn(sat.AddDate(0, 0, 7))
	}
	return sat
}
