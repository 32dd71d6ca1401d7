package scheduler

import (
	"fmt"
	"time"

	"firestige.xyz/xdump/internal/core"
)

const clockLayout = "15:04"

// Window is a daily capture window [Start, End) in local time of day.
type Window struct {
	start time.Duration
	end   time.Duration
}

// ParseWindow parses two HH:MM strings. The end must lie after 12:59 and after the start.
func ParseWindow(start, end string) (Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, err
	}

	if e < 13*time.Hour {
		return Window{}, fmt.Errorf("%w: end time %s must be in the afternoon (hour > 12)", core.ErrInvalidWindow, end)
	}
	if s >= e {
		return Window{}, fmt.Errorf("%w: start time %s must be before end time %s", core.ErrInvalidWindow, start, end)
	}
	return Window{start: s, end: e}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", core.ErrInvalidTime, s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains reports whether the time of day of t lies in [start, end).
func (w Window) Contains(t time.Time) bool {
	tod := sinceMidnight(t)
	return tod >= w.start && tod < w.end
}

// Start returns the window start on the calendar day of t.
func (w Window) Start(t time.Time) time.Time {
	return atClock(t, w.start)
}

// End returns the window end on the calendar day of t.
func (w Window) End(t time.Time) time.Time {
	return atClock(t, w.end)
}

func (w Window) String() string {
	return fmt.Sprintf("%s-%s", formatClock(w.start), formatClock(w.end))
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// atClock uses time.Date so the wall clock reading holds across DST shifts.
func atClock(t time.Time, clock time.Duration) time.Time {
	h := int(clock / time.Hour)
	m := int((clock % time.Hour) / time.Minute)
	return time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, t.Location())
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int((d%time.Hour)/time.Minute))
}
