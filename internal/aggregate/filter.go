package aggregate

import (
	"strings"
	"time"

	"expensewise/internal/core"
)

// Mode selects how a Filter turns user input into a date window.
type Mode string

const (
	ModeToday  Mode = "today"
	ModeWeek   Mode = "week"
	ModeMonth  Mode = "month"
	ModeCustom Mode = "custom"
)

// Policy decides whether today/week follow calendar boundaries or roll back from the anchor.
type Policy string

const (
	PolicyCalendar Policy = "calendar"
	PolicyRolling  Policy = "rolling"
)

type Options struct {
	Policy    Policy
	WeekStart time.Weekday
	Location  *time.Location
}

func DefaultOptions() Options {
	return Options{Policy: PolicyCalendar, WeekStart: time.Sunday, Location: time.Local}
}

// Filter is the raw selection coming from the dashboard controls.
type Filter struct {
	Mode  Mode   `json:"mode"`
	Date  string `json:"date,omitempty"`  // manual YYYY-MM-DD for today, anchor for week
	Start string `json:"start,omitempty"` // explicit bounds for week and custom
	End   string `json:"end,omitempty"`
	Month string `json:"month,omitempty"` // YYYY-MM
}

// ParseMode maps a query value to a Mode; unknown values fall back to month.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeToday:
		return ModeToday
	case ModeWeek:
		return ModeWeek
	case ModeCustom:
		return ModeCustom
	default:
		return ModeMonth
	}
}

// ParsePolicy maps a config value to a Policy; unknown values mean calendar.
func ParsePolicy(s string) Policy {
	if Policy(strings.ToLower(strings.TrimSpace(s))) == PolicyRolling {
		return PolicyRolling
	}
	return PolicyCalendar
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) == 3 && strings.HasPrefix(name, s)) {
			return d, true
		}
	}
	return time.Sunday, false
}

// Resolve turns the filter into a window relative to now. ok is false when the
// user input cannot be interpreted; callers show an empty result in that case.
func (f Filter) Resolve(now time.Time, opts Options) (core.DateRange, bool) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)

	switch f.Mode {
	case ModeToday:
		if strings.TrimSpace(f.Date) == "" {
			if opts.Policy == PolicyRolling {
				return core.DateRange{Start: now.Add(-24 * time.Hour), End: core.EndOfDay(now)}, true
			}
			return core.DayRange(now), true
		}
		day, err := core.ParseDate(f.Date, loc)
		if err != nil {
			return core.DateRange{}, false
		}
		return core.DayRange(day), true

	case ModeWeek:
		if f.Start != "" || f.End != "" {
			return explicit(f.Start, f.End, loc)
		}
		anchor := now
		if strings.TrimSpace(f.Date) != "" {
			day, err := core.ParseDate(f.Date, loc)
			if err != nil {
				return core.DateRange{}, false
			}
			anchor = day
		}
		return weekOf(anchor, opts), true

	case ModeCustom:
		return explicit(f.Start, f.End, loc)

	default:
		if strings.TrimSpace(f.Month) == "" {
			return core.MonthRange(now.Year(), int(now.Month()), loc), true
		}
		m, err := time.ParseInLocation("2006-01", strings.TrimSpace(f.Month), loc)
		if err != nil {
			return core.DateRange{}, false
		}
		return core.MonthRange(m.Year(), int(m.Month()), loc), true
	}
}

func weekOf(anchor time.Time, opts Options) core.DateRange {
	day := core.StartOfDay(anchor)
	if opts.Policy == PolicyRolling {
		return core.NewDateRange(day.AddDate(0, 0, -6), day)
	}
	offset := (int(day.Weekday()) - int(opts.WeekStart) + 7) % 7
	start := day.AddDate(0, 0, -offset)
	return core.NewDateRange(start, start.AddDate(0, 0, 6))
}

func explicit(start, end string, loc *time.Location) (core.DateRange, bool) {
	s, err := core.ParseDate(start, loc)
	if err != nil {
		return core.DateRange{}, false
	}
	e, err := core.ParseDate(end, loc)
	if err != nil {
		return core.DateRange{}, false
	}
	return core.NewDateRange(core.StartOfDay(s), e), true
}
