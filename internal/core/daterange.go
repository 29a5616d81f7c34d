package core

import "time"

// DateRange is a closed interval [Start, End].
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a range from start to the last instant of end's calendar day.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: start, End: EndOfDay(end)}
}

// DayRange covers the calendar day containing t.
func DayRange(t time.Time) DateRange {
	return DateRange{Start: StartOfDay(t), End: EndOfDay(t)}
}

// MonthRange covers the calendar month, first day 00:00 to last day 23:59:59.999.
func MonthRange(year, month int, loc *time.Location) DateRange {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	last := start.AddDate(0, 1, -1)
	return DateRange{Start: start, End: EndOfDay(last)}
}

// Contains reports whether t lies within the range, both bounds inclusive.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// IsEmpty reports whether no instant can satisfy the range.
func (r DateRange) IsEmpty() bool {
	return r.Start.IsZero() && r.End.IsZero() || r.End.Before(r.Start)
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}
