// Package aggregate computes totals, per-category breakdowns and chart series
// for a date window over an in-memory list of expenses. It performs no I/O.
package aggregate

import (
	"strconv"
	"time"

	"expensewise/internal/core"
)

// Palette is cycled over chart slices in first-observed order.
var Palette = []string{"#4F46E5", "#A78BFA", "#F59E0B", "#10B981", "#3B82F6", "#EC4899"}

type CategoryTotal struct {
	Category   string     `json:"category"`
	Total      core.Money `json:"total"`
	Percentage float64    `json:"percentage"`
}

type ChartPoint struct {
	Name       string     `json:"name"`
	Value      core.Money `json:"value"`
	Percentage float64    `json:"percentage"`
	Color      string     `json:"color"`
}

type Summary struct {
	Range      core.DateRange  `json:"range"`
	Filtered   []core.Expense  `json:"expenses"`
	Total      core.Money      `json:"total"`
	Categories []CategoryTotal `json:"categoryTotals"`
	Chart      []ChartPoint    `json:"chart"`
}

// Empty is the result for a window that matches nothing.
func Empty(r core.DateRange) Summary {
	return Summary{
		Range:      r,
		Filtered:   []core.Expense{},
		Categories: []CategoryTotal{},
		Chart:      []ChartPoint{},
	}
}

// Summarize filters expenses to r and aggregates them. The end bound is moved to
// the last millisecond of its calendar day; both bounds are inclusive.
func Summarize(expenses []core.Expense, r core.DateRange) Summary {
	if !r.End.IsZero() {
		r.End = core.EndOfDay(r.End)
	}
	out := Empty(r)
	if r.IsEmpty() {
		return out
	}

	index := map[string]int{}
	for _, e := range expenses {
		if !r.Contains(e.Date) {
			continue
		}
		out.Filtered = append(out.Filtered, e)
		out.Total = out.Total.Add(e.Amount)

		i, seen := index[e.Category]
		if !seen {
			i = len(out.Categories)
			index[e.Category] = i
			out.Categories = append(out.Categories, CategoryTotal{Category: e.Category})
		}
		out.Categories[i].Total = out.Categories[i].Total.Add(e.Amount)
	}

	for i := range out.Categories {
		out.Categories[i].Percentage = percentOf(out.Categories[i].Total, out.Total)
		if out.Categories[i].Total.Cents > 0 {
			out.Chart = append(out.Chart, ChartPoint{
				Name:       out.Categories[i].Category,
				Value:      out.Categories[i].Total,
				Percentage: out.Categories[i].Percentage,
				Color:      Palette[len(out.Chart)%len(Palette)],
			})
		}
	}
	return out
}

// Apply resolves f and summarizes; an unreadable filter yields an empty summary.
func Apply(expenses []core.Expense, f Filter, now time.Time, opts Options) Summary {
	r, ok := f.Resolve(now, opts)
	if !ok {
		return Empty(core.DateRange{})
	}
	return Summarize(expenses, r)
}

func percentOf(part, total core.Money) float64 {
	if total.Cents <= 0 {
		return 0
	}
	return float64(part.Cents) / float64(total.Cents) * 100
}

// TopCategory returns the category with the largest total, first-observed on ties.
func (s Summary) TopCategory() (CategoryTotal, bool) {
	if len(s.Categories) == 0 {
		return CategoryTotal{}, false
	}
	top := s.Categories[0]
	for _, c := range s.Categories[1:] {
		if c.Total.Cents > top.Total.Cents {
			top = c
		}
	}
	return top, true
}

// FormatPercent renders p with the given number of decimals, e.g. "66.7%".
func FormatPercent(p float64, decimals int) string {
	return strconv.FormatFloat(p, 'f', decimals, 64) + "%"
}
