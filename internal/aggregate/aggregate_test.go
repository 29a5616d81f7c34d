package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensewise/internal/core"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func expense(units int64, category string, at time.Time) core.Expense {
	return core.Expense{Amount: core.Money{Cents: units * 100}, Category: category, Date: at}
}

func TestSummarizeJanuaryExample(t *testing.T) {
	expenses := []core.Expense{
		expense(100, "Food", day(2024, 1, 5)),
		expense(50, "Travel", day(2024, 1, 20)),
		expense(30, "Food", day(2024, 2, 1)),
	}

	s := Summarize(expenses, core.MonthRange(2024, 1, time.UTC))

	assert.Equal(t, int64(15000), s.Total.Cents)
	require.Len(t, s.Filtered, 2)
	require.Len(t, s.Categories, 2)
	assert.Equal(t, "Food", s.Categories[0].Category)
	assert.Equal(t, int64(10000), s.Categories[0].Total.Cents)
	assert.InDelta(t, 66.7, s.Categories[0].Percentage, 0.05)
	assert.Equal(t, "Travel", s.Categories[1].Category)
	assert.Equal(t, int64(5000), s.Categories[1].Total.Cents)
	assert.InDelta(t, 33.3, s.Categories[1].Percentage, 0.05)
	assert.Equal(t, "66.7%", FormatPercent(s.Categories[0].Percentage, 1))
	assert.Equal(t, "33.33%", FormatPercent(s.Categories[1].Percentage, 2))

	require.Len(t, s.Chart, 2)
	assert.Equal(t, ChartPoint{Name: "Food", Value: core.Money{Cents: 10000}, Percentage: s.Categories[0].Percentage, Color: Palette[0]}, s.Chart[0])
	assert.Equal(t, Palette[1], s.Chart[1].Color)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, core.MonthRange(2024, 1, time.UTC))
	assert.Zero(t, s.Total.Cents)
	assert.Empty(t, s.Filtered)
	assert.Empty(t, s.Categories)
	assert.Empty(t, s.Chart)
	assert.NotNil(t, s.Chart, "empty series should encode as []")

	_, ok := s.TopCategory()
	assert.False(t, ok)
}

func TestSummarizeEndBoundIsEndOfDay(t *testing.T) {
	late := time.Date(2024, 3, 10, 23, 59, 59, 999000000, time.UTC)
	expenses := []core.Expense{
		expense(10, "Rent", late),
		expense(20, "Rent", late.Add(time.Millisecond)),
	}

	s := Summarize(expenses, core.DateRange{Start: day(2024, 3, 10), End: day(2024, 3, 10)})

	require.Len(t, s.Filtered, 1)
	assert.Equal(t, int64(1000), s.Total.Cents)
}

func TestSummarizeCategoryOrderIsFirstObserved(t *testing.T) {
	expenses := []core.Expense{
		expense(5, "Gym", day(2024, 1, 30)),
		expense(100, "Rent", day(2024, 1, 20)),
		expense(7, "Gym", day(2024, 1, 10)),
	}

	s := Summarize(expenses, core.MonthRange(2024, 1, time.UTC))

	require.Len(t, s.Categories, 2)
	assert.Equal(t, "Gym", s.Categories[0].Category)
	assert.Equal(t, "Rent", s.Categories[1].Category)
	top, ok := s.TopCategory()
	require.True(t, ok)
	assert.Equal(t, "Rent", top.Category)
}

func TestSummarizeInvertedRange(t *testing.T) {
	s := Summarize([]core.Expense{expense(1, "Food", day(2024, 1, 2))}, core.DateRange{Start: day(2024, 1, 3), End: day(2024, 1, 1)})
	assert.Empty(t, s.Filtered)
}

func TestSummarizeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	categories := []string{"Food", "Travel", "Rent", "Gym", "Books"}

	for i := 0; i < 200; i++ {
		n := rng.Intn(40)
		expenses := make([]core.Expense, 0, n)
		for j := 0; j < n; j++ {
			at := day(2024, 1, 1).Add(time.Duration(rng.Int63n(int64(90 * 24 * time.Hour))))
			expenses = append(expenses, core.Expense{
				Amount:   core.Money{Cents: 1 + rng.Int63n(100000)},
				Category: categories[rng.Intn(len(categories))],
				Date:     at,
			})
		}
		start := day(2024, 1, 1).AddDate(0, 0, rng.Intn(60))
		r := core.NewDateRange(start, start.AddDate(0, 0, rng.Intn(30)))

		s := Summarize(expenses, r)

		var sum, want int64
		var pct float64
		for _, c := range s.Categories {
			sum += c.Total.Cents
			pct += c.Percentage
		}
		for _, e := range expenses {
			if r.Contains(e.Date) {
				want += e.Amount.Cents
			}
		}
		for _, e := range s.Filtered {
			require.True(t, r.Contains(e.Date), "filtered record outside window")
		}
		require.Equal(t, s.Total.Cents, sum)
		require.Equal(t, want, s.Total.Cents)
		if s.Total.Cents > 0 {
			require.InDelta(t, 100.0, pct, 1e-6)
		} else {
			require.Zero(t, pct)
		}
	}
}

func TestApplyInvalidManualDateIsEmpty(t *testing.T) {
	expenses := []core.Expense{expense(100, "Food", day(2024, 1, 5))}

	s := Apply(expenses, Filter{Mode: ModeToday, Date: "2024-13-45"}, day(2024, 1, 5), Options{Location: time.UTC})

	assert.Empty(t, s.Filtered)
	assert.Zero(t, s.Total.Cents)
}

func TestApplyManualDate(t *testing.T) {
	expenses := []core.Expense{
		expense(100, "Food", time.Date(2024, 1, 5, 13, 0, 0, 0, time.UTC)),
		expense(40, "Food", day(2024, 1, 6)),
	}

	s := Apply(expenses, Filter{Mode: ModeToday, Date: "2024-01-05"}, day(2024, 6, 1), Options{Location: time.UTC})

	assert.Equal(t, int64(10000), s.Total.Cents)
}
