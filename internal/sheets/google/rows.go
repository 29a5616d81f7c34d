package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	gsheet "google.golang.org/api/sheets/v4"

	"expensewise/internal/core"
	ports "expensewise/internal/sheets"
)

// Expenses sheet columns: ID, UserID, Date, Category, Amount, CreatedAt.
func expenseRow(e core.Expense) []any {
	return []any{
		e.ID,
		e.UserID,
		e.Date.Format("2006-01-02"),
		e.Category,
		e.Amount.Units(),
		e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Summaries sheet columns: Month, UserID, Category, Total, Percentage.
func digestRow(r ports.DigestRow) []any {
	return []any{
		r.Month,
		r.UserID,
		r.Category,
		r.Total.Units(),
		strconv.FormatFloat(r.Percentage, 'f', 2, 64),
	}
}

// indexRows maps the first-column values to their 1-based row numbers. Blank
// cells and a header row are skipped; the first occurrence of an ID wins.
func indexRows(values [][]any) map[string]int {
	index := make(map[string]int, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(row[0]))
		if id == "" || (i == 0 && strings.EqualFold(id, "id")) {
			continue
		}
		if _, ok := index[id]; !ok {
			index[id] = i + 1
		}
	}
	return index
}

func sheetIDByTitle(sheets []*gsheet.Sheet, title string) (int64, bool) {
	for _, s := range sheets {
		if s == nil || s.Properties == nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(s.Properties.Title), strings.TrimSpace(title)) {
			return s.Properties.SheetId, true
		}
	}
	return 0, false
}

func rowRef(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:F%d", sheet, row, row)
}
