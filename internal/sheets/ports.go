// Package sheets mirrors expenses and monthly digests to a spreadsheet.
package sheets

import (
	"context"
	"time"

	"expensewise/internal/aggregate"
	"expensewise/internal/core"
)

// DigestRow is one category line of a user's monthly digest.
type DigestRow struct {
	Month      string
	UserID     string
	Category   string
	Total      core.Money
	Percentage float64
}

// Ports for outbound adapters.
type (
	ExpenseWriter interface {
		// AppendExpense adds a row for e unless one with the same ID exists.
		AppendExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	ExpenseDeleter interface {
		// DeleteExpense removes the row for id. A missing row is not an error.
		DeleteExpense(ctx context.Context, uid, id string) error
	}

	DigestWriter interface {
		AppendDigest(ctx context.Context, rows []DigestRow) error
	}

	Mirror interface {
		ExpenseWriter
		ExpenseDeleter
		DigestWriter
	}
)

// DigestRows flattens a month summary into spreadsheet rows, one per category.
func DigestRows(month time.Time, uid string, s aggregate.Summary) []DigestRow {
	label := month.Format("2006-01")
	rows := make([]DigestRow, 0, len(s.Categories))
	for _, c := range s.Categories {
		rows = append(rows, DigestRow{
			Month:      label,
			UserID:     uid,
			Category:   c.Category,
			Total:      c.Total,
			Percentage: c.Percentage,
		})
	}
	return rows
}
