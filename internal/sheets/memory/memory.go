// Package memory is a process-local Mirror used when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"expensewise/internal/core"
	"expensewise/internal/sheets"
)

type Mirror struct {
	mu      sync.Mutex
	rows    []core.Expense
	digests []sheets.DigestRow
}

var _ sheets.Mirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{}
}

// AppendExpense stores e and returns a synthetic row reference.
func (m *Mirror) AppendExpense(_ context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		return "", fmt.Errorf("expense without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == e.ID {
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	m.rows = append(m.rows, e)
	return fmt.Sprintf("mem:%d", len(m.rows)), nil
}

func (m *Mirror) DeleteExpense(_ context.Context, uid, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == id && r.UserID == uid {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Mirror) AppendDigest(_ context.Context, rows []sheets.DigestRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digests = append(m.digests, rows...)
	return nil
}

// Rows returns the mirrored expenses in append order.
func (m *Mirror) Rows() []core.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Expense(nil), m.rows...)
}

func (m *Mirror) Digests() []sheets.DigestRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sheets.DigestRow(nil), m.digests...)
}
