package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"expensewise/internal/amqp"
	"expensewise/internal/auth"
	"expensewise/internal/core"
	sheetsmem "expensewise/internal/sheets/memory"
	"expensewise/internal/store/memory"
)

type fakeTracker struct {
	mu       sync.Mutex
	pending  []core.Expense
	exported []string
	markErr  error
}

func (f *fakeTracker) PendingExports(_ context.Context, limit int) ([]core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > limit {
		return append([]core.Expense(nil), f.pending[:limit]...), nil
	}
	return append([]core.Expense(nil), f.pending...), nil
}

func (f *fakeTracker) MarkExported(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.exported = append(f.exported, id)
	kept := f.pending[:0]
	for _, e := range f.pending {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	f.pending = kept
	return nil
}

type failingMirror struct {
	*sheetsmem.Mirror
}

func (failingMirror) AppendExpense(context.Context, core.Expense) (string, error) {
	return "", errors.New("sheets unavailable")
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func addExpense(t *testing.T, st *memory.Store, uid string, cents int64, cat string, date time.Time) string {
	t.Helper()
	id, err := st.AddExpense(context.Background(), uid, core.NewExpense{Amount: core.Money{Cents: cents}, Category: cat, Date: date})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	return id
}

func TestHandleChange_ExpenseCreated(t *testing.T) {
	st := memory.New()
	mirror := sheetsmem.New()
	tracker := &fakeTracker{}
	w := NewExportWorker(st, tracker, mirror, Config{Location: time.UTC})
	ctx := context.Background()

	id := addExpense(t, st, "u1", 10000, "Food", day(2024, 1, 5))

	if err := w.HandleChange(ctx, amqp.NewChangeEvent("u1", amqp.ExpenseCreated, id)); err != nil {
		t.Fatalf("HandleChange: %v", err)
	}
	// Redelivery must not duplicate the row.
	if err := w.HandleChange(ctx, amqp.NewChangeEvent("u1", amqp.ExpenseCreated, id)); err != nil {
		t.Fatalf("HandleChange redelivery: %v", err)
	}

	rows := mirror.Rows()
	if len(rows) != 1 || rows[0].ID != id || rows[0].Amount.Cents != 10000 {
		t.Fatalf("rows = %+v", rows)
	}
	if len(tracker.exported) != 2 || tracker.exported[0] != id {
		t.Errorf("exported = %v", tracker.exported)
	}
}

func TestHandleChange_MissingExpenseIsSkipped(t *testing.T) {
	mirror := sheetsmem.New()
	w := NewExportWorker(memory.New(), nil, mirror, Config{})

	if err := w.HandleChange(context.Background(), amqp.NewChangeEvent("u1", amqp.ExpenseCreated, "gone")); err != nil {
		t.Fatalf("expected nil for deleted expense, got %v", err)
	}
	if len(mirror.Rows()) != 0 {
		t.Error("nothing should be mirrored")
	}
}

func TestHandleChange_ExpenseDeleted(t *testing.T) {
	st := memory.New()
	mirror := sheetsmem.New()
	w := NewExportWorker(st, nil, mirror, Config{})
	ctx := context.Background()

	keep := addExpense(t, st, "u1", 500, "Food", day(2024, 1, 5))
	drop := addExpense(t, st, "u1", 700, "Rent", day(2024, 1, 6))
	for _, id := range []string{keep, drop} {
		if err := w.HandleChange(ctx, amqp.NewChangeEvent("u1", amqp.ExpenseCreated, id)); err != nil {
			t.Fatal(err)
		}
	}

	if err := w.HandleChange(ctx, amqp.NewChangeEvent("u1", amqp.ExpenseDeleted, drop)); err != nil {
		t.Fatalf("HandleChange delete: %v", err)
	}
	rows := mirror.Rows()
	if len(rows) != 1 || rows[0].ID != keep {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestHandleChange_IgnoresOtherKinds(t *testing.T) {
	w := NewExportWorker(memory.New(), nil, sheetsmem.New(), Config{})
	for _, kind := range []amqp.Kind{amqp.CategoryCreated, amqp.ProfileSaved} {
		if err := w.HandleChange(context.Background(), amqp.NewChangeEvent("u1", kind, "x")); err != nil {
			t.Errorf("%s: %v", kind, err)
		}
	}
}

func TestHandleChange_MirrorFailure(t *testing.T) {
	st := memory.New()
	w := NewExportWorker(st, nil, failingMirror{sheetsmem.New()}, Config{})
	id := addExpense(t, st, "u1", 500, "Food", day(2024, 1, 5))

	if err := w.HandleChange(context.Background(), amqp.NewChangeEvent("u1", amqp.ExpenseCreated, id)); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
}

func TestReconcilePending(t *testing.T) {
	mirror := sheetsmem.New()
	tracker := &fakeTracker{pending: []core.Expense{
		{ID: "a", UserID: "u1", Amount: core.Money{Cents: 100}, Category: "Food", Date: day(2024, 1, 1)},
		{ID: "b", UserID: "u1", Amount: core.Money{Cents: 200}, Category: "Food", Date: day(2024, 1, 2)},
		{ID: "c", UserID: "u2", Amount: core.Money{Cents: 300}, Category: "Rent", Date: day(2024, 1, 3)},
	}}
	w := NewExportWorker(memory.New(), tracker, mirror, Config{BatchSize: 2})

	n, err := w.ReconcilePending(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("first pass = %d, %v", n, err)
	}
	n, err = w.ReconcilePending(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("second pass = %d, %v", n, err)
	}
	n, _ = w.ReconcilePending(context.Background())
	if n != 0 {
		t.Errorf("third pass = %d", n)
	}
	if len(mirror.Rows()) != 3 {
		t.Errorf("rows = %d", len(mirror.Rows()))
	}
}

func TestReconcilePending_WithoutTracker(t *testing.T) {
	w := NewExportWorker(memory.New(), nil, sheetsmem.New(), Config{})
	n, err := w.ReconcilePending(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("got %d, %v", n, err)
	}
}

func TestMonthlyDigest(t *testing.T) {
	st := memory.New()
	mirror := sheetsmem.New()
	ctx := context.Background()

	for _, u := range []auth.User{{ID: "u1", Email: "a@example.com"}, {ID: "u2", Email: "b@example.com"}} {
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	addExpense(t, st, "u1", 10000, "Food", day(2024, 1, 5))
	addExpense(t, st, "u1", 5000, "Travel", day(2024, 1, 20))
	addExpense(t, st, "u1", 3000, "Food", day(2024, 2, 1))

	w := NewExportWorker(st, nil, mirror, Config{Location: time.UTC})
	w.now = func() time.Time { return time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC) }

	if err := w.MonthlyDigest(ctx); err != nil {
		t.Fatalf("MonthlyDigest: %v", err)
	}

	digests := mirror.Digests()
	if len(digests) != 2 {
		t.Fatalf("digests = %+v", digests)
	}
	totals := map[string]int64{}
	for _, d := range digests {
		if d.Month != "2024-01" || d.UserID != "u1" {
			t.Errorf("unexpected row %+v", d)
		}
		totals[d.Category] = d.Total.Cents
	}
	if totals["Food"] != 10000 || totals["Travel"] != 5000 {
		t.Errorf("totals = %v", totals)
	}
}

func TestMonthlyDigest_NoExpenses(t *testing.T) {
	mirror := sheetsmem.New()
	w := NewExportWorker(memory.New(), nil, mirror, Config{})
	if err := w.MonthlyDigest(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(mirror.Digests()) != 0 {
		t.Error("expected no digest rows")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	w := NewExportWorker(memory.New(), nil, sheetsmem.New(), Config{ExportSchedule: "not a schedule"})
	if _, err := w.scheduler(context.Background()); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

type stubConsumer struct {
	events []*amqp.ChangeEvent
}

func (s stubConsumer) ConsumeExports(ctx context.Context, handler amqp.Handler) error {
	for _, ev := range s.events {
		if err := handler(ctx, ev); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRun_ConsumesUntilCanceled(t *testing.T) {
	st := memory.New()
	mirror := sheetsmem.New()
	id := addExpense(t, st, "u1", 500, "Food", day(2024, 1, 5))
	w := NewExportWorker(st, nil, mirror, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, stubConsumer{events: []*amqp.ChangeEvent{amqp.NewChangeEvent("u1", amqp.ExpenseCreated, id)}})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(mirror.Rows()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(mirror.Rows()) != 1 {
		t.Errorf("rows = %d", len(mirror.Rows()))
	}
}
