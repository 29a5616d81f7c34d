// Package worker mirrors stored expenses to the spreadsheet and writes the
// monthly digest. It consumes change events from AMQP and runs scheduled jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"expensewise/internal/aggregate"
	"expensewise/internal/amqp"
	"expensewise/internal/core"
	"expensewise/internal/sheets"
	"expensewise/internal/store"
)

// Source is the read side of the store the worker needs.
type Source interface {
	store.ExpenseReader
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Consumer delivers export events until ctx is done.
type Consumer interface {
	ConsumeExports(ctx context.Context, handler amqp.Handler) error
}

type Config struct {
	BatchSize      int
	ExportSchedule string
	DigestSchedule string
	Location       *time.Location
}

// ExportWorker handles synchronization of expenses from the store to the mirror.
type ExportWorker struct {
	source  Source
	tracker store.ExportTracker // nil for backends that don't track exports
	mirror  sheets.Mirror
	cfg     Config
	now     func() time.Time
}

func NewExportWorker(source Source, tracker store.ExportTracker, mirror sheets.Mirror, cfg Config) *ExportWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ExportSchedule == "" {
		cfg.ExportSchedule = "@every 1m"
	}
	if cfg.DigestSchedule == "" {
		cfg.DigestSchedule = "0 9 1 * *"
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &ExportWorker{
		source:  source,
		tracker: tracker,
		mirror:  mirror,
		cfg:     cfg,
		now:     time.Now,
	}
}

// HandleChange processes a single change event from AMQP.
func (w *ExportWorker) HandleChange(ctx context.Context, ev *amqp.ChangeEvent) error {
	slog.InfoContext(ctx, "Processing change event",
		"kind", ev.Kind,
		"user_id", ev.UserID,
		"doc_id", ev.DocID)

	switch ev.Kind {
	case amqp.ExpenseCreated:
		e, err := w.source.GetExpense(ctx, ev.UserID, ev.DocID)
		if errors.Is(err, store.ErrNotFound) {
			// Deleted before we got to it.
			slog.InfoContext(ctx, "Expense no longer exists, skipping export", "doc_id", ev.DocID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get expense from store: %w", err)
		}
		return w.export(ctx, e)

	case amqp.ExpenseDeleted:
		if err := w.mirror.DeleteExpense(ctx, ev.UserID, ev.DocID); err != nil {
			return fmt.Errorf("delete expense from mirror: %w", err)
		}
		slog.InfoContext(ctx, "Successfully deleted mirrored expense", "doc_id", ev.DocID)
		return nil

	default:
		slog.DebugContext(ctx, "Ignoring change event", "kind", ev.Kind)
		return nil
	}
}

// ReconcilePending exports expenses that were never mirrored. This is a backup
// in case AMQP messages are lost.
func (w *ExportWorker) ReconcilePending(ctx context.Context) (int, error) {
	if w.tracker == nil {
		return 0, nil
	}
	pending, err := w.tracker.PendingExports(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	synced := 0
	for _, e := range pending {
		if err := w.export(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to export expense", "id", e.ID, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

// MonthlyDigest writes per-category totals of the month before now for every user.
func (w *ExportWorker) MonthlyDigest(ctx context.Context) error {
	now := w.now().In(w.cfg.Location)
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, w.cfg.Location).AddDate(0, -1, 0)
	window := store.MonthWindow(prev.Year(), int(prev.Month()), w.cfg.Location)

	uids, err := w.source.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var rows []sheets.DigestRow
	for _, uid := range uids {
		expenses, err := store.ListMonth(ctx, w.source, uid, prev.Year(), int(prev.Month()), w.cfg.Location)
		if err != nil {
			return fmt.Errorf("list expenses for %s: %w", uid, err)
		}
		rows = append(rows, sheets.DigestRows(prev, uid, aggregate.Summarize(expenses, window))...)
	}
	if len(rows) == 0 {
		slog.InfoContext(ctx, "No expenses for digest month", "month", prev.Format("2006-01"))
		return nil
	}
	if err := w.mirror.AppendDigest(ctx, rows); err != nil {
		return fmt.Errorf("append digest: %w", err)
	}
	slog.InfoContext(ctx, "Monthly digest written",
		"month", prev.Format("2006-01"),
		"users", len(uids),
		"rows", len(rows))
	return nil
}

// Run consumes export events and runs the scheduled jobs until ctx is done.
func (w *ExportWorker) Run(ctx context.Context, consumer Consumer) error {
	if _, err := w.ReconcilePending(ctx); err != nil {
		slog.ErrorContext(ctx, "Failed startup export check", "error", err)
	}

	c, err := w.scheduler(ctx)
	if err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	g, gctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			err := consumer.ConsumeExports(gctx, w.HandleChange)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

func (w *ExportWorker) scheduler(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(w.cfg.Location))
	if _, err := c.AddFunc(w.cfg.ExportSchedule, func() {
		if _, err := w.ReconcilePending(ctx); err != nil {
			slog.ErrorContext(ctx, "Periodic export failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("add export schedule %q: %w", w.cfg.ExportSchedule, err)
	}
	if _, err := c.AddFunc(w.cfg.DigestSchedule, func() {
		if err := w.MonthlyDigest(ctx); err != nil {
			slog.ErrorContext(ctx, "Monthly digest failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("add digest schedule %q: %w", w.cfg.DigestSchedule, err)
	}
	return c, nil
}

func (w *ExportWorker) export(ctx context.Context, e core.Expense) error {
	ref, err := w.mirror.AppendExpense(ctx, e)
	if err != nil {
		return fmt.Errorf("append to mirror: %w", err)
	}
	if w.tracker != nil {
		if err := w.tracker.MarkExported(ctx, e.UserID, e.ID); err != nil {
			// The row is written; the next reconcile finds it by ID.
			slog.ErrorContext(ctx, "Failed to mark as exported", "id", e.ID, "error", err)
		}
	}
	slog.InfoContext(ctx, "Successfully exported expense",
		"id", e.ID,
		"user_id", e.UserID,
		"sheets_ref", ref,
		"amount_cents", e.Amount.Cents)
	return nil
}
