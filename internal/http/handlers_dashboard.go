package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"expensewise/internal/aggregate"
	"expensewise/internal/auth"
	"expensewise/internal/core"
	applog "expensewise/internal/log"
	"expensewise/internal/tracker"
)

// handleDashboard renders the add form, the filter controls and the summary.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := auth.UserID(ctx)
	f := parseFilter(r.URL.Query())
	now := time.Now().In(s.location())

	p := newPage(r, "Dashboard")
	p.Data = dashboardData{
		Categories: s.categoriesFor(ctx, uid),
		Today:      now.Format("2006-01-02"),
		Month:      now.Format("2006-01"),
		Filter:     f,
		Summary:    s.summaryFor(ctx, uid, f),
	}
	s.render(w, r, "dashboard.html", p, http.StatusOK)
}

// handleSummaryPartial returns the summary block for the current filter.
func (s *Server) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := s.summaryFor(ctx, auth.UserID(ctx), parseFilter(r.URL.Query()))
	s.render(w, r, "summary", view, http.StatusOK)
}

// summaryFor aggregates the user's expenses for f. The live tracker is used
// once its first snapshot has arrived; until then the store is read directly.
func (s *Server) summaryFor(ctx context.Context, uid string, f aggregate.Filter) summaryView {
	atomic.AddInt64(&s.appMetrics.summaries, 1)
	view := summaryView{Filter: f}

	rng, ok := f.Resolve(time.Now(), s.expenses.Options())
	if !ok {
		view.Invalid = true
		view.Summary = aggregate.Empty(rng)
		return view
	}

	if t := s.tracker(ctx, uid); t != nil && t.Loaded() {
		view.Live = true
		view.Summary = t.Summary(f)
		if t.Err() != nil {
			view.Error = msgFetchFailed
		}
	} else {
		sum, err := s.expenses.Summary(ctx, uid, f)
		if err != nil {
			applog.FromContext(ctx).ErrorContext(ctx, "Failed to load summary",
				applog.FieldError, err,
				applog.FieldFilterMode, string(f.Mode),
				applog.FieldComponent, applog.ComponentExpense,
				applog.FieldOperation, applog.OpList)
			view.Error = msgFetchFailed
			sum = aggregate.Empty(rng)
		}
		view.Summary = sum
	}

	if top, ok := view.Summary.TopCategory(); ok {
		view.Top = &top
	}
	return view
}

// categoriesFor lists the add-form categories, falling back to the fixed set.
func (s *Server) categoriesFor(ctx context.Context, uid string) []string {
	names, err := s.expenses.CategoryNames(ctx, uid)
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Failed to list categories",
			applog.FieldError, err,
			applog.FieldComponent, applog.ComponentExpense)
		return core.CategoryNames(nil)
	}
	return names
}

// tracker returns the user's live view, starting it on first use. A failure
// to subscribe is logged and the caller falls back to direct store reads.
func (s *Server) tracker(ctx context.Context, uid string) *tracker.Tracker {
	if s.trackers == nil {
		return nil
	}
	t, err := s.trackers.Get(ctx, uid)
	if err != nil {
		applog.FromContext(ctx).WarnContext(ctx, "Failed to start live view",
			applog.FieldError, err,
			applog.FieldComponent, applog.ComponentTracker,
			applog.FieldOperation, applog.OpSubscribe)
		return nil
	}
	return t
}

func (s *Server) location() *time.Location {
	if loc := s.expenses.Options().Location; loc != nil {
		return loc
	}
	return time.Local
}
