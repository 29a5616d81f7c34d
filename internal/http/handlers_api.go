package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"expensewise/internal/auth"
	"expensewise/internal/core"
	applog "expensewise/internal/log"
	"expensewise/internal/store"
)

// handleAPISummary aggregates the filter's window straight from the store.
func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f := parseFilter(r.URL.Query())
	sum, err := s.expenses.Summary(ctx, auth.UserID(ctx), f)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to compute summary",
			applog.FieldError, err,
			applog.FieldFilterMode, string(f.Mode))
		writeJSONError(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}
	atomic.AddInt64(&s.appMetrics.summaries, 1)
	writeJSON(w, http.StatusOK, sum)
}

// handleAPIExpenses lists expenses, newest first. Without a mode every
// expense is returned; an unreadable filter yields an empty list.
func (s *Server) handleAPIExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rng := store.AllTime()
	if r.URL.Query().Get("mode") != "" {
		resolved, ok := parseFilter(r.URL.Query()).Resolve(time.Now(), s.expenses.Options())
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"expenses": []core.Expense{}})
			return
		}
		rng = resolved
	}

	exps, err := s.expenses.ListExpenses(ctx, auth.UserID(ctx), rng)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to list expenses", applog.FieldError, err)
		writeJSONError(w, http.StatusInternalServerError, msgFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": exps})
}

func (s *Server) handleAPICategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names, err := s.expenses.CategoryNames(ctx, auth.UserID(ctx))
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to list categories", applog.FieldError, err)
		writeJSONError(w, http.StatusInternalServerError, "Could not fetch categories.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": names})
}

// handleAPIProfile returns the stored profile, or null when none was saved.
func (s *Server) handleAPIProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.expenses.Profile(ctx, auth.UserID(ctx))
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to load profile", applog.FieldError, err)
		writeJSONError(w, http.StatusInternalServerError, "Could not load profile.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": p})
}

// handleAPISaveProfile merges a partial profile and returns the result.
func (s *Server) handleAPISaveProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := auth.UserID(ctx)

	var u core.ProfileUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&u); err != nil {
		writeJSONError(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	err := s.expenses.SaveProfile(ctx, uid, u)
	var fieldErrs core.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrs})
		return
	case errors.Is(err, core.ErrEmptyProfile):
		writeJSONError(w, http.StatusBadRequest, "empty profile update")
		return
	case err != nil:
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to save profile", applog.FieldError, err)
		writeJSONError(w, http.StatusInternalServerError, msgProfileFailed)
		return
	}
	atomic.AddInt64(&s.appMetrics.profilesSaved, 1)

	p, err := s.expenses.Profile(ctx, uid)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to reload profile", applog.FieldError, err)
		writeJSONError(w, http.StatusInternalServerError, "Could not load profile.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": p})
}
