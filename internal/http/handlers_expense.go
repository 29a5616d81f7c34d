package http

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"

	"expensewise/internal/auth"
	"expensewise/internal/core"
	applog "expensewise/internal/log"
)

// handleCreateExpense records an expense from the htmx form or a JSON body.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := auth.UserID(ctx)
	logger := applog.FromContext(ctx)

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		logger.WarnContext(ctx, "Parse expense body failed", applog.FieldError, err, applog.FieldPath, r.URL.Path)
		if wantsJSON(r) {
			writeJSONError(w, http.StatusBadRequest, msgInvalidRequest)
			return
		}
		BadRequestError(msgInvalidRequest).Write(w)
		return
	}
	asJSON := parser.IsJSON() || wantsJSON(r)
	in := parser.ExpenseInput()

	known, err := s.expenses.CategoryNames(ctx, uid)
	if err != nil {
		logger.WarnContext(ctx, "Failed to list categories before add", applog.FieldError, err)
	}

	id, err := s.expenses.AddExpense(ctx, uid, in, known)
	var fieldErrs core.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		if asJSON {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fieldErrs})
			return
		}
		s.writeFieldErrors(w, fieldErrs)
		return
	case err != nil:
		logger.ErrorContext(ctx, "Failed to save expense",
			applog.FieldError, err,
			applog.FieldCategory, in.Category,
			applog.FieldComponent, applog.ComponentExpense,
			applog.FieldOperation, applog.OpCreate)
		if asJSON {
			writeJSONError(w, http.StatusInternalServerError, msgAddFailed)
			return
		}
		NewHTMXResponse().
			Status(http.StatusInternalServerError).
			TriggerErrorNotification(msgAddFailed).
			Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesCreated, 1)

	if asJSON {
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
		return
	}
	if !isHTMX(r) {
		redirect(w, r, "/dashboard")
		return
	}
	NewHTMXResponse().
		TriggerFormReset().
		TriggerExpenseCreated(id).
		TriggerSummaryRefresh().
		TriggerSuccessNotification(msgExpenseAdded).
		Write(w)
}

// handleDeleteExpense removes an expense. Unknown ids succeed.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := auth.UserID(ctx)
	id := sanitizeInput(r.PathValue("id"))

	if id == "" || strings.ContainsAny(id, "/?#") {
		if wantsJSON(r) {
			writeJSONError(w, http.StatusBadRequest, "missing expense id")
			return
		}
		BadRequestError("Missing expense id").Write(w)
		return
	}

	var err error
	if t := s.tracker(ctx, uid); t != nil {
		err = t.Delete(ctx, id)
	} else {
		err = s.expenses.DeleteExpense(ctx, uid, id)
	}
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to delete expense",
			applog.FieldError, err,
			applog.FieldExpenseID, id,
			applog.FieldComponent, applog.ComponentExpense,
			applog.FieldOperation, applog.OpDelete)
		if wantsJSON(r) {
			writeJSONError(w, http.StatusInternalServerError, msgDeleteFailed)
			return
		}
		NewHTMXResponse().
			Status(http.StatusInternalServerError).
			TriggerErrorNotification(msgDeleteFailed).
			Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesDeleted, 1)
	applog.FromContext(ctx).InfoContext(ctx, "Expense deleted",
		applog.FieldExpenseID, id,
		applog.FieldComponent, applog.ComponentExpense,
		applog.FieldOperation, applog.OpDelete)

	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !isHTMX(r) {
		redirect(w, r, "/dashboard")
		return
	}
	NewHTMXResponse().
		TriggerExpenseDeleted(id).
		TriggerSuccessNotification(msgExpenseDeleted).
		Write(w)
}

// writeFieldErrors answers an htmx form with inline validation messages.
func (s *Server) writeFieldErrors(w http.ResponseWriter, fieldErrs core.FieldErrors) {
	html, err := s.renderFragment("form_errors", fieldErrs)
	if err != nil {
		UnprocessableEntityError(fieldErrs.Error()).Write(w)
		return
	}
	NewHTMXResponse().
		Status(http.StatusUnprocessableEntity).
		Fragment(html).
		Write(w)
}
