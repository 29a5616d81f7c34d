package http

import (
	"errors"
	"net/http"
	"sync/atomic"

	"expensewise/internal/auth"
	"expensewise/internal/core"
	applog "expensewise/internal/log"
)

func (s *Server) handleProfilePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := newPage(r, "Profile")

	data := profileData{Roles: []core.Role{core.RoleOwner, core.RoleTenant}}
	profile, err := s.expenses.Profile(ctx, auth.UserID(ctx))
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to load profile",
			applog.FieldError, err,
			applog.FieldComponent, applog.ComponentExpense,
			applog.FieldOperation, applog.OpRead)
		p.Flash = "Could not load your profile."
	} else if profile != nil {
		data.Profile = *profile
	}
	p.Data = data
	s.render(w, r, "profile.html", p, http.StatusOK)
}

// handleSaveProfile merges the submitted fields into the stored profile.
func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError(msgInvalidRequest).Write(w)
		return
	}

	err := s.expenses.SaveProfile(ctx, auth.UserID(ctx), parser.ProfileUpdate())
	var fieldErrs core.FieldErrors
	switch {
	case errors.As(err, &fieldErrs):
		s.writeFieldErrors(w, fieldErrs)
		return
	case errors.Is(err, core.ErrEmptyProfile):
		UnprocessableEntityError("Nothing to save.").Write(w)
		return
	case err != nil:
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to save profile",
			applog.FieldError, err,
			applog.FieldComponent, applog.ComponentExpense,
			applog.FieldOperation, applog.OpUpdate)
		NewHTMXResponse().
			Status(http.StatusInternalServerError).
			TriggerErrorNotification(msgProfileFailed).
			Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.profilesSaved, 1)
	if !isHTMX(r) {
		redirect(w, r, "/profile")
		return
	}
	NewHTMXResponse().
		TriggerSuccessNotification(msgProfileSaved).
		Write(w)
}
