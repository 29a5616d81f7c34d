package http

import (
	"bytes"
	"errors"
	"net/http"

	"expensewise/internal/aggregate"
	"expensewise/internal/auth"
	"expensewise/internal/core"
	applog "expensewise/internal/log"
)

// page is the data every full-page template receives.
type page struct {
	Title   string
	Session *auth.Session
	Flash   string
	Form    map[string]string
	Errors  core.FieldErrors
	Data    any
}

type dashboardData struct {
	Categories []string
	Today      string
	Month      string
	Filter     aggregate.Filter
	Summary    summaryView
}

// summaryView feeds the summary partial.
type summaryView struct {
	Filter  aggregate.Filter
	Summary aggregate.Summary
	Top     *aggregate.CategoryTotal
	Invalid bool
	Live    bool
	Error   string
}

type profileData struct {
	Profile core.UserProfile
	Roles   []core.Role
}

func newPage(r *http.Request, title string) page {
	p := page{Title: title}
	if sess, ok := auth.SessionFromContext(r.Context()); ok {
		p.Session = &sess
	}
	return p
}

var errTemplatesMissing = errors.New("templates not loaded")

// render buffers the template output; nothing is written when execution fails.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any, status int) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", applog.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			applog.FieldComponent, applog.ComponentTemplate,
			applog.FieldOperation, applog.OpRender,
			"template", name)
		http.Error(w, msgSomethingFailed, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// renderFragment executes a named partial for an htmx swap.
func (s *Server) renderFragment(name string, data any) (string, error) {
	if s.templates == nil {
		return "", errTemplatesMissing
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
