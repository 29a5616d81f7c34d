package http

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"expensewise/internal/aggregate"
	"expensewise/internal/core"
	appweb "expensewise/web"
)

// User-facing messages.
const (
	msgExpenseAdded    = "Expense added."
	msgExpenseDeleted  = "Expense deleted."
	msgAddFailed       = "Failed to add expense."
	msgDeleteFailed    = "Failed to delete expense."
	msgProfileSaved    = "Profile saved."
	msgProfileFailed   = "Failed to save profile."
	msgFetchFailed     = "Could not fetch expenses."
	msgInvalidRequest  = "Invalid request format."
	msgSomethingFailed = "Something went wrong. Please try again."
)

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"inr": func(m core.Money) string { return core.FormatINR(m.Cents) },
		"percent": func(p float64, decimals int) string {
			return aggregate.FormatPercent(p, decimals)
		},
		"pie":     pieGradient,
		"day":     func(t time.Time) string { return t.Format("02 Jan 2006") },
		"isodate": func(t time.Time) string { return t.Format("2006-01-02") },
	}
}

// pieGradient renders chart slices as a CSS conic-gradient in chart order.
func pieGradient(points []aggregate.ChartPoint) template.CSS {
	if len(points) == 0 {
		return template.CSS("conic-gradient(#E5E7EB 0% 100%)")
	}
	var b strings.Builder
	b.WriteString("conic-gradient(")
	from := 0.0
	for i, p := range points {
		to := from + p.Percentage
		if i == len(points)-1 {
			to = 100
		}
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %.2f%% %.2f%%", p.Color, from, to)
		from = to
	}
	b.WriteString(")")
	return template.CSS(b.String())
}

// parseFilter reads the dashboard filter controls from a query string.
func parseFilter(q url.Values) aggregate.Filter {
	return aggregate.Filter{
		Mode:  aggregate.ParseMode(q.Get("mode")),
		Date:  sanitizeInput(q.Get("date")),
		Start: sanitizeInput(q.Get("start")),
		End:   sanitizeInput(q.Get("end")),
		Month: sanitizeInput(q.Get("month")),
	}
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the caller is an API client rather than a page.
func wantsJSON(r *http.Request) bool {
	if isHTMX(r) {
		return false
	}
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// redirect sends a browser to path, using HX-Redirect for htmx requests.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(path).Write(w)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEvent writes one server-sent event with a JSON payload.
func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
