package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"
)

// Events the dashboard listens for, via hx-trigger attributes or app.js.
const (
	eventExpenseCreated = "expense:created"
	eventExpenseDeleted = "expense:deleted"
	eventFormReset      = "form:reset"
	eventSummaryRefresh = "summary:refresh"
	eventNotification   = "show-notification"
)

// NotificationType selects the toast style in app.js.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

var notificationDuration = map[NotificationType]time.Duration{
	NotificationSuccess: 3 * time.Second,
	NotificationError:   5 * time.Second,
}

// HTMXResponseBuilder assembles an htmx reply: HX-Trigger events, an optional
// HX-Redirect and an HTML fragment to swap in.
type HTMXResponseBuilder struct {
	triggers   map[string]any
	statusCode int
	redirect   string
	fragment   []byte
}

func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]any),
		statusCode: http.StatusOK,
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

func (b *HTMXResponseBuilder) trigger(name string, data any) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerExpenseCreated carries the new id so the page can highlight the row.
func (b *HTMXResponseBuilder) TriggerExpenseCreated(id string) *HTMXResponseBuilder {
	return b.trigger(eventExpenseCreated, map[string]string{"id": id})
}

// TriggerExpenseDeleted also makes the filter form reload the summary.
func (b *HTMXResponseBuilder) TriggerExpenseDeleted(id string) *HTMXResponseBuilder {
	return b.trigger(eventExpenseDeleted, map[string]string{"id": id})
}

// TriggerFormReset clears the add form but keeps the chosen date.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.trigger(eventFormReset, struct{}{})
}

func (b *HTMXResponseBuilder) TriggerSummaryRefresh() *HTMXResponseBuilder {
	return b.trigger(eventSummaryRefresh, struct{}{})
}

func (b *HTMXResponseBuilder) notify(kind NotificationType, message string) *HTMXResponseBuilder {
	return b.trigger(eventNotification, map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": notificationDuration[kind].Milliseconds(),
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.notify(NotificationSuccess, message)
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.notify(NotificationError, message)
}

// Redirect makes htmx navigate the whole page to path.
func (b *HTMXResponseBuilder) Redirect(path string) *HTMXResponseBuilder {
	b.redirect = path
	return b
}

// Fragment sets already-rendered HTML as the swap content.
func (b *HTMXResponseBuilder) Fragment(html string) *HTMXResponseBuilder {
	b.fragment = []byte(html)
	return b
}

func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	if b.redirect != "" {
		w.Header().Set("HX-Redirect", b.redirect)
	}
	if len(b.triggers) > 0 {
		if data, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(data))
		}
	}
	if len(b.fragment) > 0 {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	w.WriteHeader(b.statusCode)
	if len(b.fragment) > 0 {
		_, _ = w.Write(b.fragment)
	}
}

// errorFragment renders message the same way inline form errors are shown.
func errorFragment(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		Fragment(`<p class="error" role="alert">` + template.HTMLEscapeString(message) + `</p>`)
}

func BadRequestError(message string) *HTMXResponseBuilder {
	return errorFragment(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *HTMXResponseBuilder {
	return errorFragment(http.StatusUnprocessableEntity, message)
}
