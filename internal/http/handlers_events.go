package http

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"expensewise/internal/auth"
	applog "expensewise/internal/log"
	"expensewise/internal/tracker"
)

const keepAliveInterval = 25 * time.Second

// snapshotEvent tells the page that the live expense list changed.
type snapshotEvent struct {
	Version  uint64 `json:"version"`
	Expenses int    `json:"expenses"`
	Loaded   bool   `json:"loaded"`
}

type errorEvent struct {
	Message string `json:"message"`
}

// handleEvents streams tracker changes as server-sent events: "snapshot" after
// every change and "error" while the subscription is failing.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	if s.trackers == nil {
		http.Error(w, "live updates unavailable", http.StatusServiceUnavailable)
		return
	}
	t, err := s.trackers.Get(ctx, auth.UserID(ctx))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start live view",
			applog.FieldError, err,
			applog.FieldComponent, applog.ComponentTracker,
			applog.FieldOperation, applog.OpSubscribe)
		http.Error(w, msgFetchFailed, http.StatusServiceUnavailable)
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	changed := make(chan struct{}, 1)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	stop := t.Subscribe(notify)
	defer func() { stop() }()

	atomic.AddInt64(&s.appMetrics.streams, 1)
	defer atomic.AddInt64(&s.appMetrics.streams, -1)

	if err := sendState(w, rc, t); err != nil {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.baseCtx.Done():
			return
		case <-t.Done():
			// The tracker was torn down; keep streaming only while this session lives.
			sess, ok := auth.SessionFromContext(ctx)
			if !ok {
				return
			}
			if _, ok := s.auth.CurrentUser(sess.Token); !ok {
				return
			}
			next, err := s.trackers.Get(ctx, sess.UserID)
			if err != nil {
				logger.WarnContext(ctx, "Failed to resume live view", applog.FieldError, err)
				return
			}
			stop()
			t = next
			stop = t.Subscribe(notify)
			if err := sendState(w, rc, t); err != nil {
				return
			}
		case <-changed:
			if err := sendState(w, rc, t); err != nil {
				logger.DebugContext(ctx, "Event stream closed", applog.FieldError, err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func sendState(w http.ResponseWriter, rc *http.ResponseController, t *tracker.Tracker) error {
	var err error
	if t.Err() != nil {
		err = writeEvent(w, "error", errorEvent{Message: msgFetchFailed})
	} else {
		err = writeEvent(w, "snapshot", snapshotEvent{
			Version:  t.Version(),
			Expenses: len(t.Expenses()),
			Loaded:   t.Loaded(),
		})
	}
	if err != nil {
		return err
	}
	return rc.Flush()
}
