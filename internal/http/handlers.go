package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "index.html", newPage(r, "Track your expenses"), http.StatusOK)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.pinger == nil {
		checks["store"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if err := s.pinger.Ping(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}
	if s.trackers != nil {
		checks["live_trackers"] = s.trackers.Len()
	}

	response := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(response)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	created := atomic.LoadInt64(&s.appMetrics.expensesCreated)
	deleted := atomic.LoadInt64(&s.appMetrics.expensesDeleted)
	profiles := atomic.LoadInt64(&s.appMetrics.profilesSaved)
	summaries := atomic.LoadInt64(&s.appMetrics.summaries)
	streams := atomic.LoadInt64(&s.appMetrics.streams)
	uptime := time.Since(s.appMetrics.uptime)
	trackers := 0
	if s.trackers != nil {
		trackers = s.trackers.Len()
	}

	w.WriteHeader(http.StatusOK)

	// Prometheus-like text format
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_errors_total HTTP responses by error class\n")
	fmt.Fprintf(w, "# TYPE http_errors_total counter\n")
	fmt.Fprintf(w, "http_errors_total{class=\"4xx\"} %d\n", traceMetrics.ClientErrors)
	fmt.Fprintf(w, "http_errors_total{class=\"5xx\"} %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP http_requests_in_flight Requests currently being served\n")
	fmt.Fprintf(w, "# TYPE http_requests_in_flight gauge\n")
	fmt.Fprintf(w, "http_requests_in_flight %d\n\n", traceMetrics.InFlight)

	fmt.Fprintf(w, "# HELP http_response_time_microseconds Average response time\n")
	fmt.Fprintf(w, "# TYPE http_response_time_microseconds gauge\n")
	fmt.Fprintf(w, "http_response_time_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP expenses_created_total Total number of expenses created\n")
	fmt.Fprintf(w, "# TYPE expenses_created_total counter\n")
	fmt.Fprintf(w, "expenses_created_total %d\n\n", created)

	fmt.Fprintf(w, "# HELP expenses_deleted_total Total number of expenses deleted\n")
	fmt.Fprintf(w, "# TYPE expenses_deleted_total counter\n")
	fmt.Fprintf(w, "expenses_deleted_total %d\n\n", deleted)

	fmt.Fprintf(w, "# HELP profiles_saved_total Total number of profile saves\n")
	fmt.Fprintf(w, "# TYPE profiles_saved_total counter\n")
	fmt.Fprintf(w, "profiles_saved_total %d\n\n", profiles)

	fmt.Fprintf(w, "# HELP summaries_rendered_total Total summaries computed for the dashboard\n")
	fmt.Fprintf(w, "# TYPE summaries_rendered_total counter\n")
	fmt.Fprintf(w, "summaries_rendered_total %d\n\n", summaries)

	fmt.Fprintf(w, "# HELP event_streams_open Open server-sent event streams\n")
	fmt.Fprintf(w, "# TYPE event_streams_open gauge\n")
	fmt.Fprintf(w, "event_streams_open %d\n\n", streams)

	fmt.Fprintf(w, "# HELP live_trackers Users with a live expense view\n")
	fmt.Fprintf(w, "# TYPE live_trackers gauge\n")
	fmt.Fprintf(w, "live_trackers %d\n\n", trackers)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP rate_limit_active_clients Active rate limited clients\n")
	fmt.Fprintf(w, "# TYPE rate_limit_active_clients gauge\n")
	fmt.Fprintf(w, "rate_limit_active_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP security_suspicious_requests_total Suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE security_suspicious_requests_total counter\n")
	fmt.Fprintf(w, "security_suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP security_blocked_requests_total Requests blocked by method\n")
	fmt.Fprintf(w, "# TYPE security_blocked_requests_total counter\n")
	fmt.Fprintf(w, "security_blocked_requests_total %d\n\n", securityMetrics.BlockedRequests)

	fmt.Fprintf(w, "# HELP security_cross_origin_denied_total Cross-origin writes rejected\n")
	fmt.Fprintf(w, "# TYPE security_cross_origin_denied_total counter\n")
	fmt.Fprintf(w, "security_cross_origin_denied_total %d\n\n", securityMetrics.CrossOriginDenied)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", uptime.Seconds())
}
