package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"envelopes/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.started).Round(time.Second).String(),
	})
}

// handleReady verifies templates and the storage backend
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.repo.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed",
			log.FieldComponent, log.ComponentStorage, log.FieldError, err)
		checks["storage"] = "failed"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{"active_clients": s.limiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics writes counters in the Prometheus text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	traceMetrics := s.tracer.GetMetrics()
	rateMetrics := s.limiter.GetMetrics()
	securityMetrics := s.detector.GetMetrics()

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("expenses_created_total", "counter", "Expenses stored through the API", s.metrics.expensesCreated.Load())
	metric("envelope_warnings_total", "counter", "Envelope warnings shown to users", s.metrics.warningsIssued.Load())
	metric("imports_total", "counter", "Completed backup imports", s.metrics.imports.Load())
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateMetrics.TotalHits)
	metric("rate_limit_clients", "gauge", "Clients tracked by the rate limiter", rateMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Requests flagged as probing", securityMetrics.SuspiciousRequests)
	metric("warned_sessions", "gauge", "Session periods with deduplicated warnings", s.warned.Size())
	metric("uptime_seconds", "gauge", "Process uptime in seconds", int64(time.Since(s.metrics.started).Seconds()))
}
