package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	applog "finanzas/internal/log"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ledger.Store().(pinger)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "almacenamiento no disponible", Code: "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	limitMetrics := s.rateLimiter.GetMetrics()

	fmt.Fprintf(w, "# HELP finanzas_http_requests_total Total HTTP requests\n")
	fmt.Fprintf(w, "# TYPE finanzas_http_requests_total counter\n")
	fmt.Fprintf(w, "finanzas_http_requests_total %d\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP finanzas_http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE finanzas_http_server_errors_total counter\n")
	fmt.Fprintf(w, "finanzas_http_server_errors_total %d\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP finanzas_http_response_time_ms Average response time\n")
	fmt.Fprintf(w, "# TYPE finanzas_http_response_time_ms gauge\n")
	fmt.Fprintf(w, "finanzas_http_response_time_ms %.2f\n", float64(traceMetrics.AverageResponseTime)/1000)

	fmt.Fprintf(w, "# HELP finanzas_rate_limit_hits_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE finanzas_rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "finanzas_rate_limit_hits_total %d\n", limitMetrics.TotalHits)
	fmt.Fprintf(w, "finanzas_rate_limit_clients %d\n", limitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP finanzas_report_cache_hits_total Month reports served from cache\n")
	fmt.Fprintf(w, "# TYPE finanzas_report_cache_hits_total counter\n")
	fmt.Fprintf(w, "finanzas_report_cache_hits_total %d\n", atomic.LoadInt64(&s.appMetrics.cacheHits))
	fmt.Fprintf(w, "finanzas_report_cache_misses_total %d\n", atomic.LoadInt64(&s.appMetrics.cacheMisses))
	fmt.Fprintf(w, "finanzas_report_cache_entries %d\n", s.reports.Size())

	fmt.Fprintf(w, "# HELP finanzas_mutations_total Successful ledger writes\n")
	fmt.Fprintf(w, "# TYPE finanzas_mutations_total counter\n")
	fmt.Fprintf(w, "finanzas_mutations_total %d\n", atomic.LoadInt64(&s.appMetrics.mutations))
	fmt.Fprintf(w, "finanzas_imports_total %d\n", atomic.LoadInt64(&s.appMetrics.imports))

	fmt.Fprintf(w, "# HELP finanzas_uptime_seconds Time since the server started\n")
	fmt.Fprintf(w, "# TYPE finanzas_uptime_seconds gauge\n")
	fmt.Fprintf(w, "finanzas_uptime_seconds %.0f\n", time.Since(s.appMetrics.uptime).Seconds())
}
