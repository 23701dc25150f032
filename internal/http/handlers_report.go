package http

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"finanzas/internal/core"
	"finanzas/internal/services"
)

// reportTimeout bounds a shared report computation, which outlives any single
// request waiting on it.
const reportTimeout = 30 * time.Second

func reportKeyPrefix(owner string) string {
	return owner + "|"
}

func reportKey(owner string, month core.MonthKey) string {
	return reportKeyPrefix(owner) + month.String()
}

// handleMonthReport serves the month aggregate. Concurrent requests for the
// same owner and month share one computation; the result is cached until the
// owner's next successful write.
func (s *Server) handleMonthReport(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := monthParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	key := reportKey(owner, month)
	if report, ok := s.reports.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		s.events.LogReport(r.Context(), owner, month, true)
		writeJSON(w, http.StatusOK, report)
		return
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	gen := s.currentGeneration(owner)
	// Flights are per generation so nobody joins a computation that started
	// before a write they already saw acknowledged. The flight runs detached
	// from the request that started it; each caller waits on its own context.
	ch := s.reportGroup.DoChan(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), reportTimeout)
		defer cancel()
		report, err := s.ledger.MonthReport(ctx, owner, month)
		if err != nil {
			return services.Report{}, err
		}
		s.storeReport(owner, gen, key, report)
		return report, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-r.Context().Done():
		s.logger.DebugContext(r.Context(), "Report request abandoned", "owner", owner, "month", month.String())
		return
	}
	if res.Err != nil {
		writeError(w, r, res.Err)
		return
	}
	s.events.LogReport(r.Context(), owner, month, false)
	writeJSON(w, http.StatusOK, res.Val.(services.Report))
}

// storeReport caches report only when no write for owner happened since gen
// was read.
func (s *Server) storeReport(owner string, gen uint64, key string, report services.Report) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generation[owner] != gen {
		return
	}
	s.reports.Set(key, report)
}
