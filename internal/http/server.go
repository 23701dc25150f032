package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"finanzas/internal/adapters"
	"finanzas/internal/cache"
	applog "finanzas/internal/log"
	"finanzas/internal/middleware/ratelimit"
	"finanzas/internal/middleware/security"
	"finanzas/internal/middleware/trace"
	"finanzas/internal/services"
)

// Config holds the server settings that come from the environment.
type Config struct {
	Addr            string
	DefaultOwner    string
	ReportCacheTTL  time.Duration
	ReportCacheSize int
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxImportBytes  int64
}

type Server struct {
	http.Server

	ledger         *services.LedgerService
	adapter        *adapters.LedgerAdapter
	defaultOwner   string
	maxImportBytes int64
	now            func() time.Time

	reports      *cache.LRUCache[services.Report]
	cacheManager *cache.Manager
	reportGroup  singleflight.Group

	// generation is bumped per owner on every successful mutation; a report
	// computed under an older generation is served but not cached.
	genMu      sync.Mutex
	generation map[string]uint64

	rateLimiter     *ratelimit.Limiter
	traceMiddleware *trace.Middleware
	ipResolver      *security.ClientIPResolver
	logger          *applog.Logger
	events          *applog.StructuredLogger

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime      time.Time
	mutations   int64
	imports     int64
	cacheHits   int64
	cacheMisses int64
}

// NewServer wires routes and middleware around the ledger service and
// returns a ready-to-run server.
func NewServer(cfg Config, ledger *services.LedgerService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReportCacheTTL <= 0 {
		cfg.ReportCacheTTL = 5 * time.Minute
	}
	if cfg.ReportCacheSize <= 0 {
		cfg.ReportCacheSize = 256
	}
	if cfg.MaxImportBytes <= 0 {
		cfg.MaxImportBytes = 10 << 20
	}

	appLogger := applog.New(applog.Config{Handler: logger.Handler(), Component: applog.ComponentHTTP})

	s := &Server{
		ledger:         ledger,
		adapter:        adapters.NewLedgerAdapter(ledger),
		defaultOwner:   cfg.DefaultOwner,
		maxImportBytes: cfg.MaxImportBytes,
		now:            time.Now,
		reports:        cache.NewLRUCache[services.Report](cfg.ReportCacheSize, cfg.ReportCacheTTL),
		cacheManager:   cache.NewManager(),
		generation:     make(map[string]uint64),
		rateLimiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}),
		ipResolver:     security.NewClientIPResolver(),
		logger:         appLogger,
		events:         applog.NewStructuredLogger(appLogger),
		appMetrics:     &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.ipResolver.ClientIP)

	s.cacheManager.Register(s.reports)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(s.ipResolver.ClientIP, s.handleRateLimited)(h)
	h = applog.Middleware(appLogger, trace.GetRequestID)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.traceMiddleware.Middleware(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/months/{month}/report", s.handleMonthReport)
	mux.HandleFunc("GET /api/months/{month}/expenses", s.handleListExpenses)
	mux.HandleFunc("GET /api/months/{month}/fixed-income", s.handleGetFixedIncome)
	mux.HandleFunc("PUT /api/months/{month}/fixed-income", s.handleSetFixedIncome)
	mux.HandleFunc("GET /api/months/{month}/extra-incomes", s.handleListExtraIncomes)
	mux.HandleFunc("POST /api/months/{month}/extra-incomes", s.handleAddExtraIncome)
	mux.HandleFunc("DELETE /api/extra-incomes/{id}", s.handleDeleteExtraIncome)

	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PATCH /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("PATCH /api/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/limits", s.handleListLimits)
	mux.HandleFunc("PUT /api/limits", s.handleSetLimit)
	mux.HandleFunc("DELETE /api/limits/{category}", s.handleDeleteLimit)

	mux.HandleFunc("GET /api/goals", s.handleListGoals)
	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("POST /api/goals/{id}/contributions", s.handleContribute)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)

	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/import", s.handleImport)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		"client_ip", s.ipResolver.ClientIP(r),
		"method", r.Method,
		"path", r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error: "Demasiadas solicitudes. Intenta de nuevo en unos segundos.",
		Code:  "rate_limited",
	})
}

// mutated records a successful write for owner and drops the owner's cached
// reports. It must only run after the store confirmed the change.
func (s *Server) mutated(owner string) {
	atomic.AddInt64(&s.appMetrics.mutations, 1)

	s.genMu.Lock()
	s.generation[owner]++
	s.genMu.Unlock()

	if n := s.reports.DeletePrefix(reportKeyPrefix(owner)); n > 0 {
		s.logger.Debug("Report cache invalidated", "owner", owner, "entries", n)
	}
}

func (s *Server) currentGeneration(owner string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generation[owner]
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
