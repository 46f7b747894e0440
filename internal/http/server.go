package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"envelopes/internal/budget"
	"envelopes/internal/cache"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/middleware/ratelimit"
	"envelopes/internal/middleware/security"
	"envelopes/internal/middleware/trace"
	"envelopes/internal/repository"
	"envelopes/internal/services"
	appweb "envelopes/web"
)

const (
	warnedCacheSize    = 4096
	knownUserCacheSize = 1024
	cacheCleanupEvery  = 10 * time.Minute
)

// Config carries the server settings taken from the application config.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	SummaryCacheTTL    time.Duration
	WarningSessionTTL  time.Duration
}

// Server serves the dashboard, its HTMX partials and the JSON API.
type Server struct {
	http.Server
	templates *template.Template

	repo     repository.Repository
	budgets  *services.BudgetService
	expenses *services.ExpenseService
	ledger   *services.LedgerService
	backups  *services.BackupService

	// Envelope ids already announced, keyed by session|user|period.
	warned     *cache.LRUCache[budget.WarnedSet]
	knownUsers *cache.LRUCache[struct{}]
	caches     *cache.Manager
	sessionTTL time.Duration

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	logger  *log.Logger
	metrics *appMetrics
	now     func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires services over repo and returns a server ready to
// ListenAndServe. publisher may be nil when messaging is disabled.
func NewServer(cfg Config, repo repository.Repository, publisher services.WarningPublisher, logger *log.Logger) *Server {
	httpLogger := logger.WithComponent(log.ComponentHTTP)
	budgets := services.NewBudgetService(repo, cfg.SummaryCacheTTL)

	s := &Server{
		repo:       repo,
		budgets:    budgets,
		expenses:   services.NewExpenseService(repo, budgets, publisher),
		ledger:     services.NewLedgerService(repo, budgets),
		backups:    services.NewBackupService(repo, budgets),
		warned:     cache.NewLRUCache[budget.WarnedSet](warnedCacheSize, cfg.WarningSessionTTL),
		knownUsers: cache.NewLRUCache[struct{}](knownUserCacheSize, time.Hour),
		caches:     cache.NewManager(logger.WithComponent(log.ComponentCache).Logger),
		sessionTTL: cfg.WarningSessionTTL,
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector:   security.NewDetector(),
		logger:     httpLogger,
		metrics:    newAppMetrics(),
		now:        time.Now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	s.caches.Register("warned_envelopes", s.warned)
	s.caches.Register("known_users", s.knownUsers)
	budgets.RegisterCaches(s.caches)
	s.caches.StartCleanup(cacheCleanupEvery)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		httpLogger.Warn("Failed parsing templates", log.FieldError, err, log.FieldComponent, log.ComponentTemplate)
	}
	s.templates = t

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	user := func(h http.HandlerFunc) http.Handler { return s.requireUser(h) }

	mux.Handle("GET /{$}", user(s.handleIndex))
	mux.Handle("GET /ui/month-summary", user(s.handleMonthSummaryPartial))
	mux.Handle("GET /ui/year-summary", user(s.handleYearSummaryPartial))

	mux.Handle("GET /api/envelopes", user(s.handleListEnvelopes))
	mux.Handle("POST /api/envelopes", user(s.handleCreateEnvelope))
	mux.Handle("PUT /api/envelopes/{id}", user(s.handleUpdateEnvelope))
	mux.Handle("DELETE /api/envelopes/{id}", user(s.handleDeleteEnvelope))

	mux.Handle("GET /api/expenses", user(s.handleListExpenses))
	mux.Handle("POST /api/expenses", user(s.handleCreateExpense))
	mux.Handle("DELETE /api/expenses/{id}", user(s.handleDeleteExpense))

	mux.Handle("GET /api/incomes", user(s.handleListIncomes))
	mux.Handle("POST /api/incomes", user(s.handleCreateIncome))
	mux.Handle("DELETE /api/incomes/{id}", user(s.handleDeleteIncome))

	mux.Handle("GET /api/notes", user(s.handleListNotes))
	mux.Handle("POST /api/notes", user(s.handleCreateNote))
	mux.Handle("DELETE /api/notes/{id}", user(s.handleDeleteNote))

	mux.Handle("GET /api/summary/month", user(s.handleMonthSummary))
	mux.Handle("GET /api/summary/year", user(s.handleYearSummary))
	mux.Handle("GET /api/warnings", user(s.handleWarnings))

	mux.Handle("GET /api/export", user(s.handleExportJSON))
	mux.Handle("POST /api/import", user(s.handleImportJSON))
	mux.Handle("GET /export/year.xlsx", user(s.handleExportWorkbook))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.WritesOnly, s.onRateLimited)

	// Outermost first: trace, probe detection, headers, rate limit.
	var h http.Handler = mux
	h = limit(h)
	h = headers.Middleware(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Middleware(h)
	return h
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	msg := "Rate limit exceeded. Please try again later."
	if isHTMX(r) {
		ErrorResponse(http.StatusTooManyRequests, msg).TriggerErrorNotification(msg).Write(w)
		return
	}
	writeJSON(w, http.StatusTooManyRequests, apiError{Error: msg, Status: http.StatusTooManyRequests})
}

// Shutdown stops background cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

var templateFuncs = template.FuncMap{
	"money": core.FormatAmount,
	"monthName": func(m time.Month) string {
		return m.String()
	},
	"percent": func(p float64) string {
		return formatPercent(p)
	},
	"deref": func(d *decimal.Decimal) decimal.Decimal {
		if d == nil {
			return decimal.Zero
		}
		return *d
	},
	"warningText": WarningMessage,
}
