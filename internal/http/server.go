// Package http exposes the ledger as a JSON API. Handlers only translate
// between HTTP and the service layer; every rule lives below it.
package http

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"budgeteer/internal/core"
	"budgeteer/internal/log"
	"budgeteer/internal/middleware/ratelimit"
	"budgeteer/internal/middleware/security"
	"budgeteer/internal/middleware/trace"
	"budgeteer/internal/services"
	"budgeteer/internal/verdict"
)

// Ledger is the service surface the API needs. *services.LedgerService
// implements it.
type Ledger interface {
	AddEntry(ctx context.Context, req services.EntryRequest) (core.Transaction, error)
	RemoveEntry(ctx context.Context, id int64) error
	SetLimit(ctx context.Context, value string) error
	SetCurrency(ctx context.Context, symbol string) error
	SetTheme(ctx context.Context, theme string) error
	Settings() core.Settings
	Transactions(search string) []core.Transaction
	SubmitVoice(ctx context.Context, transcript string, submit bool) (services.VoiceResult, error)
	Dashboard(ctx context.Context, search string) (services.Dashboard, error)
	EvaluateMonth(ctx context.Context) (verdict.Verdict, error)
	AcknowledgeMonth(ctx context.Context, confirmed bool) (verdict.State, error)
	ResetMonth(ctx context.Context) error
	ExportCSV(w io.Writer) error
	ExportSheets(ctx context.Context, exp services.SheetExporter) (string, error)
}

type Option func(*Server)

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithRateLimit caps mutating requests per client IP and minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimit = perMinute }
}

// WithSheetExporter enables POST /api/export/sheets.
func WithSheetExporter(exp services.SheetExporter) Option {
	return func(s *Server) { s.exporter = exp }
}

// Server wraps http.Server with the API routes and their middleware.
type Server struct {
	http.Server

	ledger    Ledger
	exporter  services.SheetExporter
	logger    *log.Logger
	events    *log.StructuredLogger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	rateLimit int
	started   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, ledger Ledger, opts ...Option) *Server {
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ledger:    ledger,
		rateLimit: ratelimit.DefaultConfig().RequestsPerMinute,
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	s.events = log.NewStructuredLogger(s.logger)
	s.detector = security.NewDetector()
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: s.rateLimit})
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, s.events)

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(h)
	h = s.flagSuspicious(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	h = log.Middleware(s.logger)(h)
	s.Handler = h

	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /api/voice", s.handleVoice)

	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings/limit", s.handleSetLimit)
	mux.HandleFunc("PUT /api/settings/currency", s.handleSetCurrency)
	mux.HandleFunc("PUT /api/settings/theme", s.handleSetTheme)

	mux.HandleFunc("POST /api/month/evaluate", s.handleEvaluateMonth)
	mux.HandleFunc("POST /api/month/acknowledge", s.handleAcknowledgeMonth)
	mux.HandleFunc("POST /api/month/reset", s.handleResetMonth)

	mux.HandleFunc("GET /api/export.csv", s.handleExportCSV)
	if s.exporter != nil {
		mux.HandleFunc("POST /api/export/sheets", s.handleExportSheets)
	}
}

// RunCleanup forgets idle rate-limit clients until ctx is done.
func (s *Server) RunCleanup(ctx context.Context) error {
	return s.limiter.Run(ctx, 5*time.Minute)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	w.Header().Set("Retry-After", "60")
	writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "rate limit exceeded, try again later"})
}

// flagSuspicious logs probing requests and lets them through.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.IsSuspicious(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, s.detector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}
