// Package http exposes the ledger operations as a JSON API. Handlers build a
// session from the X-Tirelire-User header, call the ledger service and map
// domain errors onto status codes.
package http

import (
	"context"
	"net/http"
	"time"

	"tirelire/internal/cache"
	"tirelire/internal/config"
	"tirelire/internal/core"
	"tirelire/internal/log"
	"tirelire/internal/services"
	"tirelire/internal/session"
)

// identityHeader names the acting user. Real authentication sits in front of
// this service; the header is trusted as-is.
const identityHeader = "X-Tirelire-User"

type Server struct {
	httpServer       *http.Server
	svc              *services.LedgerService
	logger           *log.Logger
	limiter          *rateLimiter
	historyCache     *cache.LRUCache[[]core.PeriodSnapshot]
	sharedIdentities []string
}

func NewServer(cfg *config.Config, svc *services.LedgerService, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Config{})
	}
	s := &Server{
		svc:              svc,
		logger:           logger.WithComponent(log.ComponentHTTP),
		limiter:          newRateLimiter(),
		historyCache:     cache.NewLRUCache[[]core.PeriodSnapshot](cfg.HistoryCacheSize, cfg.HistoryCacheTTL),
		sharedIdentities: cfg.SharedIdentities,
	}

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler builds the routed and middleware-wrapped handler. Exposed so tests
// can drive the full chain through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ledger", s.handleGetLedger)
	mux.HandleFunc("POST /api/expenses", s.handleAddExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)
	mux.HandleFunc("POST /api/budgets", s.handleAddBudget)
	mux.HandleFunc("PUT /api/budgets/{id}", s.handleUpdateBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)
	mux.HandleFunc("POST /api/budgets/{id}/reset", s.handleResetBudget)
	mux.HandleFunc("POST /api/rollover", s.handleRollover)
	mux.HandleFunc("GET /api/history", s.handleGetHistory)
	mux.HandleFunc("DELETE /api/history/{period}", s.handleDeleteHistoryPeriod)
	mux.HandleFunc("DELETE /api/history", s.handleClearHistory)
	mux.HandleFunc("GET /api/references", s.handleGetReferences)
	mux.HandleFunc("PUT /api/references", s.handlePutReferences)
	mux.HandleFunc("POST /api/sync", s.handleForceSync)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	var h http.Handler = mux
	h = s.withRateLimit(h)
	h = withSecurityHeaders(h)
	h = s.withLogging(h)
	h = withRequestID(h)
	return h
}

func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.stop()
	return s.httpServer.Shutdown(ctx)
}

// sessionFor builds the per-request session from the identity header.
func (s *Server) sessionFor(r *http.Request) *session.Session {
	return session.New(r.Header.Get(identityHeader), s.sharedIdentities)
}
