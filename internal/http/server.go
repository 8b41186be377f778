// Package http exposes the view cache and repository as a JSON API with a
// server-sent event stream of cache states.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/syncer"
	"fintrack/internal/view"
)

type (
	// Ledger is the view cache as seen by the handlers.
	Ledger interface {
		UserID() string
		Snapshot() view.State
		Filter(f core.TypeFilter, query string) []core.Transaction
		Recent(n int) []core.Transaction
		Add(ctx context.Context, n core.NewTransaction) (core.Transaction, error)
		Edit(ctx context.Context, t core.Transaction) (core.Transaction, error)
		Remove(ctx context.Context, id string) error
		ClearError()
		Subscribe() (<-chan view.State, func())
	}

	TransactionLookup interface {
		GetByID(ctx context.Context, id string) (core.Transaction, bool, error)
	}

	CategoryLister interface {
		List(ctx context.Context, userID string) ([]core.Category, error)
	}

	Syncer interface {
		SyncOnce(ctx context.Context) (syncer.Result, error)
	}
)

// Deps are the collaborators of the server. Sync, Limiter, Logger and
// Ready may be nil.
type Deps struct {
	Ledger     Ledger
	Lookup     TransactionLookup
	Categories CategoryLister
	Sync       Syncer
	Limiter    *ratelimit.Limiter
	Logger     *log.Logger
	// Ready reports whether the store answers; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	deps  Deps
	trace *trace.Middleware

	// done ends open event streams on shutdown.
	done     chan struct{}
	stopOnce sync.Once
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}
	s := &Server{
		deps:  deps,
		trace: trace.NewMiddleware(ClientIP),
		done:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/transactions/recent", s.handleRecentTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.Handle("POST /api/transactions", s.limited(s.handleCreateTransaction))
	mux.Handle("PUT /api/transactions/{id}", s.limited(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.limited(s.handleDeleteTransaction))

	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("POST /api/summary/clear-error", s.handleClearError)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.Handle("POST /api/sync", s.limited(s.handleSync))
	mux.HandleFunc("GET /api/events", s.handleEvents)

	var h http.Handler = mux
	h = log.RequestIDMiddleware(trace.RequestID)(h)
	h = log.Middleware(deps.Logger)(h)
	h = s.trace.Middleware(h)
	h = securityHeaders(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// limited applies the rate limiter, when configured, to a mutating handler.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	if s.deps.Limiter == nil {
		return h
	}
	return s.deps.Limiter.Middleware(ClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	})(h)
}

// Shutdown closes event streams, stops the rate limiter and drains the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.deps.Limiter != nil {
			s.deps.Limiter.Stop()
		}
	})
	return s.Server.Shutdown(ctx)
}

// Metrics returns the request counters of the tracing middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.trace.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
