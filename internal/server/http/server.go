// Package httpserver provides the HTTP REST API server for the library lending service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/library-lending-service/internal/config"
	"github.com/helixir/library-lending-service/internal/database"
	"github.com/helixir/library-lending-service/internal/domain"
	"github.com/helixir/library-lending-service/internal/lending"
	"github.com/helixir/library-lending-service/internal/observability"
	"github.com/helixir/library-lending-service/internal/repository"
)

// Version is reported by /api/v1/health.
const Version = "0.1.0"

// defaultLoanPeriod applies when Config.DefaultLoanPeriod is unset.
const defaultLoanPeriod = 14 * 24 * time.Hour

// LendingService defines the loan operations used by the HTTP server.
type LendingService interface {
	Borrow(ctx context.Context, memberID, copyID uuid.UUID, dueAt time.Time) (*domain.Loan, error)
	BorrowByBook(ctx context.Context, memberID, bookID uuid.UUID, dueAt time.Time) (*domain.Loan, error)
	ReturnLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error)
	GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error)
	ListLoans(ctx context.Context, params lending.ListLoansParams) ([]*domain.LoanDetails, error)
}

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Dependencies groups the collaborators of the HTTP server.
type Dependencies struct {
	Lending LendingService
	Catalog repository.CatalogRepository
	Members repository.MemberRepository
	Health  HealthChecker
	Metrics *observability.Metrics
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	lending    LendingService
	catalog    repository.CatalogRepository
	members    repository.MemberRepository
	health     HealthChecker
	metrics    *observability.Metrics
	limiter    *clientRateLimiter
	loanPeriod time.Duration
	now        func() time.Time
	draining   atomic.Bool
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// RateLimit configures per-client throttling. Disabled when
	// RequestsPerSecond <= 0.
	RateLimit config.RateLimitConfig

	// DefaultLoanPeriod sets due_at when a borrow request omits it.
	DefaultLoanPeriod time.Duration
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, deps Dependencies, logger zerolog.Logger) *Server {
	s := &Server{
		lending:    deps.Lending,
		catalog:    deps.Catalog,
		members:    deps.Members,
		health:     deps.Health,
		metrics:    deps.Metrics,
		loanPeriod: cfg.DefaultLoanPeriod,
		now:        time.Now,
		logger:     logger.With().Str("component", "http-server").Logger(),
	}
	if s.loanPeriod <= 0 {
		s.loanPeriod = defaultLoanPeriod
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		s.limiter = newClientRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	if s.limiter != nil {
		r.Use(s.rateLimitMiddleware)
	}
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.versionHandler)

		r.Route("/books", func(r chi.Router) {
			r.Post("/", s.createBook)
			r.Get("/", s.listBooks)
			r.Get("/{bookID}", s.getBook)
			r.Put("/{bookID}", s.updateBook)
			r.Post("/{bookID}/copies", s.createCopy)
			r.Get("/{bookID}/copies", s.listCopies)
		})
		r.Get("/copies/{copyCode}", s.getCopyByCode)

		r.Route("/members", func(r chi.Router) {
			r.Post("/", s.createMember)
			r.Get("/", s.listMembers)
			r.Get("/{memberID}", s.getMember)
			r.Put("/{memberID}", s.updateMember)
		})

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", s.borrow)
			r.Post("/by-book", s.borrowByBook)
			r.Get("/", s.listLoans)
			r.Get("/{loanID}", s.getLoan)
			r.Post("/{loanID}/return", s.returnLoan)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown marks the server not ready and gracefully shuts it down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns liveness status including a database ping.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Healthy() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
	})
}

// readinessHandler reports not ready while draining or when the database is down.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	health := s.health.Health(r.Context())
	if !health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": database.StatusHealthy,
	})
}

func (s *Server) versionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message, Code: code})
}
