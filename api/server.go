// Package api provides the HTTP API server for the repricer.
// It exposes stateless price computation plus the admin reprice and sweep actions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"repricer/db/clickhouse"
	"repricer/decision/repricing"
	"repricer/decision/sweep"
	contract "repricer/pkg/api"
	pricingerrors "repricer/pkg/errors"
	"repricer/pkg/platform"
)

var version = "1.0.0"

// RepriceRunner runs per-item and catalogue-wide repricing.
type RepriceRunner interface {
	RepriceOne(ctx context.Context, pair contract.Pair) (sweep.Outcome, error)
	Sweep(ctx context.Context) (*sweep.Summary, error)
}

// DecisionLister reads the decision audit log.
type DecisionLister interface {
	ListDecisions(ctx context.Context, pair contract.Pair, limit int) ([]clickhouse.Decision, error)
}

// Pinger reports backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators behind the HTTP handlers.
// History and Ready entries are optional.
type Dependencies struct {
	Config   sweep.ConfigSource
	Repricer RepriceRunner
	History  DecisionLister
	Ready    map[string]Pinger
}

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	deps       Dependencies
	config     *Config
	logger     zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	// Empty disables admin authentication
	APIKey string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Minute,
		MaxRequestSize: int64(platform.GetEnvInt("REPRICER_MAX_REQUEST_BYTES", 1024*1024)),
		CORSOrigins:    []string{"*"},
	}
}

// NewServer creates a new API server
func NewServer(deps Dependencies, config *Config, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{
		deps:   deps,
		config: config,
		logger: logger,
	}
}

// Router builds the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/price", s.handlePrice)
		r.Get("/config", s.handleGetConfig)
		r.Get("/items/{product}/{manufacturer}/decisions", s.handleListDecisions)

		r.Group(func(r chi.Router) {
			r.Use(platform.APIKeyMiddleware(s.config.APIKey))
			r.Post("/items/{product}/{manufacturer}/reprice", s.handleReprice)
			r.Post("/sweep", s.handleSweep)
		})
	})

	return r
}

func (s *Server) ensureHTTPServer() {
	if s.httpServer != nil {
		return
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.ensureHTTPServer()
	s.logger.Info().Int("port", s.config.Port).Str("version", version).Msg("Starting repricer API server")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown starts server with graceful shutdown handling
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	s.ensureHTTPServer()

	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		return err
	case <-quit:
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, p := range s.deps.Ready {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Str("backend", name).Msg("Readiness check failed")
			s.jsonError(w, http.StatusServiceUnavailable, fmt.Sprintf("%s not ready", name))
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// =============================================================================
// PRICING ENDPOINTS
// =============================================================================

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req contract.PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	cfg, err := req.Config.PricingConfig()
	if err != nil {
		s.pricingError(w, err)
		return
	}

	result, err := repricing.Compute(cfg, req.Quotes)
	if err != nil {
		s.pricingError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Config == nil {
		s.jsonError(w, http.StatusNotFound, "pricing configuration store is not enabled")
		return
	}

	cfg, err := s.deps.Config.GetPricingConfig(r.Context())
	if err != nil {
		s.pricingError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, cfg)
}

func (s *Server) handleReprice(w http.ResponseWriter, r *http.Request) {
	pair := pairFromPath(r)

	outcome, err := s.deps.Repricer.RepriceOne(r.Context(), pair)
	if err != nil {
		s.pricingError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, contract.RepriceResponse{
		Pair:          outcome.Pair,
		Result:        outcome.Result,
		PreviousPrice: outcome.PreviousPrice,
		Changed:       outcome.Changed,
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Repricer.Sweep(r.Context())
	if err != nil && summary == nil {
		s.pricingError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("Sweep ended early")
	}
	s.jsonResponse(w, http.StatusOK, summary)
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		s.jsonError(w, http.StatusNotFound, "decision history is not enabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			s.jsonError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	decisions, err := s.deps.History.ListDecisions(r.Context(), pairFromPath(r), limit)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list decisions: %v", err))
		return
	}
	if decisions == nil {
		decisions = []clickhouse.Decision{}
	}
	s.jsonResponse(w, http.StatusOK, decisions)
}

// =============================================================================
// HELPERS
// =============================================================================

func pairFromPath(r *http.Request) contract.Pair {
	return contract.Pair{
		ProductID:      chi.URLParam(r, "product"),
		ManufacturerID: chi.URLParam(r, "manufacturer"),
	}
}

// pricingError maps domain error codes to HTTP statuses.
func (s *Server) pricingError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pricingerrors.ErrNoConfiguration):
		status = http.StatusServiceUnavailable
	case errors.Is(err, pricingerrors.ErrInvalidQuote), errors.Is(err, pricingerrors.ErrInvalidConfig):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
	}

	s.jsonResponse(w, status, contract.ErrorResponse{
		Error:   http.StatusText(status),
		Code:    pricingerrors.CodeOf(err),
		Message: err.Error(),
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, contract.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
