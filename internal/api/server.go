// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MrRuperto3/TAO-App/internal/analytics"
	"github.com/MrRuperto3/TAO-App/internal/logging"
	"github.com/MrRuperto3/TAO-App/internal/models"
	"github.com/MrRuperto3/TAO-App/internal/observability"
)

// AnalyticsServiceInterface defines the read models served over HTTP
type AnalyticsServiceInterface interface {
	Address() string
	DefaultWindowDays() int
	Performance(ctx context.Context, days int) (*analytics.PerformanceSummary, error)
	Signals(ctx context.Context, day string) (*analytics.SignalsResult, error)
	APY(ctx context.Context) ([]analytics.PositionAPY, error)
	LatestSnapshot(ctx context.Context) (*models.SnapshotWithPositions, error)
	CronRuns(ctx context.Context, limit int) ([]models.CronRun, error)
}

// Pinger is a dependency checked by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	analytics  AnalyticsServiceInterface
	metrics    *observability.Metrics
	checks     map[string]Pinger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond float64 // per client
	Burst             int
}

// NewServer creates a new API server instance. checks maps a dependency name
// to its health probe; metrics may be nil.
func NewServer(config *ServerConfig, analytics AnalyticsServiceInterface, metrics *observability.Metrics, checks map[string]Pinger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		analytics: analytics,
		metrics:   metrics,
		checks:    checks,
		config:    config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// order matters: recovery must see panics from everything below logging
	s.router.Use(RequestLoggingMiddleware(s.metrics))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/performance", s.handlePerformance).Methods("GET", "OPTIONS")
	api.HandleFunc("/signals", s.handleSignals).Methods("GET", "OPTIONS")
	api.HandleFunc("/positions/apy", s.handleAPY).Methods("GET", "OPTIONS")
	api.HandleFunc("/snapshots/latest", s.handleLatestSnapshot).Methods("GET", "OPTIONS")
	api.HandleFunc("/cron/runs", s.handleCronRuns).Methods("GET", "OPTIONS")
}

// Handler exposes the routed handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth reports every configured dependency; any failure turns the status to 503
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("dependency", name).Warn("health check failed")
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}

	body := map[string]interface{}{
		"status":       "healthy",
		"service":      "tao-dashboard",
		"dependencies": deps,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	respondJSON(w, status, body)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
