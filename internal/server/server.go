// Package server provides the HTTP server setup and wiring.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	analysisDomain "github.com/iardlabs/slitherd/internal/analysis/domain"
	analysisTransport "github.com/iardlabs/slitherd/internal/analysis/transport"
	"github.com/iardlabs/slitherd/internal/chains"
	"github.com/iardlabs/slitherd/internal/config"
	"github.com/iardlabs/slitherd/internal/explorer"
	"github.com/iardlabs/slitherd/internal/middleware/logging"
	"github.com/iardlabs/slitherd/internal/middleware/realip"
	"github.com/iardlabs/slitherd/internal/middleware/security"
	"github.com/iardlabs/slitherd/internal/observability/metrics"
	"github.com/iardlabs/slitherd/internal/slither"
	"github.com/iardlabs/slitherd/internal/solc"
	"github.com/iardlabs/slitherd/internal/storage"
	"github.com/iardlabs/slitherd/internal/workspace"
)

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *chi.Mux

	analysisSvc analysisTransport.Service
}

// New creates a new server
func New(cfg *config.Config, store storage.Store, registry *chains.Registry, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: chi.NewRouter(),
	}

	// Wire the analysis pipeline
	fetcher := explorer.New(registry, cfg.Explorer, logger)
	stager := workspace.NewManager(cfg.Analyzer.WorkspaceDir, logger)
	compilers := solc.NewResolver(cfg.Analyzer.SolcSelectBin, cfg.Analyzer.SolcArtifactDir, logger)
	runner := slither.NewRunner(cfg.Analyzer.SlitherBin, time.Duration(cfg.Analyzer.TimeoutSeconds)*time.Second, logger)

	var cache analysisDomain.SourceCache
	cacheTTL := time.Duration(0)
	if cfg.Cache.Enabled && store != nil {
		cache = store
		cacheTTL = time.Duration(cfg.Cache.TTLSeconds) * time.Second
	}

	svcImpl := analysisDomain.NewService(fetcher, stager, compilers, runner, solc.FromPragma, cache, analysisDomain.Options{
		MaxConcurrent: cfg.Analyzer.MaxConcurrent,
		CacheTTL:      cacheTTL,
	}, logger)

	s.analysisSvc = analysisDomain.LoggingMiddleware(logger)(svcImpl)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for a separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

func (s *Server) setupMiddleware() {
	// Order matters! Security middleware runs first to block malicious requests early.

	// 1. Real IP extraction (must be first to set client IP for other middleware)
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))

	// 2. Security filter (blocks malicious patterns, bypasses health checks)
	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))

	// 3. Body size limit
	s.router.Use(security.MaxBodySizeMiddleware(s.cfg.Security.MaxBodySizeMB))

	// 4. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// 5. CORS: the analyze endpoint is consumed from browser frontends on
	// arbitrary origins.
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleHome)

	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleHealth)

	analysisHandler := analysisTransport.NewHandler(s.analysisSvc)

	// Legacy query-parameter endpoint, kept wire-compatible
	analysisHandler.RegisterLegacyRoutes(s.router)

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		analysisHandler.RegisterRoutes(r)
	})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Welcome to the slitherd API"))
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
