// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/inference-gateway/llmrouter/internal/config"
	"github.com/inference-gateway/llmrouter/internal/metrics"
	"github.com/inference-gateway/llmrouter/internal/provider"
	"github.com/inference-gateway/llmrouter/internal/ratelimit"
	"github.com/inference-gateway/llmrouter/internal/router"
)

// version is reported on GET /health, matching internal/rpc's Health RPC.
const version = "0.1.0"

// Server holds the HTTP router and every dependency the handlers need:
// the Router pipeline (cache/strategy/breaker/adapters), the provider
// registry (for /v1/models, /v1/providers, and health probes), metrics,
// and the optional rate limiter.
type Server struct {
	router chi.Router
	cfg    *config.Config

	svc       *router.Router
	providers map[string]provider.Provider
	metrics   *metrics.Metrics
	limiter   *ratelimit.Limiter
	health    *provider.HealthCache
	log       *zap.SugaredLogger
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler. limiter may be nil (rate limiting
// disabled); health is shared with the gRPC front-end so both transports
// see the same probe cadence.
func New(cfg *config.Config, svc *router.Router, providers map[string]provider.Provider, m *metrics.Metrics, limiter *ratelimit.Limiter, health *provider.HealthCache, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		cfg:       cfg,
		svc:       svc,
		providers: providers,
		metrics:   m,
		limiter:   limiter,
		health:    health,
		log:       log,
	}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions.
// This is conceptually like your Express app.use() / app.get() / app.post()
// setup, but gathered in one method so the routing table is easy to scan.
func (s *Server) routes() {
	r := chi.NewRouter()

	// --- Global middleware ---
	// middleware.Logger prints a log line for every request, similar to
	// morgan('dev') in Express. It logs method, path, status, and duration.
	r.Use(middleware.Logger)

	// middleware.Recoverer catches panics in handlers and returns a 500
	// instead of crashing the whole process. In Express, you'd use an
	// error-handling middleware like app.use((err, req, res, next) => ...).
	r.Use(middleware.Recoverer)

	if s.cfg.RateLimiting.Enabled && s.limiter != nil {
		r.Use(s.rateLimitMiddleware)
	}

	// --- Routes ---
	r.Get("/health", s.handleHealth)
	r.Get("/v1/models", s.handleListModels)
	r.Get("/v1/providers", s.handleListProviders)
	r.Post("/v1/chat/completions", s.handleChatCompletions)

	if s.cfg.Metrics.Enabled && s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface. Every incoming
// request flows through this method, and we just delegate to chi's router.
//
// This is what allows main.go to pass our Server directly to
// http.Server{Handler: srv} — the stdlib needs anything that has a
// ServeHTTP(ResponseWriter, *Request) method.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenUnix opens a Unix domain socket listener at path, removing a
// stale socket file left behind by an unclean shutdown first (a fresh
// net.Listen("unix", path) fails with "address already in use" otherwise)
// and tightening permissions to owner-only once bound.
func ListenUnix(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on unix socket %s: %w", path, err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("restricting permissions on %s: %w", path, err)
	}

	return ln, nil
}
