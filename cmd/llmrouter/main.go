// Package main is the entry point for the llmrouter gateway: it loads
// config, wires every component (credentials, cache, rate limiter,
// breaker, the six provider adapters, metrics, the Router), and serves
// the result over HTTP, gRPC, and (optionally) a Unix domain socket.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/inference-gateway/llmrouter/internal/breaker"
	"github.com/inference-gateway/llmrouter/internal/cache"
	"github.com/inference-gateway/llmrouter/internal/config"
	"github.com/inference-gateway/llmrouter/internal/credential"
	"github.com/inference-gateway/llmrouter/internal/logging"
	"github.com/inference-gateway/llmrouter/internal/metrics"
	"github.com/inference-gateway/llmrouter/internal/provider"
	"github.com/inference-gateway/llmrouter/internal/ratelimit"
	"github.com/inference-gateway/llmrouter/internal/router"
	"github.com/inference-gateway/llmrouter/internal/rpc"
	"github.com/inference-gateway/llmrouter/internal/server"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Server.LogLevel)
	defer log.Sync() //nolint:errcheck

	credStore := buildCredentialStore(cfg)
	credSource := credential.NewSource(credStore)

	providers := buildProviders(cfg, credSource, log)
	if len(providers) == 0 {
		log.Fatal("no providers configured")
	}

	m := metrics.New()

	var cacheInst *cache.Cache
	if cfg.Cache.Enabled {
		cacheInst = cache.New(cfg.Cache.MaxSize, cfg.Cache.TTL, cache.WithMetricsHooks(
			func() { m.CacheHitsTotal.Inc() },
			func() { m.CacheMissesTotal.Inc() },
			func(size int) { m.CacheSize.Set(float64(size)) },
		))
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimiting.Enabled {
		limiter = ratelimit.New(cfg.RateLimiting.RequestsPerMinute, cfg.RateLimiting.RequestsPerHour)
	}

	br := breaker.New(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.SuccessThreshold, cfg.CircuitBreaker.Cooldown, breaker.WithMetricsHooks(
		func(name string, state breaker.State) { m.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerStateValue(state.String())) },
		func(name string) { m.CircuitBreakerFailuresTotal.WithLabelValues(name).Inc() },
	))

	rt := router.New(cfg, providers, cacheInst, br, m, log)
	health := provider.NewHealthCache(30 * time.Second)

	httpSrv := server.New(cfg, rt, providers, m, limiter, health, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&rpc.ServiceDesc, rpc.NewService(rt, providers, cfg, health))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 3)

	go func() {
		log.Infof("llmrouter HTTP listening on :%d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatalf("failed to bind gRPC port: %v", err)
	}
	go func() {
		log.Infof("llmrouter gRPC listening on :%d", cfg.Server.GRPCPort)
		if err := grpcServer.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var udsLis net.Listener
	if cfg.Server.UDSEnabled {
		udsLis, err = server.ListenUnix(cfg.Server.UDSPath)
		if err != nil {
			log.Fatalf("failed to bind unix socket: %v", err)
		}
		go func() {
			log.Infof("llmrouter UDS listening on %s", cfg.Server.UDSPath)
			if err := http.Serve(udsLis, httpSrv); err != nil {
				errCh <- fmt.Errorf("uds server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, draining")
	case err := <-errCh:
		log.Errorf("server error, shutting down: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownWait)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http server shutdown: %v", err)
	}
	grpcServer.GracefulStop()
	if udsLis != nil {
		udsLis.Close()
	}

	log.Info("llmrouter stopped")
}

// buildCredentialStore picks a Redis-backed store when configured, falling
// back to an in-process store for single-instance/dev deployments where
// tokens don't need to survive a restart.
func buildCredentialStore(cfg *config.Config) credential.Store {
	if cfg.Credentials.RedisAddr == "" {
		return credential.NewMemoryStore()
	}
	return credential.NewRedisStore(cfg.Credentials.RedisAddr, cfg.Credentials.RedisDB, "")
}

// buildProviders constructs one adapter per enabled provider entry, keyed
// by the same name used throughout config (routing.fallback_chain,
// provider.X fields). Unknown provider names are skipped with a warning
// rather than aborting startup — a typo in one provider's config shouldn't
// take down the others.
func buildProviders(cfg *config.Config, credSource *credential.Source, log *zap.SugaredLogger) map[string]provider.Provider {
	providers := make(map[string]provider.Provider)
	client := &http.Client{Timeout: 2 * time.Minute}

	for _, name := range cfg.EnabledProviders() {
		pc := cfg.Providers[name]

		switch name {
		case "anthropic":
			providers[name] = provider.NewAnthropicProvider(pc.APIKey, pc.BaseURL, client)
		case "google":
			providers[name] = provider.NewGoogleProvider(pc.APIKey, pc.BaseURL, client)
		case "openai":
			providers[name] = provider.NewOpenAIProvider(pc.APIKey, pc.BaseURL, client)
		case "xai":
			providers[name] = provider.NewXAIProvider(pc.APIKey, pc.BaseURL, client)
		case "github_copilot":
			credSource.Register(name, copilotRefresher(pc))
			tokenFunc := func(ctx context.Context) (string, error) {
				return credSource.GetAccessToken(ctx, name)
			}
			providers[name] = provider.NewGitHubCopilotProvider(tokenFunc, pc.Model, client)
		case "ollama":
			providers[name] = provider.NewOllamaProvider(pc.Endpoint, pc.Model, client)
		default:
			log.Warnf("skipping unknown provider %q", name)
			continue
		}
	}

	return providers
}

// copilotRefresher wraps a static config API key as a RefreshFunc so
// auth_method: api_key still flows through the same credential.Source
// path as auth_method: oauth — the key is handed out as a token expiring
// 24 hours later, so the Source re-runs this refresher (which returns the
// same key) about once a day.
func copilotRefresher(pc config.ProviderConfig) credential.RefreshFunc {
	return func(ctx context.Context) (credential.Token, error) {
		if pc.APIKey == "" {
			return credential.Token{}, credential.ErrNotAuthenticated
		}
		return credential.Token{AccessToken: pc.APIKey, ExpiresAt: time.Now().Add(24 * time.Hour)}, nil
	}
}
