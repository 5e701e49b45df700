// Package router implements the gateway's core request pipeline: cache
// lookup, provider selection strategy, circuit-breaker-gated dispatch,
// and metrics/cost accounting.
package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/inference-gateway/llmrouter/internal/breaker"
	"github.com/inference-gateway/llmrouter/internal/cache"
	"github.com/inference-gateway/llmrouter/internal/config"
	"github.com/inference-gateway/llmrouter/internal/gatewayerr"
	"github.com/inference-gateway/llmrouter/internal/metrics"
	"github.com/inference-gateway/llmrouter/internal/provider"
)

// Router ties together the cache, circuit breaker, provider adapters, and
// metrics sink behind the four candidate-selection strategies.
type Router struct {
	cfg       *config.Config
	providers map[string]provider.Provider
	cache     *cache.Cache
	breaker   *breaker.Breaker
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger

	roundRobinCounter atomic.Uint64
}

// New builds a Router. cacheInst and breakerInst may be nil to disable
// those components entirely (matching cfg.Cache.Enabled / always-on
// breaker semantics respectively — the breaker has no "disabled" config
// knob upstream, so passing nil is reserved for tests).
func New(cfg *config.Config, providers map[string]provider.Provider, cacheInst *cache.Cache, breakerInst *breaker.Breaker, m *metrics.Metrics, log *zap.SugaredLogger) *Router {
	if log == nil {
		log = zapNop()
	}
	return &Router{
		cfg:       cfg,
		providers: providers,
		cache:     cacheInst,
		breaker:   breakerInst,
		metrics:   m,
		log:       log,
	}
}

func zapNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// RouteChatCompletion executes the full pipeline for a non-streaming
// request: cache → strategy → breaker → adapter → metrics/cost.
func (r *Router) RouteChatCompletion(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	strategy := r.strategyName()
	r.metrics.RequestsInFlight.WithLabelValues(strategy).Inc()
	defer r.metrics.RequestsInFlight.WithLabelValues(strategy).Dec()

	start := time.Now()
	defer func() {
		r.metrics.RequestDurationSeconds.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	}()

	var key string
	if r.cache != nil && r.cfg.Cache.Enabled && !req.Stream {
		key = cache.Key(req)
		if cached, ok := r.cache.Get(key); ok {
			r.metrics.RequestsTotal.WithLabelValues("200").Inc()
			return cached, nil
		}
	}

	resp, err := r.dispatch(ctx, strategy, req)
	if err != nil {
		r.metrics.RequestsTotal.WithLabelValues("500").Inc()
		return nil, err
	}

	r.metrics.RequestsTotal.WithLabelValues("200").Inc()
	r.recordUsage(resp)

	if key != "" {
		r.cache.Set(key, resp)
	}

	return resp, nil
}

// RouteChatCompletionStream mirrors RouteChatCompletion without caching —
// streamed responses are never cached (see spec's Non-goals on retrying
// partially streamed responses, which caching a partial stream would
// interact badly with).
func (r *Router) RouteChatCompletionStream(ctx context.Context, req *provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	strategy := r.strategyName()
	r.metrics.RequestsInFlight.WithLabelValues(strategy).Inc()

	start := time.Now()

	if strategy == "omen" {
		r.metrics.RequestsInFlight.WithLabelValues(strategy).Dec()
		return nil, gatewayerr.New(gatewayerr.KindUnsupportedCapability, "router.omen", fmt.Errorf("omen strategy is not implemented"))
	}

	candidates := r.candidates(strategy, req)
	if len(candidates) == 0 {
		r.metrics.RequestsInFlight.WithLabelValues(strategy).Dec()
		return nil, gatewayerr.New(gatewayerr.KindNoProviderAvailable, "router.stream", fmt.Errorf("no enabled provider for strategy %q", strategy))
	}

	// Streaming fallback only happens before a stream is opened — once a
	// provider starts producing output, switching adapters mid-stream
	// would require the client to have buffered nothing, which we can't
	// guarantee. So we try candidates in order and return the first stream
	// an adapter opens. An error that arrives on that stream, even as its
	// first chunk, is passed to the caller; it neither moves on to the next
	// candidate nor counts as a breaker failure.
	var lastErr error
	for _, name := range candidates {
		p, ok := r.providers[name]
		if !ok {
			continue
		}
		if r.breaker != nil && !r.breaker.CanAttempt(name) {
			continue
		}

		req.Provider = name
		upstream, err := p.ChatCompletionStream(ctx, req)
		if err != nil {
			lastErr = err
			r.recordProviderFailure(name, err)
			continue
		}

		out := make(chan provider.StreamChunk)
		go func(providerName string) {
			defer close(out)
			defer r.metrics.RequestsInFlight.WithLabelValues(strategy).Dec()

			first := true
			for chunk := range upstream {
				if first {
					first = false
					if chunk.Err == nil {
						r.breakerSuccess(providerName)
						r.metrics.ProviderRequestsTotal.WithLabelValues(providerName, "success").Inc()
					}
				}
				if chunk.Done && chunk.Usage != nil {
					r.recordUsage(&provider.ChatResponse{
						Provider: providerName,
						Model:    chunk.Model,
						Usage:    *chunk.Usage,
					})
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			r.metrics.RequestsTotal.WithLabelValues("200").Inc()
		}(name)

		return out, nil
	}

	r.metrics.RequestsInFlight.WithLabelValues(strategy).Dec()
	r.metrics.RequestsTotal.WithLabelValues("500").Inc()
	_ = time.Since(start)
	if lastErr != nil {
		return nil, gatewayerr.New(gatewayerr.KindProviderError, "router.stream", lastErr)
	}
	return nil, gatewayerr.New(gatewayerr.KindNoProviderAvailable, "router.stream", fmt.Errorf("no provider could start a stream"))
}

func (r *Router) strategyName() string {
	s := r.cfg.Routing.Strategy
	switch s {
	case "preferred", "fallback", "round-robin", "omen":
		return s
	default:
		if s != "" {
			r.log.Warnf("unknown routing strategy %q, falling back to preferred", s)
		}
		return "preferred"
	}
}

// candidates returns the ordered list of provider names to attempt for
// strategy, given the incoming request.
func (r *Router) candidates(strategy string, req *provider.ChatRequest) []string {
	enabled := r.cfg.EnabledProviders()
	if len(enabled) == 0 {
		return nil
	}

	switch strategy {
	case "omen":
		// Omen is an optional, stubbed strategy — it never selects a real
		// provider.
		return nil

	case "fallback":
		chain := r.cfg.Routing.FallbackChain
		var ordered []string
		for _, name := range chain {
			if _, ok := r.providers[name]; ok {
				ordered = append(ordered, name)
			}
		}
		return r.filterForRequest(ordered, req)

	case "round-robin":
		// Filter out providers that can't serve this request's streaming
		// requirement before picking an index — a provider whose adapter
		// rejects streaming (GitHub Copilot) should never be chosen for a
		// streaming request, but remains eligible for non-streaming ones.
		// The pick comes first; the other eligible providers follow in
		// order, wrapping around once, as fallbacks.
		eligible := r.filterForRequest(enabled, req)
		if len(eligible) == 0 {
			return nil
		}
		idx := int(r.roundRobinCounter.Inc() % uint64(len(eligible)))
		ordered := make([]string, 0, len(eligible))
		for i := range eligible {
			ordered = append(ordered, eligible[(idx+i)%len(eligible)])
		}
		return ordered

	default: // preferred
		if req.Provider != "" {
			return []string{req.Provider}
		}
		return []string{enabled[0]}
	}
}

// filterForRequest drops providers known not to support this request's
// requirements — currently just "streaming requested, adapter doesn't do
// streaming" (GitHub Copilot).
func (r *Router) filterForRequest(names []string, req *provider.ChatRequest) []string {
	if !req.Stream {
		return names
	}
	var out []string
	for _, name := range names {
		if name == "github_copilot" {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (r *Router) dispatch(ctx context.Context, strategy string, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	if strategy == "omen" {
		return nil, gatewayerr.New(gatewayerr.KindUnsupportedCapability, "router.omen", fmt.Errorf("omen strategy is not yet implemented"))
	}

	candidates := r.candidates(strategy, req)
	if len(candidates) == 0 {
		return nil, gatewayerr.New(gatewayerr.KindNoProviderAvailable, "router.dispatch", fmt.Errorf("no enabled provider for strategy %q", strategy))
	}

	var lastErr error
	for _, name := range candidates {
		p, ok := r.providers[name]
		if !ok {
			continue
		}
		if r.breaker != nil && !r.breaker.CanAttempt(name) {
			lastErr = gatewayerr.New(gatewayerr.KindBreakerOpen, "router.dispatch", fmt.Errorf("circuit open for %s", name))
			continue
		}

		req.Provider = name
		resp, err := r.callProvider(ctx, p, req)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, gatewayerr.New(gatewayerr.KindNoProviderAvailable, "router.dispatch", fmt.Errorf("no provider available"))
}

func (r *Router) callProvider(ctx context.Context, p provider.Provider, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	start := time.Now()
	resp, err := p.ChatCompletion(ctx, req)
	r.metrics.ProviderDurationSeconds.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		r.recordProviderFailure(p.Name(), err)
		return nil, gatewayerr.New(gatewayerr.KindProviderError, "router.callProvider", err)
	}

	r.breakerSuccess(p.Name())
	r.metrics.ProviderRequestsTotal.WithLabelValues(p.Name(), "success").Inc()
	return resp, nil
}

func (r *Router) breakerSuccess(providerName string) {
	if r.breaker != nil {
		r.breaker.RecordSuccess(providerName)
	}
	if r.metrics != nil {
		state := metrics.BreakerStateValue("closed")
		if r.breaker != nil {
			state = metrics.BreakerStateValue(r.breaker.State(providerName).String())
		}
		r.metrics.CircuitBreakerState.WithLabelValues(providerName).Set(state)
	}
}

func (r *Router) recordProviderFailure(providerName string, err error) {
	if r.breaker != nil {
		r.breaker.RecordFailure(providerName)
		r.metrics.CircuitBreakerState.WithLabelValues(providerName).Set(metrics.BreakerStateValue(r.breaker.State(providerName).String()))
	}
	r.metrics.ProviderRequestsTotal.WithLabelValues(providerName, "error").Inc()
	r.metrics.ProviderErrorsTotal.WithLabelValues(providerName, "api_error").Inc()
	r.log.Warnw("provider call failed", "provider", providerName, "error", err)
}

// recordUsage records token and cost metrics for a successfully completed
// request. Called once per request on the non-cached path — a cache hit
// must NOT re-record these, or token/cost totals would double-count work
// that was never actually redone against the upstream.
func (r *Router) recordUsage(resp *provider.ChatResponse) {
	if r.metrics == nil {
		return
	}
	r.metrics.TokensUsedTotal.WithLabelValues(resp.Provider, "input").Add(float64(resp.Usage.PromptTokens))
	r.metrics.TokensUsedTotal.WithLabelValues(resp.Provider, "output").Add(float64(resp.Usage.CompletionTokens))
	cost := estimateCostUSD(resp.Provider, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	r.metrics.EstimatedCostUSD.WithLabelValues(resp.Provider, resp.Model).Add(cost)
}
