package router

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-gateway/llmrouter/internal/breaker"
	"github.com/inference-gateway/llmrouter/internal/cache"
	"github.com/inference-gateway/llmrouter/internal/config"
	"github.com/inference-gateway/llmrouter/internal/gatewayerr"
	"github.com/inference-gateway/llmrouter/internal/metrics"
	"github.com/inference-gateway/llmrouter/internal/provider"
)

// fakeProvider is a scriptable Provider used to exercise router behavior
// without any real HTTP calls.
type fakeProvider struct {
	name     string
	fail     bool
	response *provider.ChatResponse
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) ChatCompletion(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	if f.fail {
		return nil, fmt.Errorf("%s: upstream failure", f.name)
	}
	resp := *f.response
	resp.Provider = f.name
	return &resp, nil
}

func (f *fakeProvider) ChatCompletionStream(_ context.Context, req *provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	if f.fail {
		return nil, fmt.Errorf("%s: upstream failure", f.name)
	}
	ch := make(chan provider.StreamChunk, 1)
	ch <- provider.StreamChunk{ID: "1", Provider: f.name, Delta: "hi", Done: true, Usage: &provider.Usage{}}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) HealthCheck(_ context.Context) (provider.HealthStatus, error) {
	return provider.HealthHealthy, nil
}

func testConfig(strategy string, providers ...string) *config.Config {
	cfg := &config.Config{
		Routing:   config.RoutingConfig{Strategy: strategy, FallbackChain: providers},
		Providers: map[string]config.ProviderConfig{},
	}
	for _, name := range providers {
		cfg.Providers[name] = config.ProviderConfig{Enabled: true}
	}
	return cfg
}

func TestFallbackSkipsFailingProvider(t *testing.T) {
	cfg := testConfig("fallback", "anthropic", "google")
	providers := map[string]provider.Provider{
		"anthropic": &fakeProvider{name: "anthropic", fail: true},
		"google":    &fakeProvider{name: "google", response: &provider.ChatResponse{ID: "1", Model: "gemini"}},
	}

	rt := New(cfg, providers, nil, breaker.New(5, 2, time.Minute), metrics.New(), nil)

	resp, err := rt.RouteChatCompletion(context.Background(), &provider.ChatRequest{Model: "gemini"})
	require.NoError(t, err)
	assert.Equal(t, "google", resp.Provider)
}

func TestFallbackWithEmptyChainIsNoProviderAvailable(t *testing.T) {
	cfg := testConfig("fallback")
	cfg.Providers["anthropic"] = config.ProviderConfig{Enabled: true}
	providers := map[string]provider.Provider{
		"anthropic": &fakeProvider{name: "anthropic", response: &provider.ChatResponse{ID: "1", Model: "gemini"}},
	}

	rt := New(cfg, providers, nil, breaker.New(5, 2, time.Minute), metrics.New(), nil)

	_, err := rt.RouteChatCompletion(context.Background(), &provider.ChatRequest{Model: "gemini"})
	require.Error(t, err)
	kind, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindNoProviderAvailable, kind)
}

func TestBreakerOpensAfterThresholdAndSkipsProvider(t *testing.T) {
	cfg := testConfig("fallback", "anthropic", "google")
	providers := map[string]provider.Provider{
		"anthropic": &fakeProvider{name: "anthropic", fail: true},
		"google":    &fakeProvider{name: "google", response: &provider.ChatResponse{ID: "1", Model: "gemini"}},
	}
	br := breaker.New(1, 2, time.Hour)
	rt := New(cfg, providers, nil, br, metrics.New(), nil)

	_, err := rt.RouteChatCompletion(context.Background(), &provider.ChatRequest{Model: "gemini"})
	require.NoError(t, err)
	assert.Equal(t, breaker.Open, br.State("anthropic"))

	// Second request: anthropic's breaker is open, so it's skipped
	// immediately rather than attempted and failed again.
	resp, err := rt.RouteChatCompletion(context.Background(), &provider.ChatRequest{Model: "gemini"})
	require.NoError(t, err)
	assert.Equal(t, "google", resp.Provider)
}

func TestRoundRobinDistribution(t *testing.T) {
	cfg := testConfig("round-robin", "a", "b")
	providers := map[string]provider.Provider{
		"a": &fakeProvider{name: "a", response: &provider.ChatResponse{ID: "1", Model: "m"}},
		"b": &fakeProvider{name: "b", response: &provider.ChatResponse{ID: "1", Model: "m"}},
	}
	rt := New(cfg, providers, nil, breaker.New(100, 2, time.Minute), metrics.New(), nil)

	counts := map[string]int{}
	for i := 0; i < 100; i++ {
		resp, err := rt.RouteChatCompletion(context.Background(), &provider.ChatRequest{Model: "m"})
		require.NoError(t, err)
		counts[resp.Provider]++
	}

	assert.InDelta(t, 50, counts["a"], 10)
	assert.InDelta(t, 50, counts["b"], 10)
}

func TestOmenIsUnimplemented(t *testing.T) {
	cfg := testConfig("omen", "anthropic")
	providers := map[string]provider.Provider{
		"anthropic": &fakeProvider{name: "anthropic", response: &provider.ChatResponse{ID: "1"}},
	}
	rt := New(cfg, providers, nil, breaker.New(5, 2, time.Minute), metrics.New(), nil)

	_, err := rt.RouteChatCompletion(context.Background(), &provider.ChatRequest{Model: "m"})
	assert.Error(t, err)
}

func TestCacheHitSkipsProviderAndDoesNotDoubleCount(t *testing.T) {
	cfg := testConfig("preferred", "anthropic")
	cfg.Cache.Enabled = true
	calls := 0
	providers := map[string]provider.Provider{
		"anthropic": &countingProvider{name: "anthropic", calls: &calls, response: &provider.ChatResponse{ID: "1", Model: "m", Usage: provider.Usage{PromptTokens: 10, CompletionTokens: 5}}},
	}
	c := cache.New(10, time.Hour)
	m := metrics.New()
	rt := New(cfg, providers, c, breaker.New(5, 2, time.Minute), m, nil)

	req := &provider.ChatRequest{Model: "m", Messages: []provider.Message{{Role: "user", Content: "hi"}}}

	_, err := rt.RouteChatCompletion(context.Background(), req)
	require.NoError(t, err)
	_, err = rt.RouteChatCompletion(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second request should be served from cache, not the provider")
	assert.Equal(t, float64(10), testutil.ToFloat64(m.TokensUsedTotal.WithLabelValues("anthropic", "input")), "cache hit must not re-record input tokens")
	assert.Equal(t, float64(5), testutil.ToFloat64(m.TokensUsedTotal.WithLabelValues("anthropic", "output")), "cache hit must not re-record output tokens")
}

type countingProvider struct {
	name     string
	calls    *int
	response *provider.ChatResponse
}

func (c *countingProvider) Name() string { return c.name }
func (c *countingProvider) ChatCompletion(_ context.Context, _ *provider.ChatRequest) (*provider.ChatResponse, error) {
	*c.calls++
	resp := *c.response
	resp.Provider = c.name
	return &resp, nil
}
func (c *countingProvider) ChatCompletionStream(_ context.Context, _ *provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	return nil, fmt.Errorf("not used in this test")
}
func (c *countingProvider) HealthCheck(_ context.Context) (provider.HealthStatus, error) {
	return provider.HealthHealthy, nil
}
