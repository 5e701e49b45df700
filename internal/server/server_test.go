package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-gateway/llmrouter/internal/breaker"
	"github.com/inference-gateway/llmrouter/internal/config"
	"github.com/inference-gateway/llmrouter/internal/metrics"
	"github.com/inference-gateway/llmrouter/internal/provider"
	"github.com/inference-gateway/llmrouter/internal/ratelimit"
	"github.com/inference-gateway/llmrouter/internal/router"
)

type stubProvider struct {
	name string
	fail bool
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) ChatCompletion(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	if p.fail {
		return nil, assert.AnError
	}
	return &provider.ChatResponse{ID: "1", Provider: p.name, Model: req.Model, Content: "hi", FinishReason: "stop"}, nil
}
func (p *stubProvider) ChatCompletionStream(_ context.Context, req *provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	ch := make(chan provider.StreamChunk, 1)
	ch <- provider.StreamChunk{ID: "1", Provider: p.name, Model: req.Model, Delta: "hi", Done: true, FinishReason: "stop"}
	close(ch)
	return ch, nil
}
func (p *stubProvider) HealthCheck(_ context.Context) (provider.HealthStatus, error) {
	return provider.HealthHealthy, nil
}

func testServer(t *testing.T, withLimiter bool) *Server {
	t.Helper()
	cfg := &config.Config{
		Routing:   config.RoutingConfig{Strategy: "preferred"},
		Providers: map[string]config.ProviderConfig{"anthropic": {Enabled: true, AuthMethod: "api_key", Model: "claude-3-haiku-20240307"}},
		Metrics:   config.MetricsConfig{Enabled: true},
	}
	providers := map[string]provider.Provider{"anthropic": &stubProvider{name: "anthropic"}}
	m := metrics.New()
	rt := router.New(cfg, providers, nil, breaker.New(5, 2, time.Minute), m, nil)

	var limiter *ratelimit.Limiter
	if withLimiter {
		cfg.RateLimiting.Enabled = true
		limiter = ratelimit.New(1, 100)
	}

	return New(cfg, rt, providers, m, limiter, provider.NewHealthCache(30*time.Second), nil)
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, false)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleListModels(t *testing.T) {
	s := testServer(t, false)
	req := httptest.NewRequest("GET", "/v1/models", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "claude-3-haiku-20240307")
}

func TestHandleChatCompletionsNonStreaming(t *testing.T) {
	s := testServer(t, false)
	body, _ := json.Marshal(provider.ChatRequest{Model: "claude-3-haiku-20240307", Messages: []provider.Message{{Role: "user", Content: "hi"}}})
	req := httptest.NewRequest("POST", "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "anthropic", rec.Header().Get("X-LLMRouter-Provider"))
}

func TestMetricsEndpointExposed(t *testing.T) {
	s := testServer(t, false)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "llmrouter_")
}

func TestRateLimitMiddlewareRejectsOverLimit(t *testing.T) {
	s := testServer(t, true)
	body, _ := json.Marshal(provider.ChatRequest{Model: "claude-3-haiku-20240307"})

	req1 := httptest.NewRequest("POST", "/v1/chat/completions", bytes.NewReader(body))
	req1.RemoteAddr = "10.0.0.1:1234"
	rec1 := httptest.NewRecorder()
	s.ServeHTTP(rec1, req1)
	require.Equal(t, 200, rec1.Code)

	req2 := httptest.NewRequest("POST", "/v1/chat/completions", bytes.NewReader(body))
	req2.RemoteAddr = "10.0.0.1:1234"
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	assert.Equal(t, 429, rec2.Code)
}
