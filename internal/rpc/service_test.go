package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/inference-gateway/llmrouter/internal/breaker"
	"github.com/inference-gateway/llmrouter/internal/config"
	"github.com/inference-gateway/llmrouter/internal/metrics"
	"github.com/inference-gateway/llmrouter/internal/provider"
	"github.com/inference-gateway/llmrouter/internal/router"
)

type fakeProvider struct {
	name string
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) ChatCompletion(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	return &provider.ChatResponse{ID: "1", Provider: f.name, Model: req.Model, Content: "hi", FinishReason: "stop"}, nil
}
func (f *fakeProvider) ChatCompletionStream(_ context.Context, req *provider.ChatRequest) (<-chan provider.StreamChunk, error) {
	ch := make(chan provider.StreamChunk, 1)
	ch <- provider.StreamChunk{ID: "1", Provider: f.name, Model: req.Model, Delta: "hi", Done: true, FinishReason: "stop"}
	close(ch)
	return ch, nil
}
func (f *fakeProvider) HealthCheck(_ context.Context) (provider.HealthStatus, error) {
	return provider.HealthHealthy, nil
}

func testSetup() *Service {
	cfg := &config.Config{
		Routing:   config.RoutingConfig{Strategy: "preferred"},
		Providers: map[string]config.ProviderConfig{"anthropic": {Enabled: true, Model: "claude-3-haiku-20240307"}},
	}
	providers := map[string]provider.Provider{"anthropic": &fakeProvider{name: "anthropic"}}
	rt := router.New(cfg, providers, nil, breaker.New(5, 2, time.Minute), metrics.New(), nil)
	return NewService(rt, providers, cfg, provider.NewHealthCache(30*time.Second))
}

func TestChatCompletionUnary(t *testing.T) {
	s := testSetup()
	resp, err := s.ChatCompletion(context.Background(), &ChatCompletionRequest{Model: "claude-3-haiku-20240307"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", resp.Provider)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestChatCompletionStreamRelaysChunks(t *testing.T) {
	s := testSetup()
	var got []*ChatCompletionResponse
	err := s.ChatCompletionStream(&ChatCompletionRequest{Model: "claude-3-haiku-20240307"}, func(msg *ChatCompletionResponse) error {
		got = append(got, msg)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Done)
}

func TestListModels(t *testing.T) {
	s := testSetup()
	resp, err := s.ListModels(context.Background(), &ListModelsRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Models, 1)
	assert.Equal(t, "claude-3-haiku-20240307", resp.Models[0].Model)
}

func TestChatCompletionUnknownProviderMapsToUnavailable(t *testing.T) {
	cfg := &config.Config{
		Routing:   config.RoutingConfig{Strategy: "fallback"},
		Providers: map[string]config.ProviderConfig{"anthropic": {Enabled: true, Model: "claude-3-haiku-20240307"}},
	}
	providers := map[string]provider.Provider{"anthropic": &fakeProvider{name: "anthropic"}}
	rt := router.New(cfg, providers, nil, breaker.New(5, 2, time.Minute), metrics.New(), nil)
	s := NewService(rt, providers, cfg, provider.NewHealthCache(30*time.Second))

	_, err := s.ChatCompletion(context.Background(), &ChatCompletionRequest{Model: "claude-3-haiku-20240307"})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestHealth(t *testing.T) {
	s := testSetup()
	resp, err := s.Health(context.Background(), &HealthRequest{})
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Providers["anthropic"])
}
