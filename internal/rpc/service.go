package rpc

import (
	"context"
	"fmt"

	"github.com/inference-gateway/llmrouter/internal/config"
	"github.com/inference-gateway/llmrouter/internal/provider"
	"github.com/inference-gateway/llmrouter/internal/router"
)

// version is reported on Health and the HTTP /health endpoint. The teacher
// repo never versioned itself; we pin a literal here rather than wire in
// build-time ldflags, since no release process exists to set them.
const version = "0.1.0"

// Service implements the four hand-registered RPCs against the same
// Router and provider registry the HTTP server uses — this is the gRPC
// transport's entire surface, deliberately a thin peer of internal/server's
// handlers rather than a separate code path.
type Service struct {
	router    *router.Router
	providers map[string]provider.Provider
	cfg       *config.Config
	health    *provider.HealthCache
}

// NewService builds the gRPC-facing Service. healthCache may be shared
// with the HTTP front-end so both transports see the same probe cadence.
func NewService(r *router.Router, providers map[string]provider.Provider, cfg *config.Config, health *provider.HealthCache) *Service {
	return &Service{router: r, providers: providers, cfg: cfg, health: health}
}

// ChatCompletion is the unary RPC — a single request, a single response.
func (s *Service) ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	resp, err := s.router.RouteChatCompletion(ctx, req.toChatRequest())
	if err != nil {
		return nil, statusForError(err)
	}
	return &ChatCompletionResponse{
		ID:           resp.ID,
		Provider:     resp.Provider,
		Model:        resp.Model,
		Content:      resp.Content,
		Done:         true,
		FinishReason: resp.FinishReason,
		Usage:        &resp.Usage,
	}, nil
}

// ChatCompletionStream is the server-streaming RPC's handler body, invoked
// by the ServiceDesc's StreamHandler once per call. It relays the Router's
// channel of StreamChunks onto the wire one ChatCompletionResponse per
// chunk, same shape the unary RPC returns for its single message.
func (s *Service) ChatCompletionStream(req *ChatCompletionRequest, send func(*ChatCompletionResponse) error) error {
	chatReq := req.toChatRequest()
	chatReq.Stream = true

	chunks, err := s.router.RouteChatCompletionStream(context.Background(), chatReq)
	if err != nil {
		return statusForError(err)
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			return statusForError(chunk.Err)
		}
		msg := &ChatCompletionResponse{
			ID:           chunk.ID,
			Provider:     chunk.Provider,
			Model:        chunk.Model,
			Delta:        chunk.Delta,
			Done:         chunk.Done,
			FinishReason: chunk.FinishReason,
		}
		if chunk.Usage != nil {
			msg.Usage = chunk.Usage
		}
		if err := send(msg); err != nil {
			return err
		}
	}
	return nil
}

// ListModels enumerates every model name configured against an enabled
// provider, mirroring GET /v1/models.
func (s *Service) ListModels(ctx context.Context, _ *ListModelsRequest) (*ListModelsResponse, error) {
	resp := &ListModelsResponse{}
	for _, name := range s.cfg.EnabledProviders() {
		pc := s.cfg.Providers[name]
		if pc.Model != "" {
			resp.Models = append(resp.Models, ModelInfo{Model: pc.Model, Provider: name})
		}
		for _, m := range pc.Models {
			resp.Models = append(resp.Models, ModelInfo{Model: m, Provider: name})
		}
	}
	return resp, nil
}

// Health probes every registered provider (via the shared HealthCache, so
// this is cheap even under frequent polling) and reports an aggregate
// status alongside the per-provider breakdown.
func (s *Service) Health(ctx context.Context, _ *HealthRequest) (*HealthResponse, error) {
	resp := &HealthResponse{Status: "ok", Version: version, Providers: make(map[string]string)}
	for name, p := range s.providers {
		status, err := s.health.Check(ctx, name, p)
		if err != nil || status == provider.HealthUnhealthy {
			resp.Status = "degraded"
		}
		if err != nil {
			resp.Providers[name] = fmt.Sprintf("%s: %v", status, err)
			continue
		}
		resp.Providers[name] = status.String()
	}
	return resp, nil
}
