package rpc

import "github.com/inference-gateway/llmrouter/internal/provider"

// ChatCompletionRequest is the gRPC request message for both the unary and
// server-streaming ChatCompletion RPCs — same fields as the HTTP JSON body,
// reused directly instead of a parallel protobuf-generated type.
type ChatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []provider.Message `json:"messages"`
	Stream      bool              `json:"stream"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	System      string            `json:"system,omitempty"`
}

func (r *ChatCompletionRequest) toChatRequest() *provider.ChatRequest {
	return &provider.ChatRequest{
		Model:       r.Model,
		Messages:    r.Messages,
		Stream:      r.Stream,
		MaxTokens:   r.MaxTokens,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		System:      r.System,
	}
}

// ChatCompletionResponse is the gRPC response message for the unary RPC,
// and the per-chunk message sent on the server-streaming RPC.
type ChatCompletionResponse struct {
	ID           string         `json:"id"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	Content      string         `json:"content,omitempty"`
	Delta        string         `json:"delta,omitempty"`
	Done         bool           `json:"done"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        *provider.Usage `json:"usage,omitempty"`
}

// ListModelsRequest takes no fields — every configured model is returned.
type ListModelsRequest struct{}

// ListModelsResponse enumerates every model string backing an enabled
// provider, grouped the same way GET /v1/models does over HTTP.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelInfo names one routable model and the provider that serves it.
type ModelInfo struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// HealthRequest takes no fields — Health always reports every provider.
type HealthRequest struct{}

// HealthResponse mirrors the HTTP /health JSON shape.
type HealthResponse struct {
	Status    string                `json:"status"`
	Version   string                `json:"version"`
	Providers map[string]string     `json:"providers"`
}
