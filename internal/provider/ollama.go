package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// OllamaProvider implements the Provider interface for a local Ollama
// daemon. Unlike the cloud providers, there's no auth and no usage
// accounting — Ollama's /api/chat response carries only a message and a
// done flag.
type OllamaProvider struct {
	endpoint string // e.g. "http://localhost:11434"
	model    string
	client   *http.Client
}

// NewOllamaProvider creates an OllamaProvider. An empty endpoint defaults
// to Ollama's standard local port; an empty model defaults to codellama.
func NewOllamaProvider(endpoint, model string, client *http.Client) *OllamaProvider {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "codellama:latest"
	}
	return &OllamaProvider{endpoint: endpoint, model: model, client: client}
}

func (o *OllamaProvider) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func toOllamaRequest(req *ChatRequest, model string) *ollamaChatRequest {
	or := &ollamaChatRequest{Model: model}
	if req.System != "" {
		or.Messages = append(or.Messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		or.Messages = append(or.Messages, ollamaMessage{Role: msg.Role, Content: msg.Content})
	}
	return or
}

func (o *OllamaProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := o.model
	if req.Model != "" {
		model = req.Model
	}
	oreq := toOllamaRequest(req, model)
	oreq.Stream = false

	body, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to ollama: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("ollama API error (status %d): %v", httpResp.StatusCode, errBody)
	}

	var oresp ollamaChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oresp); err != nil {
		return nil, fmt.Errorf("decoding ollama response: %w", err)
	}

	return &ChatResponse{
		ID:       "chatcmpl-" + uuid.NewString(),
		Provider: o.Name(),
		Model:    model,
		Content:  oresp.Message.Content,
		FinishReason: func() string {
			if oresp.Done {
				return "stop"
			}
			return ""
		}(),
	}, nil
}

func (o *OllamaProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	model := o.model
	if req.Model != "" {
		model = req.Model
	}
	oreq := toOllamaRequest(req, model)
	oreq.Stream = true

	body, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to ollama: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("ollama API error (status %d): %v", httpResp.StatusCode, errBody)
	}

	ch := make(chan StreamChunk)
	respID := "chatcmpl-" + uuid.NewString()

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		// Ollama streams NDJSON — one complete JSON object per line, no
		// "data: " SSE framing at all.
		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var oresp ollamaChatResponse
			if err := json.Unmarshal(line, &oresp); err != nil {
				ch <- StreamChunk{Done: true, Err: fmt.Errorf("decoding ollama stream line: %w", err)}
				return
			}

			chunk := StreamChunk{
				ID:       respID,
				Provider: o.Name(),
				Model:    model,
				Delta:    oresp.Message.Content,
			}
			if oresp.Done {
				chunk.Done = true
				chunk.FinishReason = "stop"
			}

			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}

			if oresp.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamChunk{Done: true, Err: fmt.Errorf("reading ollama stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

func (o *OllamaProvider) HealthCheck(ctx context.Context) (HealthStatus, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(probeCtx, http.MethodGet, o.endpoint+"/api/tags", nil)
	if err != nil {
		return HealthUnknown, err
	}

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		return HealthUnhealthy, err
	}
	defer httpResp.Body.Close()

	return classifyHealthStatus(httpResp.StatusCode), nil
}
