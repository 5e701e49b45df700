package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// openaiCompatProvider is the shared core behind every provider whose wire
// format is the OpenAI chat/completions shape: OpenAI itself, xAI (a
// drop-in-compatible superset), and GitHub Copilot (which proxies OpenAI
// models behind its own auth). Their constructors (openai.go, xai.go,
// github_copilot.go) differ only in name, base URL, health path, extra
// headers, streaming support, and how the bearer token is obtained —
// everything else is identical. The model always comes from the request.
type openaiCompatProvider struct {
	name    string
	baseURL string
	client  *http.Client

	// tokenFunc returns the bearer token to send on each request. For a
	// static API key this just closes over the string; Copilot instead
	// closes over a credential.Source lookup.
	tokenFunc func(ctx context.Context) (string, error)

	// extraHeaders are set on every request after Authorization and
	// Content-Type — Copilot needs Editor-Version/Editor-Plugin-Version,
	// OpenAI/xAI need none.
	extraHeaders map[string]string

	// streamingUnsupported makes ChatCompletionStream fail fast instead of
	// opening a connection — used for Copilot, whose streaming endpoint
	// behavior the gateway has chosen not to support (see the router's
	// candidate filtering for why this doesn't break fallback).
	streamingUnsupported bool

	// healthPath is appended to baseURL for HealthCheck. Empty disables
	// the probe: HealthCheck then reports HealthUnknown without sending
	// any request.
	healthPath string
}

func (p *openaiCompatProvider) Name() string { return p.name }

// --- wire types, OpenAI chat/completions shape ---

type openaiChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openaiChatMessage `json:"messages"`
	Stream      bool                `json:"stream,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
}

type openaiChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Index        int               `json:"index"`
	Message      openaiChatMessage `json:"message"`
	Delta        openaiChatMessage `json:"delta"`
	FinishReason string            `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiStreamChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage,omitempty"`
}

func toOpenAIRequest(req *ChatRequest) *openaiChatRequest {
	or := &openaiChatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.MaxTokens > 0 {
		or.MaxTokens = req.MaxTokens
	}
	if req.System != "" {
		or.Messages = append(or.Messages, openaiChatMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		or.Messages = append(or.Messages, openaiChatMessage{Role: msg.Role, Content: msg.Content})
	}
	return or
}

func (p *openaiCompatProvider) buildRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	token, err := p.tokenFunc(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving credential for %s: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	for k, v := range p.extraHeaders {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (p *openaiCompatProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	oreq := toOpenAIRequest(req)
	body, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := p.buildRequest(ctx, http.MethodPost, p.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", p.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("%s API error (status %d): %v", p.name, httpResp.StatusCode, errBody)
	}

	var oresp openaiChatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oresp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", p.name, err)
	}
	if len(oresp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	return &ChatResponse{
		ID:           oresp.ID,
		Provider:     p.name,
		Model:        oresp.Model,
		Content:      oresp.Choices[0].Message.Content,
		FinishReason: oresp.Choices[0].FinishReason,
		Usage: Usage{
			PromptTokens:     oresp.Usage.PromptTokens,
			CompletionTokens: oresp.Usage.CompletionTokens,
			TotalTokens:      oresp.Usage.TotalTokens,
		},
	}, nil
}

func (p *openaiCompatProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	if p.streamingUnsupported {
		return nil, fmt.Errorf("%s: streaming not supported by this adapter", p.name)
	}

	oreq := toOpenAIRequest(req)
	oreq.Stream = true
	body, err := json.Marshal(oreq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := p.buildRequest(ctx, http.MethodPost, p.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", p.name, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("%s API error (status %d): %v", p.name, httpResp.StatusCode, errBody)
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}

			var sc openaiStreamChunk
			if err := json.Unmarshal([]byte(payload), &sc); err != nil {
				ch <- StreamChunk{Done: true, Err: fmt.Errorf("decoding %s stream event: %w", p.name, err)}
				return
			}
			if len(sc.Choices) == 0 {
				continue
			}
			choice := sc.Choices[0]

			chunk := StreamChunk{
				ID:       sc.ID,
				Provider: p.name,
				Model:    sc.Model,
				Delta:    choice.Delta.Content,
			}
			if choice.FinishReason != "" {
				chunk.Done = true
				chunk.FinishReason = choice.FinishReason
				if sc.Usage != nil {
					chunk.Usage = &Usage{
						PromptTokens:     sc.Usage.PromptTokens,
						CompletionTokens: sc.Usage.CompletionTokens,
						TotalTokens:      sc.Usage.TotalTokens,
					}
				}
			}

			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamChunk{Done: true, Err: fmt.Errorf("reading %s stream: %w", p.name, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

func (p *openaiCompatProvider) HealthCheck(ctx context.Context) (HealthStatus, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if p.healthPath == "" {
		return HealthUnknown, nil
	}

	httpReq, err := p.buildRequest(probeCtx, http.MethodGet, p.baseURL+p.healthPath, nil)
	if err != nil {
		return HealthUnknown, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return HealthUnhealthy, err
	}
	defer httpResp.Body.Close()

	return classifyHealthStatus(httpResp.StatusCode), nil
}
