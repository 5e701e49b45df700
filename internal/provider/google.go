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

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// GoogleProvider struct + constructor
// ---------------------------------------------------------------------------

// GoogleProvider implements the Provider interface for Google's Gemini API.
// It translates our unified ChatRequest into Gemini's format, makes the
// HTTP call, and translates the response back.
type GoogleProvider struct {
	apiKey  string       // Gemini API key (sent as a query parameter, not a header)
	baseURL string       // e.g. "https://generativelanguage.googleapis.com/v1beta"
	client  *http.Client // reusable HTTP client (manages connection pooling)
}

// NewGoogleProvider creates a GoogleProvider ready to make API calls.
// We take an *http.Client as a parameter instead of creating one internally.
// This is a Go best practice called "dependency injection" — it lets tests
// pass in a fake/mock HTTP client, and lets main.go configure timeouts on
// the client. In Express terms, it's like passing a custom Axios instance
// to a service instead of using the global one.
func NewGoogleProvider(apiKey, baseURL string, client *http.Client) *GoogleProvider {
	return &GoogleProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
	}
}

// Name returns the provider identifier. Used for logging, metrics, and
// the X-LLMRouter-Provider response header.
func (g *GoogleProvider) Name() string {
	return "google"
}

// ---------------------------------------------------------------------------
// Gemini API types (unexported — only this file uses them)
// ---------------------------------------------------------------------------

// --- Request types ---

// geminiRequest is the top-level request body for Gemini's generateContent.
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// geminiContent represents one message in the conversation.
// Gemini uses "parts" (an array) because it supports multimodal input
// (text + images). For text-only, we always send a single part.
type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart is one piece of content within a message.
// For text, it's just {"text": "..."}.
type geminiPart struct {
	Text string `json:"text"`
}

// geminiGenerationConfig holds generation parameters.
type geminiGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

// --- Response types ---

// geminiResponse is the top-level response from generateContent.
type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
}

// geminiCandidate is one generated response. Gemini can return multiple
// candidates, but we only use the first one (like OpenAI's choices[0]).
type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// geminiUsageMetadata holds token counts from the Gemini response.
type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// ---------------------------------------------------------------------------
// Request translation
// ---------------------------------------------------------------------------

// toGeminiRequest translates our unified ChatRequest into Gemini's format.
// This is where the key differences get handled:
//  1. A top-level System override and any system-role messages get pulled
//     out into systemInstruction
//  2. Messages become contents with parts
//  3. max_tokens/temperature/top_p become generationConfig fields
func toGeminiRequest(req *ChatRequest) *geminiRequest {
	gr := &geminiRequest{}

	appendSystem := func(text string) {
		if gr.SystemInstruction == nil {
			gr.SystemInstruction = &geminiContent{
				Parts: []geminiPart{{Text: text}},
			}
		} else {
			gr.SystemInstruction.Parts = append(gr.SystemInstruction.Parts, geminiPart{Text: text})
		}
	}

	if req.System != "" {
		appendSystem(req.System)
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			// Gemini wants system messages in a separate field, not in
			// the contents array. If there are multiple system messages,
			// we concatenate them (Gemini only accepts one systemInstruction).
			appendSystem(msg.Content)
			continue
		}

		// Map roles: OpenAI uses "assistant", Gemini uses "model".
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}

		gr.Contents = append(gr.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	if req.MaxTokens > 0 || req.Temperature != nil || req.TopP != nil {
		gr.GenerationConfig = &geminiGenerationConfig{
			Temperature: req.Temperature,
			TopP:        req.TopP,
		}
		if req.MaxTokens > 0 {
			gr.GenerationConfig.MaxOutputTokens = req.MaxTokens
		}
	}

	return gr
}

// finishReasonFromGemini normalizes Gemini's SHOUTING_CASE finish reasons
// into the OpenAI-style vocabulary the rest of the gateway uses.
func finishReasonFromGemini(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "":
		return ""
	default:
		return strings.ToLower(reason)
	}
}

// ---------------------------------------------------------------------------
// Non-streaming: ChatCompletion
// ---------------------------------------------------------------------------

// ChatCompletion sends a non-streaming request to Gemini's generateContent
// endpoint and returns the complete response.
//
// The flow: translate request → HTTP POST → read response → translate back.
func (g *GoogleProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	geminiReq := toGeminiRequest(req)

	body, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	// The Gemini endpoint pattern is: {baseURL}/models/{model}:generateContent
	// The API key goes as a query parameter (?key=...), which is unusual —
	// most APIs put it in an Authorization header.
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.baseURL, req.Model, g.apiKey,
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to gemini: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("gemini API error (status %d): %v",
			httpResp.StatusCode, errBody,
		)
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&geminiResp); err != nil {
		return nil, fmt.Errorf("decoding gemini response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	candidate := geminiResp.Candidates[0]

	// Gemini never returns a response ID, unlike Anthropic/OpenAI — we
	// mint one so every ChatResponse has the same shape downstream.
	resp := &ChatResponse{
		ID:           "chatcmpl-" + uuid.NewString(),
		Provider:     g.Name(),
		Model:        req.Model,
		Content:      candidate.Content.Parts[0].Text,
		FinishReason: finishReasonFromGemini(candidate.FinishReason),
	}

	if geminiResp.UsageMetadata != nil {
		resp.Usage = Usage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		}
	}

	return resp, nil
}

// ---------------------------------------------------------------------------
// Streaming: ChatCompletionStream
// ---------------------------------------------------------------------------

// ChatCompletionStream sends a streaming request to Gemini's
// streamGenerateContent endpoint and returns a channel of StreamChunks.
func (g *GoogleProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	geminiReq := toGeminiRequest(req)

	body, err := json.Marshal(geminiReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	// Note the different path: streamGenerateContent instead of
	// generateContent. Without alt=sse, Gemini returns a stream of
	// newline-delimited JSON objects rather than SSE-framed events.
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s",
		g.baseURL, req.Model, g.apiKey,
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// Unlike the non-streaming path, we do NOT defer Body.Close() here.
	// The goroutine we launch below will close it when it's done reading.
	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to gemini: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("gemini API error (status %d): %v",
			httpResp.StatusCode, errBody,
		)
	}

	ch := make(chan StreamChunk)
	respID := "chatcmpl-" + uuid.NewString()

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var geminiResp geminiResponse
			if err := json.Unmarshal([]byte(line), &geminiResp); err != nil {
				ch <- StreamChunk{
					Done: true,
					Err:  fmt.Errorf("decoding gemini stream event: %w", err),
				}
				return
			}

			if len(geminiResp.Candidates) == 0 {
				continue
			}
			candidate := geminiResp.Candidates[0]

			var delta string
			if len(candidate.Content.Parts) > 0 {
				delta = candidate.Content.Parts[0].Text
			}

			chunk := StreamChunk{
				ID:       respID,
				Provider: g.Name(),
				Model:    req.Model,
				Delta:    delta,
			}

			// Gemini sets finishReason on the last candidate. An empty
			// finishReason means more chunks are coming.
			if candidate.FinishReason != "" {
				chunk.Done = true
				chunk.FinishReason = finishReasonFromGemini(candidate.FinishReason)

				if geminiResp.UsageMetadata != nil {
					chunk.Usage = &Usage{
						PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
						CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
						TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
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
			case ch <- StreamChunk{
				Done: true,
				Err:  fmt.Errorf("reading gemini stream: %w", err),
			}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// ---------------------------------------------------------------------------
// Health probe
// ---------------------------------------------------------------------------

// HealthCheck lists Gemini's available models — a cheap GET that doesn't
// burn a completion and still proves the API key and network path work.
func (g *GoogleProvider) HealthCheck(ctx context.Context) (HealthStatus, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/models?key=%s", g.baseURL, g.apiKey)
	httpReq, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return HealthUnknown, err
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return HealthUnhealthy, err
	}
	defer httpResp.Body.Close()

	return classifyHealthStatus(httpResp.StatusCode), nil
}
