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

// ---------------------------------------------------------------------------
// AnthropicProvider struct + constructor
// ---------------------------------------------------------------------------

// AnthropicProvider implements the Provider interface for Anthropic's
// Messages API. Same pattern as GoogleProvider: translate our unified
// ChatRequest into Anthropic's format, make the HTTP call, translate back.
type AnthropicProvider struct {
	apiKey  string
	baseURL string // e.g. "https://api.anthropic.com/v1"
	client  *http.Client
}

// NewAnthropicProvider creates an AnthropicProvider ready to make API calls.
func NewAnthropicProvider(apiKey, baseURL string, client *http.Client) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
	}
}

// Name returns the provider identifier.
func (a *AnthropicProvider) Name() string {
	return "anthropic"
}

// ---------------------------------------------------------------------------
// Anthropic API types (unexported)
// ---------------------------------------------------------------------------

// --- Request types ---

// anthropicRequest is the top-level request body for Anthropic's
// /v1/messages endpoint.
//
// Key differences from Gemini:
//   - "system" is a top-level string, not nested inside messages
//   - "max_tokens" is REQUIRED (Anthropic rejects requests without it)
//   - "model" is in the request body (Gemini puts it in the URL path)
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
}

// anthropicMessage is one message in the conversation.
// Unlike Gemini's nested parts structure, Anthropic uses a flat
// role + content shape — same as OpenAI's format.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- Response types ---

// anthropicResponse is the top-level response from Anthropic's /v1/messages.
//
// Key differences from Gemini's response:
//   - "content" is an array of content blocks (not candidates[0].content.parts)
//   - "usage" uses input_tokens/output_tokens (not promptTokenCount/candidatesTokenCount)
//   - "id" is returned at the top level (Gemini doesn't return a response ID)
//   - "stop_reason" instead of "finishReason"
type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

// anthropicContentBlock is one piece of the response. Anthropic returns an
// array because responses can mix text and tool_use blocks. For our purposes,
// we only care about blocks where type == "text".
type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// anthropicUsage holds token counts. Note the different JSON field names
// from Gemini — each provider names these slightly differently, which is
// exactly why we have our unified Usage type.
type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- Streaming event types ---
//
// Anthropic's streaming format is more complex than Gemini's. Gemini sends
// one self-contained JSON object of the same shape per line.
// Anthropic sends NAMED events, each with a different JSON payload shape:
//
//	event: message_start      → contains response ID, model, input token count
//	event: content_block_delta → contains a text fragment (the actual tokens)
//	event: message_delta      → contains stop_reason and output token count
//	event: message_stop       → signals the stream is done (empty payload)
//
// We need different structs for each payload shape. Every payload includes
// a "type" field that matches the event name, so we can decode into a
// generic wrapper first, check the type, then decode the specific fields.

// anthropicStreamEvent is a lightweight wrapper for initial decoding.
// We unmarshal into this first just to read the "type" field, then
// decide how to handle the rest of the fields based on that type.
//
// Think of it like a discriminated union in TypeScript:
//
//	type Event = { type: "message_start", message: {...} }
//	            | { type: "content_block_delta", delta: {...} }
//	            | ...
//
// except Go doesn't have union types, so we put all possible fields
// in one struct and leave the irrelevant ones empty (zero-valued).
type anthropicStreamEvent struct {
	Type    string                 `json:"type"`
	Message *anthropicEventMessage `json:"message,omitempty"` // present on message_start
	Delta   *anthropicEventDelta   `json:"delta,omitempty"`   // present on content_block_delta AND message_delta
	Usage   *anthropicUsage        `json:"usage,omitempty"`   // present on message_delta (output tokens)
}

// anthropicEventMessage is the "message" object inside a message_start event.
// It carries the response metadata: ID, model, and the input token count.
// Output tokens are 0 here because the model hasn't generated anything yet.
type anthropicEventMessage struct {
	ID    string         `json:"id"`
	Model string         `json:"model"`
	Usage anthropicUsage `json:"usage"` // input_tokens populated, output_tokens = 0
}

// anthropicEventDelta carries different data depending on the event type:
//   - On content_block_delta: Type="text_delta", Text="the token text"
//   - On message_delta:       Type="", StopReason="end_turn" (text is empty)
//
// We put both fields in one struct because Go's zero values handle the
// "missing field" case naturally — an empty string means "not present."
type anthropicEventDelta struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`        // the text token (content_block_delta only)
	StopReason string `json:"stop_reason,omitempty"` // why the stream ended (message_delta only)
}

// anthropicAPIVersion pins the Anthropic API behavior. Anthropic requires
// this header on every request. It's how they version their API — instead
// of versioning the URL path (like /v2/messages), they use a date-based
// header. This lets them evolve the API without breaking older clients
// that send an older version string.
const anthropicAPIVersion = "2023-06-01"

// ---------------------------------------------------------------------------
// Request translation
// ---------------------------------------------------------------------------

// defaultMaxTokens is used when the caller doesn't specify max_tokens.
// Anthropic requires this field, so we need a fallback.
const defaultMaxTokens = 1024

// toAnthropicRequest translates our unified ChatRequest into Anthropic's
// format. A few things happen:
//  1. Any top-level System override, plus system-role messages, get
//     merged into the top-level "system" string
//  2. Remaining messages map directly (roles are already compatible)
//  3. max_tokens gets a default if not set (Anthropic requires it)
func toAnthropicRequest(req *ChatRequest) *anthropicRequest {
	ar := &anthropicRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}

	var systemParts []string
	if req.System != "" {
		systemParts = append(systemParts, req.System)
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}

		// No role mapping needed — Anthropic uses "user" and "assistant"
		// just like our unified format (unlike Gemini which uses "model").
		ar.Messages = append(ar.Messages, anthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	if len(systemParts) > 0 {
		ar.System = strings.Join(systemParts, "\n")
	}

	if req.MaxTokens > 0 {
		ar.MaxTokens = req.MaxTokens
	} else {
		ar.MaxTokens = defaultMaxTokens
	}

	return ar
}

// finishReasonFromStopReason normalizes Anthropic's stop_reason into the
// OpenAI-style finish_reason vocabulary the rest of the gateway uses.
func finishReasonFromStopReason(stopReason string) string {
	switch stopReason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "":
		return ""
	default:
		return stopReason
	}
}

// ---------------------------------------------------------------------------
// Non-streaming: ChatCompletion
// ---------------------------------------------------------------------------

// ChatCompletion sends a non-streaming request to Anthropic's /v1/messages
// endpoint and returns the complete response.
//
// Same five-step flow as GoogleProvider.ChatCompletion:
//
//	translate → serialize → HTTP POST → decode response → translate back
//
// The main differences are in Step 3 (auth headers instead of query param)
// and Step 5 (different response shape to translate from).
func (a *AnthropicProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	anthropicReq := toAnthropicRequest(req)

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	// Anthropic's URL is simpler than Gemini's — the model is in the
	// request body (already set by toAnthropicRequest), not in the URL
	// path. Auth is different too: Gemini puts the API key in a query
	// param (?key=...), but Anthropic uses a custom header (x-api-key).
	url := fmt.Sprintf("%s/messages", a.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to anthropic: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("anthropic API error (status %d): %v",
			httpResp.StatusCode, errBody,
		)
	}

	var anthropicResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthropicResp); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}

	// Anthropic returns content as an array of blocks. We need to find
	// the first text block. In practice, for a simple chat completion
	// (no tool use), content[0] is always type "text" — but we loop
	// to be safe, in case Anthropic ever reorders them or adds other
	// block types.
	var text string
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	resp := &ChatResponse{
		ID:           anthropicResp.ID,
		Provider:     a.Name(),
		Model:        anthropicResp.Model,
		Content:      text,
		FinishReason: finishReasonFromStopReason(anthropicResp.StopReason),
		Usage: Usage{
			PromptTokens:     anthropicResp.Usage.InputTokens,
			CompletionTokens: anthropicResp.Usage.OutputTokens,
			TotalTokens:      anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		},
	}

	return resp, nil
}

// ---------------------------------------------------------------------------
// Streaming: ChatCompletionStream
// ---------------------------------------------------------------------------

// ChatCompletionStream sends a streaming request to Anthropic's /v1/messages
// endpoint and returns a channel of StreamChunks.
//
// The overall pattern is the same as Google's: HTTP POST → goroutine reads
// lines → sends StreamChunks on channel. But the SSE parsing is more
// complex because Anthropic uses multiple named event types, each carrying
// a different JSON shape.
func (a *AnthropicProvider) ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	anthropicReq := toAnthropicRequest(req)
	anthropicReq.Stream = true

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/messages", a.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	// Do NOT defer Body.Close() here — the goroutine owns the body and
	// will close it when done.
	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to anthropic: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		var errBody map[string]any
		json.NewDecoder(httpResp.Body).Decode(&errBody)
		return nil, fmt.Errorf("anthropic API error (status %d): %v",
			httpResp.StatusCode, errBody,
		)
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		// These variables accumulate metadata across multiple events.
		// Unlike Gemini (where every event is self-contained), Anthropic
		// spreads the metadata across the stream:
		//   - message_start gives us ID, model, input tokens
		//   - message_delta (near the end) gives us output tokens and
		//     the stop reason
		//   - message_stop is the final signal
		var (
			respID       string
			model        string
			inputTokens  int
			outputTokens int
			stopReason   string
		)

		scanner := bufio.NewScanner(httpResp.Body)

		for scanner.Scan() {
			line := scanner.Text()

			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			jsonData := strings.TrimPrefix(line, "data: ")

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
				ch <- StreamChunk{
					Done: true,
					Err:  fmt.Errorf("decoding anthropic stream event: %w", err),
				}
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					respID = event.Message.ID
					model = event.Message.Model
					inputTokens = event.Message.Usage.InputTokens
				}

			case "content_block_delta":
				if event.Delta == nil {
					continue
				}

				chunk := StreamChunk{
					ID:       respID,
					Provider: a.Name(),
					Model:    model,
					Delta:    event.Delta.Text,
				}

				select {
				case ch <- chunk:
				case <-ctx.Done():
					return
				}

			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					stopReason = event.Delta.StopReason
				}
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}

			case "message_stop":
				chunk := StreamChunk{
					ID:           respID,
					Provider:     a.Name(),
					Model:        model,
					Done:         true,
					FinishReason: finishReasonFromStopReason(stopReason),
					Usage: &Usage{
						PromptTokens:     inputTokens,
						CompletionTokens: outputTokens,
						TotalTokens:      inputTokens + outputTokens,
					},
				}

				select {
				case ch <- chunk:
				case <-ctx.Done():
					return
				}

				// Other event types (content_block_start, content_block_stop,
				// ping) don't carry data we need — skip them.
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamChunk{
				Done: true,
				Err:  fmt.Errorf("reading anthropic stream: %w", err),
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

// HealthCheck pings Anthropic's Messages API with a one-token completion —
// Anthropic has no lightweight "list models" endpoint, so a minimal real
// request is the cheapest honest probe available.
func (a *AnthropicProvider) HealthCheck(ctx context.Context) (HealthStatus, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	body, _ := json.Marshal(anthropicRequest{
		Model:     "claude-3-haiku-20240307",
		MaxTokens: 1,
		Messages:  []anthropicMessage{{Role: "user", Content: "ping"}},
	})

	httpReq, err := http.NewRequestWithContext(probeCtx, http.MethodPost, fmt.Sprintf("%s/messages", a.baseURL), bytes.NewReader(body))
	if err != nil {
		return HealthUnknown, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return HealthUnhealthy, err
	}
	defer httpResp.Body.Close()

	return classifyHealthStatus(httpResp.StatusCode), nil
}

// classifyHealthStatus applies the shared status→health mapping every
// adapter's HealthCheck uses: 2xx is healthy, and so is an auth error —
// it means the service answered, just not for us. Anything else in the
// 4xx/5xx range is degraded.
func classifyHealthStatus(statusCode int) HealthStatus {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return HealthHealthy
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return HealthHealthy
	case statusCode >= 400:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}
