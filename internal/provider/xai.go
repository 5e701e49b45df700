package provider

import (
	"context"
	"net/http"
)

// NewXAIProvider builds a Provider for xAI's Grok models. xAI's API is
// intentionally OpenAI-compatible, so this reuses the same shared core —
// only the name and base URL differ from NewOpenAIProvider.
func NewXAIProvider(apiKey, baseURL string, client *http.Client) Provider {
	if baseURL == "" {
		baseURL = "https://api.x.ai/v1"
	}
	return &openaiCompatProvider{
		name:       "xai",
		baseURL:    baseURL,
		client:     client,
		healthPath: "/models",
		tokenFunc: func(_ context.Context) (string, error) {
			return apiKey, nil
		},
	}
}
