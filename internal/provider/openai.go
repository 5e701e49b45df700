package provider

import (
	"context"
	"net/http"
)

// NewOpenAIProvider builds a Provider for OpenAI's chat/completions API.
// It's a thin wrapper around openaiCompatProvider — OpenAI's wire format
// is the one the shared core is modeled on.
func NewOpenAIProvider(apiKey, baseURL string, client *http.Client) Provider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &openaiCompatProvider{
		name:       "openai",
		baseURL:    baseURL,
		client:     client,
		healthPath: "/models",
		tokenFunc: func(_ context.Context) (string, error) {
			return apiKey, nil
		},
	}
}
