package provider

import (
	"context"
	"net/http"
)

// GitHubCopilotTokenFunc resolves a short-lived Copilot chat token for the
// current request. The gateway wires this to credential.Source.GetAccessToken
// at startup — kept as a plain function type here so this package doesn't
// need to import internal/credential.
type GitHubCopilotTokenFunc func(ctx context.Context) (string, error)

// NewGitHubCopilotProvider builds a Provider for GitHub Copilot's chat
// completions endpoint. Copilot proxies OpenAI-shaped chat/completions, so
// it reuses the shared core, with Copilot's two required editor-identity
// headers and a credential-sourced bearer token instead of a static key.
//
// Streaming is intentionally unsupported — see the router's candidate
// filtering for why this doesn't prevent Copilot from still being used as a
// fallback or round-robin target for non-streaming requests.
func NewGitHubCopilotProvider(tokenFunc GitHubCopilotTokenFunc, model string, client *http.Client) Provider {
	if model == "" {
		model = "gpt-4"
	}
	return &openaiCompatProvider{
		name:    "github_copilot",
		baseURL: "https://api.githubcopilot.com",
		client:  client,
		extraHeaders: map[string]string{
			"Editor-Version":        "vscode/1.85.0",
			"Editor-Plugin-Version": "copilot-chat/0.11.1",
		},
		streamingUnsupported: true,
		tokenFunc:            tokenFunc,
	}
}
