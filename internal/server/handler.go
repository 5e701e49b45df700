package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/inference-gateway/llmrouter/internal/provider"
	"github.com/inference-gateway/llmrouter/internal/stream"
)

// handleHealth responds with {status, version, providers}: an aggregate
// status plus a per-provider breakdown, each probed through the shared
// HealthCache so this never burns a live upstream call on every hit.
//
// In Express terms, this is like:
//   app.get('/health', (req, res) => res.json({ status, version, providers }))
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := make(map[string]string, len(s.providers))
	overall := "ok"

	for name, p := range s.providers {
		status, err := s.health.Check(r.Context(), name, p)
		if err != nil || status == provider.HealthUnhealthy {
			overall = "degraded"
		}
		providers[name] = status.String()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    overall,
		"version":   version,
		"providers": providers,
	})
}

// modelInfo describes one model backing an enabled provider.
type modelInfo struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// handleListModels responds with every model string backing an enabled
// provider — the client-facing equivalent of the teacher's internal
// models registry map, now derived from config instead of being the
// dispatch table itself.
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	var models []modelInfo
	for _, name := range s.cfg.EnabledProviders() {
		pc := s.cfg.Providers[name]
		if pc.Model != "" {
			models = append(models, modelInfo{Model: pc.Model, Provider: name})
		}
		for _, m := range pc.Models {
			models = append(models, modelInfo{Model: m, Provider: name})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
		"count":  len(models),
	})
}

// providerInfo describes one configured provider, without exposing its key.
type providerInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AuthMethod string `json:"auth_method"`
	Model      string `json:"model"`
	Enabled    bool   `json:"enabled"`
}

// handleListProviders responds with the enabled provider names and their
// auth method, useful for verifying config wiring without exposing keys.
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	var providers []providerInfo
	for _, name := range s.cfg.EnabledProviders() {
		pc := s.cfg.Providers[name]
		providers = append(providers, providerInfo{
			ID:         name,
			Name:       name,
			AuthMethod: pc.AuthMethod,
			Model:      pc.Model,
			Enabled:    pc.Enabled,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   providers,
		"count":  len(providers),
	})
}

// handleChatCompletions handles POST /v1/chat/completions. It decodes the
// request, hands it to the Router pipeline (cache → strategy → breaker →
// adapter → metrics), and branches on streaming vs non-streaming.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req provider.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}

	if req.Stream {
		chunks, err := s.svc.RouteChatCompletionStream(r.Context(), &req)
		if err != nil {
			s.log.Warnw("stream dispatch failed", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(statusForError(err))
			json.NewEncoder(w).Encode(map[string]string{
				"error": err.Error(),
			})
			return
		}

		if err := stream.Write(w, chunks); err != nil {
			s.log.Warnw("stream write failed", "error", err)
		}
		return
	}

	resp, err := s.svc.RouteChatCompletion(r.Context(), &req)
	if err != nil {
		s.log.Warnw("chat completion failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusForError(err))
		json.NewEncoder(w).Encode(map[string]string{
			"error": err.Error(),
		})
		return
	}

	w.Header().Set("X-LLMRouter-Provider", resp.Provider)
	w.Header().Set("X-LLMRouter-Model", resp.Model)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatCompletionEnvelope(resp))
}

// chatCompletionEnvelope wraps an internal ChatResponse in the
// OpenAI-compatible chat-completion shape so any OpenAI SDK can consume
// our non-streaming responses unmodified.
func chatCompletionEnvelope(resp *provider.ChatResponse) map[string]any {
	return map[string]any{
		"id":      resp.ID,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   resp.Model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": resp.Content,
				},
				"finish_reason": resp.FinishReason,
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}
}
