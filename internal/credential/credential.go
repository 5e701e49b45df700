// Package credential resolves access tokens for OAuth-authenticated
// providers and for GitHub Copilot, whose static API key is wrapped as a
// RefreshFunc at startup; the other providers read their static API keys
// straight out of config. It keeps tokens in a pluggable Store, refreshing
// them shortly before they expire.
package credential

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// refreshBuffer is how far ahead of expiry we proactively refresh. Matches
// the teacher repo's token refresh convention across its sibling gateway
// manifests: refresh a little early rather than serve a token that expires
// mid-request.
const refreshBuffer = 5 * time.Minute

// Token is a cached OAuth access token and its expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

func (t Token) needsRefresh(now time.Time) bool {
	return t.AccessToken == "" || now.Add(refreshBuffer).After(t.ExpiresAt)
}

// Store persists tokens keyed by provider name. The Redis-backed
// implementation is for production (tokens survive a restart); the
// in-memory one is for tests and single-shot local runs.
type Store interface {
	Get(ctx context.Context, key string) (Token, bool, error)
	Set(ctx context.Context, key string, tok Token) error
}

// RefreshFunc obtains a fresh token for a provider, typically by exchanging
// a refresh token or replaying a stored device-flow grant. The concrete
// OAuth flows are out of scope here — refreshers are registered by
// whatever wires up the gateway.
type RefreshFunc func(ctx context.Context) (Token, error)

// ErrNotAuthenticated is returned when a provider has no valid token and no
// registered RefreshFunc can produce one.
var ErrNotAuthenticated = fmt.Errorf("not authenticated")

// Source resolves access tokens, refreshing through a per-provider
// RefreshFunc when the cached token is missing or close to expiry.
type Source struct {
	store     Store
	mu        sync.Mutex
	refreshers map[string]RefreshFunc
}

// NewSource builds a Source backed by store.
func NewSource(store Store) *Source {
	return &Source{
		store:      store,
		refreshers: make(map[string]RefreshFunc),
	}
}

// Register installs the refresh function used for providerKey. Call this
// at startup for every provider configured with auth_method: oauth.
func (s *Source) Register(providerKey string, fn RefreshFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshers[providerKey] = fn
}

// GetAccessToken returns a valid access token for providerKey, refreshing
// it first if it's missing or within the refresh buffer of expiring.
func (s *Source) GetAccessToken(ctx context.Context, providerKey string) (string, error) {
	tok, ok, err := s.store.Get(ctx, providerKey)
	if err != nil {
		return "", fmt.Errorf("reading token for %s: %w", providerKey, err)
	}

	if ok && !tok.needsRefresh(time.Now()) {
		return tok.AccessToken, nil
	}

	s.mu.Lock()
	refresh, registered := s.refreshers[providerKey]
	s.mu.Unlock()
	if !registered {
		return "", fmt.Errorf("%s: %w", providerKey, ErrNotAuthenticated)
	}

	fresh, err := refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("refreshing token for %s: %w", providerKey, err)
	}

	if err := s.store.Set(ctx, providerKey, fresh); err != nil {
		return "", fmt.Errorf("persisting token for %s: %w", providerKey, err)
	}

	return fresh.AccessToken, nil
}
