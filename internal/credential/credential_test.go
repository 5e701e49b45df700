package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceReturnsCachedToken(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "anthropic_max", Token{
		AccessToken: "cached-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	src := NewSource(store)
	src.Register("anthropic_max", func(ctx context.Context) (Token, error) {
		t.Fatal("refresh should not be called for a fresh token")
		return Token{}, nil
	})

	tok, err := src.GetAccessToken(context.Background(), "anthropic_max")
	require.NoError(t, err)
	assert.Equal(t, "cached-token", tok)
}

func TestSourceRefreshesWithinBuffer(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), "github_copilot", Token{
		AccessToken: "about-to-expire",
		ExpiresAt:   time.Now().Add(1 * time.Minute),
	}))

	src := NewSource(store)
	refreshed := false
	src.Register("github_copilot", func(ctx context.Context) (Token, error) {
		refreshed = true
		return Token{AccessToken: "new-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
	})

	tok, err := src.GetAccessToken(context.Background(), "github_copilot")
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, "new-token", tok)
}

func TestSourceUnregisteredProviderIsNotAuthenticated(t *testing.T) {
	src := NewSource(NewMemoryStore())

	_, err := src.GetAccessToken(context.Background(), "xai")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAuthenticated))
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store := NewRedisStore(mr.Addr(), 0, "")
	defer store.Close()

	want := Token{AccessToken: "redis-token", ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second)}
	require.NoError(t, store.Set(context.Background(), "anthropic_max", want))

	got, ok, err := store.Get(context.Background(), "anthropic_max")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.WithinDuration(t, want.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestRedisStoreMissingKey(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	store := NewRedisStore(mr.Addr(), 0, "")
	defer store.Close()

	_, ok, err := store.Get(context.Background(), "never-set")
	require.NoError(t, err)
	assert.False(t, ok)
}
