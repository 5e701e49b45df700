package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-gateway/llmrouter/internal/provider"
)

func TestGetSetHit(t *testing.T) {
	c := New(10, time.Hour)
	resp := &provider.ChatResponse{ID: "1", Content: "hello"}

	c.Set("key-1", resp)

	got, ok := c.Get("key-1")
	require.True(t, ok)
	assert.Equal(t, resp, got)
}

func TestGetMissUnknownKey(t *testing.T) {
	c := New(10, time.Hour)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestEntryExpiresOnRead(t *testing.T) {
	c := New(10, 10*time.Millisecond)
	c.Set("key-1", &provider.ChatResponse{ID: "1"})

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("key-1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestEvictsOldestWhenFull(t *testing.T) {
	c := New(2, time.Hour)
	c.Set("a", &provider.ChatResponse{ID: "a"})
	time.Sleep(time.Millisecond)
	c.Set("b", &provider.ChatResponse{ID: "b"})
	time.Sleep(time.Millisecond)
	c.Set("c", &provider.ChatResponse{ID: "c"})

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestKeyIgnoresTopPSystemStream(t *testing.T) {
	temp := 0.7
	base := &provider.ChatRequest{
		Model:       "gpt-4",
		Messages:    []provider.Message{{Role: "user", Content: "hi"}},
		Temperature: &temp,
		MaxTokens:   100,
	}
	variant := *base
	variant.TopP = ptr(0.9)
	variant.System = "be nice"
	variant.Stream = true

	assert.Equal(t, Key(base), Key(&variant))
}

func TestKeyDiffersOnModel(t *testing.T) {
	a := &provider.ChatRequest{Model: "gpt-4", Messages: []provider.Message{{Role: "user", Content: "hi"}}}
	b := &provider.ChatRequest{Model: "gpt-3.5", Messages: []provider.Message{{Role: "user", Content: "hi"}}}
	assert.NotEqual(t, Key(a), Key(b))
}

func ptr(f float64) *float64 { return &f }
