// Package cache implements the gateway's bounded, TTL-based response
// cache for non-streaming chat completions.
package cache

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/inference-gateway/llmrouter/internal/provider"
)

// entry wraps a cached response with bookkeeping used for expiry and
// eviction.
type entry struct {
	response    *provider.ChatResponse
	createdAt   time.Time
	accessCount int
}

// Cache is a bounded, TTL-expiring cache of chat completion responses,
// keyed by a fingerprint of the request. A single mutex guards the whole
// map — contention is fine at gateway scale, and it keeps get/set/evict
// trivially correct.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxSize int
	ttl     time.Duration

	onHit   func()
	onMiss  func()
	onSet   func(size int)
}

// Option configures optional instrumentation hooks.
type Option func(*Cache)

// WithMetricsHooks wires hit/miss/size callbacks, letting the metrics
// package observe cache behavior without this package importing it.
func WithMetricsHooks(onHit, onMiss func(), onSet func(size int)) Option {
	return func(c *Cache) {
		c.onHit = onHit
		c.onMiss = onMiss
		c.onSet = onSet
	}
}

// New builds a Cache holding at most maxSize entries, each valid for ttl
// after insertion.
func New(maxSize int, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		maxSize: maxSize,
		ttl:     ttl,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks up key, returning (response, true) on a live hit. An expired
// entry is removed and reported as a miss, exactly like the original
// implementation's expire-on-read semantics.
func (c *Cache) Get(key string) (*provider.ChatResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.reportMiss()
		return nil, false
	}

	if time.Since(e.createdAt) > c.ttl {
		delete(c.entries, key)
		c.reportMiss()
		return nil, false
	}

	e.accessCount++
	c.reportHit()
	return e.response, true
}

// Set inserts resp under key, evicting the oldest entry (by createdAt)
// first if the cache is already at capacity.
func (c *Cache) Set(key string, resp *provider.ChatResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize && c.maxSize > 0 {
		c.evictOldest()
	}

	c.entries[key] = &entry{response: resp, createdAt: time.Now()}
	c.reportSize()
}

func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range c.entries {
		if first || e.createdAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.createdAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

func (c *Cache) reportHit() {
	if c.onHit != nil {
		c.onHit()
	}
}

func (c *Cache) reportMiss() {
	if c.onMiss != nil {
		c.onMiss()
	}
}

func (c *Cache) reportSize() {
	if c.onSet != nil {
		c.onSet(len(c.entries))
	}
}

// Size returns the current entry count, mostly for tests.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Key computes a cache fingerprint over the fields that determine the
// response: model, the full message sequence, temperature, and max_tokens.
// top_p, system, and stream are deliberately excluded — two requests that
// differ only in those fields are treated as the same cache entry, matching
// the original implementation's intentional-collision rule.
func Key(req *provider.ChatRequest) string {
	h := xxhash.New()
	writeString(h, req.Model)
	for _, m := range req.Messages {
		writeString(h, m.Role)
		writeString(h, m.Content)
	}
	if req.Temperature != nil {
		writeString(h, strconv.FormatInt(int64(*req.Temperature*1e6), 10))
	}
	writeString(h, strconv.Itoa(req.MaxTokens))

	return strconv.FormatUint(h.Sum64(), 16)
}

func writeString(h *xxhash.Digest, s string) {
	h.WriteString(s)
	h.WriteString("\x00") // field separator so "ab"+"c" != "a"+"bc"
}
