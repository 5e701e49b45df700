package provider

import (
	"context"
	"sync"
	"time"
)

// HealthCache memoizes HealthCheck results per provider for a short window.
// The interface doc on HealthCheck already asks callers not to call it
// per-request; this is that memoization, shared by both the HTTP and gRPC
// front-ends so neither burns a live upstream probe on every /health hit.
type HealthCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	results map[string]cachedHealth
}

type cachedHealth struct {
	status    HealthStatus
	err       error
	checkedAt time.Time
}

// NewHealthCache builds a cache that re-probes a provider at most once per
// ttl. 30s matches the teacher's sibling gateway manifests' health-probe
// interval in the retrieval pack.
func NewHealthCache(ttl time.Duration) *HealthCache {
	return &HealthCache{ttl: ttl, results: make(map[string]cachedHealth)}
}

// Check returns name's cached health result if it's fresh, otherwise probes
// p.HealthCheck and caches the outcome (including errors — a flapping
// upstream shouldn't be hammered with health probes either).
func (c *HealthCache) Check(ctx context.Context, name string, p Provider) (HealthStatus, error) {
	c.mu.Lock()
	cached, ok := c.results[name]
	c.mu.Unlock()
	if ok && time.Since(cached.checkedAt) < c.ttl {
		return cached.status, cached.err
	}

	status, err := p.HealthCheck(ctx)

	c.mu.Lock()
	c.results[name] = cachedHealth{status: status, err: err, checkedAt: time.Now()}
	c.mu.Unlock()

	return status, err
}
