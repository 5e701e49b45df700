package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists tokens in Redis, one key per provider. TTL is set to
// the token's remaining lifetime so expired entries evict themselves.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a RedisStore against addr/db. Pass the result of
// miniredis.Run()'s Addr() in tests for a hermetic in-process Redis.
func NewRedisStore(addr string, db int, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "llmrouter:credential:"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		prefix: prefix,
	}
}

type storedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (r *RedisStore) Get(ctx context.Context, key string) (Token, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("redis get: %w", err)
	}

	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil {
		return Token{}, false, fmt.Errorf("decoding stored token: %w", err)
	}
	return Token{AccessToken: st.AccessToken, ExpiresAt: st.ExpiresAt}, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, tok Token) error {
	raw, err := json.Marshal(storedToken{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt})
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
