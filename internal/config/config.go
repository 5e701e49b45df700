// Package config handles loading and validating gateway configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the llmrouter gateway.
type Config struct {
	Server         ServerConfig              `koanf:"server"`
	Routing        RoutingConfig             `koanf:"routing"`
	Providers      map[string]ProviderConfig `koanf:"providers"`
	Cache          CacheConfig               `koanf:"cache"`
	RateLimiting   RateLimitConfig           `koanf:"rate_limiting"`
	CircuitBreaker BreakerConfig             `koanf:"circuit_breaker"`
	Credentials    CredentialConfig          `koanf:"credentials"`
	Metrics        MetricsConfig             `koanf:"metrics"`
}

// ServerConfig holds HTTP/gRPC/UDS server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	GRPCPort     int           `koanf:"grpc_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
	LogLevel     string        `koanf:"log_level"`
	UDSPath      string        `koanf:"uds_path"`
	UDSEnabled   bool          `koanf:"uds_enabled"`
	ShutdownWait time.Duration `koanf:"shutdown_wait"`
}

// RoutingConfig selects the candidate-selection strategy and, for
// "fallback", the ordered chain of provider names to try.
type RoutingConfig struct {
	Strategy      string   `koanf:"strategy"`
	FallbackChain []string `koanf:"fallback_chain"`
}

// ProviderConfig holds the settings for a single upstream provider.
type ProviderConfig struct {
	Enabled    bool     `koanf:"enabled"`
	AuthMethod string   `koanf:"auth_method"` // api_key | oauth | none
	APIKey     string   `koanf:"api_key"`
	BaseURL    string   `koanf:"base_url"`
	Endpoint   string   `koanf:"endpoint"`
	Model      string   `koanf:"model"`
	Models     []string `koanf:"models"`
}

// CacheConfig controls the non-streaming response cache.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	TTL     time.Duration `koanf:"ttl"`
	MaxSize int           `koanf:"max_size"`
}

// RateLimitConfig controls the per-key token bucket.
type RateLimitConfig struct {
	Enabled           bool `koanf:"enabled"`
	RequestsPerMinute int  `koanf:"requests_per_minute"`
	RequestsPerHour   int  `koanf:"requests_per_hour"`
}

// BreakerConfig controls the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `koanf:"failure_threshold"`
	SuccessThreshold int           `koanf:"success_threshold"`
	Cooldown         time.Duration `koanf:"cooldown"`
}

// CredentialConfig points the credential source at its persistent token
// store. An empty RedisAddr falls back to an in-process store — tokens
// won't survive a restart, but a single-instance deployment still works.
type CredentialConfig struct {
	RedisAddr string `koanf:"redis_addr"`
	RedisDB   int    `koanf:"redis_db"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			GRPCPort:     50051,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  5 * time.Minute,
			LogLevel:     "info",
			UDSPath:      "/var/run/llmrouter/llmrouter.sock",
			UDSEnabled:   false,
			ShutdownWait: 10 * time.Second,
		},
		Routing: RoutingConfig{
			Strategy: "preferred",
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     time.Hour,
			MaxSize: 1000,
		},
		RateLimiting: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
		},
		CircuitBreaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 3,
			Cooldown:         30 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	// This is the equivalent of require('dotenv').config() in Node.
	_ = godotenv.Load()

	cfg := defaults()

	// Create a new koanf instance. The "." delimiter tells koanf how to
	// separate nested keys internally (e.g., "server.port").
	k := koanf.New(".")

	// Load the YAML config file. file.Provider reads the file,
	// yaml.Parser() decodes the YAML format into koanf's internal map.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "LLMROUTER_" can override a config value. The callback transforms
	// the env var name into a koanf key path:
	//   LLMROUTER_SERVER_PORT -> server.port
	if err := k.Load(env.Provider("LLMROUTER_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "LLMROUTER_")),
			"_", ".",
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// Unmarshal the loaded key-value pairs into our Config struct.
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandEnv resolves ${VAR_NAME} placeholders in any provider string
// field that might carry a secret — not just api_key, which is all the
// teacher originally handled.
func expandEnv(cfg *Config) {
	for name, p := range cfg.Providers {
		p.APIKey = expandOne(p.APIKey)
		p.BaseURL = expandOne(p.BaseURL)
		p.Endpoint = expandOne(p.Endpoint)
		cfg.Providers[name] = p
	}
	cfg.Credentials.RedisAddr = expandOne(cfg.Credentials.RedisAddr)
}

func expandOne(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

func validate(cfg *Config) error {
	for name, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		if p.AuthMethod == "api_key" && p.APIKey == "" {
			return fmt.Errorf("provider %q: auth_method is api_key but api_key is empty", name)
		}
	}
	return nil
}

// EnabledProviders returns the configured providers that are enabled, in
// a stable, sorted order so round-robin/fallback candidate ordering is
// deterministic across process restarts for the same config.
func (c *Config) EnabledProviders() []string {
	names := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}
