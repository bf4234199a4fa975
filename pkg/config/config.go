package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/chatgate/pkg/models"
	"github.com/pario-ai/chatgate/pkg/registry"
)

// DefaultPath is the config file the CLI looks for when none is given.
const DefaultPath = "chatgate.yaml"

// Config holds all chatgate configuration.
type Config struct {
	Listen         string                   `yaml:"listen"`
	BaseURL        string                   `yaml:"base_url"`
	APIKey         string                   `yaml:"api_key"`
	LogLevel       string                   `yaml:"log_level"`
	RequestTimeout time.Duration            `yaml:"request_timeout"`
	RateLimit      RateLimitConfig          `yaml:"rate_limit"`
	Cache          CacheConfig              `yaml:"cache"`
	Retry          RetryConfig              `yaml:"retry"`
	Audit          models.AuditConfig       `yaml:"audit"`
	History        HistoryConfig            `yaml:"history"`
	Models         []ModelConfig            `yaml:"models"`
}

// RateLimitConfig bounds outbound requests over a sliding window.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// CacheConfig controls the response cache.
// Backend is "memory" (default) or "sqlite".
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Backend    string        `yaml:"backend"`
	DBPath     string        `yaml:"db_path"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// RetryConfig controls retries of transient transport failures.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	BackoffBase     time.Duration `yaml:"backoff_base"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	HonorRetryAfter bool          `yaml:"honor_retry_after"`
}

// ModelConfig declares a model in the config file. Its parameters are
// overrides: a key that is left out keeps the catalog default, while an
// explicit zero such as temperature: 0 is sent as is.
type ModelConfig struct {
	ID         string                   `yaml:"id"`
	Name       string                   `yaml:"name"`
	Path       string                   `yaml:"path"`
	Specialty  string                   `yaml:"specialty"`
	Template   string                   `yaml:"template"`
	EchoMarker string                   `yaml:"echo_marker"`
	Welcome    string                   `yaml:"welcome"`
	Fallback   string                   `yaml:"fallback"`
	Aliases    []string                 `yaml:"aliases"`
	Parameters models.GenerationOptions `yaml:"parameters"`
}

// Descriptor resolves m against registry.DefaultParameters.
func (m ModelConfig) Descriptor() models.ModelDescriptor {
	return models.ModelDescriptor{
		ID:         m.ID,
		Name:       m.Name,
		Path:       m.Path,
		Specialty:  m.Specialty,
		Template:   m.Template,
		EchoMarker: m.EchoMarker,
		Welcome:    m.Welcome,
		Fallback:   m.Fallback,
		Aliases:    m.Aliases,
		Parameters: registry.DefaultParameters.Apply(m.Parameters),
	}
}

// ModelDescriptors returns the configured models ready for registry.New.
func (c *Config) ModelDescriptors() []models.ModelDescriptor {
	out := make([]models.ModelDescriptor, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, m.Descriptor())
	}
	return out
}

// HistoryConfig controls transcript persistence.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:         ":8080",
		BaseURL:        "https://api-inference.huggingface.co/models",
		LogLevel:       "info",
		RequestTimeout: 30 * time.Second,
		RateLimit: RateLimitConfig{
			MaxRequests: 30,
			Window:      time.Minute,
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: "memory",
			DBPath:  "chatgate.db",
			TTL:     5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries:      3,
			BackoffBase:     time.Second,
			MaxDelay:        30 * time.Second,
			HonorRetryAfter: true,
		},
		Audit: models.AuditConfig{
			DBPath:        "chatgate-audit.db",
			RetentionDays: 30,
		},
		History: HistoryConfig{
			DBPath: "chatgate.db",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("HF_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load, except that a missing file yields the
// defaults with the API key taken from HF_API_KEY.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = Default()
	cfg.APIKey = os.Getenv("HF_API_KEY")
	return cfg, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return errors.Errorf("config: rate_limit.max_requests must be positive, got %d", c.RateLimit.MaxRequests)
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("config: rate_limit.window must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return errors.Errorf("config: retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	switch c.Cache.Backend {
	case "", "memory", "sqlite":
	default:
		return errors.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	for i, m := range c.Models {
		if m.ID == "" || m.Path == "" {
			return errors.Errorf("config: models[%d] needs both id and path", i)
		}
	}
	return nil
}
