package model

import "time"

// OracleConfig configures the generation oracle.
type OracleConfig struct {
	Provider    string        `yaml:"provider" json:"provider"` // "openai" or "" (disabled)
	Model       string        `yaml:"model" json:"model"`
	APIKey      string        `yaml:"api_key,omitempty" json:"-"`
	BaseURL     string        `yaml:"base_url,omitempty" json:"base_url,omitempty"` // e.g. OpenRouter endpoint
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`                       // per call
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay" json:"retry_delay"`
	Temperature float32       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	// AIAggregation routes aggregation through the oracle; the rule-based
	// engine always remains the fallback.
	AIAggregation bool `yaml:"ai_aggregation" json:"ai_aggregation"`
}

// ConcurrencyConfig controls the batch extraction fan-out.
type ConcurrencyConfig struct {
	Workers           int     `yaml:"workers" json:"workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// CacheConfig controls oracle response caching.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
}

// KBConfig locates the knowledge-base database.
type KBConfig struct {
	Path string `yaml:"path" json:"path"`
}

// OutputConfig controls CLI output.
type OutputConfig struct {
	Verbose bool   `yaml:"verbose" json:"verbose"`
	Dir     string `yaml:"dir" json:"dir"`
}

// Config is the full application configuration.
type Config struct {
	Oracle      OracleConfig      `yaml:"oracle" json:"oracle"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	KB          KBConfig          `yaml:"kb" json:"kb"`
	Output      OutputConfig      `yaml:"output" json:"output"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     60 * time.Second,
			MaxRetries:  2,
			RetryDelay:  time.Second,
			Temperature: 0.2,
			MaxTokens:   4000,
		},
		Concurrency: ConcurrencyConfig{
			Workers:           4,
			RequestsPerSecond: 1,
			Burst:             2,
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     30 * time.Minute,
		},
		KB: KBConfig{
			Path: "~/.personaforge/kb.db",
		},
		Output: OutputConfig{
			Dir: "./personaforge-out",
		},
	}
}
