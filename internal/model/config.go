package model

import (
	"fmt"
	"time"
)

// Config is the complete folio configuration.
// Values come from flags, FOLIO_* env vars, ~/.folio/config.yaml and defaults, in that order.
type Config struct {
	Research     ResearchConfig     `yaml:"research" mapstructure:"research"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
}

// ResearchConfig holds the context-assembly and response-parsing limits
type ResearchConfig struct {
	Budget           TokenBudget `yaml:"budget" mapstructure:"budget"`
	TokenRatio       float64     `yaml:"token_ratio" mapstructure:"token_ratio"`               // Tokens per whitespace-delimited word
	MaxSnippets      int         `yaml:"max_snippets" mapstructure:"max_snippets"`             // Excess snippets are dropped
	MaxContentLength int         `yaml:"max_content_length" mapstructure:"max_content_length"` // Snippet content is truncated past this many characters
	ExcerptLength    int         `yaml:"excerpt_length" mapstructure:"excerpt_length"`         // Raw response excerpt kept in parse failures
	Strict           bool        `yaml:"strict" mapstructure:"strict"`                         // Strict schema validation instead of lenient recovery
}

// LLMConfig configures the model provider
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama, "" (disabled)
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"` // Never written to config files
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`

	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig configures the raw response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig configures batch parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitingConfig throttles calls to the model provider
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
	TokensPerMinute   int     `yaml:"tokens_per_minute" mapstructure:"tokens_per_minute"` // Estimated prompt tokens; 0 disables
}

// OutputConfig configures reporting
type OutputConfig struct {
	Verbose bool   `yaml:"verbose" mapstructure:"verbose"`
	LogMode string `yaml:"log_mode" mapstructure:"log_mode"` // dev or prod
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Research: ResearchConfig{
			Budget:           DefaultTokenBudget(),
			TokenRatio:       1.33,
			MaxSnippets:      20,
			MaxContentLength: 2000,
			ExcerptLength:    500,
			Strict:           false,
		},
		LLM: LLMConfig{
			Provider:  "",
			Model:     "",
			Timeout:   60,
			MaxTokens: 4096,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".folio-cache",
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
		},
		Output: OutputConfig{
			Verbose: false,
			LogMode: "dev",
		},
	}
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Research.Budget.SourceContextBudget <= 0 {
		return fmt.Errorf("research.budget.source_context_budget must be positive, got %d", c.Research.Budget.SourceContextBudget)
	}
	if c.Research.Budget.MaxChunks <= 0 {
		return fmt.Errorf("research.budget.max_chunks must be positive, got %d", c.Research.Budget.MaxChunks)
	}
	if c.Research.TokenRatio <= 0 {
		return fmt.Errorf("research.token_ratio must be positive, got %v", c.Research.TokenRatio)
	}
	if c.Research.MaxSnippets <= 0 {
		return fmt.Errorf("research.max_snippets must be positive, got %d", c.Research.MaxSnippets)
	}
	if c.Research.MaxContentLength <= 0 {
		return fmt.Errorf("research.max_content_length must be positive, got %d", c.Research.MaxContentLength)
	}
	if c.Concurrency.Workers < 0 {
		return fmt.Errorf("concurrency.workers must not be negative, got %d", c.Concurrency.Workers)
	}
	return nil
}
