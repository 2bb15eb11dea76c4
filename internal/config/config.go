// Package config provides process-wide configuration for the gateway.
// Configuration is read once at startup and immutable thereafter.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultBlockedTopics is the blocklist applied when none is configured.
var DefaultBlockedTopics = []string{
	"violence",
	"illegal activities",
	"self harm",
	"hate speech",
	"explicit content",
	"terrorism",
	"child exploitation",
}

// Config holds the gateway configuration.
type Config struct {
	// Server settings
	HTTPPort int    `mapstructure:"http_port"`
	APIKey   string `mapstructure:"api_key"`
	LogLevel string `mapstructure:"log_level"`

	// Rate limiting (requests per minute, per API key)
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`

	// Session store. RedisURL selects the Redis backend; when empty the
	// SQLite fallback at SQLitePath is used instead.
	RedisURL          string        `mapstructure:"redis_url"`
	SQLitePath        string        `mapstructure:"sqlite_path"`
	SessionTTL        time.Duration `mapstructure:"session_ttl"`
	MaxHistoryTurns   int           `mapstructure:"max_history_turns"`
	SummarizeAfter    int           `mapstructure:"summarize_after_turns"`
	MaxContextTokens  int           `mapstructure:"max_context_tokens"`

	// Safety
	MaxInputLength   int      `mapstructure:"max_input_length"`
	BlockedTopics    []string `mapstructure:"blocked_topics"`
	EnableModeration bool     `mapstructure:"enable_moderation"`
	ModerationURL    string   `mapstructure:"moderation_url"`
	ModerationModel  string   `mapstructure:"moderation_model"`

	// Inference backend
	InferenceURL     string        `mapstructure:"inference_url"`
	InferenceAPIKey  string        `mapstructure:"inference_api_key"`
	InferenceTimeout time.Duration `mapstructure:"inference_timeout"`
	ModelLabel       string        `mapstructure:"model_label"`
	InferenceWorkers int           `mapstructure:"inference_workers"`

	// Generation parameters
	MaxNewTokens      int     `mapstructure:"max_new_tokens"`
	Temperature       float64 `mapstructure:"temperature"`
	TopP              float64 `mapstructure:"top_p"`
	RepetitionPenalty float64 `mapstructure:"repetition_penalty"`
}

// Load reads configuration from the optional config file, a local .env
// file, and CONVERSE_* environment variables, in increasing precedence.
func Load(configFile string) (*Config, error) {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("converse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("rate_limit_per_minute", 60)
	v.SetDefault("sqlite_path", "converse.db")
	v.SetDefault("session_ttl", 30*time.Minute)
	v.SetDefault("max_history_turns", 10)
	v.SetDefault("summarize_after_turns", 8)
	v.SetDefault("max_context_tokens", 4096)
	v.SetDefault("max_input_length", 1000)
	v.SetDefault("blocked_topics", DefaultBlockedTopics)
	v.SetDefault("enable_moderation", false)
	v.SetDefault("moderation_model", "gpt-4o-mini")
	v.SetDefault("inference_url", "http://localhost:8000")
	v.SetDefault("inference_timeout", 120*time.Second)
	v.SetDefault("model_label", "Mistral-7B-Instruct-v0.3")
	v.SetDefault("inference_workers", 2)
	v.SetDefault("max_new_tokens", 512)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("top_p", 0.9)
	v.SetDefault("repetition_penalty", 1.1)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot produce a working gateway.
// Validation failures are fatal at startup and never occur at request time.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("configuration error: http_port %d out of range", c.HTTPPort)
	}
	if c.MaxHistoryTurns < 1 {
		return fmt.Errorf("configuration error: max_history_turns must be >= 1, got %d", c.MaxHistoryTurns)
	}
	if c.SummarizeAfter < 1 {
		return fmt.Errorf("configuration error: summarize_after_turns must be >= 1, got %d", c.SummarizeAfter)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("configuration error: session_ttl must be positive, got %s", c.SessionTTL)
	}
	if c.MaxInputLength < 1 {
		return fmt.Errorf("configuration error: max_input_length must be >= 1, got %d", c.MaxInputLength)
	}
	if c.InferenceWorkers < 1 {
		return fmt.Errorf("configuration error: inference_workers must be >= 1, got %d", c.InferenceWorkers)
	}
	if c.InferenceURL == "" {
		return fmt.Errorf("configuration error: inference_url is required")
	}
	if c.RedisURL == "" && c.SQLitePath == "" {
		return fmt.Errorf("configuration error: either redis_url or sqlite_path is required")
	}
	if c.Temperature < 0 || c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("configuration error: invalid sampling parameters (temperature=%v, top_p=%v)", c.Temperature, c.TopP)
	}
	return nil
}
