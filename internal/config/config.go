// ABOUTME: Configuration loading and parsing for bosar-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bosar-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Chat       ChatConfig       `yaml:"chat"`
	Escalation EscalationConfig `yaml:"escalation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`

	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
}

// OpenAIConfig holds generative and embedding provider configuration.
// An empty APIKey means the provider is unavailable; the orchestrator and
// retrieval engine fall back rather than fail.
type OpenAIConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	EmbedModel    string `yaml:"embed_model"`
	MaxConcurrent int64  `yaml:"max_concurrent"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// ChatConfig holds realtime chat tuning
type ChatConfig struct {
	HistoryLimit       int     `yaml:"history_limit"`
	RetrievalLimit     int     `yaml:"retrieval_limit"`
	RetrievalThreshold float64 `yaml:"retrieval_threshold"`

	HeartbeatInterval    time.Duration `yaml:"-"`
	HeartbeatIntervalRaw string        `yaml:"heartbeat_interval"`
}

// EscalationConfig holds escalation tuning
type EscalationConfig struct {
	// Extra phrases matched against customer messages in addition to the
	// built-in list.
	ExtraKeywords []string `yaml:"extra_keywords"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for optional settings
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "localhost:8080"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com"
	}
	if c.OpenAI.EmbedModel == "" {
		c.OpenAI.EmbedModel = "text-embedding-ada-002"
	}
	if c.OpenAI.MaxConcurrent <= 0 {
		c.OpenAI.MaxConcurrent = 8
	}
	if c.OpenAI.Timeout == 0 {
		c.OpenAI.Timeout = 60 * time.Second
	}
	if c.Chat.HeartbeatInterval == 0 {
		c.Chat.HeartbeatInterval = 30 * time.Second
	}
	if c.Chat.HistoryLimit <= 0 {
		c.Chat.HistoryLimit = 10
	}
	if c.Chat.RetrievalLimit <= 0 {
		c.Chat.RetrievalLimit = 5
	}
	if c.Chat.RetrievalThreshold <= 0 {
		c.Chat.RetrievalThreshold = 0.7
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Chat.RetrievalThreshold > 1 {
		return fmt.Errorf("chat.retrieval_threshold must be in (0, 1], got %v", c.Chat.RetrievalThreshold)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.OpenAI.TimeoutRaw != "" {
		cfg.OpenAI.Timeout, err = time.ParseDuration(cfg.OpenAI.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing openai timeout %q: %w", cfg.OpenAI.TimeoutRaw, err)
		}
	}

	if cfg.Chat.HeartbeatIntervalRaw != "" {
		cfg.Chat.HeartbeatInterval, err = time.ParseDuration(cfg.Chat.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Chat.HeartbeatIntervalRaw, err)
		}
	}

	return nil
}
