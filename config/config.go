package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds everything read once at startup
type Config struct {
	Telegram struct {
		Token  string `yaml:"token" toml:"token"`
		ChatID int64  `yaml:"chat_id" toml:"chat_id"` // Default destination for service notices
	} `yaml:"telegram" toml:"telegram"`

	Fetcher struct {
		Backend   string        `yaml:"backend" toml:"backend"` // "colly" or "rod"
		BaseURL   string        `yaml:"base_url" toml:"base_url"`
		Region    string        `yaml:"region" toml:"region"`
		UserAgent string        `yaml:"user_agent" toml:"user_agent"`
		Accept    string        `yaml:"accept" toml:"accept"`
		WarmUp    time.Duration `yaml:"warm_up" toml:"warm_up"`
		Jitter    time.Duration `yaml:"jitter" toml:"jitter"`   // Random extra warm-up on top of WarmUp
		Timeout   time.Duration `yaml:"timeout" toml:"timeout"` // 0 waits indefinitely
	} `yaml:"fetcher" toml:"fetcher"`

	Search struct {
		MaxResults int    `yaml:"max_results" toml:"max_results"`
		Currency   string `yaml:"currency" toml:"currency"`
	} `yaml:"search" toml:"search"`

	Delivery struct {
		RetryDelay  time.Duration `yaml:"retry_delay" toml:"retry_delay"`
		MaxAttempts int           `yaml:"max_attempts" toml:"max_attempts"` // 0 retries forever
		MaxDelay    time.Duration `yaml:"max_delay" toml:"max_delay"`
		RatePerSec  float64       `yaml:"rate_per_sec" toml:"rate_per_sec"`
	} `yaml:"delivery" toml:"delivery"`

	Database struct {
		URL string `yaml:"url" toml:"url"` // Empty keeps conversations in memory only
	} `yaml:"database" toml:"database"`

	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// LoadConfig loads configuration from a YAML or TOML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	cfg := GetDefaultConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return cfg, nil
}

// Load reads the file when it exists, falls back to defaults otherwise,
// and applies environment overrides last
func Load(path string) (*Config, error) {
	var cfg *Config
	if _, err := os.Stat(path); err == nil {
		cfg, err = LoadConfig(path)
		if err != nil {
			return nil, err
		}
	} else {
		slog.Info("config file not found, using defaults", "path", path)
		cfg = GetDefaultConfig()
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Fetcher.Backend = "colly"
	cfg.Fetcher.BaseURL = "https://www.avito.ru"
	cfg.Fetcher.Region = "sankt-peterburg"
	cfg.Fetcher.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"
	cfg.Fetcher.Accept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	cfg.Search.MaxResults = 20
	cfg.Search.Currency = "₽"
	cfg.Delivery.RetryDelay = time.Second
	cfg.Delivery.MaxDelay = 30 * time.Second
	cfg.Delivery.RatePerSec = 25
	cfg.LogLevel = "info"
	return cfg
}

// ApplyEnv overrides file values with TOKEN, CHAT_ID, USER_AGENT, DATABASE_URL and LOG_LEVEL
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := getenv("CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CHAT_ID %q: %w", v, err)
		}
		c.Telegram.ChatID = id
	}
	if v := getenv("USER_AGENT"); v != "" {
		c.Fetcher.UserAgent = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks the settings needed to run the bot
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is not set (TOKEN)")
	}
	return c.ValidateSearch()
}

// ValidateSearch checks the settings needed to run a search
func (c *Config) ValidateSearch() error {
	if c.Fetcher.BaseURL == "" {
		return fmt.Errorf("fetcher base_url is empty")
	}
	if c.Fetcher.Backend != "colly" && c.Fetcher.Backend != "rod" {
		return fmt.Errorf("unknown fetcher backend %q", c.Fetcher.Backend)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Delivery.RetryDelay <= 0 {
		return fmt.Errorf("delivery retry_delay must be positive")
	}
	if c.Delivery.MaxAttempts < 0 {
		return fmt.Errorf("delivery max_attempts must not be negative")
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
