// Package config provides explicit application configuration. The resulting
// Config is constructed once at startup and passed into components; nothing
// here is read through ambient globals after that point.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minhpq/hoard/internal/common"
	"github.com/spf13/viper"
)

// LLMConfig holds settings for the extraction model provider.
type LLMConfig struct {
	Provider    string
	APIKey      string
	Model       string
	MaxRetries  int
	RetryDelay  time.Duration
	CacheTTL    time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

// RatesConfig holds settings for the external FX/price provider.
type RatesConfig struct {
	BaseURL string
	APIKey  string
	Source  string
	Timeout time.Duration
}

// Config is the process-wide configuration.
type Config struct {
	DBPath             string
	Timezone           string
	SigningSecret      string
	DefaultSpendVault  string
	DefaultIncomeVault string
	BorrowVault        string
	ExtraTags          []string
	GroundingTTL       time.Duration
	LLM                LLMConfig
	Rates              RatesConfig

	location *time.Location
}

// Load builds a Config from viper's merged file, env and flag settings.
func Load() (*Config, error) {
	viper.SetDefault("db.path", "~/.local/share/hoard/hoard.db")
	viper.SetDefault("timezone", "Asia/Ho_Chi_Minh")
	viper.SetDefault("vaults.spend", "Bank")
	viper.SetDefault("vaults.income", "Bank")
	viper.SetDefault("vaults.borrow", "Borrowings")
	viper.SetDefault("grounding.ttl", "5m")
	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("llm.retry_delay", "1s")
	viper.SetDefault("llm.cache_ttl", "1h")
	viper.SetDefault("llm.rate_limit", 60)
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("rates.base_url", "https://api.exchangerate.host")
	viper.SetDefault("rates.source", "exchangerate.host")
	viper.SetDefault("rates.timeout", "10s")

	cfg := &Config{
		DBPath:             ExpandPath(viper.GetString("db.path")),
		Timezone:           viper.GetString("timezone"),
		SigningSecret:      viper.GetString("signing_secret"),
		DefaultSpendVault:  viper.GetString("vaults.spend"),
		DefaultIncomeVault: viper.GetString("vaults.income"),
		BorrowVault:        viper.GetString("vaults.borrow"),
		ExtraTags:          viper.GetStringSlice("grounding.extra_tags"),
		GroundingTTL:       viper.GetDuration("grounding.ttl"),
		LLM: LLMConfig{
			Provider:    viper.GetString("llm.provider"),
			APIKey:      viper.GetString("llm.api_key"),
			Model:       viper.GetString("llm.model"),
			MaxRetries:  viper.GetInt("llm.max_retries"),
			RetryDelay:  viper.GetDuration("llm.retry_delay"),
			CacheTTL:    viper.GetDuration("llm.cache_ttl"),
			RateLimit:   viper.GetInt("llm.rate_limit"),
			Temperature: viper.GetFloat64("llm.temperature"),
			MaxTokens:   viper.GetInt("llm.max_tokens"),
		},
		Rates: RatesConfig{
			BaseURL: viper.GetString("rates.base_url"),
			APIKey:  viper.GetString("rates.api_key"),
			Source:  viper.GetString("rates.source"),
			Timeout: viper.GetDuration("rates.timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields and resolves the timezone.
func (c *Config) Validate() error {
	if c.SigningSecret == "" {
		return fmt.Errorf("%w: signing_secret is required", common.ErrMissingConfig)
	}
	if c.DefaultSpendVault == "" || c.DefaultIncomeVault == "" {
		return fmt.Errorf("%w: default spend and income vaults are required", common.ErrMissingConfig)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("%w: invalid timezone %q: %v", common.ErrInvalidConfig, c.Timezone, err)
	}
	c.location = loc
	return nil
}

// Location returns the configured timezone, defaulting to UTC when the config
// has not been validated.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// ExpandPath expands a leading ~ and any environment variables in a file path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return os.ExpandEnv(path)
}
