// Package config loads and validates runtime configuration at startup.
// Fail-fast: if a required value is missing or invalid, Load returns an error
// and the process exits.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"pace/ingest-service/internal/model"
)

const (
	envPrefix = "INGEST_"
	// FileEnv names the variable pointing at an optional YAML config file.
	FileEnv = "INGEST_CONFIG"
)

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{"categories": true, "red_flags": true}

// Config holds all runtime configuration for the ingest service.
type Config struct {
	DatabaseURL string `koanf:"database_url" validate:"required"`
	RedisURL    string `koanf:"redis_url"`
	Port        string `koanf:"port" validate:"required,numeric"`
	Schedule    string `koanf:"schedule" validate:"required"`

	Categories         []string `koanf:"categories" validate:"min=1"`
	MaxPages           int      `koanf:"max_pages" validate:"min=1"`
	PageSize           int      `koanf:"page_size" validate:"min=1"`
	ParallelCategories bool     `koanf:"parallel_categories"`

	FuzzyLimit     int `koanf:"fuzzy_limit" validate:"min=1"`
	FuzzyThreshold int `koanf:"fuzzy_threshold" validate:"min=0,max=100"`

	MinDelay       time.Duration `koanf:"min_delay" validate:"gte=0"`
	MaxDelay       time.Duration `koanf:"max_delay" validate:"gtefield=MinDelay"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`

	RedFlags         []string      `koanf:"red_flags"`
	LogLevel         string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	Development      bool          `koanf:"development"`
	SourceLogEnabled bool          `koanf:"source_log_enabled"`
	LockTTL          time.Duration `koanf:"lock_ttl" validate:"gt=0"`
}

// Defaults returns the configuration used when nothing overrides a key.
// Categories is left empty here and filled after decoding, since decoding
// into a populated slice keeps its tail.
func Defaults() Config {
	return Config{
		Port:             "8081",
		Schedule:         "@every 6h",
		MaxPages:         3,
		PageSize:         24,
		FuzzyLimit:       100,
		FuzzyThreshold:   85,
		MinDelay:         time.Second,
		MaxDelay:         3 * time.Second,
		RequestTimeout:   20 * time.Second,
		LogLevel:         "info",
		SourceLogEnabled: true,
		LockTTL:          time.Hour,
	}
}

// Load builds a Config by layering, lowest precedence first:
//  1. Defaults()
//  2. the YAML file named by INGEST_CONFIG, if set
//  3. INGEST_* environment variables (a .env file is read first)
//
// Plain DATABASE_URL and REDIS_URL are honoured when the prefixed variables
// are absent.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if path := os.Getenv(FileEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	envProvider := env.ProviderWithValue(envPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		if key == "config" {
			return "", nil
		}
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Categories) == 0 {
		for _, c := range model.AllCategories {
			cfg.Categories = append(cfg.Categories, string(c))
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = os.Getenv("REDIS_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that every category is known.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.ParsedCategories(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ParsedCategories converts Categories to model values, preserving order.
func (c *Config) ParsedCategories() ([]model.Category, error) {
	out := make([]model.Category, 0, len(c.Categories))
	for _, raw := range c.Categories {
		cat, err := model.ParseCategory(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
