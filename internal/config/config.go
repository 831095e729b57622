// Package config loads the league engine configuration from a YAML file
// with ${VAR} expansion, then applies environment overrides and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for optional configuration fields.
const (
	DefaultPort              = "8080"
	DefaultAllowedOrigin     = "*"
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultCacheTTL          = 30 * time.Second
	DefaultRedisNamespace    = "league:"
	DefaultSchedulerInterval = time.Minute
	DefaultSchedulerParallel = 4
	DefaultSettlementLease   = 2 * time.Minute
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Settlement SettlementConfig `yaml:"settlement"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the key-value backend. With only a database URL
// Postgres is used; adding a Redis URL puts a read-through cache in front.
// With only a Redis URL, Redis is the primary store. With neither, data
// lives in memory.
type StorageConfig struct {
	DatabaseURL    string        `yaml:"database_url"`
	RedisURL       string        `yaml:"redis_url"`
	RedisNamespace string        `yaml:"redis_namespace"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
}

// SettlementConfig configures the settlement scheduler.
type SettlementConfig struct {
	Interval      time.Duration `yaml:"interval"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Lease         time.Duration `yaml:"lease"`
	Owner         string        `yaml:"owner"`
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return &cfg, nil
}

// FromEnv builds the configuration the server runs with. The file named by
// CONFIG_PATH is optional; PORT, DATABASE_URL and REDIS_URL override it.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{DefaultAllowedOrigin}
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Storage.RedisNamespace == "" {
		c.Storage.RedisNamespace = DefaultRedisNamespace
	}
	if c.Storage.CacheTTL == 0 {
		c.Storage.CacheTTL = DefaultCacheTTL
	}

	if c.Settlement.Interval == 0 {
		c.Settlement.Interval = DefaultSchedulerInterval
	}
	if c.Settlement.MaxConcurrent == 0 {
		c.Settlement.MaxConcurrent = DefaultSchedulerParallel
	}
	if c.Settlement.Lease == 0 {
		c.Settlement.Lease = DefaultSettlementLease
	}
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if c.Storage.CacheTTL < 0 {
		return errors.New("storage.cache_ttl must not be negative")
	}
	if c.Settlement.Interval < time.Second {
		return fmt.Errorf("settlement.interval must be at least 1s, got %s", c.Settlement.Interval)
	}
	if c.Settlement.MaxConcurrent < 1 {
		return errors.New("settlement.max_concurrent must be >= 1")
	}
	if c.Settlement.Lease <= 0 {
		return errors.New("settlement.lease must be positive")
	}
	return nil
}
