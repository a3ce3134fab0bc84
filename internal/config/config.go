package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "yoga.yml"

// Environment variables that override the file.
const (
	EnvRedisURL = "YOGA_REDIS_URL"
	EnvProfile  = "YOGA_PROFILE"
	EnvDataDir  = "YOGA_DATA_DIR"
)

// Storage backends.
const (
	BackendRedis = "redis"
	BackendFile  = "file"
)

const (
	defaultProfile  = "default"
	defaultRedisURL = "redis://localhost:6379/0"
	defaultDataDir  = ".yoga"
	defaultLogLevel = "warn"
)

var profilePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Config represents the top-level yoga.yml configuration
type Config struct {
	Version string         `yaml:"version"`
	Profile string         `yaml:"profile,omitempty"` // Namespace isolating one user's data from another's
	Storage *StorageConfig `yaml:"storage,omitempty"`
	Content *ContentConfig `yaml:"content,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// StorageConfig selects and tunes the storage backend
type StorageConfig struct {
	Backend         string `yaml:"backend,omitempty"` // "redis" or "file" (default)
	RedisURL        string `yaml:"redis_url,omitempty"`
	Dir             string `yaml:"dir,omitempty"`
	QuotaBytes      int    `yaml:"quota_bytes,omitempty"`      // 0 = unlimited
	BackupCorrupted *bool  `yaml:"backup_corrupted,omitempty"` // Default: true
}

// ContentConfig points at an alternative pose catalog
type ContentConfig struct {
	Catalog string `yaml:"catalog,omitempty"` // Empty = embedded catalog
}

// LogConfig controls diagnostics output
type LogConfig struct {
	Level       string `yaml:"level,omitempty"` // debug, info, warn (default), error
	Development bool   `yaml:"development,omitempty"`
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	c := &Config{Version: "1.0"}
	// Cannot fail: every field is defaulted.
	_ = c.Validate()
	return c
}

// Validate performs strict validation on the configuration and fills in
// defaults for omitted sections.
func (c *Config) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Profile == "" {
		c.Profile = defaultProfile
	}
	if !profilePattern.MatchString(c.Profile) {
		return fmt.Errorf("invalid profile '%s': must be lowercase letters, digits, '-' or '_'", c.Profile)
	}

	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if c.Content == nil {
		c.Content = &ContentConfig{}
	}
	if c.Content.Catalog != "" {
		if _, err := os.Stat(c.Content.Catalog); err != nil {
			return fmt.Errorf("content.catalog does not exist: %s", c.Content.Catalog)
		}
	}

	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level '%s' (valid: debug, info, warn, error)", c.Log.Level)
	}

	return nil
}

// Validate checks the storage section and applies its defaults
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case "":
		s.Backend = BackendFile
	case BackendRedis, BackendFile:
	default:
		return fmt.Errorf("invalid storage.backend '%s' (valid: %s, %s)", s.Backend, BackendRedis, BackendFile)
	}

	if s.RedisURL == "" {
		s.RedisURL = defaultRedisURL
	}
	if s.Dir == "" {
		s.Dir = defaultDataDir
	}

	if s.QuotaBytes < 0 {
		return fmt.Errorf("storage.quota_bytes must be >= 0 (0 = unlimited), got %d", s.QuotaBytes)
	}

	if s.BackupCorrupted == nil {
		enabled := true
		s.BackupCorrupted = &enabled
	}

	return nil
}

// ApplyEnv overrides fields from environment variables and re-validates.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvRedisURL); v != "" {
		c.Storage.RedisURL = v
		c.Storage.Backend = BackendRedis
	}
	if v := getenv(EnvProfile); v != "" {
		c.Profile = v
	}
	if v := getenv(EnvDataDir); v != "" {
		c.Storage.Dir = v
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

// Load reads and validates yoga.yml from the specified path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	config, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return config, err
}

// NewLogger builds the zap logger described by the log section.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
