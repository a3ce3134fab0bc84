package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "yoga.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	catalog := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(`version: "1.0"`), 0644))

	path := writeConfig(t, `version: "1.0"
profile: alice
storage:
  backend: redis
  redis_url: redis://cache:6379/2
  quota_bytes: 5242880
  backup_corrupted: false
content:
  catalog: `+catalog+`
log:
  level: debug
  development: true
`)

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "alice", config.Profile)
	assert.Equal(t, BackendRedis, config.Storage.Backend)
	assert.Equal(t, "redis://cache:6379/2", config.Storage.RedisURL)
	assert.Equal(t, 5242880, config.Storage.QuotaBytes)
	assert.False(t, *config.Storage.BackupCorrupted)
	assert.Equal(t, catalog, config.Content.Catalog)
	assert.Equal(t, "debug", config.Log.Level)
	assert.True(t, config.Log.Development)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	config, err := Load(writeConfig(t, `version: "1.0"`))
	require.NoError(t, err)

	assert.Equal(t, "default", config.Profile)
	assert.Equal(t, BackendFile, config.Storage.Backend)
	assert.Equal(t, ".yoga", config.Storage.Dir)
	assert.Equal(t, "redis://localhost:6379/0", config.Storage.RedisURL)
	assert.Zero(t, config.Storage.QuotaBytes)
	assert.True(t, *config.Storage.BackupCorrupted)
	assert.Empty(t, config.Content.Catalog)
	assert.Equal(t, "warn", config.Log.Level)
}

func TestLoad_FileNotFound(t *testing.T) {
	config, err := Load("/nonexistent/yoga.yml")
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	config, err := Load(writeConfig(t, `version: "1.0"
storage:
  - this is invalid
    yaml syntax
`))
	assert.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadOrDefault(t *testing.T) {
	config, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), config)

	_, err = LoadOrDefault(writeConfig(t, `version: "9"`))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{"version", Config{Version: "2.0"}, "unsupported version: 2.0"},
		{"profile", Config{Version: "1.0", Profile: "Bad Name"}, "invalid profile 'Bad Name'"},
		{"backend", Config{Version: "1.0", Storage: &StorageConfig{Backend: "s3"}}, "invalid storage.backend 's3'"},
		{"quota", Config{Version: "1.0", Storage: &StorageConfig{QuotaBytes: -1}}, "storage.quota_bytes must be >= 0"},
		{"catalog", Config{Version: "1.0", Content: &ContentConfig{Catalog: "/nonexistent/catalog.yaml"}}, "content.catalog does not exist"},
		{"log level", Config{Version: "1.0", Log: &LogConfig{Level: "loud"}}, "invalid log.level 'loud'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvRedisURL: "redis://other:6380/1",
		EnvProfile:  "bob",
		EnvDataDir:  "/var/lib/yoga",
	}

	config := Default()
	require.NoError(t, config.ApplyEnv(func(k string) string { return env[k] }))

	assert.Equal(t, BackendRedis, config.Storage.Backend, "a redis url selects the redis backend")
	assert.Equal(t, "redis://other:6380/1", config.Storage.RedisURL)
	assert.Equal(t, "bob", config.Profile)
	assert.Equal(t, "/var/lib/yoga", config.Storage.Dir)

	config = Default()
	err := config.ApplyEnv(func(k string) string {
		if k == EnvProfile {
			return "NOT OK"
		}
		return ""
	})
	assert.ErrorContains(t, err, "invalid environment override")
}

func TestNewLogger(t *testing.T) {
	config := Default()
	logger, err := config.NewLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel), "debug is disabled at warn level")

	config.Log.Level = "debug"
	config.Log.Development = true
	logger, err = config.NewLogger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}
