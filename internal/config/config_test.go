package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGameKey    = "5c6bcb5402204249437fb5a7a80a4959"
	testGameSecret = "16813a12f718bc5c620f56944e1abc3ea13ccbac"
)

func validConfig() *Config {
	cfg := Default()
	cfg.GameKey = testGameKey
	cfg.GameSecret = testGameSecret
	return cfg
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	require.NoError(t, err)

	assert.Equal(t, testGameKey, cfg.GameKey)
	assert.Equal(t, "https://collector.test", cfg.CollectorURL)
	assert.Equal(t, 20*time.Second, cfg.FlushInterval)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, []string{"ninja", "samurai"}, cfg.CustomDimensions01)
	assert.Equal(t, "debug", cfg.LogLevel)

	// untouched fields keep their defaults
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)
	assert.Equal(t, int64(DefaultMaxDBSize), cfg.MaxDBSizeBytes)
	assert.Equal(t, "/tmp/beacon/beacon.db", cfg.DatabasePath())
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	_, err := Load("testdata/typo.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush_intervall")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("BEACON_BATCH_SIZE", "250")
	t.Setenv("BEACON_FLUSH_INTERVAL", "30s")
	t.Setenv("BEACON_RESOURCE_CURRENCIES", "coins,gems")
	t.Setenv("BEACON_MANUAL_SESSION_HANDLING", "true")

	cfg, err := Load("testdata/valid.yaml")
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.FlushInterval)
	assert.Equal(t, []string{"coins", "gems"}, cfg.ResourceCurrencies)
	assert.True(t, cfg.ManualSessionHandling)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("BEACON_GAME_KEY", testGameKey)
	t.Setenv("BEACON_GAME_SECRET", testGameSecret)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFlushInterval, cfg.FlushInterval)
}

func TestParseEnv_BadValue(t *testing.T) {
	t.Setenv("BEACON_BATCH_SIZE", "lots")
	err := ParseEnv(Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate_Default(t *testing.T) {
	require.NoError(t, Validate(validConfig()))

	// keys are mandatory
	err := Validate(Default())
	require.Error(t, err)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"short game key", func(c *Config) { c.GameKey = "abc" }, "game_key"},
		{"secret with symbols", func(c *Config) { c.GameSecret = "16813a12f718bc5c620f56944e1abc3ea13cc-ac" }, "game_secret"},
		{"collector scheme", func(c *Config) { c.CollectorURL = "ftp://x" }, "collector_url"},
		{"empty build", func(c *Config) { c.Build = "" }, "build"},
		{"flush too fast", func(c *Config) { c.FlushInterval = time.Millisecond }, "flush_interval"},
		{"batch over cap", func(c *Config) { c.BatchSize = 501 }, "batch_size"},
		{"trim above max", func(c *Config) { c.TrimDBSizeBytes = c.MaxDBSizeBytes + 1 }, "trim_db_size_bytes"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad currency", func(c *Config) { c.ResourceCurrencies = []string{"gold1"} }, "resource_currencies.0"},
		{"long dimension", func(c *Config) {
			c.CustomDimensions02 = []string{"abcdefghijklmnopqrstuvwxyz0123456789"}
		}, "custom_dimensions_02.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			var se *SchemaError
			require.ErrorAs(t, err, &se)
			assert.Contains(t, se.Path, tt.path)
		})
	}
}

func TestValidate_DimensionCap(t *testing.T) {
	cfg := validConfig()
	for i := 0; i < 21; i++ {
		cfg.CustomDimensions01 = append(cfg.CustomDimensions01, "v")
	}
	require.Error(t, Validate(cfg))
}
