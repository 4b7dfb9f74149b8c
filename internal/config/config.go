// Package config loads beacon settings from a YAML file, environment
// overrides and an embedded CUE schema.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults used when a field is left unset.
const (
	DefaultCollectorURL  = "https://api.gameanalytics.com"
	DefaultFlushInterval = 8 * time.Second
	DefaultBatchSize     = 500
	DefaultMaxDBSize     = 6291456
	DefaultTrimDBSize    = 5242880
	DefaultHTTPTimeout   = 10 * time.Second
	DefaultSDKErrorLimit = 10
	DefaultLogLevel      = "info"
	DefaultDataDirName   = ".beacon"
	DefaultDatabaseFile  = "beacon.db"
)

// Config is the full set of engine and CLI settings.
type Config struct {
	GameKey               string        `yaml:"game_key" env:"BEACON_GAME_KEY" json:"game_key"`
	GameSecret            string        `yaml:"game_secret" env:"BEACON_GAME_SECRET" json:"-"`
	CollectorURL          string        `yaml:"collector_url" env:"BEACON_COLLECTOR_URL" json:"collector_url"`
	DataDir               string        `yaml:"data_dir" env:"BEACON_DATA_DIR" json:"data_dir"`
	Build                 string        `yaml:"build" env:"BEACON_BUILD" json:"build"`
	UserID                string        `yaml:"user_id" env:"BEACON_USER_ID" json:"user_id,omitempty"`
	ManualSessionHandling bool          `yaml:"manual_session_handling" env:"BEACON_MANUAL_SESSION_HANDLING" json:"manual_session_handling"`
	FlushInterval         time.Duration `yaml:"flush_interval" env:"BEACON_FLUSH_INTERVAL" json:"flush_interval"`
	BatchSize             int           `yaml:"batch_size" env:"BEACON_BATCH_SIZE" json:"batch_size"`
	MaxDBSizeBytes        int64         `yaml:"max_db_size_bytes" env:"BEACON_MAX_DB_SIZE_BYTES" json:"max_db_size_bytes"`
	TrimDBSizeBytes       int64         `yaml:"trim_db_size_bytes" env:"BEACON_TRIM_DB_SIZE_BYTES" json:"trim_db_size_bytes"`
	HTTPTimeout           time.Duration `yaml:"http_timeout" env:"BEACON_HTTP_TIMEOUT" json:"http_timeout"`
	CustomDimensions01    []string      `yaml:"custom_dimensions_01" env:"BEACON_CUSTOM_DIMENSIONS_01" json:"custom_dimensions_01"`
	CustomDimensions02    []string      `yaml:"custom_dimensions_02" env:"BEACON_CUSTOM_DIMENSIONS_02" json:"custom_dimensions_02"`
	CustomDimensions03    []string      `yaml:"custom_dimensions_03" env:"BEACON_CUSTOM_DIMENSIONS_03" json:"custom_dimensions_03"`
	ResourceCurrencies    []string      `yaml:"resource_currencies" env:"BEACON_RESOURCE_CURRENCIES" json:"resource_currencies"`
	ResourceItemTypes     []string      `yaml:"resource_item_types" env:"BEACON_RESOURCE_ITEM_TYPES" json:"resource_item_types"`
	LogLevel              string        `yaml:"log_level" env:"BEACON_LOG_LEVEL" json:"log_level"`
	MetricsEndpoint       string        `yaml:"metrics_endpoint" env:"BEACON_METRICS_ENDPOINT" json:"metrics_endpoint,omitempty"`
	SDKErrorLimit         int           `yaml:"sdk_error_limit" env:"BEACON_SDK_ERROR_LIMIT" json:"sdk_error_limit"`
}

// Default returns a Config with every optional field populated. Keys are
// left empty and must be supplied by the file or the environment.
func Default() *Config {
	return &Config{
		CollectorURL:    DefaultCollectorURL,
		DataDir:         DefaultDataDirName,
		Build:           "0.0.1",
		FlushInterval:   DefaultFlushInterval,
		BatchSize:       DefaultBatchSize,
		MaxDBSizeBytes:  DefaultMaxDBSize,
		TrimDBSizeBytes: DefaultTrimDBSize,
		HTTPTimeout:     DefaultHTTPTimeout,
		LogLevel:        DefaultLogLevel,
		SDKErrorLimit:   DefaultSDKErrorLimit,
	}
}

// Load reads path (optional), applies BEACON_* overrides and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := Decode(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode merges YAML data into cfg, rejecting unknown keys.
func Decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// DatabasePath is the SQLite file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, DefaultDatabaseFile)
}

// Dimensions returns the allowed values for slots 1 to 3.
func (c *Config) Dimensions() [3][]string {
	return [3][]string{c.CustomDimensions01, c.CustomDimensions02, c.CustomDimensions03}
}
