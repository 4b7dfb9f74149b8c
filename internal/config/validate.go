package config

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource string

// SchemaError describes the first schema violation found in a Config.
type SchemaError struct {
	Path    string
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config: %s: %s", e.Path, e.Message)
	}
	return "config: " + e.Message
}

// Validate checks cfg against the embedded #Config definition. The
// definition is closed, so fields unknown to the schema are errors too.
func Validate(cfg *Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(view(cfg)))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// view is the schema's shape of cfg: snake_case keys, durations in
// nanoseconds and non-nil lists.
func view(cfg *Config) map[string]any {
	return map[string]any{
		"game_key":                cfg.GameKey,
		"game_secret":             cfg.GameSecret,
		"collector_url":           cfg.CollectorURL,
		"data_dir":                cfg.DataDir,
		"build":                   cfg.Build,
		"user_id":                 cfg.UserID,
		"manual_session_handling": cfg.ManualSessionHandling,
		"flush_interval":          int64(cfg.FlushInterval),
		"http_timeout":            int64(cfg.HTTPTimeout),
		"batch_size":              cfg.BatchSize,
		"max_db_size_bytes":       cfg.MaxDBSizeBytes,
		"trim_db_size_bytes":      cfg.TrimDBSizeBytes,
		"custom_dimensions_01":    nonNil(cfg.CustomDimensions01),
		"custom_dimensions_02":    nonNil(cfg.CustomDimensions02),
		"custom_dimensions_03":    nonNil(cfg.CustomDimensions03),
		"resource_currencies":     nonNil(cfg.ResourceCurrencies),
		"resource_item_types":     nonNil(cfg.ResourceItemTypes),
		"log_level":               cfg.LogLevel,
		"metrics_endpoint":        cfg.MetricsEndpoint,
		"sdk_error_limit":         cfg.SDKErrorLimit,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// formatCUEError reduces a CUE error list to its first entry with the
// offending field path.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}

	first := errs[0]
	format, args := first.Msg()
	path := first.Path()
	if len(path) > 0 && path[0] == "#Config" {
		path = path[1:]
	}
	se := &SchemaError{
		Path:    strings.Join(path, "."),
		Message: fmt.Sprintf(format, args...),
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		se.Pos = positions[0]
	}
	return se
}
