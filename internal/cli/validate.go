package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/beacon/internal/config"
)

// ValidationResult holds the outcome of the validate command.
type ValidationResult struct {
	Valid  bool             `json:"valid"`
	Path   string           `json:"path,omitempty"`
	Config *config.Config   `json:"config,omitempty"`
	Error  *ValidationIssue `json:"error,omitempty"`
}

// ValidationIssue locates a schema violation.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (r ValidationResult) String() string {
	src := r.Path
	if src == "" {
		src = "environment"
	}
	return fmt.Sprintf("✓ config valid (%s)", src)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config]",
		Short: "Check a config file against the schema",
		Long: `Load a config file, apply BEACON_* environment overrides and check the
result against the embedded schema. The positional path wins over --config.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(cmd, rootOpts, path)
		},
	}
}

func runValidate(cmd *cobra.Command, opts *RootOptions, path string) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("validating %q", path)

	cfg, err := config.Load(path)
	if err != nil {
		var se *config.SchemaError
		if errors.As(err, &se) {
			formatter.Error(ErrCodeSchema, se.Message, ValidationIssue{Field: se.Path, Message: se.Message})
			return WrapExitError(ExitFailure, "config invalid", err)
		}
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "config unreadable", err)
	}
	return formatter.Success(ValidationResult{Valid: true, Path: path, Config: cfg})
}
