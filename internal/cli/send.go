package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/store"
	"github.com/roach88/beacon/internal/validate"
)

// hostCategories are the event kinds a host may add.
var hostCategories = []string{
	payload.CategoryBusiness,
	payload.CategoryResource,
	payload.CategoryProgression,
	payload.CategoryDesign,
	payload.CategoryError,
}

// SendOptions holds flags for the send command.
type SendOptions struct {
	*RootOptions
	Fields  string
	Timeout time.Duration

	// EngineOptions are appended to the defaults (for testing).
	EngineOptions []engine.Option
}

// SendResult is reported after the one-shot session closes.
type SendResult struct {
	Category string      `json:"category"`
	Stats    store.Stats `json:"stats"`
}

func (r SendResult) String() string {
	return fmt.Sprintf("sent %s event (pending: %d, claimed: %d)", r.Category, r.Stats.Pending, r.Stats.Claimed)
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send <category>",
		Short: "Record one event and deliver it",
		Long: `Open a session, record one event, end the session and flush. Events the
collector does not accept stay in the local store for the next run.

Categories: business, resource, progression, design, error.

Example:
  beacon send design --fields '{"event_id":"level:start"}'
  beacon send business --fields '{"currency":"USD","amount":99,"item_type":"boost","item_id":"mega"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Fields, "fields", "{}", "event fields as a JSON object")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", DefaultShutdownTimeout, "how long to wait for delivery")

	return cmd
}

func runSend(cmd *cobra.Command, opts *SendOptions, category string) error {
	formatter := opts.formatter(cmd)

	if !slices.Contains(hostCategories, category) {
		formatter.Error(ErrCodeInput, fmt.Sprintf("unknown category %q", category), hostCategories)
		return NewExitError(ExitCommandError, "unknown category")
	}
	var fields payload.Object
	if err := json.Unmarshal([]byte(opts.Fields), &fields); err != nil {
		formatter.Error(ErrCodeInput, "fields must be a JSON object", err.Error())
		return WrapExitError(ExitCommandError, "invalid fields", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	rules := validate.Rules{Currencies: cfg.ResourceCurrencies, ItemTypes: cfg.ResourceItemTypes}
	if err := rules.Check(category, fields); err != nil {
		formatter.Error(ErrCodeInput, err.Error(), nil)
		return WrapExitError(ExitFailure, "event rejected", err)
	}

	logger := opts.newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	engOpts := append([]engine.Option{engine.WithLogger(logger)}, opts.EngineOptions...)
	eng, err := engine.Open(cfg, engOpts...)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open engine", err)
	}
	defer eng.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	eng.Initialize()
	eng.AddEvent(category, fields)
	done := eng.Shutdown()
	if err := eng.Run(ctx); err != nil {
		formatter.Error(ErrCodeGeneric, "delivery did not finish", err.Error())
		return WrapExitError(ExitFailure, "delivery did not finish", err)
	}
	<-done

	stats, err := eng.Stats(parent)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read stats", err)
	}
	return formatter.Success(SendResult{Category: category, Stats: stats})
}
