package cli

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/beacon/internal/store"
)

// StatusReport is the output of the status command.
type StatusReport struct {
	Database string      `json:"database"`
	Stats    store.Stats `json:"stats"`
}

func (r StatusReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "database:      %s\n", r.Database)
	fmt.Fprintf(&b, "size:          %d bytes\n", r.Stats.SizeBytes)
	fmt.Fprintf(&b, "pending:       %d\n", r.Stats.Pending)
	for _, cat := range slices.Sorted(maps.Keys(r.Stats.ByCategory)) {
		fmt.Fprintf(&b, "  %-12s %d\n", cat, r.Stats.ByCategory[cat])
	}
	fmt.Fprintf(&b, "claimed:       %d\n", r.Stats.Claimed)
	fmt.Fprintf(&b, "open sessions: %d\n", r.Stats.OpenSessions)
	fmt.Fprintf(&b, "state keys:    %d", r.Stats.StateKeys)
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Inspect the local event buffer",
		Long: `Report pending and claimed events, open session snapshots and the
database size. The database is only read: missing or unreadable tables
are reported, never created or repaired, and oversized stores are not
trimmed. Do not run it against a store an engine is using.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, rootOpts)
		},
	}
}

func runStatus(cmd *cobra.Command, opts *RootOptions) error {
	formatter := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}

	path := cfg.DatabasePath()
	if _, err := os.Stat(path); err != nil {
		formatter.Error(ErrCodeStore, fmt.Sprintf("no database at %s", path), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	formatter.VerboseLog("opening %s", path)
	st, err := store.Open(path, store.WithLogger(opts.newLogger(cmd.ErrOrStderr(), cfg.LogLevel)))
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := st.CheckSchema(ctx); err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "database schema unusable", err)
	}
	stats, err := st.Stats(ctx)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read stats", err)
	}
	return formatter.Success(StatusReport{Database: path, Stats: stats})
}
