package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/beacon/internal/config"
	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/metrics"
)

// DefaultShutdownTimeout bounds the final session-end upload.
const DefaultShutdownTimeout = 15 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Duration        time.Duration
	ShutdownTimeout time.Duration

	// EngineOptions are appended to the defaults (for testing).
	EngineOptions []engine.Option
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the delivery loop",
		Long: `Open the local store, start a session and upload buffered events until
interrupted. On SIGINT or SIGTERM the session is ended and a final flush
is attempted before exit.

Example:
  beacon run --config beacon.yaml
  beacon run --config beacon.yaml --duration 1m --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBeacon(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", DefaultShutdownTimeout, "how long to wait for the final flush")

	return cmd
}

func runBeacon(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	logger := opts.newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder, shutdownMetrics, err := setupMetrics(parent, cfg, logger)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to start metrics", err)
	}
	defer shutdownMetrics()

	engOpts := append([]engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(recorder),
	}, opts.EngineOptions...)
	eng, err := engine.Open(cfg, engOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open engine", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}
	}()

	// The loop outlives the signal so the shutdown task can still run.
	loopCtx, cancelLoop := context.WithCancel(context.WithoutCancel(parent))
	defer cancelLoop()

	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	g.Go(func() error {
		waitForStop(gctx, sigCtx, opts.Duration)
		logger.Info("shutting down")
		select {
		case <-eng.Shutdown():
		case <-time.After(opts.shutdownTimeout()):
			logger.Warn("shutdown timed out, abandoning final flush")
			cancelLoop()
		}
		return nil
	})

	eng.Initialize()
	fmt.Fprintln(cmd.OutOrStdout(), "beacon running. Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	return nil
}

// waitForStop blocks until a signal, the optional duration, or the loop
// exiting on its own.
func waitForStop(loop, sig context.Context, d time.Duration) {
	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-sig.Done():
	case <-timeout:
	case <-loop.Done():
	}
}

func (o *RunOptions) shutdownTimeout() time.Duration {
	if o.ShutdownTimeout > 0 {
		return o.ShutdownTimeout
	}
	return DefaultShutdownTimeout
}

// setupMetrics exports to metrics_endpoint when set, otherwise records
// nothing.
func setupMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*metrics.Recorder, func(), error) {
	if cfg.MetricsEndpoint == "" {
		return metrics.Noop(), func() {}, nil
	}
	mp, err := metrics.NewOTLPProvider(ctx, cfg.MetricsEndpoint)
	if err != nil {
		return nil, nil, err
	}
	recorder, err := metrics.New(mp)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("exporting metrics", "endpoint", cfg.MetricsEndpoint)
	return recorder, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(ctx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}, nil
}
