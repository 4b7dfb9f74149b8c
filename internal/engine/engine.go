package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/roach88/beacon/internal/clock"
	"github.com/roach88/beacon/internal/config"
	"github.com/roach88/beacon/internal/delivery"
	"github.com/roach88/beacon/internal/device"
	"github.com/roach88/beacon/internal/ids"
	"github.com/roach88/beacon/internal/metrics"
	"github.com/roach88/beacon/internal/scheduler"
	"github.com/roach88/beacon/internal/state"
	"github.com/roach88/beacon/internal/store"
	"github.com/roach88/beacon/internal/transport"
	"github.com/roach88/beacon/internal/validate"
)

// Engine wires the scheduler, store, session state and delivery pipeline
// behind fire-and-forget host methods.
//
// CRITICAL: the store and the session state are only touched from the
// scheduler goroutine. Host methods submit tasks and return.
type Engine struct {
	cfg      *config.Config
	store    *store.Store
	sched    *scheduler.Scheduler
	state    *state.Manager
	pipeline *delivery.Pipeline
	logger   *slog.Logger

	shutdownOnce sync.Once
	done         chan struct{}
}

type options struct {
	clock   clock.Clock
	ids     ids.Generator
	device  *device.Info
	metrics *metrics.Recorder
	logger  *slog.Logger
	quantum time.Duration
}

// Option configures an Engine.
type Option func(*options)

// WithClock sets the clock shared by the scheduler, state and pipeline.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIDs sets the generator for user ids, session ids and claim tokens.
func WithIDs(g ids.Generator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithDevice overrides host detection.
func WithDevice(info device.Info) Option {
	return func(o *options) {
		o.device = &info
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(o *options) {
		o.metrics = r
	}
}

// WithLogger sets the logger passed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithQuantum bounds how long the loop sleeps between checks.
func WithQuantum(d time.Duration) Option {
	return func(o *options) {
		o.quantum = d
	}
}

// New builds an Engine around an open store and a transport. The loop is
// not started; call Run or Start.
func New(cfg *config.Config, st *store.Store, tr transport.Transport, opts ...Option) *Engine {
	o := options{
		clock:   clock.Real{},
		ids:     ids.UUIDv7Generator{},
		metrics: metrics.Noop(),
		logger:  slog.Default(),
		quantum: scheduler.DefaultQuantum,
	}
	for _, opt := range opts {
		opt(&o)
	}
	dev := device.Detect(cfg.DataDir)
	if o.device != nil {
		dev = *o.device
	}

	sched := scheduler.New(
		scheduler.WithClock(o.clock),
		scheduler.WithQuantum(o.quantum),
		scheduler.WithLogger(o.logger),
	)
	mgr := state.New(st, tr,
		state.WithClock(o.clock),
		state.WithIDs(o.ids),
		state.WithDevice(dev),
		state.WithBuild(cfg.Build),
		state.WithUserID(cfg.UserID),
		state.WithDimensionValues(cfg.Dimensions()),
		state.WithMetrics(o.metrics),
		state.WithLogger(o.logger),
	)
	pl := delivery.New(st, tr, mgr, sched,
		delivery.WithBatchSize(cfg.BatchSize),
		delivery.WithInterval(cfg.FlushInterval),
		delivery.WithIDs(o.ids),
		delivery.WithClock(o.clock),
		delivery.WithRules(validate.Rules{
			Currencies: cfg.ResourceCurrencies,
			ItemTypes:  cfg.ResourceItemTypes,
		}),
		delivery.WithErrorLimit(cfg.SDKErrorLimit),
		delivery.WithMetrics(o.metrics),
		delivery.WithLogger(o.logger),
	)
	mgr.SetEvents(pl)

	return &Engine{
		cfg:      cfg,
		store:    st,
		sched:    sched,
		state:    mgr,
		pipeline: pl,
		logger:   o.logger,
		done:     make(chan struct{}),
	}
}

// Open creates the data directory, opens the store and builds an Engine
// talking to the configured collector over HTTP.
func Open(cfg *config.Config, opts ...Option) (*Engine, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath(),
		store.WithSizeLimits(cfg.MaxDBSizeBytes, cfg.TrimDBSizeBytes),
		store.WithLogger(o.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	tr := transport.NewHTTPClient(cfg.CollectorURL, cfg.GameKey, cfg.GameSecret,
		transport.WithTimeout(cfg.HTTPTimeout),
		transport.WithLogger(o.logger),
	)
	return New(cfg, st, tr, opts...), nil
}

// Run executes the task loop on the calling goroutine until ctx is
// cancelled or Shutdown completes.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "data_dir", e.cfg.DataDir)
	err := e.sched.Run(ctx)
	e.logger.Info("engine stopped")
	return err
}

// Start runs the task loop on its own goroutine. Returns false if a loop
// is already running.
func (e *Engine) Start(ctx context.Context) bool {
	return e.sched.Start(ctx)
}

// RunPending executes every task due now on the calling goroutine and
// returns how many ran. For hosts that drive the loop themselves; never
// mix it with Run or Start.
func (e *Engine) RunPending(ctx context.Context) int {
	return e.sched.RunPending(ctx)
}

// Close releases the store. Call it after the loop has exited.
func (e *Engine) Close() error {
	return e.store.Close()
}

// IsInitialized reports whether Initialize has loaded persisted state.
// Safe from any goroutine.
func (e *Engine) IsInitialized() bool {
	return e.state.Initialized()
}

// RemoteConfig returns the active remote value for key, or fallback.
// Safe from any goroutine.
func (e *Engine) RemoteConfig(key, fallback string) string {
	return e.state.RemoteConfig(key, fallback)
}

// RemoteConfigReady reports whether a live or cached config is active.
// Safe from any goroutine.
func (e *Engine) RemoteConfigReady() bool {
	return e.state.RemoteConfigReady()
}

// OnRemoteConfigUpdated registers fn to run after every remote config
// swap. fn runs on the scheduler goroutine and must not block.
func (e *Engine) OnRemoteConfigUpdated(fn func()) {
	e.state.OnRemoteConfigUpdated(fn)
}

// Stats summarizes the local buffer. Call it only while the loop is not
// running; the store is otherwise owned by the scheduler goroutine.
func (e *Engine) Stats(ctx context.Context) (store.Stats, error) {
	return e.store.Stats(ctx)
}
