package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/beacon/internal/clock"
	"github.com/roach88/beacon/internal/ids"
	"github.com/roach88/beacon/internal/metrics"
	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/scheduler"
	"github.com/roach88/beacon/internal/store"
	"github.com/roach88/beacon/internal/transport"
	"github.com/roach88/beacon/internal/validate"
)

const (
	// DefaultBatchSize caps the rows claimed by one flush.
	DefaultBatchSize = 500
	// DefaultInterval is the periodic flush cadence.
	DefaultInterval = 8 * time.Second
	// DefaultErrorLimit caps sdk_error reports per distinct message per hour.
	DefaultErrorLimit = 10

	flushLabel = "flush"
)

// Session is the slice of session state the pipeline reads and updates.
// *state.Manager implements it.
type Session interface {
	Initialized() bool
	Enabled() bool
	SessionIsStarted() bool
	SessionID() string
	SessionStart() int64
	ClientTsAdjusted() int64
	Annotations() payload.Object
	SDKErrorAnnotations() payload.Object
	Dimensions() [3]string
	NextTransactionNum(ctx context.Context) int64
	IncrementProgressionTries(ctx context.Context, id string) int
	ClearProgressionTries(ctx context.Context, id string)
}

// Pipeline is the delivery pipeline.
type Pipeline struct {
	store     *store.Store
	transport transport.Transport
	session   Session
	recurring *scheduler.Recurring
	reporter  *ErrorReporter

	clock      clock.Clock
	ids        ids.Generator
	rules      validate.Rules
	metrics    *metrics.Recorder
	logger     *slog.Logger
	batchSize  int
	interval   time.Duration
	errorLimit int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize caps the rows claimed per flush.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithInterval sets the periodic flush cadence.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithIDs sets the claim token generator.
func WithIDs(g ids.Generator) Option {
	return func(p *Pipeline) {
		p.ids = g
	}
}

// WithClock sets the clock used for flush timing and error rate limits.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// WithRules sets the configured resource currencies and item types.
func WithRules(r validate.Rules) Option {
	return func(p *Pipeline) {
		p.rules = r
	}
}

// WithErrorLimit caps sdk_error reports per distinct message per hour.
func WithErrorLimit(n int) Option {
	return func(p *Pipeline) {
		p.errorLimit = n
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Pipeline) {
		p.metrics = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New builds a pipeline whose periodic flush runs on sched.
func New(st *store.Store, tr transport.Transport, session Session, sched *scheduler.Scheduler, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      st,
		transport:  tr,
		session:    session,
		clock:      clock.Real{},
		ids:        ids.UUIDv7Generator{},
		metrics:    metrics.Noop(),
		logger:     slog.Default(),
		batchSize:  DefaultBatchSize,
		interval:   DefaultInterval,
		errorLimit: DefaultErrorLimit,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.recurring = sched.NewRecurring(flushLabel, p.interval, func(ctx context.Context) error {
		p.Flush(ctx, "", true)
		return nil
	})
	p.reporter = newErrorReporter(tr, session, p.clock, p.errorLimit, p.logger)
	return p
}

// EnsureRunning starts the periodic flush if it is not already running.
func (p *Pipeline) EnsureRunning() bool {
	return p.recurring.Ensure()
}

// Halt stops the periodic flush after its current tick.
func (p *Pipeline) Halt() {
	p.recurring.Halt()
}

// Running reports whether the periodic flush is scheduled.
func (p *Pipeline) Running() bool {
	return p.recurring.Active()
}

// Reporter returns the sdk_error reporter.
func (p *Pipeline) Reporter() *ErrorReporter {
	return p.reporter
}
