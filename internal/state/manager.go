package state

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/beacon/internal/clock"
	"github.com/roach88/beacon/internal/device"
	"github.com/roach88/beacon/internal/ids"
	"github.com/roach88/beacon/internal/metrics"
	"github.com/roach88/beacon/internal/store"
	"github.com/roach88/beacon/internal/transport"
)

// Persisted state keys.
const (
	KeyDefaultUserID      = "default_user_id"
	KeySessionNum         = "session_num"
	KeyTransactionNum     = "transaction_num"
	KeyConfigCached       = "sdk_config_cached"
	KeyLastUsedIdentifier = "last_used_identifier"
)

// DimensionKeys are the persisted keys of the three custom dimension slots.
var DimensionKeys = [3]string{"dimension01", "dimension02", "dimension03"}

// Events is the delivery side of the session lifecycle.
type Events interface {
	// AddSessionStart records the session start event and flushes it.
	AddSessionStart(ctx context.Context)
	// AddSessionEnd records the session end event and flushes.
	AddSessionEnd(ctx context.Context, length int64)
	// EnsureRunning starts the periodic flush.
	EnsureRunning() bool
	// Halt stops the periodic flush after its current tick.
	Halt()
}

// Phase is the lifecycle position of a Manager.
type Phase int

const (
	Uninitialized Phase = iota
	Initializing
	SessionActive
	SessionIdle
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case SessionActive:
		return "session_active"
	case SessionIdle:
		return "session_idle"
	default:
		return "uninitialized"
	}
}

// Manager holds SessionState. Construct one per engine with New and wire
// the delivery side with SetEvents before Initialize.
type Manager struct {
	store     *store.Store
	transport transport.Transport
	events    Events
	clock     clock.Clock
	ids       ids.Generator
	device    device.Info
	metrics   *metrics.Recorder
	logger    *slog.Logger

	build           string
	configuredUser  string
	dimensionValues [3][]string

	initialized  atomic.Bool
	initializing bool
	enabled      bool
	authorized   bool

	sessionID      string
	sessionStart   int64
	sessionNum     int64
	transactionNum int64
	offset         atomic.Int64

	defaultUserID string
	dimensions    [3]string
	progression   map[string]int

	cached   *transport.ConfigDocument
	resolved Resolved

	cfgMu       sync.RWMutex
	remote      map[string]string
	remoteReady bool
	listeners   []func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the local clock.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithIDs sets the generator for session ids and the default user id.
func WithIDs(g ids.Generator) Option {
	return func(m *Manager) {
		m.ids = g
	}
}

// WithDevice sets the device snapshot used in annotations.
func WithDevice(info device.Info) Option {
	return func(m *Manager) {
		m.device = info
	}
}

// WithBuild sets the host build string.
func WithBuild(build string) Option {
	return func(m *Manager) {
		m.build = build
	}
}

// WithUserID sets a host supplied user id that takes precedence over the
// generated default.
func WithUserID(id string) Option {
	return func(m *Manager) {
		m.configuredUser = id
	}
}

// WithDimensionValues sets the allowed values of the three custom
// dimension slots.
func WithDimensionValues(values [3][]string) Option {
	return func(m *Manager) {
		m.dimensionValues = values
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// New returns an uninitialized Manager.
func New(st *store.Store, tr transport.Transport, opts ...Option) *Manager {
	m := &Manager{
		store:       st,
		transport:   tr,
		clock:       clock.Real{},
		ids:         ids.UUIDv7Generator{},
		device:      device.Info{SDKVersion: device.SDKVersion},
		metrics:     metrics.Noop(),
		logger:      slog.Default(),
		progression: make(map[string]int),
		remote:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetEvents wires the delivery side. Must be called before Initialize.
func (m *Manager) SetEvents(e Events) {
	m.events = e
}

// Initialized reports whether Initialize has completed its load step.
// Safe from any goroutine.
func (m *Manager) Initialized() bool {
	return m.initialized.Load()
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	switch {
	case m.initializing:
		return Initializing
	case !m.initialized.Load():
		return Uninitialized
	case m.sessionStart != 0:
		return SessionActive
	default:
		return SessionIdle
	}
}

// Enabled reports the enablement computed by the last session start.
func (m *Manager) Enabled() bool { return m.enabled }

// Authorized reports whether the last init call was not rejected.
func (m *Manager) Authorized() bool { return m.authorized }

// SessionID is the open session's id, or the last one after it ended.
func (m *Manager) SessionID() string { return m.sessionID }

// SessionStart is the adjusted start time of the open session, 0 if none.
func (m *Manager) SessionStart() int64 { return m.sessionStart }

// SessionIsStarted reports whether a session is open.
func (m *Manager) SessionIsStarted() bool { return m.sessionStart != 0 }

// SessionNum is the number of sessions started on this install.
func (m *Manager) SessionNum() int64 { return m.sessionNum }

// TransactionNum is the number of business events recorded on this
// install.
func (m *Manager) TransactionNum() int64 { return m.transactionNum }

// Offset is the current client/server offset in seconds.
func (m *Manager) Offset() int64 { return m.offset.Load() }

// Tier is the tier of the effective config.
func (m *Manager) Tier() Tier { return m.resolved.Tier }

// Device returns the device snapshot.
func (m *Manager) Device() device.Info { return m.device }
