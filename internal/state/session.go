package state

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/roach88/beacon/internal/fault"
	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/transport"
	"github.com/roach88/beacon/internal/validate"
)

// maxSkew bounds how far an adjusted timestamp may drift from the local
// clock before the local clock is used instead.
const maxSkew = int64(365 * 24 * time.Hour / time.Second)

// Initialize loads persisted state, marks the manager initialized and
// runs the session-start protocol. A second call is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.initialized.Load() || m.initializing {
		m.logger.Warn("initialize called twice, ignoring")
		return nil
	}
	if m.events == nil {
		return fault.Validation("initialize", "no delivery wired")
	}

	m.initializing = true
	if err := m.loadPersisted(ctx); err != nil {
		m.initializing = false
		return err
	}
	m.initializing = false
	m.initialized.Store(true)

	m.logger.Info("state initialized",
		"user_id", m.Identifier(),
		"session_num", m.sessionNum,
		"tier", m.resolved.Tier.String(),
	)

	m.startSession(ctx)
	return nil
}

// loadPersisted reads identity, counters, dimensions, cached config and
// progression tries from the store.
func (m *Manager) loadPersisted(ctx context.Context) error {
	values, err := m.store.LoadState(ctx)
	if err != nil {
		return err
	}

	m.defaultUserID = values[KeyDefaultUserID]
	if m.defaultUserID == "" {
		m.defaultUserID = m.ids.Generate()
	}
	m.persist(ctx, KeyDefaultUserID, m.defaultUserID)

	m.sessionNum = parseCounter(values[KeySessionNum])
	m.transactionNum = parseCounter(values[KeyTransactionNum])
	for i, key := range DimensionKeys {
		m.dimensions[i] = values[key]
	}

	if blob := values[KeyConfigCached]; blob != "" {
		doc, err := decodeConfig(blob)
		if err != nil {
			m.logger.Warn("cached config unreadable, using defaults", "error", err)
			m.persist(ctx, KeyConfigCached, "")
		} else {
			m.cached = doc
		}
	}
	m.resolved = Resolve(nil, m.cached)
	m.offset.Store(m.resolved.TimeOffset())

	tries, err := m.store.LoadProgression(ctx)
	if err != nil {
		return err
	}
	m.progression = tries

	if id := m.Identifier(); values[KeyLastUsedIdentifier] != id {
		m.persist(ctx, KeyLastUsedIdentifier, id)
	}
	return nil
}

// startSession is the session-start protocol: init call, tier
// resolution, enablement and, when enabled, a fresh session.
func (m *Manager) startSession(ctx context.Context) {
	m.validateDimensions(ctx)

	local := m.clock.Now().Unix()
	outcome, doc := m.transport.PostInit(ctx, m.initRequest())

	switch {
	case outcome.Success() && doc != nil:
		doc.TimeOffset = calcOffset(doc.ServerTS, local)
		m.cacheConfig(ctx, doc)
		m.resolved = Resolve(doc, m.cached)
		m.authorized = true
	case outcome == transport.Unauthorized:
		m.logger.Warn("init call rejected: unauthorized")
		m.authorized = false
	default:
		if m.resolved.Tier == TierDefault {
			m.resolved = Resolve(nil, m.cached)
		}
		m.logger.Info("init call failed, degrading",
			"outcome", outcome.String(),
			"tier", m.resolved.Tier.String(),
		)
		m.authorized = true
	}

	m.offset.Store(m.resolved.TimeOffset())
	m.applyRemoteConfig()

	m.enabled = m.resolved.Enabled() && m.authorized
	if !m.enabled {
		m.logger.Warn("could not start session: telemetry disabled",
			"authorized", m.authorized,
			"tier", m.resolved.Tier.String(),
		)
		m.events.Halt()
		return
	}
	m.events.EnsureRunning()

	m.sessionID = m.ids.Generate()
	m.sessionStart = m.ClientTsAdjusted()
	m.sessionNum++
	m.persist(ctx, KeySessionNum, strconv.FormatInt(m.sessionNum, 10))
	m.metrics.SessionStarted(ctx)

	m.logger.Info("session started",
		"session_id", m.sessionID,
		"session_num", m.sessionNum,
	)
	m.events.AddSessionStart(ctx)
}

// EndSession closes the open session if telemetry is enabled, and always
// halts the periodic flush.
func (m *Manager) EndSession(ctx context.Context) {
	if !m.initialized.Load() {
		return
	}
	m.logger.Info("ending session", "session_id", m.sessionID)
	m.events.Halt()

	if m.enabled && m.sessionStart != 0 {
		length := max(0, m.ClientTsAdjusted()-m.sessionStart)
		// Closed before the event is added so the flush that follows
		// does not refresh the snapshot the session_end just removed.
		m.sessionStart = 0
		m.events.AddSessionEnd(ctx, length)
	}
}

// ResumeSession opens a new session if none is open.
func (m *Manager) ResumeSession(ctx context.Context) {
	if !m.initialized.Load() {
		return
	}
	if m.sessionStart != 0 {
		m.logger.Debug("resume ignored: session already open", "session_id", m.sessionID)
		return
	}
	m.logger.Info("resuming session")
	m.startSession(ctx)
}

// ClientTsAdjusted is the local clock corrected by the server offset. If
// the corrected value is implausible the local clock is returned.
func (m *Manager) ClientTsAdjusted() int64 {
	local := m.clock.Now().Unix()
	adjusted := local + m.offset.Load()
	if validate.ClientTs(adjusted) != nil {
		return local
	}
	if d := adjusted - local; d > maxSkew || d < -maxSkew {
		return local
	}
	return adjusted
}

func calcOffset(serverTS, local int64) int64 {
	if validate.ClientTs(serverTS) != nil {
		return 0
	}
	return serverTS - local
}

func (m *Manager) initRequest() transport.InitRequest {
	return transport.InitRequest{
		Platform:    m.device.Platform,
		OSVersion:   m.device.OSVersion,
		SDKVersion:  m.device.SDKVersion,
		Build:       m.build,
		UserID:      m.Identifier(),
		ConfigsHash: m.cachedHash(),
	}
}

func (m *Manager) cachedHash() string {
	if m.cached == nil {
		return ""
	}
	if m.cached.ConfigsHash != "" {
		return m.cached.ConfigsHash
	}
	blob, err := json.Marshal(m.cached.Configs)
	if err != nil || len(m.cached.Configs) == 0 {
		return ""
	}
	return payload.ConfigHash(blob)
}

func (m *Manager) cacheConfig(ctx context.Context, doc *transport.ConfigDocument) {
	blob, err := json.Marshal(doc)
	if err != nil {
		m.logger.Error("failed to encode config for cache", "error", err)
		return
	}
	m.cached = doc
	m.persist(ctx, KeyConfigCached, string(blob))
}

func decodeConfig(blob string) (*transport.ConfigDocument, error) {
	var doc transport.ConfigDocument
	if err := json.Unmarshal([]byte(blob), &doc); err != nil {
		return nil, fault.ConfigDecode("decode cached config", err)
	}
	return &doc, nil
}

// persist writes key, deleting it when value is empty. Failures are
// logged by the store and otherwise ignored.
func (m *Manager) persist(ctx context.Context, key, value string) {
	var v *string
	if value != "" {
		v = &value
	}
	if err := m.store.SetState(ctx, key, v); err != nil {
		m.logger.Warn("failed to persist state", "key", key, "error", err)
	}
}

func parseCounter(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
