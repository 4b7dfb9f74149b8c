package state

import (
	"context"
	"strconv"

	"github.com/roach88/beacon/internal/fault"
	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/validate"
)

// collectorAPIVersion is the "v" annotation.
const collectorAPIVersion = 2

// Identifier is the user id sent with every event: the host supplied id
// if any, else the generated per-install default.
func (m *Manager) Identifier() string {
	if m.configuredUser != "" {
		return m.configuredUser
	}
	return m.defaultUserID
}

// Annotations returns the default annotations merged into every stored
// event, stamped with the adjusted client time.
func (m *Manager) Annotations() payload.Object {
	a := payload.Object{
		"v":            int64(collectorAPIVersion),
		"user_id":      m.Identifier(),
		"client_ts":    m.ClientTsAdjusted(),
		"sdk_version":  m.device.SDKVersion,
		"os_version":   m.device.OSVersion,
		"manufacturer": m.device.Manufacturer,
		"device":       m.device.Model,
		"platform":     m.device.Platform,
		"session_id":   m.sessionID,
		KeySessionNum:  m.sessionNum,
	}
	if validate.ConnectionType(m.device.ConnectionType) == nil {
		a["connection_type"] = m.device.ConnectionType
	}
	if m.device.EngineVersion != "" {
		a["engine_version"] = m.device.EngineVersion
	}
	if m.build != "" {
		a["build"] = m.build
	}
	return a
}

// SDKErrorAnnotations returns the reduced annotation set for sdk_error
// events, which carry no identity or session.
func (m *Manager) SDKErrorAnnotations() payload.Object {
	a := payload.Object{
		"v":            int64(collectorAPIVersion),
		"category":     payload.CategorySDKError,
		"sdk_version":  m.device.SDKVersion,
		"os_version":   m.device.OSVersion,
		"manufacturer": m.device.Manufacturer,
		"device":       m.device.Model,
		"platform":     m.device.Platform,
	}
	if validate.ConnectionType(m.device.ConnectionType) == nil {
		a["connection_type"] = m.device.ConnectionType
	}
	if m.device.EngineVersion != "" {
		a["engine_version"] = m.device.EngineVersion
	}
	return a
}

// Dimensions returns the current values of the three custom dimension
// slots; empty means unset.
func (m *Manager) Dimensions() [3]string {
	return m.dimensions
}

// SetCustomDimension sets slot (1-3) to value, which must be one of the
// slot's configured values. Empty clears the slot.
func (m *Manager) SetCustomDimension(ctx context.Context, slot int, value string) error {
	if slot < 1 || slot > 3 {
		return fault.Validation("custom_dimension", "slot %d out of range 1-3", slot)
	}
	if err := validate.Dimension(value, m.dimensionValues[slot-1]); err != nil {
		return err
	}
	m.dimensions[slot-1] = value
	m.persist(ctx, DimensionKeys[slot-1], value)
	return nil
}

// validateDimensions clears current values that are no longer allowed.
func (m *Manager) validateDimensions(ctx context.Context) {
	for i, v := range m.dimensions {
		if validate.Dimension(v, m.dimensionValues[i]) != nil {
			m.logger.Debug("clearing invalid custom dimension", "slot", i+1, "value", v)
			m.dimensions[i] = ""
			m.persist(ctx, DimensionKeys[i], "")
		}
	}
}

// NextTransactionNum increments and persists the business transaction
// counter, returning the new value.
func (m *Manager) NextTransactionNum(ctx context.Context) int64 {
	m.transactionNum++
	m.persist(ctx, KeyTransactionNum, strconv.FormatInt(m.transactionNum, 10))
	return m.transactionNum
}

// ProgressionTries returns the persisted attempt count for id.
func (m *Manager) ProgressionTries(id string) int {
	return m.progression[id]
}

// IncrementProgressionTries bumps and persists the attempt count for id.
func (m *Manager) IncrementProgressionTries(ctx context.Context, id string) int {
	m.progression[id]++
	n := m.progression[id]
	if err := m.store.SetProgressionTries(ctx, id, n); err != nil {
		m.logger.Warn("failed to persist progression tries", "progression", id, "error", err)
	}
	return n
}

// ClearProgressionTries forgets the attempt count for id.
func (m *Manager) ClearProgressionTries(ctx context.Context, id string) {
	delete(m.progression, id)
	if err := m.store.DeleteProgression(ctx, id); err != nil {
		m.logger.Warn("failed to clear progression tries", "progression", id, "error", err)
	}
}
