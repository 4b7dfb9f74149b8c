package state

import "maps"

// RemoteConfig returns the active value for key, or fallback. Safe from
// any goroutine.
func (m *Manager) RemoteConfig(key, fallback string) string {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	if v, ok := m.remote[key]; ok {
		return v
	}
	return fallback
}

// RemoteConfigReady reports whether a live or cached config has been
// applied. Safe from any goroutine.
func (m *Manager) RemoteConfigReady() bool {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.remoteReady
}

// RemoteConfigSnapshot returns a copy of the active config.
func (m *Manager) RemoteConfigSnapshot() map[string]string {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return maps.Clone(m.remote)
}

// OnRemoteConfigUpdated registers fn to run after every replacement of
// the active config. fn runs on the scheduler goroutine.
func (m *Manager) OnRemoteConfigUpdated(fn func()) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// applyRemoteConfig swaps in the entries of the resolved config active
// at the adjusted time, then notifies listeners.
func (m *Manager) applyRemoteConfig() {
	var values map[string]string
	if m.resolved.Doc != nil {
		values = ActiveValues(m.resolved.Doc.Configs, m.ClientTsAdjusted())
	} else {
		values = map[string]string{}
	}

	m.cfgMu.Lock()
	m.remote = values
	m.remoteReady = m.resolved.Tier != TierDefault
	listeners := append([]func(){}, m.listeners...)
	m.cfgMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}
