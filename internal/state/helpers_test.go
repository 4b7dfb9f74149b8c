package state

import (
	"context"
	"testing"

	"github.com/roach88/beacon/internal/clock"
	"github.com/roach88/beacon/internal/ids"
	"github.com/roach88/beacon/internal/store"
	"github.com/roach88/beacon/internal/testutil"
)

const testNow = int64(1_700_000_000)

// recordingEvents is a delivery stand-in that remembers lifecycle calls.
type recordingEvents struct {
	starts  int
	ends    []int64
	running bool
	halts   int
}

func (r *recordingEvents) AddSessionStart(context.Context)          { r.starts++ }
func (r *recordingEvents) AddSessionEnd(_ context.Context, l int64) { r.ends = append(r.ends, l) }
func (r *recordingEvents) EnsureRunning() bool                      { r.running = true; return true }
func (r *recordingEvents) Halt()                                    { r.running = false; r.halts++ }

type fixture struct {
	store     *store.Store
	transport *testutil.ScriptedTransport
	clock     *clock.Fake
	events    *recordingEvents
	manager   *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:     testutil.NewStore(t),
		transport: testutil.NewScriptedTransport(),
		clock:     clock.NewFakeUnix(testNow),
	}
	f.manager = f.newManager(opts...)
	return f
}

// newManager builds a fresh manager over the fixture's store, as after a
// process restart.
func (f *fixture) newManager(opts ...Option) *Manager {
	f.events = &recordingEvents{}
	base := []Option{
		WithClock(f.clock),
		WithIDs(ids.NewSequenceGenerator("id")),
		WithLogger(testutil.DiscardLogger()),
	}
	m := New(f.store, f.transport, append(base, opts...)...)
	m.SetEvents(f.events)
	return m
}
