package delivery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/beacon/internal/clock"
	"github.com/roach88/beacon/internal/ids"
	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/scheduler"
	"github.com/roach88/beacon/internal/state"
	"github.com/roach88/beacon/internal/store"
	"github.com/roach88/beacon/internal/testutil"
	"github.com/roach88/beacon/internal/validate"
)

const testNow = int64(1_700_000_000)

var _ Session = (*state.Manager)(nil)

var testRules = validate.Rules{
	Currencies: []string{"gems", "gold"},
	ItemTypes:  []string{"boost", "lives"},
}

type fixture struct {
	store     *store.Store
	transport *testutil.ScriptedTransport
	clock     *clock.Fake
	sched     *scheduler.Scheduler
	state     *state.Manager
	pipeline  *Pipeline
}

type fixtureConfig struct {
	storeOpts []store.Option
	stateOpts []state.Option
	opts      []Option
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()
	logger := testutil.DiscardLogger()

	f := &fixture{
		store:     testutil.NewStore(t, cfg.storeOpts...),
		transport: testutil.NewScriptedTransport(),
		clock:     clock.NewFakeUnix(testNow),
	}
	f.sched = scheduler.New(scheduler.WithClock(f.clock), scheduler.WithLogger(logger))

	stateOpts := append([]state.Option{
		state.WithClock(f.clock),
		state.WithIDs(ids.NewSequenceGenerator("sess")),
		state.WithLogger(logger),
		state.WithDimensionValues([3][]string{{"ninja", "samurai"}, nil, nil}),
	}, cfg.stateOpts...)
	f.state = state.New(f.store, f.transport, stateOpts...)

	opts := append([]Option{
		WithClock(f.clock),
		WithIDs(ids.NewSequenceGenerator("claim")),
		WithLogger(logger),
		WithRules(testRules),
	}, cfg.opts...)
	f.pipeline = New(f.store, f.transport, f.state, f.sched, opts...)
	f.state.SetEvents(f.pipeline)
	return f
}

// start initializes the session offline and forgets the session start
// upload.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.state.Initialize(context.Background()))
	require.True(t, f.state.SessionIsStarted())
	f.transport.Reset()
}

func (f *fixture) count(t *testing.T, status, category string) int {
	t.Helper()
	n, err := f.store.CountEvents(context.Background(), status, category)
	require.NoError(t, err)
	return n
}

func (f *fixture) newEvents(t *testing.T) []store.EventRecord {
	t.Helper()
	all, err := f.store.Events(context.Background())
	require.NoError(t, err)
	var out []store.EventRecord
	for _, r := range all {
		if r.Status == store.StatusNew {
			out = append(out, r)
		}
	}
	return out
}

func design(id string) payload.Object {
	return payload.Object{"event_id": id}
}

func (f *fixture) addDesign(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.pipeline.AddEvent(context.Background(), payload.CategoryDesign, design(id)))
	}
}
