package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beacon/internal/testutil"
	"github.com/roach88/beacon/internal/transport"
)

func boolPtr(b bool) *bool { return &b }

func TestInitialize_OfflineStartsSessionOnDefaults(t *testing.T) {
	f := newFixture(t)
	m := f.manager
	ctx := context.Background()

	assert.Equal(t, Uninitialized, m.Phase())
	require.NoError(t, m.Initialize(ctx))

	assert.True(t, m.Initialized())
	assert.True(t, m.Enabled())
	assert.True(t, m.Authorized(), "offline degrades instead of refusing")
	assert.Equal(t, SessionActive, m.Phase())
	assert.Equal(t, TierDefault, m.Tier())
	assert.False(t, m.RemoteConfigReady())

	assert.Equal(t, "id-1", m.Identifier())
	assert.Equal(t, "id-2", m.SessionID())
	assert.Equal(t, testNow, m.SessionStart())
	assert.Equal(t, int64(1), m.SessionNum())
	assert.Equal(t, 1, f.events.starts)
	assert.True(t, f.events.running)

	persisted, err := f.store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-1", persisted[KeyDefaultUserID])
	assert.Equal(t, "1", persisted[KeySessionNum])
	assert.Equal(t, "id-1", persisted[KeyLastUsedIdentifier])
}

func TestInitialize_Twice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Initialize(ctx))
	require.NoError(t, f.manager.Initialize(ctx))

	assert.Equal(t, 1, f.events.starts)
	assert.Len(t, f.transport.InitRequests(), 1)
}

func TestInitialize_RequiresEvents(t *testing.T) {
	f := newFixture(t)
	m := New(f.store, f.transport)
	err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.False(t, m.Initialized())
}

func TestInitialize_LiveConfig(t *testing.T) {
	f := newFixture(t, WithBuild("1.2.3"))
	f.transport.ScriptInit(testutil.InitReply{
		Outcome: transport.OK,
		Doc: &transport.ConfigDocument{
			ServerTS:    testNow + 60,
			ConfigsHash: "abc",
			Configs: []transport.ConfigEntry{
				{Key: "difficulty", Value: "hard"},
				{Key: "future", Value: "x", StartTS: testNow + 3600},
			},
		},
	})
	m := f.manager
	var notified int
	m.OnRemoteConfigUpdated(func() { notified++ })

	require.NoError(t, m.Initialize(context.Background()))

	assert.Equal(t, TierLive, m.Tier())
	assert.Equal(t, int64(60), m.Offset())
	assert.Equal(t, testNow+60, m.SessionStart(), "session start uses adjusted time")
	assert.True(t, m.RemoteConfigReady())
	assert.Equal(t, "hard", m.RemoteConfig("difficulty", "easy"))
	assert.Equal(t, "none", m.RemoteConfig("future", "none"))
	assert.Equal(t, 1, notified)

	req := f.transport.InitRequests()[0]
	assert.Equal(t, "1.2.3", req.Build)
	assert.Equal(t, "id-1", req.UserID)
	assert.Empty(t, req.ConfigsHash, "nothing cached on first run")

	persisted, err := f.store.LoadState(context.Background())
	require.NoError(t, err)
	assert.Contains(t, persisted[KeyConfigCached], `"configs_hash":"abc"`)
}

func TestInitialize_UnauthorizedDisables(t *testing.T) {
	f := newFixture(t)
	f.transport.ScriptInit(testutil.InitReply{Outcome: transport.Unauthorized})

	require.NoError(t, f.manager.Initialize(context.Background()))

	assert.True(t, f.manager.Initialized())
	assert.False(t, f.manager.Enabled())
	assert.False(t, f.manager.SessionIsStarted())
	assert.Equal(t, SessionIdle, f.manager.Phase())
	assert.Zero(t, f.events.starts)
	assert.Equal(t, 1, f.events.halts)
}

func TestInitialize_RemotelyDisabled(t *testing.T) {
	f := newFixture(t)
	f.transport.ScriptInit(testutil.InitReply{
		Outcome: transport.OK,
		Doc:     &transport.ConfigDocument{ServerTS: testNow, Enabled: boolPtr(false)},
	})

	require.NoError(t, f.manager.Initialize(context.Background()))

	assert.True(t, f.manager.Authorized())
	assert.False(t, f.manager.Enabled())
	assert.Zero(t, f.events.starts)
	assert.Zero(t, f.manager.SessionNum())
}

func TestRestart_FallsBackToCachedConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.transport.ScriptInit(testutil.InitReply{
		Outcome: transport.OK,
		Doc: &transport.ConfigDocument{
			ServerTS:    testNow - 30,
			ConfigsHash: "h1",
			Configs:     []transport.ConfigEntry{{Key: "color", Value: "blue"}},
		},
	})
	require.NoError(t, f.manager.Initialize(ctx))

	f.transport.ScriptInit(testutil.InitReply{Outcome: transport.NoResponse})
	restarted := f.newManager()
	require.NoError(t, restarted.Initialize(ctx))

	assert.Equal(t, TierCached, restarted.Tier())
	assert.Equal(t, int64(-30), restarted.Offset(), "offset comes from the cached document")
	assert.Equal(t, "blue", restarted.RemoteConfig("color", ""))
	assert.Equal(t, int64(2), restarted.SessionNum())
	assert.Equal(t, "id-1", restarted.Identifier(), "default user id is reused")

	reqs := f.transport.InitRequests()
	assert.Equal(t, "h1", reqs[len(reqs)-1].ConfigsHash)
}

func TestRestart_UnreadableCacheUsesDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	junk := "{not json"
	require.NoError(t, f.store.SetState(ctx, KeyConfigCached, &junk))

	require.NoError(t, f.manager.Initialize(ctx))

	assert.Equal(t, TierDefault, f.manager.Tier())
	persisted, err := f.store.LoadState(ctx)
	require.NoError(t, err)
	assert.NotContains(t, persisted, KeyConfigCached)
}

func TestResume_IdempotentWhileActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.manager
	require.NoError(t, m.Initialize(ctx))

	id, start := m.SessionID(), m.SessionStart()
	f.clock.Advance(5e9)
	m.ResumeSession(ctx)
	m.ResumeSession(ctx)

	assert.Equal(t, id, m.SessionID())
	assert.Equal(t, start, m.SessionStart())
	assert.Equal(t, 1, f.events.starts)
}

func TestEndThenResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.manager
	require.NoError(t, m.Initialize(ctx))
	first := m.SessionID()

	f.clock.Advance(42e9)
	m.EndSession(ctx)

	assert.Equal(t, []int64{42}, f.events.ends)
	assert.False(t, m.SessionIsStarted())
	assert.False(t, f.events.running)
	assert.Equal(t, SessionIdle, m.Phase())

	m.EndSession(ctx)
	assert.Len(t, f.events.ends, 1, "ending an idle session emits nothing")

	m.ResumeSession(ctx)
	assert.True(t, m.SessionIsStarted())
	assert.NotEqual(t, first, m.SessionID())
	assert.Equal(t, int64(2), m.SessionNum())
	assert.True(t, f.events.running)
}

func TestResume_BeforeInitializeIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.manager.ResumeSession(context.Background())
	f.manager.EndSession(context.Background())
	assert.Zero(t, f.events.starts)
	assert.Empty(t, f.transport.InitRequests())
}

func TestClientTsAdjusted_FallsBackOnImplausibleOffset(t *testing.T) {
	f := newFixture(t)
	m := f.manager

	m.offset.Store(120)
	assert.Equal(t, testNow+120, m.ClientTsAdjusted())

	m.offset.Store(2 * maxSkew)
	assert.Equal(t, testNow, m.ClientTsAdjusted())

	m.offset.Store(-testNow - 5)
	assert.Equal(t, testNow, m.ClientTsAdjusted())
}

func TestCalcOffset_IgnoresBadServerTime(t *testing.T) {
	assert.Equal(t, int64(10), calcOffset(testNow+10, testNow))
	assert.Zero(t, calcOffset(0, testNow))
}

func TestAnnotations(t *testing.T) {
	f := newFixture(t, WithBuild("b1"), WithUserID("player"))
	require.NoError(t, f.manager.Initialize(context.Background()))

	a := f.manager.Annotations()
	assert.Equal(t, int64(2), a["v"])
	assert.Equal(t, "player", a["user_id"])
	assert.Equal(t, testNow, a["client_ts"])
	assert.Equal(t, f.manager.SessionID(), a["session_id"])
	assert.Equal(t, int64(1), a["session_num"])
	assert.Equal(t, "b1", a["build"])

	e := f.manager.SDKErrorAnnotations()
	assert.Equal(t, "sdk_error", e["category"])
	assert.NotContains(t, e, "user_id")
	assert.NotContains(t, e, "session_id")
}

func TestCustomDimensions(t *testing.T) {
	allowed := [3][]string{{"ninja", "samurai"}, nil, {"gold"}}
	f := newFixture(t, WithDimensionValues(allowed))
	ctx := context.Background()
	stale := "pirate"
	require.NoError(t, f.store.SetState(ctx, DimensionKeys[0], &stale))

	m := f.manager
	require.NoError(t, m.Initialize(ctx))
	assert.Equal(t, "", m.Dimensions()[0], "stale value cleared at session start")

	require.NoError(t, m.SetCustomDimension(ctx, 1, "ninja"))
	require.NoError(t, m.SetCustomDimension(ctx, 3, "gold"))
	assert.Error(t, m.SetCustomDimension(ctx, 2, "anything"))
	assert.Error(t, m.SetCustomDimension(ctx, 4, ""))
	assert.Equal(t, [3]string{"ninja", "", "gold"}, m.Dimensions())

	restarted := f.newManager(WithDimensionValues(allowed))
	require.NoError(t, restarted.Initialize(ctx))
	assert.Equal(t, [3]string{"ninja", "", "gold"}, restarted.Dimensions())
}

func TestCountersPersist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.manager
	require.NoError(t, m.Initialize(ctx))

	assert.Equal(t, int64(1), m.NextTransactionNum(ctx))
	assert.Equal(t, int64(2), m.NextTransactionNum(ctx))
	assert.Equal(t, 1, m.IncrementProgressionTries(ctx, "world1"))
	assert.Equal(t, 2, m.IncrementProgressionTries(ctx, "world1"))
	assert.Equal(t, 1, m.IncrementProgressionTries(ctx, "world2"))
	m.ClearProgressionTries(ctx, "world2")

	restarted := f.newManager()
	require.NoError(t, restarted.Initialize(ctx))
	assert.Equal(t, int64(2), restarted.TransactionNum())
	assert.Equal(t, 2, restarted.ProgressionTries("world1"))
	assert.Zero(t, restarted.ProgressionTries("world2"))
}

func TestRemoteConfig_SafeFromOtherGoroutines(t *testing.T) {
	f := newFixture(t)
	f.transport.ScriptInit(testutil.InitReply{
		Outcome: transport.OK,
		Doc: &transport.ConfigDocument{
			ServerTS: testNow,
			Configs:  []transport.ConfigEntry{{Key: "k", Value: "v"}},
		},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			_ = f.manager.RemoteConfig("k", "")
			_ = f.manager.RemoteConfigReady()
		}
	}()
	require.NoError(t, f.manager.Initialize(context.Background()))
	<-done

	assert.Equal(t, map[string]string{"k": "v"}, f.manager.RemoteConfigSnapshot())
}
