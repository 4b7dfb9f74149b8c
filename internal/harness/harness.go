package harness

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/beacon/internal/clock"
	"github.com/roach88/beacon/internal/config"
	"github.com/roach88/beacon/internal/device"
	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/ids"
	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/store"
	"github.com/roach88/beacon/internal/testutil"
	"github.com/roach88/beacon/internal/transport"
)

// DefaultStartTS is the fake clock's first second when a scenario does
// not set start_ts.
const DefaultStartTS = int64(1_700_000_000)

var (
	scenarioKey    = strings.Repeat("a", 32)
	scenarioSecret = strings.Repeat("b", 40)
)

// projected lists the event fields kept in the trace. Everything else
// (device, identity, ids) is either constant or random per run.
var projected = []string{
	"amount",
	"attempt_num",
	"category",
	"client_ts",
	"event_id",
	"length",
	"session_num",
}

// Harness owns one scenario run.
type Harness struct {
	cfg       *config.Config
	store     *store.Store
	transport *recorder
	clock     *clock.Fake
	ids       ids.Generator
	engine    *engine.Engine
}

// Run executes a scenario and returns its trace and assertion results.
//
// Each run gets its own database in a temporary directory, removed on
// return.
func Run(s *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "beacon-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg, err := scenarioConfig(s, dir)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	st, err := store.Open(cfg.DatabasePath(), store.WithLogger(testutil.DiscardLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx, false); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	start := s.StartTS
	if start == 0 {
		start = DefaultStartTS
	}
	h := &Harness{
		cfg:       cfg,
		store:     st,
		transport: newRecorder(s),
		clock:     clock.NewFakeUnix(start),
		ids:       ids.NewSequenceGenerator("h"),
	}
	h.engine = h.newEngine()

	for i, step := range s.Steps {
		h.transport.setStep(i + 1)
		h.execute(step)
		h.engine.RunPending(ctx)
	}

	result := NewResult()
	result.Trace = h.transport.trace()
	actx := &AssertionContext{
		Store:  st,
		Engine: h.engine,
		Ctx:    ctx,
	}
	for _, msg := range EvaluateAssertions(result, s.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// scenarioConfig applies the scenario's overrides to the defaults.
func scenarioConfig(s *Scenario, dir string) (*config.Config, error) {
	cfg := config.Default()
	if len(s.Config) > 0 {
		data, err := yaml.Marshal(s.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to encode scenario config: %w", err)
		}
		if err := config.Decode(data, cfg); err != nil {
			return nil, fmt.Errorf("scenario config: %w", err)
		}
	}
	cfg.GameKey = scenarioKey
	cfg.GameSecret = scenarioSecret
	cfg.DataDir = dir
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}
	return cfg, nil
}

func (h *Harness) newEngine() *engine.Engine {
	return engine.New(h.cfg, h.store, h.transport,
		engine.WithClock(h.clock),
		engine.WithIDs(h.ids),
		engine.WithDevice(device.Info{
			Platform:   "linux",
			OSVersion:  "linux 6.1",
			SDKVersion: device.SDKVersion,
		}),
		engine.WithLogger(testutil.DiscardLogger()),
	)
}

func (h *Harness) execute(step Step) {
	switch step.Do {
	case DoInitialize:
		h.engine.Initialize()
	case DoAdd:
		h.engine.AddEvent(step.Category, step.Fields)
	case DoFlush:
		h.engine.Flush()
	case DoOnStop:
		h.engine.OnStop()
	case DoOnResume:
		h.engine.OnResume()
	case DoStartSession:
		h.engine.StartSession()
	case DoEndSession:
		h.engine.EndSession()
	case DoSetDimension:
		h.engine.SetCustomDimension(step.Slot, step.Value)
	case DoAdvance:
		h.clock.Advance(time.Duration(step.Seconds) * time.Second)
	case DoTick:
		h.clock.Advance(h.cfg.FlushInterval)
	case DoCrash:
		// The old engine's queued tasks are never drained; only the
		// store survives.
		h.engine = h.newEngine()
	}
}

// recorder answers from the scenario script and traces every call.
type recorder struct {
	inner *testutil.ScriptedTransport

	mu      sync.Mutex
	step    int
	entries []TraceEntry
}

var _ transport.Transport = (*recorder)(nil)

func newRecorder(s *Scenario) *recorder {
	inner := testutil.NewScriptedTransport()
	if len(s.Init) > 0 {
		replies := make([]testutil.InitReply, len(s.Init))
		for i, in := range s.Init {
			replies[i] = initReply(in)
		}
		inner.ScriptInit(replies...)
	}
	if len(s.Events) > 0 {
		replies := make([]testutil.EventsReply, len(s.Events))
		for i, ev := range s.Events {
			outcome, _ := transport.ParseOutcome(ev.Outcome)
			replies[i] = testutil.EventsReply{Outcome: outcome}
			if ev.Body != "" {
				replies[i].Body = []byte(ev.Body)
			}
		}
		inner.ScriptEvents(replies...)
	}
	return &recorder{inner: inner}
}

func initReply(in InitScript) testutil.InitReply {
	outcome, _ := transport.ParseOutcome(in.Outcome)
	reply := testutil.InitReply{Outcome: outcome}
	if !outcome.Success() {
		return reply
	}
	doc := &transport.ConfigDocument{
		ServerTS: in.ServerTS,
		Enabled:  in.Enabled,
	}
	for _, c := range in.Configs {
		doc.Configs = append(doc.Configs, transport.ConfigEntry{
			Key:     c.Key,
			Value:   c.Value,
			StartTS: c.StartTS,
			EndTS:   c.EndTS,
		})
	}
	reply.Doc = doc
	return reply
}

func (r *recorder) setStep(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = n
}

func (r *recorder) trace() []TraceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TraceEntry{}, r.entries...)
}

func (r *recorder) record(entry TraceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.Step = r.step
	r.entries = append(r.entries, entry)
}

func (r *recorder) PostInit(ctx context.Context, req transport.InitRequest) (transport.Outcome, *transport.ConfigDocument) {
	outcome, doc := r.inner.PostInit(ctx, req)
	r.record(TraceEntry{Call: CallInit, Outcome: outcome.String()})
	return outcome, doc
}

func (r *recorder) PostEvents(ctx context.Context, events []payload.Object) (transport.Outcome, []byte) {
	outcome, body := r.inner.PostEvents(ctx, events)
	projection := make([]payload.Object, len(events))
	for i, ev := range events {
		projection[i] = project(ev)
	}
	r.record(TraceEntry{Call: CallEvents, Outcome: outcome.String(), Events: projection})
	return outcome, body
}

// project keeps the deterministic fields of ev, normalizing numbers so the
// trace does not depend on how the codec typed them.
func project(ev payload.Object) payload.Object {
	out := payload.Object{}
	for _, key := range projected {
		if !ev.Has(key) {
			continue
		}
		switch key {
		case "category", "event_id":
			out[key] = ev.String(key)
		case "amount":
			if f, ok := ev.Float64(key); ok {
				out[key] = f
			}
		default:
			if n, ok := ev.Int64(key); ok {
				out[key] = n
			}
		}
	}
	return out
}
