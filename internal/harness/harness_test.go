package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beacon/internal/payload"
)

func categoriesOf(entry TraceEntry) []string {
	var out []string
	for _, ev := range entry.Events {
		out = append(out, ev.Category())
	}
	return out
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Initialize against an unreachable collector",
		Steps:       []Step{{Do: DoInitialize}},
		Assertions: []Assertion{
			{Type: AssertDelivered, Category: payload.CategorySessionStart, Count: 1},
			{Type: AssertOpenSessions, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, CallInit, result.Trace[0].Call)
	assert.Equal(t, "no_response", result.Trace[0].Outcome)
	assert.Equal(t, CallEvents, result.Trace[1].Call)
	assert.Equal(t, []string{payload.CategorySessionStart}, categoriesOf(result.Trace[1]))
	assert.Equal(t, 1, result.Trace[1].Step)
}

func TestRun_FailedAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:        "failing",
		Description: "Expects an event that never arrives",
		Steps:       []Step{{Do: DoInitialize}},
		Assertions: []Assertion{
			{Type: AssertDelivered, Category: payload.CategoryDesign, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: delivered")
	assert.Contains(t, result.Errors[0], "1 design events delivered")
}

func TestRun_ManualSessions(t *testing.T) {
	scenario := &Scenario{
		Name:        "manual",
		Description: "Host-driven session boundaries",
		Config:      map[string]any{"manual_session_handling": true},
		Steps: []Step{
			{Do: DoInitialize},
			{Do: DoAdvance, Seconds: 5},
			{Do: DoStartSession},
			{Do: DoEndSession},
		},
		Assertions: []Assertion{
			{Type: AssertDelivered, Category: payload.CategorySessionStart, Count: 2},
			{Type: AssertDelivered, Category: payload.CategorySessionEnd, Count: 2},
			{Type: AssertOpenSessions, Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	require.Len(t, result.Trace, 6)
	assert.Equal(t, []string{payload.CategorySessionEnd}, categoriesOf(result.Trace[2]))
	length, _ := result.Trace[2].Events[0].Int64("length")
	assert.Equal(t, int64(5), length)
	assert.Equal(t, CallInit, result.Trace[3].Call)
	num, _ := result.Trace[4].Events[0].Int64("session_num")
	assert.Equal(t, int64(2), num)
	assert.Equal(t, 4, result.Trace[5].Step)
}

func TestRun_ManualStepsIgnoredByDefault(t *testing.T) {
	scenario := &Scenario{
		Name:        "automatic",
		Description: "start_session and end_session without manual handling",
		Steps: []Step{
			{Do: DoInitialize},
			{Do: DoStartSession},
			{Do: DoEndSession},
		},
		Assertions: []Assertion{
			{Type: AssertDelivered, Category: payload.CategorySessionStart, Count: 1},
			{Type: AssertDelivered, Category: payload.CategorySessionEnd, Count: 0},
			{Type: AssertOpenSessions, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_InvalidEventsReportedWithinLimit(t *testing.T) {
	steps := []Step{{Do: DoInitialize}}
	for range 12 {
		steps = append(steps, Step{
			Do:       DoAdd,
			Category: payload.CategoryDesign,
			Fields:   payload.Object{"event_id": ""},
		})
	}
	scenario := &Scenario{
		Name:        "sdk_errors",
		Description: "Rejected events are reported up to the hourly limit",
		Config:      map[string]any{"sdk_error_limit": 10},
		Steps:       steps,
		Assertions: []Assertion{
			{Type: AssertDelivered, Category: payload.CategorySDKError, Count: 10},
			{Type: AssertDelivered, Category: payload.CategoryDesign, Count: 0},
			{Type: AssertPending, Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ResourceRulesFromConfig(t *testing.T) {
	scenario := &Scenario{
		Name:        "resources",
		Description: "Resource events are checked against configured lists",
		Config: map[string]any{
			"resource_currencies": []string{"gems"},
			"resource_item_types": []string{"boost"},
		},
		Steps: []Step{
			{Do: DoInitialize},
			{Do: DoAdd, Category: payload.CategoryResource, Fields: payload.Object{
				"flow_type": "sink", "currency": "gems", "amount": 5, "item_type": "boost", "item_id": "x",
			}},
			{Do: DoAdd, Category: payload.CategoryResource, Fields: payload.Object{
				"flow_type": "sink", "currency": "coins", "amount": 5, "item_type": "boost", "item_id": "x",
			}},
			{Do: DoFlush},
		},
		Assertions: []Assertion{
			{Type: AssertDelivered, Category: payload.CategoryResource, Count: 1},
			{Type: AssertDelivered, Category: payload.CategorySDKError, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	last := result.Trace[len(result.Trace)-1]
	require.Len(t, last.Events, 1)
	assert.Equal(t, "Sink:gems:boost:x", last.Events[0].String("event_id"))
	amount, _ := last.Events[0].Float64("amount")
	assert.Equal(t, float64(-5), amount)
}

func TestRun_InvalidConfig(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_config",
		Description: "batch_size out of range",
		Config:      map[string]any{"batch_size": 0},
		Steps:       []Step{{Do: DoInitialize}},
		Assertions:  []Assertion{{Type: AssertPending}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario config")
}

func TestRun_UnknownConfigKey(t *testing.T) {
	scenario := &Scenario{
		Name:        "typo_config",
		Description: "unknown config key",
		Config:      map[string]any{"batchsize": 10},
		Steps:       []Step{{Do: DoInitialize}},
		Assertions:  []Assertion{{Type: AssertPending}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestProject_NormalizesNumbers(t *testing.T) {
	ev := payload.Object{
		"category":    payload.CategoryResource,
		"amount":      int64(-5),
		"client_ts":   uint64(1700000000),
		"session_num": 3,
		"length":      float64(12),
		"event_id":    "Sink:gems:boost:x",
		"user_id":     "h-1",
		"session_id":  "h-2",
	}

	got := project(ev)
	assert.Equal(t, payload.Object{
		"category":    payload.CategoryResource,
		"amount":      float64(-5),
		"client_ts":   int64(1700000000),
		"session_num": int64(3),
		"length":      int64(12),
		"event_id":    "Sink:gems:boost:x",
	}, got)
}
