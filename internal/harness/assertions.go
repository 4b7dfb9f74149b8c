package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/beacon/internal/engine"
	"github.com/roach88/beacon/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEntry
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, entry := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s %s", i+1, entry.Step, entry.Call, entry.Outcome)
			for _, ev := range entry.Events {
				fmt.Fprintf(&buf, " %s", ev.Category())
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the final store and engine.
type AssertionContext struct {
	Store  *store.Store
	Engine *engine.Engine
	Ctx    context.Context
}

// EvaluateAssertions checks every assertion against result and actx and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDelivered:
			err = assertDelivered(result, assertion)
		case AssertPending, AssertOpenSessions, AssertRemoteConfig:
			if actx == nil || actx.Store == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an engine context", i, assertion.Type)
				break
			}
			err = assertFinal(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func assertDelivered(result *Result, a Assertion) error {
	got := result.Delivered(a.Category)
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertDelivered,
		Expected: fmt.Sprintf("%d %s delivered", a.Count, describeCategory(a.Category)),
		Actual:   fmt.Sprintf("%d delivered", got),
		Trace:    result.Trace,
	}
}

func assertFinal(actx *AssertionContext, a Assertion) error {
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	switch a.Type {
	case AssertPending:
		got, err := actx.Store.CountEvents(ctx, store.StatusNew, a.Category)
		if err != nil {
			return fmt.Errorf("pending: %w", err)
		}
		if got != a.Count {
			return &AssertionError{
				Type:     AssertPending,
				Expected: fmt.Sprintf("%d %s pending", a.Count, describeCategory(a.Category)),
				Actual:   fmt.Sprintf("%d pending", got),
			}
		}

	case AssertOpenSessions:
		stats, err := actx.Store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("open_sessions: %w", err)
		}
		if stats.OpenSessions != a.Count {
			return &AssertionError{
				Type:     AssertOpenSessions,
				Expected: fmt.Sprintf("%d open sessions", a.Count),
				Actual:   fmt.Sprintf("%d open sessions", stats.OpenSessions),
			}
		}

	case AssertRemoteConfig:
		got := actx.Engine.RemoteConfig(a.Key, "")
		if got != a.Value {
			return &AssertionError{
				Type:     AssertRemoteConfig,
				Expected: fmt.Sprintf("%s=%q", a.Key, a.Value),
				Actual:   fmt.Sprintf("%s=%q", a.Key, got),
			}
		}
	}
	return nil
}

func describeCategory(category string) string {
	if category == "" {
		return "events"
	}
	return category + " events"
}
