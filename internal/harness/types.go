package harness

import (
	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/transport"
)

// Collector calls recorded in the trace.
const (
	CallInit   = "init"
	CallEvents = "events"
)

// TraceEntry is one collector call.
type TraceEntry struct {
	Call    string           `json:"call"`
	Step    int              `json:"step"`
	Outcome string           `json:"outcome"`
	Events  []payload.Object `json:"events,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists every collector call in order.
	Trace []TraceEntry `json:"trace"`

	// Errors holds one message per failed assertion.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
	}
}

// AddError records a failed assertion.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Delivered counts events of category in calls the collector accepted.
// An empty category counts every event.
func (r *Result) Delivered(category string) int {
	n := 0
	for _, entry := range r.Trace {
		if entry.Call != CallEvents {
			continue
		}
		if o, ok := transport.ParseOutcome(entry.Outcome); !ok || !o.Success() {
			continue
		}
		for _, ev := range entry.Events {
			if category == "" || ev.Category() == category {
				n++
			}
		}
	}
	return n
}

// canonical renders the entry for golden comparison.
func (e TraceEntry) canonical() ([]byte, error) {
	m := payload.Object{
		"call":    e.Call,
		"step":    e.Step,
		"outcome": e.Outcome,
	}
	if e.Events != nil {
		m["events"] = e.Events
	}
	return payload.MarshalCanonical(m)
}
