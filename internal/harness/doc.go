// Package harness runs scripted end-to-end scenarios against a real
// Engine.
//
// Each scenario gets a fresh SQLite store, a fake clock starting at a fixed
// second, sequential ids, a fixed device and a scripted collector. Steps
// call the host surface and then drain the scheduler on the calling
// goroutine, so every run is deterministic.
//
// # Scenario Format
//
//	name: crash_recovery
//	description: "What this scenario checks"
//	config:
//	  batch_size: 100
//	init:
//	  - outcome: no_response
//	events:
//	  - outcome: ok
//	steps:
//	  - do: initialize
//	  - do: add
//	    category: design
//	    fields: { event_id: "level:start" }
//	  - do: advance
//	    seconds: 30
//	  - do: crash
//	assertions:
//	  - type: delivered
//	    category: design
//	    count: 1
//
// # Steps
//
//   - initialize, flush, on_stop, on_resume, start_session, end_session:
//     the host call of the same name
//   - add: AddEvent(category, fields)
//   - set_dimension: SetCustomDimension(slot, value)
//   - advance: move the clock by seconds
//   - tick: move the clock by one flush interval
//   - crash: drop the engine without ending its session and build a new
//     one on the same store
//
// Every step drains the scheduler before the next one starts.
//
// # Trace
//
// Each collector call is recorded with the step that caused it, its
// outcome and, for uploads, a projection of every event. The trace is
// compared with testdata/golden/{name}.golden, one canonical JSON object
// per line.
package harness
