// Package scheduler is the single-threaded cooperative task loop that runs
// every mutating telemetry operation.
//
// Callers on any goroutine Submit labelled actions with a delay. Exactly one
// goroutine executes them, in deadline order, from Run (or RunPending when
// the host drives the loop itself). Between drains the loop idles for a
// fixed quantum, waking early when a new task is submitted.
//
// Cancellation is logical: Cancel flags a task and the loop skips it when
// its deadline arrives. Stop halts future loop iterations but never drops
// queued tasks, so a later Start resumes them.
//
// An action that returns an error or panics is logged with its label and
// the loop continues with the next task.
package scheduler
