// Package engine is the host-facing surface of the beacon pipeline.
//
// An Engine owns one Scheduler, one Store handle, one state Manager and one
// delivery Pipeline. Nothing is global: two engines in one process share
// nothing but the process.
//
// ARCHITECTURE:
//
// Single-Writer Task Loop:
// Every mutating host call (Initialize, AddEvent, StartSession, EndSession,
// OnStop, OnResume, SetCustomDimension, Flush, Shutdown) is wrapped in a
// labelled task and submitted to the scheduler. The call returns at once.
// The scheduler goroutine runs tasks in deadline order, so calls made from
// one goroutine take effect in the order they were made.
//
// Request Flow:
// 1. Host calls an Engine method from any goroutine
// 2. The method clones its inputs and submits a task
// 3. Scheduler.Run executes the task on the loop goroutine
// 4. The task mutates the store and session state
// 5. The recurring flush task uploads batches every flush interval
//
// Thread-safety model:
//   - Host methods: safe from any goroutine, never block on I/O
//   - IsInitialized, RemoteConfig, RemoteConfigReady: safe from any goroutine
//   - Run / Start: exactly one loop per engine
//
// ERROR HANDLING:
// Host methods never return errors. Task failures are logged by the
// scheduler and the loop continues. Invalid events are reported to the
// collector as sdk_error events.
package engine
