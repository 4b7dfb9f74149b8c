package engine

import (
	"context"

	"github.com/roach88/beacon/internal/payload"
	"github.com/roach88/beacon/internal/scheduler"
	"github.com/roach88/beacon/internal/validate"
)

// Task labels, as they appear in scheduler logs.
const (
	labelInitialize   = "initialize"
	labelAddEvent     = "add_event"
	labelStartSession = "start_session"
	labelEndSession   = "end_session"
	labelOnStop       = "on_stop"
	labelOnResume     = "on_resume"
	labelDimension    = "set_custom_dimension"
	labelFlush        = "flush_now"
	labelShutdown     = "shutdown"
)

func (e *Engine) submit(label string, action scheduler.Action) {
	e.sched.Submit(label, action, 0)
}

// Initialize loads persisted state, resolves the remote config and opens
// the first session.
func (e *Engine) Initialize() {
	e.submit(labelInitialize, func(ctx context.Context) error {
		if err := validate.Keys(e.cfg.GameKey, e.cfg.GameSecret); err != nil {
			return err
		}
		if !e.store.Ready() {
			if err := e.store.EnsureSchema(ctx, false); err != nil {
				return err
			}
		}
		return e.state.Initialize(ctx)
	})
}

// AddEvent validates and stores one event of category. fields is copied
// before the call returns.
func (e *Engine) AddEvent(category string, fields payload.Object) {
	fields = fields.Clone()
	e.submit(labelAddEvent, func(ctx context.Context) error {
		return e.pipeline.AddEvent(ctx, category, fields)
	})
}

// StartSession ends any open session and starts a new one. Ignored unless
// manual session handling is on.
func (e *Engine) StartSession() {
	if !e.cfg.ManualSessionHandling {
		e.logger.Debug("start session ignored: manual session handling is off")
		return
	}
	e.submit(labelStartSession, func(ctx context.Context) error {
		if e.state.SessionIsStarted() {
			e.state.EndSession(ctx)
		}
		e.state.ResumeSession(ctx)
		return nil
	})
}

// EndSession closes the open session. Ignored unless manual session
// handling is on.
func (e *Engine) EndSession() {
	if !e.cfg.ManualSessionHandling {
		e.logger.Debug("end session ignored: manual session handling is off")
		return
	}
	e.submit(labelEndSession, func(ctx context.Context) error {
		e.state.EndSession(ctx)
		return nil
	})
}

// OnStop is the host's background hook. It closes the open session and
// stops the periodic flush.
func (e *Engine) OnStop() {
	e.submit(labelOnStop, func(ctx context.Context) error {
		e.state.EndSession(ctx)
		return nil
	})
}

// OnResume is the host's foreground hook. It starts a session if none is
// open.
func (e *Engine) OnResume() {
	e.submit(labelOnResume, func(ctx context.Context) error {
		e.state.ResumeSession(ctx)
		return nil
	})
}

// SetCustomDimension sets slot (1 to 3) to value. An empty value clears
// the slot.
func (e *Engine) SetCustomDimension(slot int, value string) {
	e.submit(labelDimension, func(ctx context.Context) error {
		return e.state.SetCustomDimension(ctx, slot, value)
	})
}

// Flush uploads pending events now instead of waiting for the next tick.
func (e *Engine) Flush() {
	e.submit(labelFlush, func(ctx context.Context) error {
		if !e.state.Initialized() {
			return nil
		}
		e.pipeline.Flush(ctx, "", false)
		return nil
	})
}

// Shutdown ends the open session, uploads what it can and stops the loop.
// The returned channel is closed once the final task has run. Repeated
// calls return the same channel.
func (e *Engine) Shutdown() <-chan struct{} {
	e.shutdownOnce.Do(func() {
		e.submit(labelShutdown, func(ctx context.Context) error {
			defer close(e.done)
			e.state.EndSession(ctx)
			e.sched.Stop()
			return nil
		})
	})
	return e.done
}
