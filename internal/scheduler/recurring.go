package scheduler

import (
	"context"
	"sync"
	"time"
)

// Recurring is a task that resubmits itself every interval while it is
// kept running and the scheduler has not been told to stop.
type Recurring struct {
	s        *Scheduler
	label    string
	interval time.Duration
	action   Action

	mu          sync.Mutex
	keepRunning bool
	scheduled   bool
	current     TaskID
}

// NewRecurring creates a halted recurring job on s.
func (s *Scheduler) NewRecurring(label string, interval time.Duration, action Action) *Recurring {
	return &Recurring{
		s:        s,
		label:    label,
		interval: interval,
		action:   action,
	}
}

// Ensure marks the job as running and schedules its next tick if none is
// queued. Returns true if a tick was scheduled by this call.
func (r *Recurring) Ensure() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.keepRunning = true
	if r.scheduled {
		return false
	}
	r.scheduled = true
	r.current = r.s.Submit(r.label, r.tick, r.interval)
	return true
}

// Halt clears the keep-running flag. An already queued tick still runs
// once and then does not resubmit.
func (r *Recurring) Halt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keepRunning = false
}

// Active reports whether the job is meant to keep running.
func (r *Recurring) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.keepRunning
}

func (r *Recurring) tick(ctx context.Context) error {
	// Deferred so a panicking action still reschedules.
	defer r.reschedule()
	return r.action(ctx)
}

func (r *Recurring) reschedule() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.keepRunning && !r.s.stopRequested() {
		r.current = r.s.Submit(r.label, r.tick, r.interval)
		return
	}
	r.scheduled = false
}
