package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/beacon/internal/clock"
)

// DefaultQuantum is how long the loop idles between drains when no
// submission wakes it.
const DefaultQuantum = time.Second

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Scheduler is a deadline-ordered cooperative task loop.
//
// Thread-safety model:
//   - Submit, Cancel, Stop, Pending, Running: safe from any goroutine
//   - Run / Start: at most one loop at a time
//   - RunPending: only when no loop is active (hosts and tests that drive
//     the scheduler themselves)
type Scheduler struct {
	mu       sync.Mutex
	tasks    taskHeap
	pending  map[TaskID]*task
	ids      sequence
	running  bool
	stopping bool
	autoCtx  context.Context

	clock   clock.Clock
	quantum time.Duration
	logger  *slog.Logger
	signal  chan struct{} // buffered, size 1; coalesces wakeups
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source used for deadlines. Default: clock.Real.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithQuantum sets the idle interval between drains. Default: 1s.
func WithQuantum(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.quantum = d
		}
	}
}

// WithLogger sets the logger used for task failures and loop lifecycle.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithAutoStart makes the first Submit on a stopped scheduler start the
// loop on its own goroutine, bound to ctx.
func WithAutoStart(ctx context.Context) Option {
	return func(s *Scheduler) {
		s.autoCtx = ctx
	}
}

// New creates a stopped Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		pending: make(map[TaskID]*task),
		clock:   clock.Real{},
		quantum: DefaultQuantum,
		logger:  slog.Default(),
		signal:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit schedules action to run after delay and returns its id.
// Negative delays are treated as zero.
func (s *Scheduler) Submit(label string, action Action, delay time.Duration) TaskID {
	if delay < 0 {
		delay = 0
	}
	t := &task{
		id:       TaskID(s.ids.next()),
		label:    label,
		deadline: s.clock.Now().Add(delay),
		action:   action,
	}
	t.seq = uint64(t.id)

	s.mu.Lock()
	heap.Push(&s.tasks, t)
	s.pending[t.id] = t
	start := false
	if s.autoCtx != nil {
		if s.running {
			// A submission overrides a pending stop request.
			s.stopping = false
		} else {
			start = true
		}
	}
	s.mu.Unlock()

	s.notify()
	if start {
		s.Start(s.autoCtx)
	}
	return t.id
}

// Cancel flags a pending task so the loop skips it. Returns true only if
// the task was still pending and not already cancelled.
func (s *Scheduler) Cancel(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.pending[id]
	if !ok || t.cancelled {
		return false
	}
	t.cancelled = true
	return true
}

// Pending returns the number of queued tasks that are not cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.pending {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Running reports whether a loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop asks the loop to exit before its next iteration. Queued tasks are
// kept.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.notify()
}

// stopRequested reports whether Stop was called since the loop last started.
func (s *Scheduler) stopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// Start launches the loop on a new goroutine. Returns false if a loop is
// already active.
func (s *Scheduler) Start(ctx context.Context) bool {
	if !s.markRunning() {
		return false
	}
	go func() {
		_ = s.loop(ctx)
	}()
	return true
}

// Run executes the loop on the calling goroutine. Blocks until ctx is
// cancelled (returning ctx.Err()) or Stop is called (returning nil).
//
// ERROR HANDLING: task failures are logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.markRunning() {
		return ErrAlreadyRunning
	}
	return s.loop(ctx)
}

func (s *Scheduler) markRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.stopping = false
	return true
}

func (s *Scheduler) loop(ctx context.Context) error {
	s.logger.Debug("scheduler starting")

	timer := time.NewTimer(s.quantum)
	defer timer.Stop()

	for {
		if s.exitIfStopping() {
			s.logger.Debug("scheduler stopping: stop requested")
			return nil
		}

		s.RunPending(ctx)

		timer.Reset(s.quantum)
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			s.logger.Debug("scheduler stopping: context cancelled")
			return ctx.Err()
		case <-s.signal:
		case <-timer.C:
		}
	}
}

// exitIfStopping atomically observes a stop request and marks the loop
// stopped, so a concurrent Submit either cancels the stop or restarts.
func (s *Scheduler) exitIfStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopping {
		return false
	}
	s.running = false
	return true
}

// RunPending executes, in deadline order, every task due at the current
// time and returns how many actions ran. Tasks submitted with zero delay
// while draining are picked up in the same call.
func (s *Scheduler) RunPending(ctx context.Context) int {
	executed := 0
	for ctx.Err() == nil {
		t, skip := s.popDue()
		if t == nil {
			break
		}
		if skip {
			continue
		}
		s.execute(ctx, t)
		executed++
	}
	return executed
}

func (s *Scheduler) popDue() (*task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tasks.popDue(s.clock.Now())
	if t == nil {
		return nil, false
	}
	delete(s.pending, t.id)
	return t, t.cancelled
}

// execute runs one action outside the lock, isolating panics.
func (s *Scheduler) execute(ctx context.Context, t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				"label", t.label,
				"task_id", uint64(t.id),
				"panic", r,
			)
		}
	}()

	if err := t.action(ctx); err != nil {
		s.logger.Error("task failed",
			"label", t.label,
			"task_id", uint64(t.id),
			"error", err,
		)
	}
}

func (s *Scheduler) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}
