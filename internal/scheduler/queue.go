package scheduler

import (
	"container/heap"
	"context"
	"time"
)

// TaskID identifies a submitted task. Zero is never issued.
type TaskID uint64

// Action is the body of a task. It runs on the scheduler goroutine.
type Action func(ctx context.Context) error

// task is one scheduled unit of work.
type task struct {
	id        TaskID
	label     string
	deadline  time.Time
	action    Action
	cancelled bool
	seq       uint64 // submission order, breaks deadline ties
	index     int    // heap position
}

// taskHeap orders tasks by deadline, then by submission order.
// Implements heap.Interface; callers hold Scheduler.mu.
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	// Nil the slot so the popped task's closure can be collected.
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// popDue removes and returns the earliest task whose deadline is at or
// before now. Returns nil when nothing is due.
func (h *taskHeap) popDue(now time.Time) *task {
	if h.Len() == 0 {
		return nil
	}
	if (*h)[0].deadline.After(now) {
		return nil
	}
	return heap.Pop(h).(*task)
}
