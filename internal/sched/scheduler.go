package sched

import (
	"container/heap"
	"errors"
	"fmt"
)

// Handle identifies a scheduled timer. Zero is never a valid handle.
type Handle int64

// Scheduler is a single-threaded microtask and virtual-tick timer queue.
type Scheduler struct {
	microtasks []func()

	timers   timerHeap
	byHandle map[Handle]*timer

	tick       int64
	lastHandle int64
	lastSeq    int64
}

// New creates an empty scheduler at tick 0.
func New() *Scheduler {
	return &Scheduler{
		microtasks: make([]func(), 0, 16),
		byHandle:   make(map[Handle]*timer),
	}
}

// QueueMicrotask appends fn to the microtask queue.
func (s *Scheduler) QueueMicrotask(fn func()) {
	s.microtasks = append(s.microtasks, fn)
}

// RunPendingWork drains the microtask queue, including microtasks queued by
// the ones being run, and returns how many ran.
func (s *Scheduler) RunPendingWork() int {
	n := 0
	for len(s.microtasks) > 0 {
		fn := s.microtasks[0]

		// Nil out the slot so the closure can be collected.
		s.microtasks[0] = nil
		if len(s.microtasks) == 1 {
			s.microtasks = s.microtasks[:0]
		} else {
			s.microtasks = s.microtasks[1:]
		}

		fn()
		n++
	}
	return n
}

// PendingMicrotasks returns the number of queued microtasks.
func (s *Scheduler) PendingMicrotasks() int {
	return len(s.microtasks)
}

// Now returns the current virtual tick.
func (s *Scheduler) Now() int64 {
	return s.tick
}

// Schedule registers fn to run after delay ticks. When interval is positive
// the timer re-arms itself every interval ticks until cancelled. Delays
// below one tick are raised to one: nothing fires on the tick it was
// scheduled in.
func (s *Scheduler) Schedule(delay, interval int64, fn func() error) Handle {
	if delay < 1 {
		delay = 1
	}
	if interval < 0 {
		interval = 0
	}

	s.lastHandle++
	t := &timer{
		handle:   Handle(s.lastHandle),
		due:      s.tick + delay,
		interval: interval,
		seq:      s.nextSeq(),
		fn:       fn,
	}
	heap.Push(&s.timers, t)
	s.byHandle[t.handle] = t
	return t.handle
}

// Cancel removes a pending timer. Unknown, fired or already cancelled
// handles are ignored.
func (s *Scheduler) Cancel(h Handle) {
	t, ok := s.byHandle[h]
	if !ok {
		return
	}
	delete(s.byHandle, h)
	if t.index >= 0 {
		heap.Remove(&s.timers, t.index)
	}
}

// Scheduled reports whether h refers to a timer that will still fire.
func (s *Scheduler) Scheduled(h Handle) bool {
	_, ok := s.byHandle[h]
	return ok
}

// PendingTimers returns the number of armed timers.
func (s *Scheduler) PendingTimers() int {
	return len(s.timers)
}

// Advance moves the clock forward by ticks, one tick at a time. Microtasks
// are drained before the first tick and after every timer callback.
//
// A failing callback does not stop the timers after it; all callback errors
// are joined into the returned error.
func (s *Scheduler) Advance(ticks int64) error {
	var errs []error

	s.RunPendingWork()
	for i := int64(0); i < ticks; i++ {
		s.tick++
		for len(s.timers) > 0 && s.timers[0].due <= s.tick {
			t := heap.Pop(&s.timers).(*timer)
			if t.interval > 0 {
				t.due = s.tick + t.interval
				t.seq = s.nextSeq()
				heap.Push(&s.timers, t)
			} else {
				delete(s.byHandle, t.handle)
			}

			if err := t.fn(); err != nil {
				errs = append(errs, fmt.Errorf("timer %d at tick %d: %w", t.handle, s.tick, err))
			}
			s.RunPendingWork()
		}
	}

	return errors.Join(errs...)
}

// Reset drops all microtasks and timers. The tick counter and handle
// sequence keep their values so stale handles never alias new timers.
func (s *Scheduler) Reset() {
	clear(s.microtasks)
	s.microtasks = s.microtasks[:0]
	s.timers = nil
	s.byHandle = make(map[Handle]*timer)
}

func (s *Scheduler) nextSeq() int64 {
	s.lastSeq++
	return s.lastSeq
}
