// Package sched implements the cooperative scheduler behind a simulated host.
//
// The scheduler owns two queues, both confined to one logical thread:
//
//   - A microtask queue. Work queued here runs at the next drain point
//     (RunPendingWork), after the current synchronous unit of work. Microtasks
//     queued while draining run in the same drain, in FIFO order.
//   - A timer queue keyed by virtual ticks. Timers fire only when the caller
//     advances the tick counter (Advance). Timers due on the same tick fire in
//     the order they were scheduled.
//
// Nothing here is driven by wall-clock time. Tests decide exactly when a
// boundary is crossed, which keeps phase decay and timer firing
// deterministic.
//
// Scheduler is not safe for concurrent use. Callbacks may re-enter it
// (queue microtasks, schedule or cancel timers) freely.
package sched
