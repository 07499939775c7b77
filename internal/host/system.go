package host

import (
	"strconv"

	"github.com/roach88/hostsim/internal/phase"
	"github.com/roach88/hostsim/internal/policy"
	"github.com/roach88/hostsim/internal/sched"
)

// RunHandle identifies a timer started by Run, RunTimeout or RunInterval.
type RunHandle = sched.Handle

// System is the "system" namespace.
type System struct {
	env *Environment

	AfterEvents  *SystemAfterEvents
	BeforeEvents *SystemBeforeEvents
}

// SendScriptEvent dispatches message on channel id to every
// scriptEventReceive subscriber, synchronously, with source Server.
//
// The payload limit is checked first and applies in every phase, with or
// without phase checks. Then the sendScriptEvent guard applies.
func (s *System) SendScriptEvent(id, message string) error {
	e := s.env
	if e.closed {
		return ErrClosed
	}

	if size := EncodedLen(message); size > MaxScriptEventBytes {
		e.logger.Debug("script event rejected", "env", e.id, "id", id, "bytes", size)
		return &PayloadTooLargeError{Size: size, Limit: MaxScriptEventBytes}
	}
	if err := e.guard(policy.OpSendScriptEvent); err != nil {
		return err
	}

	e.publish(Record{Kind: RecordScriptEvent, Channel: id, Body: message})

	return s.AfterEvents.ScriptEventReceive().Trigger(ScriptEventCommandMessageAfterEvent{
		ID:         id,
		Message:    message,
		SourceType: ScriptEventSourceServer,
	})
}

// Run schedules cb for the next tick.
func (s *System) Run(cb func() error) (RunHandle, error) {
	return s.startTimer(1, 0, cb)
}

// RunTimeout schedules cb once, after ticks ticks (at least one).
func (s *System) RunTimeout(cb func() error, ticks int64) (RunHandle, error) {
	return s.startTimer(ticks, 0, cb)
}

// RunInterval schedules cb every ticks ticks (at least one) until cleared.
func (s *System) RunInterval(cb func() error, ticks int64) (RunHandle, error) {
	if ticks < 1 {
		ticks = 1
	}
	return s.startTimer(ticks, ticks, cb)
}

// ClearRun cancels a timer. It never fails; unknown, fired and already
// cleared handles are ignored.
func (s *System) ClearRun(h RunHandle) {
	s.env.sched.Cancel(h)
}

// CurrentTick returns the virtual tick counter.
func (s *System) CurrentTick() int64 {
	return s.env.sched.Now()
}

func (s *System) startTimer(delay, interval int64, cb func() error) (RunHandle, error) {
	e := s.env
	if e.closed {
		return 0, ErrClosed
	}
	if err := e.guard(policy.OpStartTimer); err != nil {
		return 0, err
	}

	var h RunHandle
	h = e.sched.Schedule(delay, interval, func() error {
		// Timers always resume at top-level privilege.
		return e.phase.Scoped(phase.Normal, func() error {
			e.publish(Record{Kind: RecordTimer, Channel: strconv.FormatInt(int64(h), 10)})
			if cb == nil {
				return nil
			}
			return cb()
		})
	})

	e.logger.Debug("timer scheduled",
		"env", e.id,
		"handle", h,
		"delay", delay,
		"interval", interval,
		"tick", e.sched.Now(),
	)
	return h, nil
}
