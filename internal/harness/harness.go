package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/hostsim/internal/host"
	"github.com/roach88/hostsim/internal/phase"
	"github.com/roach88/hostsim/internal/policy"
	"github.com/roach88/hostsim/internal/testutil"
)

// HandlerError is returned by a handler whose do list reached a fail step.
type HandlerError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler failed at %s: %s", e.Path, e.Message)
}

// errorKind maps an operation error to the expect_error vocabulary.
func errorKind(err error) string {
	var he *HandlerError
	switch {
	case err == nil:
		return ErrorNone
	case host.IsPrivilegeError(err):
		return ErrorPrivilege
	case host.IsPayloadError(err):
		return ErrorPayload
	case errors.As(err, &he):
		return ErrorHandler
	default:
		return "other"
	}
}

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	observers []host.Observer
	logger    *slog.Logger
	ids       host.IDGenerator
}

// WithObserver adds a host observer (e.g. a journal) to the environment.
func WithObserver(obs host.Observer) RunOption {
	return func(c *runConfig) {
		c.observers = append(c.observers, obs)
	}
}

// WithLogger sets the logger for the harness and its environment.
// Default: discard.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithIDGenerator overrides the environment session ID. Default: the
// scenario name, so golden traces and journal rows are reproducible.
func WithIDGenerator(g host.IDGenerator) RunOption {
	return func(c *runConfig) {
		c.ids = g
	}
}

// Harness executes one scenario against one environment.
type Harness struct {
	env    *host.Environment
	result *Result
	logger *slog.Logger

	subs   map[string]subscription
	timers map[string]host.RunHandle
}

type subscription struct {
	signal host.AnySignal
	id     host.Subscription
}

// Run executes a scenario in a fresh environment and returns the result.
//
// Step expectation failures and assertion failures are reported in the
// result; the returned error is for scenarios that cannot run at all
// (invalid scenario, unloadable guard profile).
func Run(scenario *Scenario, opts ...RunOption) (*Result, error) {
	if err := Validate(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	cfg := runConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		ids:    testutil.NewFixedIDGenerator(scenario.Name),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	table, err := policy.Resolve(scenario.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve policy: %w", err)
	}

	checks := true
	if scenario.PhaseChecks != nil {
		checks = *scenario.PhaseChecks
	}
	initial := phase.Normal
	if scenario.InitialPhase != "" {
		initial, _ = phase.Parse(scenario.InitialPhase)
	}

	h := &Harness{
		result: NewResult(),
		logger: cfg.logger,
		subs:   make(map[string]subscription),
		timers: make(map[string]host.RunHandle),
	}

	hostOpts := []host.Option{
		host.WithPolicy(table),
		host.WithPhaseChecks(checks),
		host.WithInitialPhase(initial),
		host.WithLogger(cfg.logger),
		host.WithIDGenerator(cfg.ids),
		host.WithObserver(host.ObserverFunc(h.observe)),
	}
	for _, obs := range cfg.observers {
		hostOpts = append(hostOpts, host.WithObserver(obs))
	}

	h.env = host.New(hostOpts...)
	defer h.env.Close()
	h.result.Env = h.env.ID()

	h.logger.Info("scenario started", "scenario", scenario.Name, "env", h.result.Env, "policy", table.Name())

	// Top-level steps never contain fail, so runSteps cannot return an error here.
	_ = h.runSteps("steps", scenario.Steps)

	h.result.FinalPhase = string(h.env.Phase().Get())

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"pass", h.result.Pass,
		"events", len(h.result.Trace),
		"errors", len(h.result.Errors),
	)
	return h.result, nil
}

// runSteps performs steps in order. A fail step stops the list and its
// *HandlerError is returned to the enclosing handler.
func (h *Harness) runSteps(prefix string, steps []Step) error {
	for i := range steps {
		step := &steps[i]
		path := fmt.Sprintf("%s[%d]", prefix, i)

		if step.Fail != nil {
			return &HandlerError{Path: path, Message: *step.Fail}
		}

		err := h.perform(path, step)
		h.check(path, step, err)
	}
	return nil
}

// check compares an operation's error with the step's expect_error.
func (h *Harness) check(path string, step *Step, err error) {
	got := errorKind(err)
	if err != nil {
		h.result.addEvent(TraceEvent{
			Type:   EventError,
			Label:  step.Op(),
			Phase:  h.currentPhase(),
			Detail: got,
		})
		h.logger.Debug("step returned error", "step", path, "op", step.Op(), "kind", got, "error", err)
	}

	want := step.ExpectError
	if want == "" {
		want = ErrorNone
	}
	if got == want {
		return
	}

	msg := fmt.Sprintf("%s: %s: expected error %s, got %s", path, step.Op(), want, got)
	if err != nil {
		msg += ": " + err.Error()
	}
	h.result.AddError(msg)
}

func (h *Harness) perform(path string, step *Step) error {
	env := h.env

	switch op := step.Op(); op {
	case OpSetPhase:
		p, err := phase.Parse(step.SetPhase)
		if err != nil {
			return err
		}
		env.Phase().Set(p)

	case OpExpectPhase:
		want, err := phase.Parse(step.ExpectPhase)
		if err != nil {
			return err
		}
		if got := env.Phase().Get(); got != want {
			h.result.AddError(fmt.Sprintf("%s: expected phase %s, got %s", path, want, got))
		}

	case OpDrain:
		env.RunPendingWork()

	case OpAdvance:
		return env.AdvanceTicks(step.Advance)

	case OpPhaseChecks:
		if *step.PhaseChecks {
			env.Phase().EnableChecks()
		} else {
			env.Phase().DisableChecks()
		}

	case OpSubscribe:
		return h.subscribe(path, step)

	case OpUnsubscribe:
		sub, ok := h.subs[step.Unsubscribe]
		if !ok {
			return fmt.Errorf("unknown handler %q", step.Unsubscribe)
		}
		if err := sub.signal.Unsubscribe(sub.id); err != nil {
			return err
		}
		delete(h.subs, step.Unsubscribe)

	case OpTrigger:
		sig, err := env.Signal(step.Trigger)
		if err != nil {
			return err
		}
		return sig.TriggerData(host.EventData(step.Payload))

	case OpSendMessage:
		return env.World.SendMessage(host.Text(*step.SendMessage))

	case OpSendScriptEvent:
		return env.System.SendScriptEvent(step.SendScriptEvent.ID, step.SendScriptEvent.Text())

	case OpRun, OpRunTimeout, OpRunInterval:
		return h.startTimer(path, op, step.timer())

	case OpClearRun:
		handle, ok := h.timers[step.ClearRun]
		if !ok {
			return fmt.Errorf("unknown timer %q", step.ClearRun)
		}
		env.System.ClearRun(handle)
		delete(h.timers, step.ClearRun)

	default:
		return fmt.Errorf("step has no single operation: %v", step.Ops())
	}
	return nil
}

func (h *Harness) subscribe(path string, step *Step) error {
	sig, err := h.env.Signal(step.Subscribe)
	if err != nil {
		return err
	}

	label, signal, body := step.Handler, step.Subscribe, step.Do
	id, err := sig.SubscribeAny(func(payload any) error {
		h.result.addEvent(TraceEvent{
			Type:   EventHandler,
			Label:  label,
			Signal: signal,
			Phase:  h.currentPhase(),
			Detail: describePayload(payload),
		})
		return h.runSteps(path+".do", body)
	})
	if id != 0 {
		h.subs[label] = subscription{signal: sig, id: id}
	}
	return err
}

func (h *Harness) startTimer(path, op string, t *TimerStep) error {
	label, body := t.Handler, t.Do
	cb := func() error {
		h.result.addEvent(TraceEvent{
			Type:  EventTimer,
			Label: label,
			Phase: h.currentPhase(),
		})
		return h.runSteps(path+"."+op+".do", body)
	}

	var handle host.RunHandle
	var err error
	switch op {
	case OpRun:
		handle, err = h.env.System.Run(cb)
	case OpRunTimeout:
		handle, err = h.env.System.RunTimeout(cb, t.Ticks)
	default:
		handle, err = h.env.System.RunInterval(cb, t.Ticks)
	}
	if err != nil {
		return err
	}
	h.timers[label] = handle
	return nil
}

// observe turns host records into trace events. Timer and phase records
// are not traced: the harness traces its own timer callbacks, and phase
// transitions are visible through event phases.
func (h *Harness) observe(rec host.Record) {
	switch rec.Kind {
	case host.RecordMessage:
		h.result.addEvent(TraceEvent{
			Type:   EventMessage,
			Phase:  string(rec.Phase),
			Detail: rec.Body,
		})
	case host.RecordScriptEvent:
		h.result.addEvent(TraceEvent{
			Type:   EventScriptEvent,
			Label:  rec.Channel,
			Phase:  string(rec.Phase),
			Detail: rec.Body,
		})
	}
}

func (h *Harness) currentPhase() string {
	return string(h.env.Phase().Get())
}

// describePayload renders a handler payload for the trace.
func describePayload(payload any) string {
	switch p := payload.(type) {
	case host.ScriptEventCommandMessageAfterEvent:
		return fmt.Sprintf("%s %s (%s)", p.ID, p.Message, p.SourceType)
	case host.EventData:
		if len(p) == 0 {
			return ""
		}
		b, err := MarshalCanonical(map[string]any(p))
		if err != nil {
			return fmt.Sprint(map[string]any(p))
		}
		return string(b)
	case host.StartupEvent, host.WorldLoadAfterEvent:
		return ""
	default:
		return fmt.Sprint(payload)
	}
}
