package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hostsim/internal/host"
	"github.com/roach88/hostsim/internal/phase"
)

// Scenario is a scripted session against one simulated host environment.
// Steps run in order against a fresh environment; assertions then check the
// resulting trace and final phase.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file and
	// the default environment session ID.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is "default", "legacy", or a path to a .cue guard profile.
	// Relative paths are resolved against the scenario file's directory.
	Policy string `yaml:"policy,omitempty"`

	// PhaseChecks sets whether guards start enforced. Default true.
	PhaseChecks *bool `yaml:"phase_checks,omitempty"`

	// InitialPhase is the environment's starting phase. Default normal.
	InitialPhase string `yaml:"initial_phase,omitempty"`

	// Steps are the operations to perform.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and phase.
	// Supported types: trace_contains, trace_order, trace_count, final_phase
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step performs exactly one operation. Steps inside a handler's Do list run
// when that handler is invoked.
type Step struct {
	SetPhase    string `yaml:"set_phase,omitempty"`
	ExpectPhase string `yaml:"expect_phase,omitempty"`
	Drain       bool   `yaml:"drain,omitempty"`
	Advance     int64  `yaml:"advance,omitempty"`
	PhaseChecks *bool  `yaml:"phase_checks,omitempty"`

	// Subscribe is a signal path, e.g. "world.afterEvents.playerJoin".
	// Handler labels the subscription; Do runs on every invocation.
	Subscribe string `yaml:"subscribe,omitempty"`
	Handler   string `yaml:"handler,omitempty"`
	Do        []Step `yaml:"do,omitempty"`

	// Unsubscribe removes the subscription with this handler label.
	Unsubscribe string `yaml:"unsubscribe,omitempty"`

	// Trigger is a signal path, dispatched with Payload.
	Trigger string         `yaml:"trigger,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`

	SendMessage     *string          `yaml:"send_message,omitempty"`
	SendScriptEvent *ScriptEventStep `yaml:"send_script_event,omitempty"`

	Run         *TimerStep `yaml:"run,omitempty"`
	RunTimeout  *TimerStep `yaml:"run_timeout,omitempty"`
	RunInterval *TimerStep `yaml:"run_interval,omitempty"`

	// ClearRun cancels the timer with this handler label.
	ClearRun string `yaml:"clear_run,omitempty"`

	// Fail makes the enclosing handler return an error with this message.
	// Only valid inside Do.
	Fail *string `yaml:"fail,omitempty"`

	// ExpectError is the error the operation must return: privilege,
	// payload, handler or none (the default).
	ExpectError string `yaml:"expect_error,omitempty"`
}

// MaxRepeatedMessageBytes bounds a repeated script event message. It is
// well over the host limit so oversize payloads can still be tested.
const MaxRepeatedMessageBytes = 4 * host.MaxScriptEventBytes

// ScriptEventStep is a system.sendScriptEvent call. When Repeat is positive
// the message is Message repeated Repeat times, which keeps oversized
// payloads readable in scenario files.
type ScriptEventStep struct {
	ID      string `yaml:"id"`
	Message string `yaml:"message"`
	Repeat  int    `yaml:"repeat,omitempty"`
}

// Text returns the message to send.
func (s *ScriptEventStep) Text() string {
	if s.Repeat > 0 {
		return strings.Repeat(s.Message, s.Repeat)
	}
	return s.Message
}

// TimerStep starts a timer whose callback runs Do.
type TimerStep struct {
	Handler string `yaml:"handler"`
	Ticks   int64  `yaml:"ticks,omitempty"`
	Do      []Step `yaml:"do,omitempty"`
}

// Step operation names, as used in error messages and error trace events.
const (
	OpSetPhase        = "set_phase"
	OpExpectPhase     = "expect_phase"
	OpDrain           = "drain"
	OpAdvance         = "advance"
	OpPhaseChecks     = "phase_checks"
	OpSubscribe       = "subscribe"
	OpUnsubscribe     = "unsubscribe"
	OpTrigger         = "trigger"
	OpSendMessage     = "send_message"
	OpSendScriptEvent = "send_script_event"
	OpRun             = "run"
	OpRunTimeout      = "run_timeout"
	OpRunInterval     = "run_interval"
	OpClearRun        = "clear_run"
	OpFail            = "fail"
)

// Expected error kinds.
const (
	ErrorNone      = "none"
	ErrorPrivilege = "privilege"
	ErrorPayload   = "payload"
	ErrorHandler   = "handler"
)

// Ops returns the operations set on s, in declaration order. A valid step
// has exactly one.
func (s *Step) Ops() []string {
	var ops []string
	add := func(set bool, op string) {
		if set {
			ops = append(ops, op)
		}
	}
	add(s.SetPhase != "", OpSetPhase)
	add(s.ExpectPhase != "", OpExpectPhase)
	add(s.Drain, OpDrain)
	add(s.Advance != 0, OpAdvance)
	add(s.PhaseChecks != nil, OpPhaseChecks)
	add(s.Subscribe != "", OpSubscribe)
	add(s.Unsubscribe != "", OpUnsubscribe)
	add(s.Trigger != "", OpTrigger)
	add(s.SendMessage != nil, OpSendMessage)
	add(s.SendScriptEvent != nil, OpSendScriptEvent)
	add(s.Run != nil, OpRun)
	add(s.RunTimeout != nil, OpRunTimeout)
	add(s.RunInterval != nil, OpRunInterval)
	add(s.ClearRun != "", OpClearRun)
	add(s.Fail != nil, OpFail)
	return ops
}

// Op returns the step's single operation, or "" if it has none or several.
func (s *Step) Op() string {
	ops := s.Ops()
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// timer returns the timer parameters for run, run_timeout and run_interval.
func (s *Step) timer() *TimerStep {
	switch {
	case s.Run != nil:
		return s.Run
	case s.RunTimeout != nil:
		return s.RunTimeout
	default:
		return s.RunInterval
	}
}

// Assertion validates the trace or final phase.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event matching Event appears in the trace
	// - "trace_order": events matching Events appear in this order
	// - "trace_count": exactly Count events match Event
	// - "final_phase": the environment ends in Phase
	Type string `yaml:"type"`

	Event  *EventMatch  `yaml:"event,omitempty"`
	Events []EventMatch `yaml:"events,omitempty"`
	Count  int          `yaml:"count,omitempty"`
	Phase  string       `yaml:"phase,omitempty"`
}

// EventMatch selects trace events. Empty fields match anything.
type EventMatch struct {
	Type   string `yaml:"type,omitempty"`
	Label  string `yaml:"label,omitempty"`
	Signal string `yaml:"signal,omitempty"`
	Phase  string `yaml:"phase,omitempty"`
	Detail string `yaml:"detail,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalPhase    = "final_phase"
)

// ErrInvalidScenario wraps validation failures of a scenario that parsed
// as YAML. Read and syntax errors do not wrap it.
var ErrInvalidScenario = errors.New("invalid scenario")

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Guard profiles are referenced relative to the scenario file.
	if isProfilePath(scenario.Policy) && !filepath.IsAbs(scenario.Policy) {
		scenario.Policy = filepath.Join(filepath.Dir(path), scenario.Policy)
	}
	return scenario, nil
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := Validate(&scenario); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	return &scenario, nil
}

func isProfilePath(policy string) bool {
	return strings.HasSuffix(policy, ".cue")
}

// Validate checks that required fields are present and every step and
// assertion is well formed.
func Validate(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	switch {
	case s.Policy == "", s.Policy == "default", s.Policy == "legacy", isProfilePath(s.Policy):
	default:
		return fmt.Errorf("policy %q: want default, legacy or a .cue file", s.Policy)
	}

	if s.InitialPhase != "" {
		if _, err := phase.Parse(s.InitialPhase); err != nil {
			return fmt.Errorf("initial_phase: %w", err)
		}
	}

	if err := validateSteps("steps", s.Steps, false); err != nil {
		return err
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateSteps(prefix string, steps []Step, inHandler bool) error {
	for i := range steps {
		path := fmt.Sprintf("%s[%d]", prefix, i)
		if err := validateStep(path, &steps[i], inHandler); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(path string, s *Step, inHandler bool) error {
	ops := s.Ops()
	switch len(ops) {
	case 0:
		return fmt.Errorf("%s: no operation", path)
	case 1:
	default:
		return fmt.Errorf("%s: exactly one operation allowed, got %s", path, strings.Join(ops, ", "))
	}
	op := ops[0]

	switch s.ExpectError {
	case "", ErrorNone, ErrorPrivilege, ErrorPayload, ErrorHandler:
	default:
		return fmt.Errorf("%s: expect_error %q: want privilege, payload, handler or none", path, s.ExpectError)
	}

	if op != OpSubscribe && (s.Handler != "" || len(s.Do) > 0) {
		return fmt.Errorf("%s: handler and do are only valid with subscribe", path)
	}
	if op != OpTrigger && s.Payload != nil {
		return fmt.Errorf("%s: payload is only valid with trigger", path)
	}

	switch op {
	case OpSetPhase, OpExpectPhase:
		name := s.SetPhase + s.ExpectPhase
		if _, err := phase.Parse(name); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case OpAdvance:
		if s.Advance < 0 {
			return fmt.Errorf("%s: advance must be positive", path)
		}
	case OpSubscribe:
		if _, _, _, err := host.ParseSignalPath(s.Subscribe); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if s.Handler == "" {
			return fmt.Errorf("%s: subscribe requires a handler label", path)
		}
		return validateSteps(path+".do", s.Do, true)
	case OpTrigger:
		if _, _, _, err := host.ParseSignalPath(s.Trigger); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case OpSendScriptEvent:
		if s.SendScriptEvent.ID == "" {
			return fmt.Errorf("%s: send_script_event requires an id", path)
		}
		if s.SendScriptEvent.Repeat < 0 {
			return fmt.Errorf("%s: repeat must not be negative", path)
		}
		if n := len(s.SendScriptEvent.Message); n > 0 && s.SendScriptEvent.Repeat > MaxRepeatedMessageBytes/n {
			return fmt.Errorf("%s: repeated message exceeds %d bytes", path, MaxRepeatedMessageBytes)
		}
	case OpRun, OpRunTimeout, OpRunInterval:
		t := s.timer()
		if t.Handler == "" {
			return fmt.Errorf("%s: %s requires a handler label", path, op)
		}
		if t.Ticks < 0 {
			return fmt.Errorf("%s: ticks must not be negative", path)
		}
		return validateSteps(path+"."+op+".do", t.Do, true)
	case OpFail:
		if !inHandler {
			return fmt.Errorf("%s: fail is only valid inside a handler's do list", path)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Event == nil {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == nil {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalPhase:
		if _, err := phase.Parse(a.Phase); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
