package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/hostsim/internal/phase"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", ev.Seq, formatEvent(ev))
		}
	}
	return buf.String()
}

// Matches reports whether ev satisfies every non-empty field of m.
func (m EventMatch) Matches(ev TraceEvent) bool {
	return matchField(m.Type, ev.Type) &&
		matchField(m.Label, ev.Label) &&
		matchField(m.Signal, ev.Signal) &&
		matchPhase(m.Phase, ev.Phase) &&
		matchField(m.Detail, ev.Detail)
}

func (m EventMatch) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("type", m.Type)
	add("label", m.Label)
	add("signal", m.Signal)
	add("phase", m.Phase)
	add("detail", m.Detail)
	if len(parts) == 0 {
		return "{any}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func matchField(want, got string) bool {
	return want == "" || want == got
}

// matchPhase accepts any spelling phase.Parse accepts.
func matchPhase(want, got string) bool {
	if want == "" {
		return true
	}
	p, err := phase.Parse(want)
	if err != nil {
		return false
	}
	return string(p) == got
}

func formatEvent(ev TraceEvent) string {
	s := ev.Type + " [" + ev.Phase + "]"
	if ev.Label != "" {
		s += " " + ev.Label
	}
	if ev.Signal != "" {
		s += " on " + ev.Signal
	}
	if ev.Detail != "" {
		detail := ev.Detail
		if len(detail) > 60 {
			detail = detail[:57] + "..."
		}
		s += ": " + detail
	}
	return s
}

// assertTraceContains checks that at least one event matches.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if a.Event.Matches(ev) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s", a.Event),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the expected events appear in order.
// Intervening events are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Events) && a.Events[next].Matches(ev) {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}

	// Distinguish a missing event from one that appears out of order.
	missing := a.Events[next]
	for _, ev := range trace {
		if missing.Matches(ev) {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   fmt.Sprintf("%s appears only before %s", missing, a.Events[next-1]),
				Trace:    trace,
			}
		}
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("all events present: %v", a.Events),
		Actual:   fmt.Sprintf("missing event: %s", missing),
		Trace:    trace,
	}
}

// assertTraceCount checks that exactly Count events match.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if a.Event.Matches(ev) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalPhase checks the phase after the last step.
func assertFinalPhase(result *Result, a Assertion) error {
	if matchPhase(a.Phase, result.FinalPhase) {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalPhase,
		Expected: fmt.Sprintf("final phase %s", a.Phase),
		Actual:   fmt.Sprintf("final phase %s", result.FinalPhase),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains, AssertTraceCount:
			if a.Event == nil {
				err = fmt.Errorf("assertion[%d]: %s requires event", i, a.Type)
			} else if a.Type == AssertTraceContains {
				err = assertTraceContains(result.Trace, a)
			} else {
				err = assertTraceCount(result.Trace, a)
			}
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertFinalPhase:
			err = assertFinalPhase(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
