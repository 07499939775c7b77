// Package phase tracks the privilege window a simulated host is executing in.
//
// A Controller holds exactly one current Phase. Three of the phases are
// transient: Init, EarlyExecution and ReadOnly only last for one synchronous
// unit of work. Setting one of them queues a microtask that demotes the
// controller back to Normal, unless something else changed the phase first.
package phase

import (
	"fmt"
	"strings"
)

// Phase is the privilege window code is currently running in.
type Phase string

const (
	// Init is the first evaluation of a script file. Almost nothing is allowed.
	Init Phase = "init"

	// EarlyExecution follows Init. Some subscriptions and timers become legal;
	// world mutation is still forbidden.
	EarlyExecution Phase = "early"

	// Normal is steady-state tick execution. Everything is allowed.
	Normal Phase = "normal"

	// ReadOnly is execution inside a before-event handler. Mutation is
	// forbidden, subscriptions are allowed.
	ReadOnly Phase = "read"
)

// All lists every phase in declaration order.
var All = []Phase{Init, EarlyExecution, Normal, ReadOnly}

// Transient reports whether p decays to Normal at the next microtask
// boundary.
func (p Phase) Transient() bool {
	switch p {
	case Init, EarlyExecution, ReadOnly:
		return true
	default:
		return false
	}
}

// Label is the upper-case name used in privilege error messages.
func (p Phase) Label() string {
	switch p {
	case Init:
		return "INIT"
	case EarlyExecution:
		return "EARLY-EXECUTION"
	case Normal:
		return "NORMAL"
	case ReadOnly:
		return "READ-ONLY"
	default:
		return strings.ToUpper(string(p))
	}
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	switch p {
	case Init, EarlyExecution, Normal, ReadOnly:
		return true
	default:
		return false
	}
}

// Parse accepts a short name ("read") or a label ("READ-ONLY"),
// case-insensitively.
func Parse(s string) (Phase, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, p := range All {
		if norm == string(p) || norm == strings.ToLower(p.Label()) {
			return p, nil
		}
	}
	switch norm {
	case "readonly", "read_only", "read-only":
		return ReadOnly, nil
	case "earlyexecution", "early_execution":
		return EarlyExecution, nil
	}
	return "", fmt.Errorf("unknown phase %q: must be one of init, early, normal, read", s)
}
