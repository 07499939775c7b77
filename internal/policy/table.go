// Package policy defines which guarded host operations are forbidden in
// which phases.
//
// A Table is static once built. The built-in Default table is the
// authoritative contract; Legacy reproduces the older host behaviour where
// timers were also forbidden inside before-event handlers. Additional
// profiles can be written in CUE and loaded with Load or LoadFile.
package policy

import (
	"fmt"

	"github.com/roach88/hostsim/internal/phase"
)

// Operation names a guarded host operation.
type Operation string

const (
	// OpSendMessage covers world mutation (world.sendMessage).
	OpSendMessage Operation = "sendMessage"

	// OpSendScriptEvent covers system.sendScriptEvent.
	OpSendScriptEvent Operation = "sendScriptEvent"

	// OpSubscribeScriptEvent covers subscribing to and unsubscribing from
	// system.afterEvents.scriptEventReceive.
	OpSubscribeScriptEvent Operation = "subscribeScriptEvent"

	// OpSubscribe is the default guard for every other guarded signal.
	OpSubscribe Operation = "subscribe"

	// OpStartTimer covers run, runTimeout and runInterval.
	OpStartTimer Operation = "startTimer"
)

// Operations lists every guarded operation in display order.
var Operations = []Operation{
	OpSendMessage,
	OpSendScriptEvent,
	OpSubscribeScriptEvent,
	OpSubscribe,
	OpStartTimer,
}

// Known reports whether op is one of Operations.
func (op Operation) Known() bool {
	for _, o := range Operations {
		if o == op {
			return true
		}
	}
	return false
}

// Table maps each operation to the phases it is forbidden in.
// A Table is immutable; accessors return copies.
type Table struct {
	name      string
	forbidden map[Operation]map[phase.Phase]bool
}

// New builds a table from rules. Operations missing from rules are allowed
// everywhere. Unknown operations and phases are rejected.
func New(name string, rules map[Operation][]phase.Phase) (*Table, error) {
	t := &Table{
		name:      name,
		forbidden: make(map[Operation]map[phase.Phase]bool, len(rules)),
	}
	for op, phases := range rules {
		if !op.Known() {
			return nil, fmt.Errorf("unknown operation %q", op)
		}
		set := make(map[phase.Phase]bool, len(phases))
		for _, p := range phases {
			if !p.Valid() {
				return nil, fmt.Errorf("operation %s: unknown phase %q", op, p)
			}
			set[p] = true
		}
		t.forbidden[op] = set
	}
	return t, nil
}

// mustNew is for the built-in tables, which are known to be valid.
func mustNew(name string, rules map[Operation][]phase.Phase) *Table {
	t, err := New(name, rules)
	if err != nil {
		panic(fmt.Sprintf("policy %s: %v", name, err))
	}
	return t
}

// Default returns the authoritative guard table.
func Default() *Table {
	return mustNew("default", map[Operation][]phase.Phase{
		OpSendMessage:          {phase.ReadOnly, phase.Init, phase.EarlyExecution},
		OpSendScriptEvent:      {phase.Init, phase.EarlyExecution},
		OpSubscribeScriptEvent: {phase.Init, phase.EarlyExecution},
		OpSubscribe:            {phase.Init},
		OpStartTimer:           {phase.Init},
	})
}

// Legacy returns the older variant of the table in which timers are also
// forbidden in ReadOnly.
func Legacy() *Table {
	rules := Default().Rules()
	rules[OpStartTimer] = []phase.Phase{phase.Init, phase.ReadOnly}
	return mustNew("legacy", rules)
}

// Name returns the profile name.
func (t *Table) Name() string {
	return t.name
}

// Forbids reports whether op is forbidden while in phase p.
func (t *Table) Forbids(op Operation, p phase.Phase) bool {
	return t.forbidden[op][p]
}

// Forbidden returns the phases op is forbidden in, in phase.All order.
func (t *Table) Forbidden(op Operation) []phase.Phase {
	var out []phase.Phase
	for _, p := range phase.All {
		if t.forbidden[op][p] {
			out = append(out, p)
		}
	}
	return out
}

// Rules returns a copy of the table as a rules map suitable for New.
func (t *Table) Rules() map[Operation][]phase.Phase {
	rules := make(map[Operation][]phase.Phase, len(t.forbidden))
	for op := range t.forbidden {
		rules[op] = t.Forbidden(op)
	}
	return rules
}

// Equal reports whether both tables forbid exactly the same pairs.
func (t *Table) Equal(other *Table) bool {
	for _, op := range Operations {
		for _, p := range phase.All {
			if t.Forbids(op, p) != other.Forbids(op, p) {
				return false
			}
		}
	}
	return true
}

// Resolve maps a profile reference to a table: "" and "default" select
// Default, "legacy" selects Legacy, anything else is read as a CUE file.
func Resolve(profile string) (*Table, error) {
	switch profile {
	case "", "default":
		return Default(), nil
	case "legacy":
		return Legacy(), nil
	default:
		return LoadFile(profile)
	}
}

// Profiles lists the built-in profile names.
func Profiles() []string {
	return []string{"default", "legacy"}
}
