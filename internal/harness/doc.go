// Package harness runs YAML scenarios against a simulated host.
//
// A scenario creates one host.Environment, performs its steps in order and
// records a trace of everything observable: handler invocations, timer
// firings, accepted messages and script events, and errors returned by
// operations. Assertions then check the trace and the final phase.
//
// # Scenario format
//
//	name: before_event_is_read_only
//	description: world mutation is refused inside a before-event handler
//	steps:
//	  - subscribe: world.beforeEvents.itemUse
//	    handler: guard
//	    do:
//	      - send_message: "nope"
//	        expect_error: privilege
//	  - trigger: world.beforeEvents.itemUse
//	    payload: {item: stick}
//	assertions:
//	  - type: trace_contains
//	    event: {type: error, label: send_message, phase: read}
//
// Handlers and timers carry labels so later steps can unsubscribe or clear
// them. A step's expect_error (privilege, payload, handler, none) is checked
// against the error the operation returned; a mismatch fails the scenario
// but the run continues, so one scenario reports every broken expectation.
//
// # Determinism
//
// The environment session ID defaults to the scenario name and the
// scheduler runs on virtual ticks, so a scenario always produces the same
// trace. RunWithGolden snapshots it as canonical JSON (sorted keys, NFC
// strings) under testdata/golden.
package harness
