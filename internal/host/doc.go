// Package host is a simulated scripting host for exercising game scripts in
// ordinary Go tests.
//
// The simulation does not model a world. It models the privilege and timing
// envelope the real host enforces: which calls are legal depending on when
// code runs relative to startup, event dispatch and tick boundaries.
//
// ARCHITECTURE:
//
// An Environment owns one phase.Controller, one sched.Scheduler and one
// policy.Table. Nothing is process-wide, so parallel tests that each build
// their own Environment never interfere.
//
// Namespaces mirror the host API:
//
//	env.System.BeforeEvents.Startup()            startup, replays on subscribe
//	env.System.AfterEvents.WorldLoad()           world load, replays on subscribe
//	env.System.AfterEvents.ScriptEventReceive()  fed by SendScriptEvent
//	env.System.SendScriptEvent / Run / RunTimeout / RunInterval / ClearRun
//	env.World.BeforeEvents.Signal("itemUse")     any other event, by name
//	env.World.SendMessage
//
// Signals are created lazily on first access and live until Close.
//
// Every guarded call consults the controller: with checks on and the current
// phase in the operation's forbidden set, the call returns *PrivilegeError
// and has no effect. SendScriptEvent additionally enforces a 2048-byte UTF-8
// payload limit regardless of phase or checks (*PayloadTooLargeError).
//
// TIMING:
//
// Transient phases decay to Normal at the next microtask boundary. Tests
// cross that boundary explicitly with RunPendingWork. Timers fire when the
// test calls AdvanceTicks, always under phase Normal.
//
// Usage:
//
//	env := host.New()
//	defer env.Close()
//
//	env.World.BeforeEvents.Signal("itemUse").Subscribe(func(host.EventData) error {
//	    return env.World.SendMessage(host.Text("nope")) // *PrivilegeError: READ-ONLY
//	})
//
// Environment is not safe for concurrent use.
package host
