// Package script runs JavaScript against a simulated host.
//
// A Runtime owns one goja VM bound to one host.Environment. The VM sees the
// host's API as the globals system, world and console:
//
//	system.beforeEvents.startup.subscribe(ev => {
//		ev.blockComponentRegistry.registerCustomComponent("demo:glow", {})
//	})
//	system.afterEvents.worldLoad.subscribe(() => {
//		// Not allowed during early execution; worldLoad runs in Normal.
//		system.afterEvents.scriptEventReceive.subscribe(ev => {
//			world.sendMessage(`${ev.id}: ${ev.message}`)
//		})
//	})
//	system.run(() => system.sendScriptEvent("demo:ping", "hello"))
//
// Every call goes through the environment's guards, so a script that sends
// a message from a before-event handler gets the same privilege error the
// real host raises. Host errors surface in JavaScript as thrown GoError
// values; uncaught ones come back to Go as *Error with the host error
// reachable through errors.As.
//
// The top level of a script runs in EarlyExecution, as scripts do when the
// real host loads them, and the phase decays to Normal once the script
// returns and pending work is drained.
package script
