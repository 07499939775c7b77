package host

import (
	"fmt"
	"strings"

	"github.com/roach88/hostsim/internal/phase"
	"github.com/roach88/hostsim/internal/policy"
)

// Well-known signal paths.
const (
	SignalStartup            = "system.beforeEvents.startup"
	SignalWorldLoad          = "system.afterEvents.worldLoad"
	SignalScriptEventReceive = "system.afterEvents.scriptEventReceive"
)

// signalSpec is the static configuration of a signal with bespoke
// behaviour. Signals without a spec use defaultSpec.
type signalSpec struct {
	kind  Kind
	guard policy.Operation

	// typed marks signals whose payload is not EventData; they are only
	// reachable through their accessor.
	typed bool

	// replay, when set, invokes each new subscriber once, synchronously,
	// inside this scoped phase.
	replay phase.Phase
}

var signalSpecs = map[string]signalSpec{
	SignalStartup: {
		kind:   Before,
		typed:  true,
		replay: phase.EarlyExecution,
	},
	SignalWorldLoad: {
		kind:   After,
		typed:  true,
		replay: phase.Normal,
	},
	SignalScriptEventReceive: {
		kind:  After,
		guard: policy.OpSubscribeScriptEvent,
		typed: true,
	},
}

func defaultSpec(kind Kind) signalSpec {
	return signalSpec{kind: kind, guard: policy.OpSubscribe}
}

// lookup returns the signal at path, creating it on first access.
func lookup[T any](env *Environment, path string, kind Kind) *Signal[T] {
	if existing, ok := env.signals[path]; ok {
		return existing.(*Signal[T])
	}

	spec, ok := signalSpecs[path]
	if !ok {
		spec = defaultSpec(kind)
	}

	sig := &Signal[T]{
		env:   env,
		name:  path,
		kind:  spec.kind,
		guard: spec.guard,
	}
	if spec.replay != "" {
		replayPhase := spec.replay
		sig.onSubscribe = func(cb Callback[T]) error {
			payload, err := decodePayload[T](env, nil)
			if err != nil {
				return err
			}
			return env.phase.Scoped(replayPhase, func() error {
				return cb(payload)
			})
		}
	}

	env.signals[path] = sig
	env.logger.Debug("signal created", "env", env.id, "signal", path, "kind", spec.kind)
	return sig
}

// Events is one beforeEvents or afterEvents namespace.
type Events struct {
	env       *Environment
	namespace string
	kind      Kind
}

// Kind returns whether this is a beforeEvents or afterEvents namespace.
func (ev *Events) Kind() Kind { return ev.kind }

// Signal returns the named signal, creating it on first access. It panics
// for the well-known signals that have their own payload type; use their
// accessors instead.
func (ev *Events) Signal(name string) *Signal[EventData] {
	path := ev.path(name)
	if spec, ok := signalSpecs[path]; ok && spec.typed {
		panic(fmt.Sprintf("host: %s has a typed payload; use its accessor", path))
	}
	return lookup[EventData](ev.env, path, ev.kind)
}

func (ev *Events) path(name string) string {
	return ev.namespace + "." + ev.kind.String() + "." + name
}

// SystemBeforeEvents is system.beforeEvents.
type SystemBeforeEvents struct {
	Events
}

// Startup returns system.beforeEvents.startup. Subscribing invokes the
// callback once, synchronously, in phase EarlyExecution.
func (ev *SystemBeforeEvents) Startup() *Signal[StartupEvent] {
	return lookup[StartupEvent](ev.env, SignalStartup, Before)
}

// SystemAfterEvents is system.afterEvents.
type SystemAfterEvents struct {
	Events
}

// ScriptEventReceive returns system.afterEvents.scriptEventReceive.
func (ev *SystemAfterEvents) ScriptEventReceive() *Signal[ScriptEventCommandMessageAfterEvent] {
	return lookup[ScriptEventCommandMessageAfterEvent](ev.env, SignalScriptEventReceive, After)
}

// WorldLoad returns system.afterEvents.worldLoad. Subscribing invokes the
// callback once, synchronously, in phase Normal.
func (ev *SystemAfterEvents) WorldLoad() *Signal[WorldLoadAfterEvent] {
	return lookup[WorldLoadAfterEvent](ev.env, SignalWorldLoad, After)
}

// ParseSignalPath splits "namespace.kind.name" and validates the first two
// parts.
func ParseSignalPath(path string) (namespace string, kind Kind, name string, err error) {
	parts := strings.SplitN(path, ".", 3)
	if len(parts) != 3 || parts[2] == "" {
		return "", 0, "", fmt.Errorf("invalid signal path %q: want <system|world>.<beforeEvents|afterEvents>.<name>", path)
	}

	switch parts[0] {
	case "system", "world":
	default:
		return "", 0, "", fmt.Errorf("invalid signal path %q: unknown namespace %q", path, parts[0])
	}

	switch parts[1] {
	case Before.String():
		kind = Before
	case After.String():
		kind = After
	default:
		return "", 0, "", fmt.Errorf("invalid signal path %q: unknown event kind %q", path, parts[1])
	}

	return parts[0], kind, parts[2], nil
}

// Signal resolves a full signal path to its signal, creating it if needed.
func (e *Environment) Signal(path string) (AnySignal, error) {
	namespace, kind, name, err := ParseSignalPath(path)
	if err != nil {
		return nil, err
	}

	switch path {
	case SignalStartup:
		return e.System.BeforeEvents.Startup(), nil
	case SignalWorldLoad:
		return e.System.AfterEvents.WorldLoad(), nil
	case SignalScriptEventReceive:
		return e.System.AfterEvents.ScriptEventReceive(), nil
	}

	var events *Events
	switch {
	case namespace == "system" && kind == Before:
		events = &e.System.BeforeEvents.Events
	case namespace == "system":
		events = &e.System.AfterEvents.Events
	case kind == Before:
		events = e.World.BeforeEvents
	default:
		events = e.World.AfterEvents
	}
	return events.Signal(name), nil
}
