package host

import (
	"fmt"
	"slices"

	"github.com/roach88/hostsim/internal/phase"
	"github.com/roach88/hostsim/internal/policy"
)

// Kind classifies a signal as a before-event or an after-event. It decides
// the phase subscribers run in.
type Kind int

const (
	// Before signals dispatch in phase ReadOnly.
	Before Kind = iota + 1
	// After signals dispatch in phase Normal.
	After
)

func (k Kind) String() string {
	switch k {
	case Before:
		return "beforeEvents"
	case After:
		return "afterEvents"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// DispatchPhase is the phase subscribers of a signal of this kind run in.
func (k Kind) DispatchPhase() phase.Phase {
	if k == Before {
		return phase.ReadOnly
	}
	return phase.Normal
}

// Callback handles one signal payload. A returned error aborts the rest of
// the dispatch and is returned from Trigger.
type Callback[T any] func(T) error

// Subscription identifies one subscribed callback. The zero value never
// identifies a subscription.
type Subscription uint64

type subscriber[T any] struct {
	id Subscription
	cb Callback[T]
}

// Signal is the simulated event stream for one named host event.
//
// Callbacks run in subscription order. The same function may be subscribed
// more than once; each subscription gets its own handle.
type Signal[T any] struct {
	env   *Environment
	name  string
	kind  Kind
	guard policy.Operation // empty: unguarded

	// onSubscribe runs after a callback is appended, with that callback.
	onSubscribe func(Callback[T]) error

	subs   []subscriber[T]
	lastID uint64
}

// Name returns the full path, e.g. "world.beforeEvents.itemUse".
func (s *Signal[T]) Name() string { return s.name }

// Kind returns Before or After.
func (s *Signal[T]) Kind() Kind { return s.kind }

// Len returns the number of subscriptions.
func (s *Signal[T]) Len() int { return len(s.subs) }

// Subscribe appends cb. The signal's guard runs first and may refuse the
// subscription. Signals that replay on subscribe (startup, worldLoad) invoke
// cb once before Subscribe returns; an error from that replay is returned
// together with the still-valid subscription handle.
func (s *Signal[T]) Subscribe(cb Callback[T]) (Subscription, error) {
	if s.env.closed {
		return 0, ErrClosed
	}
	if cb == nil {
		return 0, fmt.Errorf("%s: nil callback", s.name)
	}
	if err := s.checkGuard(); err != nil {
		return 0, err
	}

	s.lastID++
	id := Subscription(s.lastID)
	s.subs = append(s.subs, subscriber[T]{id: id, cb: cb})

	s.env.logger.Debug("signal subscribed",
		"env", s.env.id,
		"signal", s.name,
		"subscription", id,
		"subscribers", len(s.subs),
	)

	if s.onSubscribe != nil {
		if err := s.onSubscribe(cb); err != nil {
			return id, err
		}
	}
	return id, nil
}

// SubscribeAny subscribes a callback that takes the payload as any.
func (s *Signal[T]) SubscribeAny(cb func(any) error) (Subscription, error) {
	if cb == nil {
		return s.Subscribe(nil)
	}
	return s.Subscribe(func(v T) error { return cb(v) })
}

// Unsubscribe removes the subscription. Unknown handles are ignored. The
// same guard as Subscribe applies.
func (s *Signal[T]) Unsubscribe(id Subscription) error {
	if s.env.closed {
		return nil
	}
	if err := s.checkGuard(); err != nil {
		return err
	}

	i := slices.IndexFunc(s.subs, func(sub subscriber[T]) bool { return sub.id == id })
	if i < 0 {
		return nil
	}
	s.subs = slices.Delete(s.subs, i, i+1)

	s.env.logger.Debug("signal unsubscribed",
		"env", s.env.id,
		"signal", s.name,
		"subscription", id,
		"subscribers", len(s.subs),
	)
	return nil
}

// Trigger dispatches payload to every current subscriber, in order, inside a
// scoped ReadOnly (before) or Normal (after) phase. Subscriptions added
// during dispatch are not called until the next Trigger. The first callback
// error stops dispatch and is returned as is.
func (s *Signal[T]) Trigger(payload T) error {
	if s.env.closed {
		return ErrClosed
	}

	subs := slices.Clone(s.subs)
	s.env.logger.Debug("signal triggered",
		"env", s.env.id,
		"signal", s.name,
		"subscribers", len(subs),
		"dispatch_phase", s.kind.DispatchPhase(),
	)

	return s.env.phase.Scoped(s.kind.DispatchPhase(), func() error {
		for _, sub := range subs {
			if err := sub.cb(payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// TriggerData converts data to the signal's payload type and triggers it.
// See decodePayload for the conversions.
func (s *Signal[T]) TriggerData(data EventData) error {
	payload, err := decodePayload[T](s.env, data)
	if err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return s.Trigger(payload)
}

func (s *Signal[T]) checkGuard() error {
	if s.guard == "" {
		return nil
	}
	return s.env.guard(s.guard)
}

// AnySignal is the type-erased view of a Signal, used where the payload
// type is only known at run time (scenario files, the CLI).
type AnySignal interface {
	Name() string
	Kind() Kind
	Len() int
	SubscribeAny(cb func(any) error) (Subscription, error)
	Unsubscribe(id Subscription) error
	TriggerData(data EventData) error
}

// decodePayload builds a T from loosely typed data.
func decodePayload[T any](env *Environment, data EventData) (T, error) {
	var out T
	switch p := any(&out).(type) {
	case *EventData:
		*p = data
	case *ScriptEventCommandMessageAfterEvent:
		p.ID, _ = data["id"].(string)
		p.Message, _ = data["message"].(string)
		p.SourceType = ScriptEventSourceServer
		if src, ok := data["sourceType"].(string); ok && src != "" {
			p.SourceType = ScriptEventSource(src)
		}
	case *StartupEvent:
		*p = env.startupEvent()
	case *WorldLoadAfterEvent:
		*p = WorldLoadAfterEvent(env.startupEvent())
	default:
		return out, fmt.Errorf("cannot build payload of type %T from event data", out)
	}
	return out, nil
}
