package host

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/hostsim/internal/phase"
	"github.com/roach88/hostsim/internal/policy"
	"github.com/roach88/hostsim/internal/sched"
)

// IDGenerator produces environment session IDs.
// Implemented by UUIDv7Generator (default) and testutil.FixedIDGenerator.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session IDs.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Environment is one simulated host instance: the drop-in replacement for
// the host module inside a test.
type Environment struct {
	// System is the "system" namespace: scheduling and script events.
	System *System

	// World is the "world" namespace: world-mutating calls.
	World *World

	id        string
	sched     *sched.Scheduler
	phase     *phase.Controller
	policy    *policy.Table
	logger    *slog.Logger
	observers []Observer

	signals map[string]any // path -> *Signal[T]

	blockComponents *ComponentRegistry
	itemComponents  *ComponentRegistry

	seq    int64
	closed bool
}

type options struct {
	policy    *policy.Table
	observers []Observer
	logger    *slog.Logger
	checks    bool
	initial   phase.Phase
	ids       IDGenerator
}

// Option configures an Environment.
type Option func(*options)

// WithPolicy selects the guard table. Default: policy.Default().
func WithPolicy(t *policy.Table) Option {
	return func(o *options) {
		o.policy = t
	}
}

// WithObserver adds an observer for messages, script events, timers and
// phase transitions. May be given more than once.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPhaseChecks sets whether guards are enforced initially. Default: true.
func WithPhaseChecks(enabled bool) Option {
	return func(o *options) {
		o.checks = enabled
	}
}

// WithInitialPhase sets the starting phase. Default: phase.Normal. The
// starting phase does not auto-demote.
func WithInitialPhase(p phase.Phase) Option {
	return func(o *options) {
		o.initial = p
	}
}

// WithIDGenerator overrides session ID generation (for deterministic tests).
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// New creates an environment in phase Normal with checks enabled and the
// default policy, unless options say otherwise.
func New(opts ...Option) *Environment {
	o := options{
		policy:  policy.Default(),
		logger:  slog.Default(),
		checks:  true,
		initial: phase.Normal,
		ids:     UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Environment{
		id:              o.ids.Generate(),
		sched:           sched.New(),
		policy:          o.policy,
		logger:          o.logger,
		observers:       o.observers,
		signals:         make(map[string]any),
		blockComponents: newComponentRegistry("block"),
		itemComponents:  newComponentRegistry("item"),
	}
	e.phase = phase.NewController(e.sched,
		phase.WithInitial(o.initial),
		phase.WithChecks(o.checks),
		phase.WithTransitionHook(e.onTransition),
	)

	e.System = &System{
		env:          e,
		BeforeEvents: &SystemBeforeEvents{Events{env: e, namespace: "system", kind: Before}},
		AfterEvents:  &SystemAfterEvents{Events{env: e, namespace: "system", kind: After}},
	}
	e.World = &World{
		env:          e,
		BeforeEvents: &Events{env: e, namespace: "world", kind: Before},
		AfterEvents:  &Events{env: e, namespace: "world", kind: After},
	}

	e.logger.Info("environment created",
		"env", e.id,
		"policy", e.policy.Name(),
		"phase", e.phase.Get(),
		"phase_checks", e.phase.ChecksOn(),
	)
	return e
}

// ID returns the session ID.
func (e *Environment) ID() string { return e.id }

// Phase returns the phase controller.
func (e *Environment) Phase() *phase.Controller { return e.phase }

// Policy returns the guard table.
func (e *Environment) Policy() *policy.Table { return e.policy }

// RunPendingWork crosses one microtask boundary: queued work, including
// pending phase demotions, runs to completion. Returns the number of
// microtasks run.
func (e *Environment) RunPendingWork() int {
	return e.sched.RunPendingWork()
}

// AdvanceTicks moves virtual time forward, firing due timers. Timer errors
// are logged, do not stop later timers, and are returned joined.
func (e *Environment) AdvanceTicks(ticks int64) error {
	if e.closed {
		return ErrClosed
	}
	err := e.sched.Advance(ticks)
	if err != nil {
		e.logger.Warn("timer callbacks failed", "env", e.id, "tick", e.sched.Now(), "error", err)
	}
	return err
}

// BlockComponents returns the block custom-component registry handed to
// startup and worldLoad subscribers.
func (e *Environment) BlockComponents() *ComponentRegistry { return e.blockComponents }

// ItemComponents returns the item custom-component registry handed to
// startup and worldLoad subscribers.
func (e *Environment) ItemComponents() *ComponentRegistry { return e.itemComponents }

// Close cancels all timers and pending work and drops every signal.
// Close is idempotent.
func (e *Environment) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.sched.Reset()
	e.signals = make(map[string]any)
	e.logger.Info("environment closed", "env", e.id, "records", e.seq)
}

// Closed reports whether Close has been called.
func (e *Environment) Closed() bool { return e.closed }

func (e *Environment) startupEvent() StartupEvent {
	return StartupEvent{
		BlockComponentRegistry: e.blockComponents,
		ItemComponentRegistry:  e.itemComponents,
	}
}

func (e *Environment) onTransition(from, to phase.Phase) {
	e.publish(Record{
		Kind:  RecordPhase,
		Phase: to,
		Body:  string(from) + "->" + string(to),
	})
}

// publish stamps rec and hands it to every observer.
func (e *Environment) publish(rec Record) {
	e.seq++
	rec.Seq = e.seq
	rec.Env = e.id
	rec.Tick = e.sched.Now()
	if rec.Phase == "" {
		rec.Phase = e.phase.Get()
	}

	switch rec.Kind {
	case RecordMessage:
		// Console-equivalent output.
		e.logger.Info("world.sendMessage", "env", e.id, "message", rec.Body)
	default:
		e.logger.Debug("host record",
			"env", e.id,
			"kind", rec.Kind,
			"seq", rec.Seq,
			"channel", rec.Channel,
			"body", rec.Body,
		)
	}

	for _, obs := range e.observers {
		obs.Observe(rec)
	}
}
