package phase

// Deferrer queues work to run after the current synchronous unit of work.
// *sched.Scheduler implements it.
type Deferrer interface {
	QueueMicrotask(fn func())
}

// TransitionHook observes every phase change, including scoped entry,
// scoped restore and auto-demotion. Setting the phase it already has is not
// a change.
type TransitionHook func(from, to Phase)

// Controller owns the current phase and the guard-enforcement flag for one
// simulated host.
//
// Controller is not safe for concurrent use; the host it belongs to runs on
// a single logical thread.
type Controller struct {
	current  Phase
	checks   bool
	deferrer Deferrer
	hooks    []TransitionHook
}

// Option configures a Controller.
type Option func(*Controller)

// WithInitial sets the starting phase. The starting phase does not decay:
// no demotion is queued for it.
func WithInitial(p Phase) Option {
	return func(c *Controller) {
		c.current = p
	}
}

// WithTransitionHook registers an observer for phase changes.
func WithTransitionHook(h TransitionHook) Option {
	return func(c *Controller) {
		c.hooks = append(c.hooks, h)
	}
}

// WithChecks sets the initial guard-enforcement flag (default true).
func WithChecks(enabled bool) Option {
	return func(c *Controller) {
		c.checks = enabled
	}
}

// NewController creates a controller in Normal phase with checks enabled.
func NewController(d Deferrer, opts ...Option) *Controller {
	c := &Controller{
		current:  Normal,
		checks:   true,
		deferrer: d,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current phase.
func (c *Controller) Get() Phase {
	return c.current
}

// Set changes the phase unconditionally. For transient phases a demotion to
// Normal is queued; it only applies if the phase still equals p when the
// microtask runs.
func (c *Controller) Set(p Phase) {
	c.transition(p)

	if p.Transient() && c.deferrer != nil {
		c.deferrer.QueueMicrotask(func() {
			if c.current == p {
				c.transition(Normal)
			}
		})
	}
}

// Scoped runs fn with the phase set to p and restores the previous phase
// afterwards, even if fn panics. Scopes nest: an inner scope restores to the
// enclosing scope's phase.
func (c *Controller) Scoped(p Phase, fn func() error) error {
	saved := c.current
	c.Set(p)
	defer c.Set(saved)
	return fn()
}

// DisableChecks turns every guard evaluation into a no-op.
func (c *Controller) DisableChecks() {
	c.checks = false
}

// EnableChecks restores guard enforcement.
func (c *Controller) EnableChecks() {
	c.checks = true
}

// ChecksOn reports whether guards are enforced.
func (c *Controller) ChecksOn() bool {
	return c.checks
}

func (c *Controller) transition(to Phase) {
	from := c.current
	c.current = to
	if from == to {
		return
	}
	for _, h := range c.hooks {
		h(from, to)
	}
}
