package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/hostsim/internal/host"
)

// Observer journals every record an environment produces. It implements
// host.Observer. Write failures are logged, never returned: journaling
// must not change the outcome of the host call that produced the record.
type Observer struct {
	store  *Store
	logger *slog.Logger
	name   string
	policy string
	now    func() time.Time

	sessions map[string]bool
	failures int
}

// ObserverOption configures an Observer.
type ObserverOption func(*Observer)

// WithSessionName sets the name stored on sessions the observer begins.
func WithSessionName(name string) ObserverOption {
	return func(o *Observer) {
		o.name = name
	}
}

// WithSessionPolicy sets the policy name stored on sessions the observer begins.
func WithSessionPolicy(policy string) ObserverOption {
	return func(o *Observer) {
		o.policy = policy
	}
}

// WithClock overrides the session start clock (for deterministic tests).
func WithClock(now func() time.Time) ObserverOption {
	return func(o *Observer) {
		o.now = now
	}
}

// NewObserver returns an observer writing to store. A nil logger means
// slog.Default().
func NewObserver(store *Store, logger *slog.Logger, opts ...ObserverOption) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Observer{
		store:    store,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Observe writes rec, beginning its session on first sight.
func (o *Observer) Observe(rec host.Record) {
	ctx := context.Background()

	if !o.sessions[rec.Env] {
		err := o.store.BeginSession(ctx, Session{
			ID:        rec.Env,
			Name:      o.name,
			Policy:    o.policy,
			StartedAt: o.now(),
		})
		if err != nil {
			o.fail(rec, err)
			return
		}
		o.sessions[rec.Env] = true
	}

	if err := o.store.WriteRecord(ctx, rec); err != nil {
		o.fail(rec, err)
	}
}

// Failures returns how many records could not be journaled.
func (o *Observer) Failures() int {
	return o.failures
}

func (o *Observer) fail(rec host.Record, err error) {
	o.failures++
	o.logger.Error("journal write failed",
		"env", rec.Env,
		"seq", rec.Seq,
		"kind", rec.Kind,
		"error", err,
	)
}
