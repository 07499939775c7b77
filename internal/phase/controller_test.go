package phase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hostsim/internal/sched"
)

func newTestController(opts ...Option) (*Controller, *sched.Scheduler) {
	s := sched.New()
	return NewController(s, opts...), s
}

func TestController_Defaults(t *testing.T) {
	c, _ := newTestController()
	assert.Equal(t, Normal, c.Get())
	assert.True(t, c.ChecksOn())
}

func TestController_WithInitial(t *testing.T) {
	c, s := newTestController(WithInitial(Init))
	assert.Equal(t, Init, c.Get())
	s.RunPendingWork()
	assert.Equal(t, Init, c.Get(), "the starting phase is not scheduled for demotion")
}

func TestController_Set_TransientPhasesDecay(t *testing.T) {
	for _, p := range []Phase{Init, EarlyExecution, ReadOnly} {
		t.Run(string(p), func(t *testing.T) {
			c, s := newTestController()
			c.Set(p)
			assert.Equal(t, p, c.Get(), "no decay before the boundary")

			s.RunPendingWork()
			assert.Equal(t, Normal, c.Get())
		})
	}
}

func TestController_Set_NormalNeverQueuesDemotion(t *testing.T) {
	c, s := newTestController()
	c.Set(Normal)
	assert.Equal(t, 0, s.PendingMicrotasks())
	s.RunPendingWork()
	assert.Equal(t, Normal, c.Get())
}

func TestController_Set_DemotionComparesValue(t *testing.T) {
	c, s := newTestController()

	c.Set(ReadOnly)
	c.Set(Init)
	// The ReadOnly demotion is stale (phase is Init); the Init demotion
	// still matches and applies.
	s.RunPendingWork()
	assert.Equal(t, Normal, c.Get())

	c.Set(ReadOnly)
	c.Set(Normal)
	c.Set(Normal)
	s.RunPendingWork()
	assert.Equal(t, Normal, c.Get())
}

func TestController_Set_StaleDemotionDoesNotClobber(t *testing.T) {
	var demotions int
	c, s := newTestController(WithTransitionHook(func(from, to Phase) {
		if to == Normal {
			demotions++
		}
	}))

	c.Set(ReadOnly)
	c.Set(Init)

	var duringDrain []Phase
	s.QueueMicrotask(func() { duringDrain = append(duringDrain, c.Get()) })
	s.RunPendingWork()

	// The ReadOnly demotion ran first and found Init, so it did nothing.
	// Only the Init demotion changed the phase.
	assert.Equal(t, 1, demotions)
	assert.Equal(t, []Phase{Normal}, duringDrain)
	assert.Equal(t, Normal, c.Get())
}

func TestController_Scoped_RestoresPhase(t *testing.T) {
	c, _ := newTestController()
	var inside Phase

	err := c.Scoped(ReadOnly, func() error {
		inside = c.Get()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ReadOnly, inside)
	assert.Equal(t, Normal, c.Get())
}

func TestController_Scoped_Nested(t *testing.T) {
	c, s := newTestController()
	c.Set(Init)

	var seen []Phase
	err := c.Scoped(EarlyExecution, func() error {
		seen = append(seen, c.Get())
		inner := c.Scoped(ReadOnly, func() error {
			seen = append(seen, c.Get())
			return nil
		})
		seen = append(seen, c.Get())
		return inner
	})
	require.NoError(t, err)
	assert.Equal(t, []Phase{EarlyExecution, ReadOnly, EarlyExecution}, seen)
	assert.Equal(t, Init, c.Get(), "restores to the enclosing phase, not Normal")

	s.RunPendingWork()
	assert.Equal(t, Normal, c.Get())
}

func TestController_Scoped_RestoreWinsOverDemotion(t *testing.T) {
	c, s := newTestController()

	err := c.Scoped(ReadOnly, func() error {
		// Crossing a boundary inside the scope demotes the scoped phase...
		s.RunPendingWork()
		assert.Equal(t, Normal, c.Get())
		return nil
	})
	require.NoError(t, err)
	// ...but restoration still puts back what was there before the scope.
	assert.Equal(t, Normal, c.Get())

	c.Set(EarlyExecution)
	require.NoError(t, c.Scoped(Normal, func() error {
		s.RunPendingWork()
		return nil
	}))
	assert.Equal(t, EarlyExecution, c.Get())
}

func TestController_Scoped_PropagatesError(t *testing.T) {
	c, _ := newTestController()
	boom := errors.New("boom")

	err := c.Scoped(ReadOnly, func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Normal, c.Get())
}

func TestController_Scoped_RestoresOnPanic(t *testing.T) {
	c, _ := newTestController()

	assert.Panics(t, func() {
		_ = c.Scoped(ReadOnly, func() error { panic("handler blew up") })
	})
	assert.Equal(t, Normal, c.Get())
}

func TestController_Checks(t *testing.T) {
	c, _ := newTestController(WithChecks(false))
	assert.False(t, c.ChecksOn())

	c.EnableChecks()
	assert.True(t, c.ChecksOn())
	c.DisableChecks()
	assert.False(t, c.ChecksOn())
}

func TestController_TransitionHook(t *testing.T) {
	type change struct{ from, to Phase }
	var changes []change

	c, s := newTestController(WithTransitionHook(func(from, to Phase) {
		changes = append(changes, change{from, to})
	}))

	require.NoError(t, c.Scoped(ReadOnly, func() error { return nil }))
	c.Set(Init)
	c.Set(Init)
	s.RunPendingWork()

	assert.Equal(t, []change{
		{Normal, ReadOnly},
		{ReadOnly, Normal},
		{Normal, Init},
		{Init, Normal},
	}, changes)
}

func TestController_NilDeferrer(t *testing.T) {
	c := NewController(nil)
	c.Set(ReadOnly)
	assert.Equal(t, ReadOnly, c.Get(), "without a deferrer nothing decays")
}
