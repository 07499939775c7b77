package host

import (
	"testing"

	"github.com/roach88/hostsim/internal/testutil"
)

func newTestEnv(t *testing.T, opts ...Option) *Environment {
	t.Helper()
	base := []Option{
		WithLogger(testutil.DiscardLogger()),
		WithIDGenerator(testutil.NewFixedIDGenerator("test-env")),
	}
	env := New(append(base, opts...)...)
	t.Cleanup(env.Close)
	return env
}

func noop() error { return nil }
