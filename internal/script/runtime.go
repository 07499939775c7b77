package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dop251/goja"

	"github.com/roach88/hostsim/internal/host"
	"github.com/roach88/hostsim/internal/phase"
)

// Error is an uncaught JavaScript error. Err is the goja error
// (*goja.Exception, *goja.InterruptedError or a compile error). Cause is the
// host or context error behind it, when the script did not catch one.
type Error struct {
	Err   error
	Cause error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Runtime is a JavaScript VM bound to one environment.
//
// Thread-safety: not safe for concurrent use. The VM and the environment
// both run on the caller's goroutine.
type Runtime struct {
	vm     *goja.Runtime
	env    *host.Environment
	logger *slog.Logger

	// thrown maps GoError objects raised by host calls back to the Go
	// error, so an uncaught one can be unwrapped.
	thrown map[*goja.Object]error

	// subs tracks JavaScript subscriptions per signal path so unsubscribe
	// can find the handle for a function.
	subs map[string][]jsSubscription
}

type jsSubscription struct {
	fn *goja.Object
	id host.Subscription
}

// New creates a runtime and installs the system, world and console
// globals. A nil logger discards console output.
func New(env *host.Environment, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Runtime{
		vm:     goja.New(),
		env:    env,
		logger: logger,
		thrown: make(map[*goja.Object]error),
		subs:   make(map[string][]jsSubscription),
	}
	r.bind()
	return r
}

// Env returns the environment the runtime is bound to.
func (r *Runtime) Env() *host.Environment {
	return r.env
}

// Run compiles and runs a script. The top level runs in EarlyExecution;
// pending work is drained afterwards, so the environment is back in Normal
// when Run returns. name is used in stack traces and privilege error call
// sites.
//
// Cancelling ctx interrupts the script.
func (r *Runtime) Run(ctx context.Context, name, src string) error {
	prg, err := goja.Compile(name, src, false)
	if err != nil {
		return fmt.Errorf("compile %s: %w", name, &Error{Err: err})
	}

	r.logger.Debug("script started", "env", r.env.ID(), "script", name)
	err = r.interruptible(ctx, func() error {
		r.env.Phase().Set(phase.EarlyExecution)
		_, err := r.vm.RunProgram(prg)
		r.env.RunPendingWork()
		return r.fromJS(err)
	})
	if err != nil {
		r.logger.Debug("script failed", "env", r.env.ID(), "script", name, "error", err)
		return fmt.Errorf("run %s: %w", name, err)
	}
	r.logger.Debug("script finished", "env", r.env.ID(), "script", name)
	return nil
}

// Advance moves the environment's virtual clock forward, running the
// script's due timers. Cancelling ctx interrupts a running callback.
func (r *Runtime) Advance(ctx context.Context, ticks int64) error {
	return r.interruptible(ctx, func() error {
		return r.env.AdvanceTicks(ticks)
	})
}

// Trigger dispatches a signal by path, running JavaScript subscribers.
// Cancelling ctx interrupts a running subscriber.
func (r *Runtime) Trigger(ctx context.Context, path string, data host.EventData) error {
	sig, err := r.env.Signal(path)
	if err != nil {
		return err
	}
	return r.interruptible(ctx, func() error {
		return sig.TriggerData(data)
	})
}

// interruptible runs fn with ctx cancellation wired to the VM.
func (r *Runtime) interruptible(ctx context.Context, fn func() error) error {
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		r.vm.Interrupt(ctx.Err())
		close(interrupted)
	})
	err := fn()
	if !stop() {
		// The interrupt has started; wait for it to land before clearing it,
		// or it could hit the next call instead.
		<-interrupted
		r.vm.ClearInterrupt()
	}
	return err
}

// fromJS converts an error returned by goja into an *Error, recovering the
// host or context error behind it.
func (r *Runtime) fromJS(err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}

	se = &Error{Err: err}
	var exc *goja.Exception
	var intr *goja.InterruptedError
	switch {
	case errors.As(err, &exc):
		if obj, ok := exc.Value().(*goja.Object); ok {
			se.Cause = r.thrown[obj]
		}
	case errors.As(err, &intr):
		if cause, ok := intr.Value().(error); ok {
			se.Cause = cause
		}
	}
	return se
}

// throw raises err in JavaScript. Errors that started as JavaScript
// exceptions are rethrown unchanged; host errors become GoError values.
// It never returns when err is non-nil.
func (r *Runtime) throw(err error) {
	if err == nil {
		return
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		panic(exc)
	}

	r.annotate(err)
	obj := r.vm.NewGoError(err)
	r.thrown[obj] = err
	panic(obj)
}

// annotate points a privilege error's call site at the script line that
// made the call instead of the Go frame inside the VM.
func (r *Runtime) annotate(err error) {
	var pe *host.PrivilegeError
	if !errors.As(err, &pe) {
		return
	}
	for _, frame := range r.vm.CaptureCallStack(0, nil) {
		if pos := frame.Position(); pos.Line > 0 {
			pe.CallSite = fmt.Sprintf("%s:%d", pos.Filename, pos.Line)
			return
		}
	}
}

// callable asserts that v is a function.
func (r *Runtime) callable(v goja.Value, what string) goja.Callable {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		panic(r.vm.NewTypeError(what + ": argument must be a function"))
	}
	return fn
}
