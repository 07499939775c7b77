package host

import (
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/roach88/hostsim/internal/phase"
	"github.com/roach88/hostsim/internal/policy"
	"github.com/roach88/hostsim/internal/sched"
)

// simulatorPackages are skipped when locating the caller of a guarded
// operation.
var simulatorPackages = []string{
	reflect.TypeOf(Environment{}).PkgPath() + ".",
	reflect.TypeOf(phase.Controller{}).PkgPath() + ".",
	reflect.TypeOf(sched.Scheduler{}).PkgPath() + ".",
}

// guard returns a *PrivilegeError if op is forbidden right now.
func (e *Environment) guard(op policy.Operation) error {
	if !e.phase.ChecksOn() {
		return nil
	}
	p := e.phase.Get()
	if !e.policy.Forbids(op, p) {
		return nil
	}

	err := &PrivilegeError{Op: op, Phase: p, CallSite: callSite()}
	e.logger.Debug("privilege violation",
		"env", e.id,
		"op", op,
		"phase", p,
		"call_site", err.CallSite,
	)
	return err
}

// callSite returns "file.go:line" for the nearest frame outside the
// simulator. Test files count as outside even when they live in one of the
// simulator packages.
func callSite() string {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !insideSimulator(f) {
			return fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
		}
		if !more {
			return ""
		}
	}
}

func insideSimulator(f runtime.Frame) bool {
	if strings.HasSuffix(f.File, "_test.go") {
		return false
	}
	for _, prefix := range simulatorPackages {
		if strings.HasPrefix(f.Function, prefix) {
			return true
		}
	}
	return false
}
