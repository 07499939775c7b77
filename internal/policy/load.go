package policy

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/hostsim/internal/phase"
)

//go:embed schema.cue
var schemaCUE string

// Load error codes, in the same numbering space as the CLI's codes.
const (
	ErrCodeRead      = "E201" // profile file could not be read
	ErrCodeSyntax    = "E202" // CUE did not compile
	ErrCodeSchema    = "E203" // profile does not satisfy the schema
	ErrCodeSemantics = "E204" // profile is well-formed but not a valid table
)

// LoadError describes why a guard profile could not be loaded.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// newLoadError converts a CUE error, keeping its first position.
func newLoadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: err.Error()}
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// LoadFile reads a CUE guard profile from disk. See Load.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeRead, Message: fmt.Sprintf("read profile: %v", err)}
	}
	return Load(path, data)
}

// Load compiles a CUE guard profile. A profile starts from its base table
// (default unless `base: "legacy"`) and replaces the forbidden set of every
// operation listed under guards:
//
//	name: "strict-timers"
//	base: "default"
//	guards: {
//		startTimer: ["init", "early", "read"]
//	}
//
// The profile name defaults to the file name without its extension.
func Load(filename string, src []byte) (*Table, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, newLoadError(ErrCodeSchema, err)
	}

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, newLoadError(ErrCodeSyntax, err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, newLoadError(ErrCodeSchema, err)
	}

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if v := unified.LookupPath(cue.ParsePath("name")); v.Exists() {
		s, err := v.String()
		if err != nil {
			return nil, newLoadError(ErrCodeSchema, err)
		}
		name = s
	}

	base := Default()
	if v := unified.LookupPath(cue.ParsePath("base")); v.Exists() {
		s, err := v.String()
		if err != nil {
			return nil, newLoadError(ErrCodeSchema, err)
		}
		if s == "legacy" {
			base = Legacy()
		}
	}
	rules := base.Rules()

	guards := unified.LookupPath(cue.ParsePath("guards"))
	if guards.Exists() {
		iter, err := guards.Fields()
		if err != nil {
			return nil, newLoadError(ErrCodeSchema, err)
		}
		for iter.Next() {
			op := Operation(iter.Label())
			phases, err := decodePhases(iter.Value())
			if err != nil {
				return nil, &LoadError{
					Code:    ErrCodeSemantics,
					Message: fmt.Sprintf("guards.%s: %v", op, err),
					Pos:     iter.Value().Pos(),
				}
			}
			rules[op] = phases
		}
	}

	t, err := New(name, rules)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeSemantics, Message: err.Error()}
	}
	return t, nil
}

func decodePhases(v cue.Value) ([]phase.Phase, error) {
	list, err := v.List()
	if err != nil {
		return nil, err
	}
	var phases []phase.Phase
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, err
		}
		p, err := phase.Parse(s)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	return phases, nil
}
