package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hostsim/internal/harness"
	"github.com/roach88/hostsim/internal/policy"
)

// File kinds the validate command understands.
const (
	KindScenario = "scenario"
	KindPolicy   = "policy"
)

// ValidationError is one problem found in a file.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// FileValidation is the outcome for one file.
type FileValidation struct {
	File   string            `json:"file"`
	Kind   string            `json:"kind"`
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate scenarios and guard profiles",
		Long: `Validate scenario files (.yaml, .yml) and guard profiles (.cue)
without running anything.

Directories are searched recursively. Every problem is reported with an
error code:
  E101 - scenario YAML did not parse
  E102 - scenario is not valid
  E103 - unknown file type
  E201 - profile could not be read
  E202 - profile CUE did not compile
  E203 - profile does not match the schema
  E204 - profile is not a valid guard table

Examples:
  hostsim validate ./scenarios
  hostsim validate strict.cue --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := newPrinter(opts, cmd)

	files, err := collectValidateFiles(paths)
	if err != nil {
		_ = out.Fail(ErrCodeNotFound, err.Error())
		return WrapExitError(ExitCommandError, "validate", err)
	}

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		out.Debugf("Validating %s", file)
		fv := validateFile(file)
		if !fv.Valid {
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if out.JSON() {
		return outputValidateJSON(out, result)
	}
	return outputValidateText(out.Out, result)
}

// collectValidateFiles expands directories into the scenario and profile
// files below them. Explicit file arguments are kept whatever their
// extension, so unknown types are reported rather than skipped.
func collectValidateFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("path not found: %s", p)
			}
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if harness.IsScenarioFile(path) || isProfileFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}
	return files, nil
}

func isProfileFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".cue")
}

// validateFile checks one file according to its extension.
func validateFile(file string) FileValidation {
	switch {
	case harness.IsScenarioFile(file):
		return validateScenarioFile(file)
	case isProfileFile(file):
		return validateProfileFile(file)
	default:
		return FileValidation{
			File: file,
			Errors: []ValidationError{{
				Code:    ErrCodeUnknownFile,
				Message: "want a .yaml/.yml scenario or a .cue guard profile",
			}},
		}
	}
}

func validateScenarioFile(file string) FileValidation {
	fv := FileValidation{File: file, Kind: KindScenario, Valid: true}

	scenario, err := harness.LoadScenario(file)
	if err == nil && isProfileFile(scenario.Policy) {
		// A scenario is only runnable if the profile it names loads too.
		if _, perr := policy.LoadFile(scenario.Policy); perr != nil {
			err = fmt.Errorf("%w: policy: %w", harness.ErrInvalidScenario, perr)
		}
	}
	if err != nil {
		fv.Valid = false
		code := ErrCodeScenarioParse
		if errors.Is(err, harness.ErrInvalidScenario) {
			code = ErrCodeScenarioInvalid
		}
		fv.Errors = append(fv.Errors, ValidationError{Code: code, Message: err.Error()})
	}
	return fv
}

func validateProfileFile(file string) FileValidation {
	fv := FileValidation{File: file, Kind: KindPolicy, Valid: true}

	if _, err := policy.LoadFile(file); err != nil {
		fv.Valid = false
		ve := ValidationError{Code: ErrCodeGeneric, Message: err.Error()}
		var le *policy.LoadError
		if errors.As(err, &le) {
			ve.Code = le.Code
			ve.Message = le.Message
			if le.Pos.IsValid() {
				ve.Line = le.Pos.Line()
			}
		}
		fv.Errors = append(fv.Errors, ve)
	}
	return fv
}

func outputValidateJSON(out *Printer, result ValidationResult) error {
	var failure *CLIError
	if !result.Valid {
		failure = &CLIError{
			Code:    ErrCodeScenarioInvalid,
			Message: fmt.Sprintf("%d file(s) failed validation", countInvalid(result)),
		}
		if code := firstCode(result); code != "" {
			failure.Code = code
		}
	}
	if err := out.Respond(result, failure); err != nil {
		return err
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func outputValidateText(w io.Writer, result ValidationResult) error {
	for _, fv := range result.Files {
		if fv.Valid {
			fmt.Fprintf(w, "✓ %s\n", fv.File)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", fv.File)
		for _, e := range fv.Errors {
			if e.Line > 0 {
				fmt.Fprintf(w, "  [%s] line %d: %s\n", e.Code, e.Line, e.Message)
			} else {
				fmt.Fprintf(w, "  [%s] %s\n", e.Code, e.Message)
			}
		}
	}

	if !result.Valid {
		fmt.Fprintf(w, "\n%d of %d file(s) failed validation\n", countInvalid(result), len(result.Files))
		return NewExitError(ExitFailure, "validation failed")
	}
	fmt.Fprintf(w, "\nAll %d file(s) valid\n", len(result.Files))
	return nil
}

func countInvalid(result ValidationResult) int {
	n := 0
	for _, fv := range result.Files {
		if !fv.Valid {
			n++
		}
	}
	return n
}

// firstCode returns the code of the first reported problem.
func firstCode(result ValidationResult) string {
	for _, fv := range result.Files {
		if len(fv.Errors) > 0 {
			return fv.Errors[0].Code
		}
	}
	return ""
}
