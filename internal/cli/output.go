package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // a scenario failed, a file did not validate or a script threw
	ExitCommandError = 2 // bad flags, missing paths, unreadable journal or profile
)

// Error codes in command output. Guard profile codes (E2xx) are
// policy.LoadError codes and are passed through unchanged.
const (
	ErrCodeGeneric         = "E001"
	ErrCodeNotFound        = "E005"
	ErrCodeScenarioParse   = "E101"
	ErrCodeScenarioInvalid = "E102"
	ErrCodeUnknownFile     = "E103"
	ErrCodeJournal         = "E301"
	ErrCodeSessionNotFound = "E302"

	ErrCodeTestFailed   = "E_TEST_FAILED"
	ErrCodeScriptFailed = "E_SCRIPT_FAILED"
)

// ExitError carries the process exit code for a command error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command error to a process exit code. Errors that are
// not ExitErrors exit with ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope of every --format json result.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Printer writes command results either as text or as a CLIResponse.
type Printer struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer // verbose diagnostics, kept off Out so JSON stays parseable
	Verbose bool
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  opts.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: opts.Verbose,
	}
}

// JSON reports whether output is a JSON envelope.
func (p *Printer) JSON() bool {
	return p.Format == "json"
}

// Respond writes data in a JSON envelope. A non-nil failure marks the
// response as an error; data is still included.
func (p *Printer) Respond(data any, failure *CLIError) error {
	resp := CLIResponse{Status: "ok", Data: data}
	if failure != nil {
		resp.Status = "error"
		resp.Error = failure
	}
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Fail reports an error that prevented a command from producing a result.
func (p *Printer) Fail(code, message string) error {
	if p.JSON() {
		return p.Respond(nil, &CLIError{Code: code, Message: message})
	}
	_, err := fmt.Fprintf(p.Out, "Error [%s]: %s\n", code, message)
	return err
}

// Debugf writes a diagnostic line when --verbose is set.
func (p *Printer) Debugf(format string, args ...any) {
	if !p.Verbose {
		return
	}
	w := p.Diag
	if w == nil {
		w = p.Out
	}
	fmt.Fprintf(w, format+"\n", args...)
}
