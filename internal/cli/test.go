package cli

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hostsim/internal/harness"
	"github.com/roach88/hostsim/internal/host"
	"github.com/roach88/hostsim/internal/journal"
	"github.com/roach88/hostsim/internal/policy"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Journal string // SQLite journal path; overrides MC_JOURNAL
	Filter  string // scenario filter (glob pattern on the file name)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Env    string   `json:"env,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <path>...",
		Short: "Run scenarios against the simulated host",
		Long: `Run scenario files against a fresh simulated host each.

Paths may be scenario files or directories, which are searched
recursively for .yaml and .yml files. A scenario that does not set a
policy or phase_checks of its own inherits MC_GUARD_POLICY and
MC_PHASE_CHECKS.

With --journal (or MC_JOURNAL) every host record is written to a SQLite
journal, one session per scenario, readable with "hostsim trace".

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unreadable journal, etc.)

Examples:
  hostsim test ./scenarios
  hostsim test ./scenarios --filter "timer-*"
  hostsim test ./scenarios/payload_limit.yaml --journal run.db
  hostsim test ./scenarios --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "write host records to this SQLite journal")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	out := newPrinter(opts.RootOptions, cmd)

	files, err := harness.Discover(paths)
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			return WrapExitError(ExitCommandError, "scenario path not found", err)
		}
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	files, err = filterScenarioFiles(files, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	if len(files) == 0 {
		if out.JSON() {
			return outputTestJSON(out, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(out.Out, "No scenarios found.")
		return nil
	}

	journalPath := opts.Journal
	if journalPath == "" {
		journalPath = opts.Config.Journal
	}
	var st *journal.Store
	if journalPath != "" {
		st, err = journal.Open(journalPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer st.Close()
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}

	for _, file := range files {
		sr := runScenario(opts, file, st)
		if !out.JSON() {
			writeScenarioText(out.Out, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if out.JSON() {
		return outputTestJSON(out, result)
	}
	return outputTestText(out.Out, result)
}

// filterScenarioFiles keeps files whose base name, without extension,
// matches the glob pattern. An empty pattern keeps everything.
func filterScenarioFiles(files []string, pattern string) ([]string, error) {
	if pattern == "" {
		return files, nil
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
	}

	var out []string
	for _, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		if ok, _ := filepath.Match(pattern, name); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// runScenario loads and runs one scenario file. When st is non-nil the
// run is journaled under a fresh UUIDv7 session.
func runScenario(opts *TestOptions, file string, st *journal.Store) ScenarioResult {
	logger := opts.logger()

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			File:   file,
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}
	applyEnvDefaults(scenario, opts)

	runOpts := []harness.RunOption{harness.WithLogger(logger)}
	var obs *journal.Observer
	if st != nil {
		policyName := scenario.Policy
		if policyName == "" {
			policyName = policy.Default().Name()
		}
		obs = journal.NewObserver(st, logger,
			journal.WithSessionName(scenario.Name),
			journal.WithSessionPolicy(policyName),
		)
		runOpts = append(runOpts,
			harness.WithObserver(obs),
			harness.WithIDGenerator(host.UUIDv7Generator{}),
		)
	}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			File:   file,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	sr := ScenarioResult{
		Name:   scenario.Name,
		File:   file,
		Pass:   result.Pass,
		Env:    result.Env,
		Errors: result.Errors,
	}
	if obs != nil && obs.Failures() > 0 {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("%d journal write(s) failed", obs.Failures()))
	}
	return sr
}

// applyEnvDefaults fills in guard settings the scenario leaves unset from
// MC_GUARD_POLICY and MC_PHASE_CHECKS.
func applyEnvDefaults(s *harness.Scenario, opts *TestOptions) {
	if s.Policy == "" && opts.Config.Policy != "" {
		s.Policy = opts.Config.Policy
	}
	if s.PhaseChecks == nil && !opts.Config.ChecksEnabled() {
		off := false
		s.PhaseChecks = &off
	}
}

func writeScenarioText(w io.Writer, sr ScenarioResult) {
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// outputTestJSON writes the whole result as one JSON envelope.
func outputTestJSON(out *Printer, result TestResult) error {
	var failure *CLIError
	if result.Failed > 0 {
		failure = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := out.Respond(result, failure); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText prints the summary line.
func outputTestText(w io.Writer, result TestResult) error {
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}
