package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/hostsim/internal/host"
	"github.com/roach88/hostsim/internal/journal"
	"github.com/roach88/hostsim/internal/policy"
	"github.com/roach88/hostsim/internal/script"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Ticks   int64
	Journal string
}

// RunOutput is one message or script event the script produced.
type RunOutput struct {
	Kind    string `json:"kind"`
	Phase   string `json:"phase"`
	Tick    int64  `json:"tick"`
	Channel string `json:"channel,omitempty"`
	Body    string `json:"body"`
}

// RunResult is the outcome of one script run.
type RunResult struct {
	Script string      `json:"script"`
	Env    string      `json:"env"`
	Tick   int64       `json:"tick"`
	Phase  string      `json:"phase"`
	Output []RunOutput `json:"output"`
	Error  string      `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script.js>",
		Short: "Run a JavaScript file against the simulated host",
		Long: `Run a JavaScript file against a fresh simulated host.

The script sees the system, world and console globals. Its top level runs
in early-execution phase; afterwards the virtual clock is advanced by
--ticks, firing the script's timers. Accepted messages and dispatched
script events are printed in order.

Exit codes:
  0 - The script and its callbacks completed
  1 - The script threw (including guard refusals it did not catch)
  2 - Command error (unreadable script, bad guard profile, etc.)

Examples:
  hostsim run pack/main.js
  hostsim run pack/main.js --ticks 20
  hostsim run pack/main.js --journal run.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Ticks, "ticks", 1, "ticks to advance after the top level returns")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "write host records to this SQLite journal")

	return cmd
}

func runScript(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newPrinter(opts.RootOptions, cmd)
	logger := opts.logger()

	if opts.Ticks < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --ticks %d: must not be negative", opts.Ticks))
	}

	src, err := os.ReadFile(path)
	if err != nil {
		_ = out.Fail(ErrCodeNotFound, fmt.Sprintf("script not found: %s", path))
		return WrapExitError(ExitCommandError, "failed to read script", err)
	}

	hostOpts, err := opts.Config.Options()
	if err != nil {
		_ = out.Fail(ErrCodeGeneric, err.Error())
		return WrapExitError(ExitCommandError, "invalid environment", err)
	}

	rec := &host.Recorder{}
	hostOpts = append(hostOpts, host.WithLogger(logger), host.WithObserver(rec))

	journalPath := opts.Journal
	if journalPath == "" {
		journalPath = opts.Config.Journal
	}
	var obs *journal.Observer
	if journalPath != "" {
		st, err := journal.Open(journalPath)
		if err != nil {
			_ = out.Fail(ErrCodeJournal, err.Error())
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer st.Close()
		policyName := opts.Config.Policy
		if policyName == "" {
			policyName = policy.Default().Name()
		}
		obs = journal.NewObserver(st, logger,
			journal.WithSessionName(filepath.Base(path)),
			journal.WithSessionPolicy(policyName),
		)
		hostOpts = append(hostOpts, host.WithObserver(obs), host.WithIDGenerator(host.UUIDv7Generator{}))
	}

	env := host.New(hostOpts...)
	defer env.Close()

	out.Debugf("Running %s in environment %s", path, env.ID())
	rt := script.New(env, logger)
	runErr := rt.Run(ctx, filepath.Base(path), string(src))
	if runErr == nil && opts.Ticks > 0 {
		runErr = rt.Advance(ctx, opts.Ticks)
	}

	result := RunResult{
		Script: path,
		Env:    env.ID(),
		Tick:   env.System.CurrentTick(),
		Phase:  string(env.Phase().Get()),
		Output: make([]RunOutput, 0),
	}
	for _, r := range rec.Records(host.RecordMessage, host.RecordScriptEvent) {
		result.Output = append(result.Output, RunOutput{
			Kind:    string(r.Kind),
			Phase:   string(r.Phase),
			Tick:    r.Tick,
			Channel: r.Channel,
			Body:    r.Body,
		})
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	if obs != nil && obs.Failures() > 0 && runErr == nil {
		runErr = fmt.Errorf("%d journal write(s) failed", obs.Failures())
		result.Error = runErr.Error()
	}

	if out.JSON() {
		var failure *CLIError
		if runErr != nil {
			failure = &CLIError{Code: ErrCodeScriptFailed, Message: runErr.Error()}
		}
		if err := out.Respond(result, failure); err != nil {
			return err
		}
	} else {
		writeRunText(out.Out, result)
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "script failed", runErr)
	}
	return nil
}

func writeRunText(w io.Writer, result RunResult) {
	for _, o := range result.Output {
		if o.Kind == string(host.RecordScriptEvent) {
			fmt.Fprintf(w, "[tick %d] %s %s: %s\n", o.Tick, o.Kind, o.Channel, o.Body)
			continue
		}
		fmt.Fprintf(w, "[tick %d] %s: %s\n", o.Tick, o.Kind, o.Body)
	}
	if result.Error != "" {
		fmt.Fprintf(w, "\nScript failed: %s\n", result.Error)
		return
	}
	fmt.Fprintf(w, "\nScript finished at tick %d (%s phase)\n", result.Tick, result.Phase)
}
