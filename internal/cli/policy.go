package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/hostsim/internal/phase"
	"github.com/roach88/hostsim/internal/policy"
)

// PolicyOptions holds flags for the policy command.
type PolicyOptions struct {
	*RootOptions
	Profile string
}

// PolicyRow is one operation of the legality table.
type PolicyRow struct {
	Operation string          `json:"operation"`
	Allowed   map[string]bool `json:"allowed"` // keyed by phase
}

// PolicyResult is the legality table of one profile.
type PolicyResult struct {
	Profile string      `json:"profile"`
	Phases  []string    `json:"phases"`
	Rows    []PolicyRow `json:"rows"`
}

// NewPolicyCommand creates the policy command.
func NewPolicyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PolicyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Print the guard legality table",
		Long: `Print which guarded operations are allowed in which phase.

The profile is "default", "legacy" or the path of a .cue guard profile.
Without --profile, MC_GUARD_POLICY is used.

Examples:
  hostsim policy
  hostsim policy --profile legacy
  hostsim policy --profile strict.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPolicy(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Profile, "profile", "", "guard profile: default, legacy or a .cue file")

	return cmd
}

func runPolicy(opts *PolicyOptions, cmd *cobra.Command) error {
	out := newPrinter(opts.RootOptions, cmd)

	profile := opts.Profile
	if profile == "" {
		profile = opts.Config.Policy
	}
	out.Debugf("Resolving guard profile %q", profile)

	table, err := policy.Resolve(profile)
	if err != nil {
		code := ErrCodeGeneric
		var le *policy.LoadError
		if errors.As(err, &le) {
			code = le.Code
		}
		_ = out.Fail(code, err.Error())
		return WrapExitError(ExitCommandError, "failed to load guard profile", err)
	}

	result := buildPolicyResult(table)
	if out.JSON() {
		return out.Respond(result, nil)
	}
	return writePolicyTable(out.Out, result)
}

func buildPolicyResult(table *policy.Table) PolicyResult {
	result := PolicyResult{Profile: table.Name()}
	for _, p := range phase.All {
		result.Phases = append(result.Phases, string(p))
	}
	for _, op := range policy.Operations {
		row := PolicyRow{Operation: string(op), Allowed: make(map[string]bool, len(phase.All))}
		for _, p := range phase.All {
			row.Allowed[string(p)] = !table.Forbids(op, p)
		}
		result.Rows = append(result.Rows, row)
	}
	return result
}

// writePolicyTable renders the table with one column per phase.
func writePolicyTable(w io.Writer, result PolicyResult) error {
	fmt.Fprintf(w, "Guard profile: %s\n\n", result.Profile)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "OPERATION\t%s\n", strings.ToUpper(strings.Join(result.Phases, "\t")))
	for _, row := range result.Rows {
		cells := make([]string, len(result.Phases))
		for i, p := range result.Phases {
			cells[i] = "forbidden"
			if row.Allowed[p] {
				cells[i] = "allowed"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\n", row.Operation, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
