package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/hostsim/internal/host"
	"github.com/roach88/hostsim/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string   // optional - list sessions when empty
	Kinds    []string // optional - filter records by kind
}

// SessionSummary is one journal session in the listing.
type SessionSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Policy    string `json:"policy,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
	Records   int    `json:"records"`
}

// TraceRecord is one host record in the timeline.
type TraceRecord struct {
	Seq     int64  `json:"seq"`
	Kind    string `json:"kind"`
	Phase   string `json:"phase"`
	Tick    int64  `json:"tick"`
	Channel string `json:"channel,omitempty"`
	Body    string `json:"body,omitempty"`
}

// TraceResult holds the records of one session.
type TraceResult struct {
	Session  SessionSummary `json:"session"`
	Timeline []TraceRecord  `json:"timeline"`
}

var recordKinds = []host.RecordKind{
	host.RecordMessage,
	host.RecordScriptEvent,
	host.RecordPhase,
	host.RecordTimer,
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print journaled host records",
		Long: `Print what a journaled run produced.

Without --session, lists every session in the journal. With --session,
prints that session's records in order: accepted messages, dispatched
script events, phase transitions and timer firings.

Examples:
  hostsim trace --db run.db
  hostsim trace --db run.db --session 0192b2c4-...
  hostsim trace --db run.db --session 0192b2c4-... --kind message --kind script_event
  hostsim trace --db run.db --session 0192b2c4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID to print")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kind", nil, "filter records by kind (message|script_event|phase|timer)")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := newPrinter(opts.RootOptions, cmd)

	kinds, err := parseKinds(opts.Kinds)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --kind", err)
	}

	// journal.Open would create a missing file.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = out.Fail(ErrCodeNotFound, fmt.Sprintf("journal not found: %s", opts.Database))
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	st, err := journal.Open(opts.Database)
	if err != nil {
		_ = out.Fail(ErrCodeJournal, err.Error())
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	if opts.Session == "" {
		sessions, err := listSessions(ctx, st)
		if err != nil {
			_ = out.Fail(ErrCodeJournal, err.Error())
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		if out.JSON() {
			return out.Respond(sessions, nil)
		}
		return writeSessionsText(out.Out, sessions)
	}

	result, err := readTrace(ctx, st, opts.Session, kinds)
	if err != nil {
		code := ErrCodeJournal
		if errors.Is(err, journal.ErrSessionNotFound) {
			code = ErrCodeSessionNotFound
		}
		_ = out.Fail(code, err.Error())
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	if out.JSON() {
		return out.Respond(result, nil)
	}
	return writeTraceText(out.Out, result, opts.Verbose)
}

// parseKinds validates --kind values.
func parseKinds(values []string) ([]host.RecordKind, error) {
	var kinds []host.RecordKind
	for _, v := range values {
		kind := host.RecordKind(v)
		known := false
		for _, k := range recordKinds {
			if k == kind {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown record kind %q", v)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func listSessions(ctx context.Context, st *journal.Store) ([]SessionSummary, error) {
	sessions, err := st.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		n, err := st.CountRecords(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, summarize(sess, n))
	}
	return out, nil
}

func readTrace(ctx context.Context, st *journal.Store, id string, kinds []host.RecordKind) (TraceResult, error) {
	sess, err := st.ReadSession(ctx, id)
	if err != nil {
		return TraceResult{}, err
	}
	records, err := st.ReadRecords(ctx, id, kinds...)
	if err != nil {
		return TraceResult{}, err
	}
	total, err := st.CountRecords(ctx, id)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		Session:  summarize(sess, total),
		Timeline: make([]TraceRecord, 0, len(records)),
	}
	for _, rec := range records {
		result.Timeline = append(result.Timeline, TraceRecord{
			Seq:     rec.Seq,
			Kind:    string(rec.Kind),
			Phase:   string(rec.Phase),
			Tick:    rec.Tick,
			Channel: rec.Channel,
			Body:    rec.Body,
		})
	}
	return result, nil
}

func summarize(sess journal.Session, records int) SessionSummary {
	s := SessionSummary{
		ID:      sess.ID,
		Name:    sess.Name,
		Policy:  sess.Policy,
		Records: records,
	}
	if !sess.StartedAt.IsZero() {
		s.StartedAt = sess.StartedAt.UTC().Format(time.RFC3339)
	}
	return s
}

func writeSessionsText(w io.Writer, sessions []SessionSummary) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions in journal.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tNAME\tPOLICY\tSTARTED\tRECORDS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.ID, dash(s.Name), dash(s.Policy), dash(s.StartedAt), s.Records)
	}
	return tw.Flush()
}

func writeTraceText(w io.Writer, result TraceResult, verbose bool) error {
	s := result.Session
	fmt.Fprintf(w, "Session: %s\n", s.ID)
	if s.Name != "" {
		fmt.Fprintf(w, "Name:    %s\n", s.Name)
	}
	if verbose {
		fmt.Fprintf(w, "Policy:  %s\n", dash(s.Policy))
		fmt.Fprintf(w, "Started: %s\n", dash(s.StartedAt))
	}
	fmt.Fprintln(w)

	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "No records.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTICK\tPHASE\tKIND\tCHANNEL\tBODY")
	for _, r := range result.Timeline {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", r.Seq, r.Tick, r.Phase, r.Kind, dash(r.Channel), r.Body)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d of %d record(s)\n", len(result.Timeline), s.Records)
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
