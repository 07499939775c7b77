package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/hostsim/internal/host"
)

// Session describes one journaled environment.
type Session struct {
	ID        string
	Name      string // scenario or test name; may be empty
	Policy    string // guard policy name
	StartedAt time.Time
}

// BeginSession records a session. Uses ON CONFLICT(id) DO NOTHING, so
// beginning the same session twice keeps the first row.
func (s *Store) BeginSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("begin session: empty session id")
	}
	started := ""
	if !sess.StartedAt.IsZero() {
		started = sess.StartedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, policy, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.Name, sess.Policy, started)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// WriteRecord appends rec to its session. The session must exist. Writing
// the same (session, seq) twice is ignored.
func (s *Store) WriteRecord(ctx context.Context, rec host.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (session_id, seq, kind, phase, tick, channel, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		rec.Env,
		rec.Seq,
		string(rec.Kind),
		string(rec.Phase),
		rec.Tick,
		rec.Channel,
		rec.Body,
	)
	if err != nil {
		return fmt.Errorf("write record %s#%d: %w", rec.Env, rec.Seq, err)
	}
	return nil
}
