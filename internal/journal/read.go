package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/hostsim/internal/host"
	"github.com/roach88/hostsim/internal/phase"
)

// ErrSessionNotFound is returned by ReadSession for unknown IDs.
var ErrSessionNotFound = errors.New("journal: session not found")

// Sessions returns every session, ordered by ID.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, policy, started_at
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadSession returns one session by ID.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, policy, started_at
		FROM sessions
		WHERE id = ?
	`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, err
}

// ReadRecords returns the records of a session in seq order, optionally
// filtered by kind.
//
// Returns an empty slice (not nil) if the session has no matching records.
func (s *Store) ReadRecords(ctx context.Context, sessionID string, kinds ...host.RecordKind) ([]host.Record, error) {
	query := `
		SELECT session_id, seq, kind, phase, tick, channel, body
		FROM records
		WHERE session_id = ?`
	args := []any{sessionID}
	if len(kinds) > 0 {
		query += ` AND kind IN (?` + repeatPlaceholder(len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []host.Record{}
	for rows.Next() {
		var rec host.Record
		var kind, ph string
		if err := rows.Scan(&rec.Env, &rec.Seq, &kind, &ph, &rec.Tick, &rec.Channel, &rec.Body); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Kind = host.RecordKind(kind)
		rec.Phase = phase.Phase(ph)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// CountRecords returns the number of records in a session.
func (s *Store) CountRecords(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var started string
	if err := row.Scan(&sess.ID, &sess.Name, &sess.Policy, &started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	if started != "" {
		t, err := time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return Session{}, fmt.Errorf("session %s: parse started_at: %w", sess.ID, err)
		}
		sess.StartedAt = t
	}
	return sess, nil
}

func repeatPlaceholder(n int) string {
	out := make([]byte, 0, n*3)
	for range n {
		out = append(out, ", ?"...)
	}
	return string(out)
}
