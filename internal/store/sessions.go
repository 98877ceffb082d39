package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartSession opens a named session and returns its id.
func (s *Store) StartSession(ctx context.Context, name string, metadata map[string]string) (string, error) {
	metaJSON, err := marshalRefs(metadata)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, metadata, start_time)
		VALUES (?, ?, ?, ?)
	`, id, nullStr(name), metaJSON, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// EndSession marks a session as finished. Ending a session twice fails with
// ErrInvalidState.
func (s *Store) EndSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET end_time = ? WHERE id = ? AND end_time IS NULL
	`, time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session %s: rows affected: %w", id, err)
	}
	if n == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("end session %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("end session %s: %w", id, err)
		}
		return fmt.Errorf("end session %s: already ended: %w", id, ErrInvalidState)
	}
	return nil
}

// LinkCall appends a call to a session's ordered call list. The position is
// the current list length, assigned transactionally, so linking is O(1)
// amortized and the order is gapless.
func (s *Store) LinkCall(ctx context.Context, sessionID, callID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("link call: begin tx: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("link call: session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("link call: session %s: %w", sessionID, err)
	}

	var position int64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM session_calls WHERE session_id = ?
	`, sessionID).Scan(&position)
	if err != nil {
		return fmt.Errorf("link call: position: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_calls (session_id, position, call_id)
		VALUES (?, ?, ?)
	`, sessionID, position, callID); err != nil {
		return fmt.Errorf("link call: insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE calls SET session_id = ? WHERE id = ?
	`, sessionID, callID); err != nil {
		return fmt.Errorf("link call: update call: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("link call: commit: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var (
		sess Session
		name sql.NullString
		meta string
		st   int64
		end  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, metadata, start_time, end_time FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &name, &meta, &st, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("get session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}

	sess.Name = name.String
	sess.Start = fromNanos(st)
	if end.Valid {
		sess.End = fromNanos(end.Int64)
	}
	if sess.Metadata, err = unmarshalRefs(meta); err != nil {
		return Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return sess, nil
}

// Sessions lists all sessions ordered by start time.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, metadata, start_time, end_time
		FROM sessions
		ORDER BY start_time ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess Session
			name sql.NullString
			meta string
			st   int64
			end  sql.NullInt64
		)
		if err := rows.Scan(&sess.ID, &name, &meta, &st, &end); err != nil {
			return nil, fmt.Errorf("list sessions: scan: %w", err)
		}
		sess.Name = name.String
		sess.Start = fromNanos(st)
		if end.Valid {
			sess.End = fromNanos(end.Int64)
		}
		if sess.Metadata, err = unmarshalRefs(meta); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: iterate: %w", err)
	}

	if sessions == nil {
		sessions = []Session{}
	}
	return sessions, nil
}

// SessionCalls returns the ids of a session's calls in link order. Deleted
// calls keep their slot so positions of the survivors are stable.
func (s *Store) SessionCalls(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT call_id FROM session_calls
		WHERE session_id = ?
		ORDER BY position ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session calls %s: %w", sessionID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("session calls %s: scan: %w", sessionID, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session calls %s: iterate: %w", sessionID, err)
	}

	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
