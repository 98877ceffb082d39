package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AppendSnapshot records the variable state at one executed line of an open
// call. The snapshot's sequence number is the count of snapshots already
// recorded for the call, assigned inside the same transaction so the
// within-call order is gapless even under concurrent writers.
//
// Bindings unchanged since the previous line hash to the same object row,
// so the cost of an append is proportional to the number of touched names,
// never to the full state size. No diffing happens here; content addressing
// is the dedup.
func (s *Store) AppendSnapshot(ctx context.Context, callID string, line int, locals, globals map[string]string, ts time.Time) (int64, error) {
	if ts.IsZero() {
		ts = time.Now()
	}

	localsJSON, err := marshalRefs(locals)
	if err != nil {
		return 0, fmt.Errorf("append snapshot: %w", err)
	}
	globalsJSON, err := marshalRefs(globals)
	if err != nil {
		return 0, fmt.Errorf("append snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	var state string
	err = tx.QueryRowContext(ctx, `SELECT state FROM calls WHERE id = ?`, callID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("append snapshot: call %s: %w", callID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("append snapshot: call %s: %w", callID, err)
	}
	if CallState(state) != CallOpen {
		return 0, fmt.Errorf("append snapshot: call %s is %s: %w", callID, state, ErrInvalidState)
	}

	if err := requireObjectsTx(ctx, tx, locals); err != nil {
		return 0, fmt.Errorf("append snapshot: locals: %w", err)
	}
	if err := requireObjectsTx(ctx, tx, globals); err != nil {
		return 0, fmt.Errorf("append snapshot: globals: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM snapshots WHERE call_id = ?
	`, callID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append snapshot: next seq: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (call_id, seq, line, locals, globals, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`, callID, seq, line, localsJSON, globalsJSON, toNanos(ts))
	if err != nil {
		return 0, fmt.Errorf("append snapshot: insert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("append snapshot: last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append snapshot: commit: %w", err)
	}
	return id, nil
}

// Snapshots returns a call's snapshot sequence in order. Returns an empty
// slice (not nil) when the call has no snapshots.
func (s *Store) Snapshots(ctx context.Context, callID string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, call_id, seq, line, locals, globals, ts
		FROM snapshots
		WHERE call_id = ?
		ORDER BY seq ASC
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("snapshots %s: %w", callID, err)
	}
	defer rows.Close()

	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, fmt.Errorf("snapshots %s: %w", callID, err)
	}
	return snaps, nil
}

// snapshotsTx is the transactional variant used by DeleteCall's reference walk.
func snapshotsTx(ctx context.Context, tx *sql.Tx, callID string) ([]Snapshot, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, call_id, seq, line, locals, globals, ts
		FROM snapshots
		WHERE call_id = ?
		ORDER BY seq ASC
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("snapshots %s: %w", callID, err)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

func collectSnapshots(rows *sql.Rows) ([]Snapshot, error) {
	var snaps []Snapshot
	for rows.Next() {
		var (
			snap    Snapshot
			locals  string
			globals string
			ts      int64
		)
		if err := rows.Scan(&snap.ID, &snap.CallID, &snap.Seq, &snap.Line, &locals, &globals, &ts); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Timestamp = fromNanos(ts)

		var err error
		if snap.Locals, err = unmarshalRefs(locals); err != nil {
			return nil, err
		}
		if snap.Globals, err = unmarshalRefs(globals); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	if snaps == nil {
		snaps = []Snapshot{}
	}
	return snaps, nil
}
