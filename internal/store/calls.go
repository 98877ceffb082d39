package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BeginCallParams holds everything known about a call at entry time.
// Locals and Globals map names to hashes already stored via PutValue.
type BeginCallParams struct {
	Function       string
	File           string
	Line           int
	ParentID       string
	CodeVersionRef string
	Locals         map[string]string
	Globals        map[string]string
	Start          time.Time
}

// BeginCall opens a new call record and returns its id.
//
// When a parent is given, the call-tree invariant is validated: the parent
// must exist, must not be deleted, and its time interval must be able to
// encompass the child's (parent started no later than the child; a closed
// parent must not have ended before the child started). Violations fail
// with ErrInvalidNesting.
func (s *Store) BeginCall(ctx context.Context, p BeginCallParams) (string, error) {
	if p.Start.IsZero() {
		p.Start = time.Now()
	}

	localsJSON, err := marshalRefs(p.Locals)
	if err != nil {
		return "", fmt.Errorf("begin call: %w", err)
	}
	globalsJSON, err := marshalRefs(p.Globals)
	if err != nil {
		return "", fmt.Errorf("begin call: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin call: begin tx: %w", err)
	}
	defer tx.Rollback()

	if p.ParentID != "" {
		if err := validateNesting(ctx, tx, p.ParentID, p.Start); err != nil {
			return "", fmt.Errorf("begin call: %w", err)
		}
	}

	if err := requireObjectsTx(ctx, tx, p.Locals); err != nil {
		return "", fmt.Errorf("begin call: locals: %w", err)
	}
	if err := requireObjectsTx(ctx, tx, p.Globals); err != nil {
		return "", fmt.Errorf("begin call: globals: %w", err)
	}

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO calls (id, function, file, line, parent_id, start_time, locals, globals, code_version_ref, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'open')
	`,
		id,
		p.Function,
		nullStr(p.File),
		p.Line,
		nullStr(p.ParentID),
		toNanos(p.Start),
		localsJSON,
		globalsJSON,
		nullStr(p.CodeVersionRef),
	)
	if err != nil {
		return "", fmt.Errorf("begin call: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("begin call: commit: %w", err)
	}
	return id, nil
}

// validateNesting checks the call-tree invariant against the parent.
func validateNesting(ctx context.Context, tx *sql.Tx, parentID string, childStart time.Time) error {
	var (
		start int64
		end   sql.NullInt64
		state string
	)
	err := tx.QueryRowContext(ctx, `
		SELECT start_time, end_time, state FROM calls WHERE id = ?
	`, parentID).Scan(&start, &end, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("parent %s: %w", parentID, err)
	}

	if CallState(state) == CallDeleted {
		return fmt.Errorf("parent %s is deleted: %w", parentID, ErrInvalidNesting)
	}
	if fromNanos(start).After(childStart) {
		return fmt.Errorf("parent %s started after child: %w", parentID, ErrInvalidNesting)
	}
	if end.Valid && fromNanos(end.Int64).Before(childStart) {
		return fmt.Errorf("parent %s ended before child started: %w", parentID, ErrInvalidNesting)
	}
	return nil
}

// EndCall closes an open call, recording its return value reference and end
// time. Fails with ErrInvalidState unless the call is currently open.
func (s *Store) EndCall(ctx context.Context, id, returnRef string, end time.Time) error {
	if end.IsZero() {
		end = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("end call %s: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	if returnRef != "" {
		if err := requireObjectsTx(ctx, tx, map[string]string{"return": returnRef}); err != nil {
			return fmt.Errorf("end call %s: %w", id, err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE calls SET state = 'closed', return_ref = ?, end_time = ?
		WHERE id = ? AND state = 'open'
	`, nullStr(returnRef), toNanos(end), id)
	if err != nil {
		return fmt.Errorf("end call %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end call %s: rows affected: %w", id, err)
	}
	if n == 0 {
		// Either the call does not exist or it is not open.
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM calls WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("end call %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("end call %s: %w", id, err)
		}
		return fmt.Errorf("end call %s: not open: %w", id, ErrInvalidState)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("end call %s: commit: %w", id, err)
	}
	return nil
}

// GetCall retrieves a call record by id. Open calls read back as-is; whether
// an open call is abandoned is the reader's judgment (see Call.Abandoned).
func (s *Store) GetCall(ctx context.Context, id string) (Call, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, function, file, line, parent_id, start_time, end_time, locals, globals,
		       return_ref, code_version_ref, session_id, state
		FROM calls
		WHERE id = ?
	`, id)

	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, fmt.Errorf("get call %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Call{}, fmt.Errorf("get call %s: %w", id, err)
	}
	return call, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c          Call
		file       sql.NullString
		line       sql.NullInt64
		parentID   sql.NullString
		start      int64
		end        sql.NullInt64
		locals     string
		globals    string
		returnRef  sql.NullString
		codeRef    sql.NullString
		sessionID  sql.NullString
		state      string
	)
	err := row.Scan(&c.ID, &c.Function, &file, &line, &parentID, &start, &end,
		&locals, &globals, &returnRef, &codeRef, &sessionID, &state)
	if err != nil {
		return Call{}, err
	}

	c.File = file.String
	c.Line = int(line.Int64)
	c.ParentID = parentID.String
	c.Start = fromNanos(start)
	if end.Valid {
		c.End = fromNanos(end.Int64)
	}
	c.ReturnRef = returnRef.String
	c.CodeVersionRef = codeRef.String
	c.SessionID = sessionID.String
	c.State = CallState(state)

	if c.Locals, err = unmarshalRefs(locals); err != nil {
		return Call{}, err
	}
	if c.Globals, err = unmarshalRefs(globals); err != nil {
		return Call{}, err
	}
	return c, nil
}

// DeleteCall logically removes a call: every hash the call itself referenced
// (locals, globals, return, and each of its snapshots' bindings) is
// released, its snapshot rows are dropped, and the record becomes a
// tombstone. Child calls are NOT cascaded: their parent link is cleared and
// their data survives independently.
//
// Deleting an already-deleted call fails with ErrInvalidState.
func (s *Store) DeleteCall(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete call %s: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	call, err := scanCall(tx.QueryRowContext(ctx, `
		SELECT id, function, file, line, parent_id, start_time, end_time, locals, globals,
		       return_ref, code_version_ref, session_id, state
		FROM calls
		WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete call %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete call %s: %w", id, err)
	}
	if call.State == CallDeleted {
		return fmt.Errorf("delete call %s: already deleted: %w", id, ErrInvalidState)
	}

	// One release per reference occurrence, call bindings first.
	var refs []string
	for _, hash := range call.Locals {
		refs = append(refs, hash)
	}
	for _, hash := range call.Globals {
		refs = append(refs, hash)
	}
	if call.ReturnRef != "" {
		refs = append(refs, call.ReturnRef)
	}

	// Walk the snapshot log for the call's remaining references.
	snaps, err := snapshotsTx(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("delete call %s: %w", id, err)
	}
	for _, snap := range snaps {
		for _, hash := range snap.Locals {
			refs = append(refs, hash)
		}
		for _, hash := range snap.Globals {
			refs = append(refs, hash)
		}
	}

	if err := releaseRefsTx(ctx, tx, refs); err != nil {
		return fmt.Errorf("delete call %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE call_id = ?`, id); err != nil {
		return fmt.Errorf("delete call %s: drop snapshots: %w", id, err)
	}

	// Children keep their data; only the parent link goes away.
	if _, err := tx.ExecContext(ctx, `UPDATE calls SET parent_id = NULL WHERE parent_id = ?`, id); err != nil {
		return fmt.Errorf("delete call %s: unlink children: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE calls SET state = 'deleted', locals = '{}', globals = '{}', return_ref = NULL
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("delete call %s: tombstone: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete call %s: commit: %w", id, err)
	}
	return nil
}

// ChildCalls returns the ids of calls whose parent is the given call,
// ordered by start time.
func (s *Store) ChildCalls(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM calls WHERE parent_id = ? ORDER BY start_time ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("child calls %s: %w", id, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("child calls %s: scan: %w", id, err)
		}
		ids = append(ids, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("child calls %s: iterate: %w", id, err)
	}

	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
