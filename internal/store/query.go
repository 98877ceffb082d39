package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CallFilter narrows a call search. Zero fields match everything; Deleted
// calls never match. Predicate, when set, is applied in memory after the
// SQL filters.
type CallFilter struct {
	Function  string
	File      string // substring match
	SessionID string
	Since     time.Time // calls starting at or after
	Until     time.Time // calls starting at or before
	Limit     int       // 0 means no limit
	Predicate func(Call) bool
}

// SearchCalls returns calls matching the filter with deterministic ordering
// (start time, then id).
func (s *Store) SearchCalls(ctx context.Context, f CallFilter) ([]Call, error) {
	var (
		conds = []string{"state != 'deleted'"}
		args  []any
	)
	if f.Function != "" {
		conds = append(conds, "function = ?")
		args = append(args, f.Function)
	}
	if f.File != "" {
		conds = append(conds, "file LIKE ?")
		args = append(args, "%"+f.File+"%")
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "start_time >= ?")
		args = append(args, toNanos(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "start_time <= ?")
		args = append(args, toNanos(f.Until))
	}

	query := `
		SELECT id, function, file, line, parent_id, start_time, end_time, locals, globals,
		       return_ref, code_version_ref, session_id, state
		FROM calls
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY start_time ASC, id ASC`
	if f.Limit > 0 && f.Predicate == nil {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("search calls: scan: %w", err)
		}
		if f.Predicate != nil && !f.Predicate(call) {
			continue
		}
		calls = append(calls, call)
		if f.Limit > 0 && len(calls) >= f.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search calls: iterate: %w", err)
	}

	if calls == nil {
		calls = []Call{}
	}
	return calls, nil
}
