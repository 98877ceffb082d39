package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LatestSeq selects the most recent entry of an identity's version chain.
const LatestSeq int64 = -1

// AppendVersion records one observation of a logical object: the content
// hash it had at this moment. The chain is append-only and every observation
// is recorded, even when the hash repeats the previous entry - content-level
// dedup already happened in the objects table, so a repeated hash costs one
// chain row and nothing more.
//
// The entry takes its own reference on the hash, so version history stays
// resolvable after the calls that produced it are deleted. Returns the
// strictly increasing per-identity sequence number.
func (s *Store) AppendVersion(ctx context.Context, identity, hash string, ts time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append version: begin tx: %w", err)
	}
	defer tx.Rollback()

	// Referential integrity plus the chain's own reference in one step.
	if err := bumpRefcount(ctx, tx, hash, 1); err != nil {
		return 0, fmt.Errorf("append version: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM object_versions WHERE identity = ?
	`, identity).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append version: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO object_versions (identity, seq, hash, ts)
		VALUES (?, ?, ?, ?)
	`, identity, seq, hash, toNanos(ts))
	if err != nil {
		return 0, fmt.Errorf("append version: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append version: commit: %w", err)
	}
	return seq, nil
}

// GetVersion returns the hash an identity had at a given sequence number,
// or at its latest observation when seq is LatestSeq.
func (s *Store) GetVersion(ctx context.Context, identity string, seq int64) (string, error) {
	var (
		row  *sql.Row
		hash string
	)
	if seq == LatestSeq {
		row = s.db.QueryRowContext(ctx, `
			SELECT hash FROM object_versions
			WHERE identity = ?
			ORDER BY seq DESC
			LIMIT 1
		`, identity)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT hash FROM object_versions
			WHERE identity = ? AND seq = ?
		`, identity, seq)
	}

	err := row.Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get version %s@%d: %w", identity, seq, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get version %s@%d: %w", identity, seq, err)
	}
	return hash, nil
}

// History returns an identity's complete version chain in sequence order.
// Returns an empty slice (not nil) for an unknown identity.
func (s *Store) History(ctx context.Context, identity string) ([]VersionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, seq, hash, ts
		FROM object_versions
		WHERE identity = ?
		ORDER BY seq ASC
	`, identity)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", identity, err)
	}
	defer rows.Close()

	var entries []VersionEntry
	for rows.Next() {
		var (
			e  VersionEntry
			ts int64
		)
		if err := rows.Scan(&e.Identity, &e.Seq, &e.Hash, &ts); err != nil {
			return nil, fmt.Errorf("history %s: scan: %w", identity, err)
		}
		e.Timestamp = fromNanos(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history %s: iterate: %w", identity, err)
	}

	if entries == nil {
		entries = []VersionEntry{}
	}
	return entries, nil
}
