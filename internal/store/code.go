package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/revenantdb/revenant/internal/object"
)

// PutCodeVersion stores the source text of a function or class, keyed by a
// content hash over the text. Storing the same content twice is a no-op and
// returns the same hash, so a function that never changes costs one row no
// matter how many calls reference it.
func (s *Store) PutCodeVersion(ctx context.Context, cv CodeVersion) (string, error) {
	hash := object.HashCode(cv.Content)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO code_versions (hash, name, content, module_path, class_name, first_line_no, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`,
		hash,
		cv.Name,
		cv.Content,
		cv.ModulePath,
		nullStr(cv.ClassName),
		cv.FirstLineNo,
		time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("put code version: %w", err)
	}
	return hash, nil
}

// GetCodeVersion retrieves a code version by content hash.
func (s *Store) GetCodeVersion(ctx context.Context, hash string) (CodeVersion, error) {
	var (
		cv        CodeVersion
		className sql.NullString
		firstLine sql.NullInt64
		created   int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT hash, name, content, module_path, class_name, first_line_no, created_at
		FROM code_versions
		WHERE hash = ?
	`, hash).Scan(&cv.Hash, &cv.Name, &cv.Content, &cv.ModulePath, &className, &firstLine, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return CodeVersion{}, fmt.Errorf("get code version %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return CodeVersion{}, fmt.Errorf("get code version %s: %w", hash, err)
	}

	cv.ClassName = className.String
	cv.FirstLineNo = int(firstLine.Int64)
	cv.CreatedAt = fromNanos(created)
	return cv, nil
}
