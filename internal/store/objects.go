package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/revenantdb/revenant/internal/object"
)

// PutValue stores a structural value and returns its content hash.
//
// Children are stored depth-first before their parent, so child hashes are
// part of the parent's canonical payload. Insertion is insert-if-absent: a
// hash that already exists gets its refcount incremented and no payload is
// rewritten. The returned hash carries one reference owned by the caller
// (a call binding, snapshot binding, version entry, or return slot);
// Release gives it back.
//
// Scalars that cannot be canonically encoded (NaN floats) are stored as an
// Unrepresentable sentinel instead of failing the put.
func (s *Store) PutValue(ctx context.Context, v object.Value) (string, error) {
	if v == nil {
		return "", fmt.Errorf("put value: nil value")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("put value: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	enc := &valueEncoder{ctx: ctx, tx: tx, inProgress: make(map[object.Value]int)}
	ref, err := enc.put(v, -1)
	if err != nil {
		return "", fmt.Errorf("put value: %w", err)
	}
	if ref.IsCycle {
		// The root is never an in-progress ancestor of itself.
		return "", fmt.Errorf("put value: root resolved to a cycle token")
	}

	// The caller's external reference to the root.
	if err := bumpRefcount(ctx, tx, ref.Hash, 1); err != nil {
		return "", fmt.Errorf("put value: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("put value: commit: %w", err)
	}
	return ref.Hash, nil
}

// valueEncoder walks a value graph depth-first inside one transaction,
// inserting missing object rows and producing child reference tokens.
type valueEncoder struct {
	ctx context.Context
	tx  *sql.Tx

	// inProgress maps composite values currently being encoded to their
	// nesting level. A child found here is a cycle, encoded as a
	// back-reference; entries are removed once the composite is finished,
	// so shared acyclic substructure is not mistaken for a cycle.
	inProgress map[object.Value]int
}

// put encodes one value and returns its reference token. parentLevel is the
// nesting level of the composite that references v (-1 for the root).
func (e *valueEncoder) put(v object.Value, parentLevel int) (object.ChildRef, error) {
	switch val := v.(type) {
	case *object.Sequence:
		if lvl, ok := e.inProgress[v]; ok {
			return object.CycleRef(parentLevel - lvl), nil
		}
		level := parentLevel + 1
		e.inProgress[v] = level
		defer delete(e.inProgress, v)

		children := make([]object.ChildRef, len(val.Items))
		for i, item := range val.Items {
			ref, err := e.put(item, level)
			if err != nil {
				return object.ChildRef{}, fmt.Errorf("sequence[%d]: %w", i, err)
			}
			children[i] = ref
		}
		payload := object.EncodeSequencePayload(children)
		return e.insert(object.TagSequence, payload, children)

	case *object.Mapping:
		if lvl, ok := e.inProgress[v]; ok {
			return object.CycleRef(parentLevel - lvl), nil
		}
		level := parentLevel + 1
		e.inProgress[v] = level
		defer delete(e.inProgress, v)

		entries := make(map[string]object.ChildRef, len(val.Entries))
		for k, item := range val.Entries {
			ref, err := e.put(item, level)
			if err != nil {
				return object.ChildRef{}, fmt.Errorf("mapping[%q]: %w", k, err)
			}
			entries[k] = ref
		}
		payload, err := object.EncodeMappingPayload(entries)
		if err != nil {
			return object.ChildRef{}, err
		}
		return e.insert(object.TagMapping, payload, refValues(entries))

	case *object.Record:
		if lvl, ok := e.inProgress[v]; ok {
			return object.CycleRef(parentLevel - lvl), nil
		}
		level := parentLevel + 1
		e.inProgress[v] = level
		defer delete(e.inProgress, v)

		fields := make(map[string]object.ChildRef, len(val.Fields))
		for k, item := range val.Fields {
			ref, err := e.put(item, level)
			if err != nil {
				return object.ChildRef{}, fmt.Errorf("record field %q: %w", k, err)
			}
			fields[k] = ref
		}
		payload, err := object.EncodeRecordPayload(val.TypeName, fields)
		if err != nil {
			return object.ChildRef{}, err
		}
		return e.insert(object.TagRecord, payload, refValues(fields))

	default:
		tag, payload, err := object.EncodeScalar(v)
		if err != nil {
			// Degrade to the explicit sentinel rather than failing the
			// whole capture.
			tag, payload, err = object.EncodeScalar(&object.Unrepresentable{TypeName: typeNameOf(v)})
			if err != nil {
				return object.ChildRef{}, err
			}
		}
		return e.insert(tag, payload, nil)
	}
}

// insert writes an object row if its hash is absent. When the row is new,
// each child gains one reference per occurrence; when the row already
// existed its children were already accounted for.
func (e *valueEncoder) insert(tag object.Tag, payload []byte, children []object.ChildRef) (object.ChildRef, error) {
	hash := object.HashPayload(object.DomainObject, tag, payload)

	res, err := e.tx.ExecContext(e.ctx, `
		INSERT INTO objects (hash, type_tag, payload, refcount, created_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, string(tag), payload, time.Now().UnixNano())
	if err != nil {
		return object.ChildRef{}, fmt.Errorf("insert object: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return object.ChildRef{}, fmt.Errorf("insert object: rows affected: %w", err)
	}
	if inserted > 0 {
		for _, child := range children {
			if child.IsCycle {
				continue
			}
			if err := bumpRefcount(e.ctx, e.tx, child.Hash, 1); err != nil {
				return object.ChildRef{}, err
			}
		}
	}

	return object.HashRef(hash), nil
}

func refValues(m map[string]object.ChildRef) []object.ChildRef {
	refs := make([]object.ChildRef, 0, len(m))
	for _, r := range m {
		refs = append(refs, r)
	}
	return refs
}

func typeNameOf(v object.Value) string {
	switch v.(type) {
	case object.Nil:
		return "nil"
	case object.Bool:
		return "bool"
	case object.Int:
		return "int"
	case object.Float:
		return "float"
	case object.String:
		return "string"
	case object.Bytes:
		return "bytes"
	case *object.Unrepresentable:
		return "unrepresentable"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func bumpRefcount(ctx context.Context, tx *sql.Tx, hash string, delta int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE objects SET refcount = refcount + ? WHERE hash = ?
	`, delta, hash)
	if err != nil {
		return fmt.Errorf("update refcount for %s: %w", hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update refcount for %s: rows affected: %w", hash, err)
	}
	if n == 0 {
		return fmt.Errorf("update refcount for %s: %w", hash, ErrNotFound)
	}
	return nil
}

// GetObject retrieves an object record by hash. Returns ErrNotFound if the
// hash was never stored or has been garbage collected.
func (s *Store) GetObject(ctx context.Context, hash string) (ObjectRecord, error) {
	var (
		rec     ObjectRecord
		tag     string
		payload []byte
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT hash, type_tag, payload, refcount, created_at
		FROM objects
		WHERE hash = ?
	`, hash).Scan(&rec.Hash, &tag, &payload, &rec.Refcount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ObjectRecord{}, fmt.Errorf("get object %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return ObjectRecord{}, fmt.Errorf("get object %s: %w", hash, err)
	}

	rec.Tag = object.Tag(tag)
	rec.CreatedAt = fromNanos(created)
	rec.Payload, err = object.DecodePayload(rec.Tag, payload)
	if err != nil {
		return ObjectRecord{}, fmt.Errorf("get object %s: %w", hash, err)
	}
	return rec, nil
}

// Release gives back one reference to a hash. A refcount reaching zero makes
// the record eligible for garbage collection; collection itself is deferred
// to CollectGarbage.
func (s *Store) Release(ctx context.Context, hash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("release %s: begin tx: %w", hash, err)
	}
	defer tx.Rollback()

	if err := bumpRefcount(ctx, tx, hash, -1); err != nil {
		return fmt.Errorf("release: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("release %s: commit: %w", hash, err)
	}
	return nil
}

// CollectGarbage removes object rows whose refcount has reached zero and
// releases their children, repeating until no more rows are collectible.
// Returns the number of rows removed.
func (s *Store) CollectGarbage(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("collect garbage: begin tx: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	for {
		n, err := collectPass(ctx, tx)
		if err != nil {
			return removed, fmt.Errorf("collect garbage: %w", err)
		}
		if n == 0 {
			break
		}
		removed += n
	}

	if err := tx.Commit(); err != nil {
		return removed, fmt.Errorf("collect garbage: commit: %w", err)
	}
	return removed, nil
}

// collectPass deletes one generation of zero-refcount rows. Deleting a
// composite releases its children, which may make them collectible on the
// next pass.
func collectPass(ctx context.Context, tx *sql.Tx) (int64, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT hash, type_tag, payload FROM objects WHERE refcount <= 0
	`)
	if err != nil {
		return 0, fmt.Errorf("query collectible: %w", err)
	}

	type victim struct {
		hash     string
		children []object.ChildRef
	}
	var victims []victim
	for rows.Next() {
		var (
			hash    string
			tag     string
			payload []byte
		)
		if err := rows.Scan(&hash, &tag, &payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan collectible: %w", err)
		}
		parsed, err := object.DecodePayload(object.Tag(tag), payload)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("decode collectible %s: %w", hash, err)
		}
		v := victim{hash: hash, children: parsed.Children}
		for _, r := range parsed.Entries {
			v.children = append(v.children, r)
		}
		victims = append(victims, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate collectible: %w", err)
	}

	for _, v := range victims {
		if _, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE hash = ?`, v.hash); err != nil {
			return 0, fmt.Errorf("delete %s: %w", v.hash, err)
		}
		for _, child := range v.children {
			if child.IsCycle {
				continue
			}
			if err := bumpRefcount(ctx, tx, child.Hash, -1); err != nil {
				// The child may have been deleted in this same pass.
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return 0, err
			}
		}
	}

	return int64(len(victims)), nil
}

// releaseRefsTx decrements the refcount of every hash in refs, once per
// occurrence, inside an existing transaction. Missing hashes are skipped:
// a previously collected object must not fail the release of the rest.
func releaseRefsTx(ctx context.Context, tx *sql.Tx, refs []string) error {
	for _, hash := range refs {
		if hash == "" {
			continue
		}
		if err := bumpRefcount(ctx, tx, hash, -1); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

// requireObjectsTx verifies that every hash resolves to a stored object.
// Used to uphold referential integrity when call and snapshot records are
// written against already-stored hashes.
func requireObjectsTx(ctx context.Context, tx *sql.Tx, refs map[string]string) error {
	for name, hash := range refs {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM objects WHERE hash = ?`, hash).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("ref %q -> %s: %w", name, hash, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("ref %q -> %s: %w", name, hash, err)
		}
	}
	return nil
}
