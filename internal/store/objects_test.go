package store

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/revenantdb/revenant/internal/object"
)

func TestPutValue_ScalarRoundtrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	hash := mustPut(t, s, object.String("hello"))

	rec, err := s.GetObject(ctx, hash)
	if err != nil {
		t.Fatalf("GetObject() failed: %v", err)
	}
	if rec.Tag != object.TagString {
		t.Errorf("tag = %s, want %s", rec.Tag, object.TagString)
	}
	if string(rec.Payload.Scalar) != "hello" {
		t.Errorf("payload = %q, want %q", rec.Payload.Scalar, "hello")
	}
}

func TestPutValue_IdenticalStructureDedupes(t *testing.T) {
	s := createTestStore(t)

	// Two separately built but structurally identical values.
	build := func() object.Value {
		m := object.NewMapping()
		m.Entries["user"] = object.String("ada")
		m.Entries["count"] = object.Int(3)
		return object.NewSequence(m, object.Int(3))
	}

	h1 := mustPut(t, s, build())
	before := countObjects(t, s)
	h2 := mustPut(t, s, build())

	if h1 != h2 {
		t.Errorf("identical structures got different hashes: %s vs %s", h1, h2)
	}
	if after := countObjects(t, s); after != before {
		t.Errorf("second put grew the table from %d to %d rows", before, after)
	}
	// Each put hands the caller one reference to the root.
	if rc := refcountOf(t, s, h1); rc != 2 {
		t.Errorf("root refcount = %d, want 2", rc)
	}
}

func TestPutValue_SharedChildCountedPerOccurrence(t *testing.T) {
	s := createTestStore(t)

	leaf := object.NewMapping()
	leaf.Entries["k"] = object.Int(7)
	root := object.NewSequence(leaf, leaf)

	rootHash := mustPut(t, s, root)

	rec, err := s.GetObject(context.Background(), rootHash)
	if err != nil {
		t.Fatalf("GetObject() failed: %v", err)
	}
	if len(rec.Payload.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(rec.Payload.Children))
	}
	if rec.Payload.Children[0] != rec.Payload.Children[1] {
		t.Error("shared child stored under two different references")
	}
	// Two occurrences in the parent row, no external reference.
	if rc := refcountOf(t, s, rec.Payload.Children[0].Hash); rc != 2 {
		t.Errorf("shared child refcount = %d, want 2", rc)
	}
}

func TestPutValue_SelfCycle(t *testing.T) {
	s := createTestStore(t)

	seq := object.NewSequence(object.Nil{})
	seq.Items[0] = seq

	hash := mustPut(t, s, seq)

	rec, err := s.GetObject(context.Background(), hash)
	if err != nil {
		t.Fatalf("GetObject() failed: %v", err)
	}
	if len(rec.Payload.Children) != 1 {
		t.Fatalf("children = %d, want 1", len(rec.Payload.Children))
	}
	ref := rec.Payload.Children[0]
	if !ref.IsCycle || ref.Distance != 0 {
		t.Errorf("self reference stored as %+v, want cycle distance 0", ref)
	}
}

func TestPutValue_CycleIsDeterministic(t *testing.T) {
	s := createTestStore(t)

	build := func() object.Value {
		a := object.NewRecord("Node")
		b := object.NewRecord("Node")
		a.Fields["peer"] = b
		b.Fields["peer"] = a
		return a
	}

	if h1, h2 := mustPut(t, s, build()), mustPut(t, s, build()); h1 != h2 {
		t.Errorf("same cyclic shape hashed differently: %s vs %s", h1, h2)
	}
}

func TestPutValue_NaNDegradesToUnrepresentable(t *testing.T) {
	s := createTestStore(t)

	hash := mustPut(t, s, object.Float(math.NaN()))

	rec, err := s.GetObject(context.Background(), hash)
	if err != nil {
		t.Fatalf("GetObject() failed: %v", err)
	}
	if rec.Tag != object.TagUnrepresentable {
		t.Errorf("tag = %s, want %s", rec.Tag, object.TagUnrepresentable)
	}
}

func TestGetObject_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetObject(context.Background(), strings.Repeat("0", 64))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRelease_ThenCollectGarbage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inner := object.NewSequence(object.Int(1), object.Int(2))
	rootHash := mustPut(t, s, object.NewSequence(inner, inner))

	// Still referenced: nothing to collect.
	n, err := s.CollectGarbage(ctx)
	if err != nil {
		t.Fatalf("CollectGarbage() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("collected %d objects while root still referenced", n)
	}

	if err := s.Release(ctx, rootHash); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	// Root, inner sequence, and both ints cascade out.
	n, err = s.CollectGarbage(ctx)
	if err != nil {
		t.Fatalf("CollectGarbage() failed: %v", err)
	}
	if n != 4 {
		t.Errorf("collected %d objects, want 4", n)
	}
	if left := countObjects(t, s); left != 0 {
		t.Errorf("%d objects left after collection", left)
	}
}

func TestCollectGarbage_SharedChildSurvives(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// The scalar is also referenced on its own.
	scalarHash := mustPut(t, s, object.Int(9))
	rootHash := mustPut(t, s, object.NewSequence(object.Int(9)))

	if err := s.Release(ctx, rootHash); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if _, err := s.CollectGarbage(ctx); err != nil {
		t.Fatalf("CollectGarbage() failed: %v", err)
	}

	// The root is gone but its child keeps its independent reference.
	if _, err := s.GetObject(ctx, rootHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("root still present after collection: %v", err)
	}
	if rc := refcountOf(t, s, scalarHash); rc != 1 {
		t.Errorf("shared scalar refcount = %d, want 1", rc)
	}
}
