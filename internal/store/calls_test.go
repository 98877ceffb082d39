package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/revenantdb/revenant/internal/object"
)

func TestBeginCall_Roundtrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	argHash := mustPut(t, s, object.Int(10))
	globalHash := mustPut(t, s, object.String("prod"))

	id, err := s.BeginCall(ctx, BeginCallParams{
		Function: "app.handlers.login",
		File:     "app/handlers.py",
		Line:     42,
		Locals:   map[string]string{"user_id": argHash},
		Globals:  map[string]string{"env": globalHash},
		Start:    testTime,
	})
	if err != nil {
		t.Fatalf("BeginCall() failed: %v", err)
	}

	call, err := s.GetCall(ctx, id)
	if err != nil {
		t.Fatalf("GetCall() failed: %v", err)
	}
	if call.Function != "app.handlers.login" {
		t.Errorf("function = %q", call.Function)
	}
	if call.State != CallOpen {
		t.Errorf("state = %s, want open", call.State)
	}
	if !call.Start.Equal(testTime) {
		t.Errorf("start = %v, want %v", call.Start, testTime)
	}
	if !call.End.IsZero() {
		t.Errorf("end = %v, want zero while open", call.End)
	}
	if call.Locals["user_id"] != argHash {
		t.Errorf("locals = %v", call.Locals)
	}
	if call.Globals["env"] != globalHash {
		t.Errorf("globals = %v", call.Globals)
	}
	if !call.Abandoned() {
		t.Error("open call should read as potentially abandoned")
	}
}

func TestBeginCall_UnknownBinding(t *testing.T) {
	s := createTestStore(t)

	_, err := s.BeginCall(context.Background(), BeginCallParams{
		Function: "f",
		Locals:   map[string]string{"x": "deadbeef"},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBeginCall_NestingValidation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	parentID, err := s.BeginCall(ctx, BeginCallParams{Function: "parent", Start: testTime})
	if err != nil {
		t.Fatalf("BeginCall(parent) failed: %v", err)
	}

	t.Run("missing parent", func(t *testing.T) {
		_, err := s.BeginCall(ctx, BeginCallParams{Function: "child", ParentID: "no-such"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("child before parent started", func(t *testing.T) {
		_, err := s.BeginCall(ctx, BeginCallParams{
			Function: "child",
			ParentID: parentID,
			Start:    testTime.Add(-time.Second),
		})
		if !errors.Is(err, ErrInvalidNesting) {
			t.Errorf("err = %v, want ErrInvalidNesting", err)
		}
	})

	t.Run("valid child", func(t *testing.T) {
		childID, err := s.BeginCall(ctx, BeginCallParams{
			Function: "child",
			ParentID: parentID,
			Start:    testTime.Add(time.Second),
		})
		if err != nil {
			t.Fatalf("BeginCall(child) failed: %v", err)
		}
		call, err := s.GetCall(ctx, childID)
		if err != nil {
			t.Fatalf("GetCall() failed: %v", err)
		}
		if call.ParentID != parentID {
			t.Errorf("parent = %q, want %q", call.ParentID, parentID)
		}
	})

	t.Run("child after parent ended", func(t *testing.T) {
		if err := s.EndCall(ctx, parentID, "", testTime.Add(2*time.Second)); err != nil {
			t.Fatalf("EndCall() failed: %v", err)
		}
		_, err := s.BeginCall(ctx, BeginCallParams{
			Function: "late child",
			ParentID: parentID,
			Start:    testTime.Add(3 * time.Second),
		})
		if !errors.Is(err, ErrInvalidNesting) {
			t.Errorf("err = %v, want ErrInvalidNesting", err)
		}
	})
}

func TestBeginCall_DeletedParentRejected(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	parentID := mustBeginCall(t, s, "parent")
	if err := s.DeleteCall(ctx, parentID); err != nil {
		t.Fatalf("DeleteCall() failed: %v", err)
	}

	_, err := s.BeginCall(ctx, BeginCallParams{Function: "child", ParentID: parentID})
	if !errors.Is(err, ErrInvalidNesting) {
		t.Errorf("err = %v, want ErrInvalidNesting", err)
	}
}

func TestEndCall_ClosesAndRecordsReturn(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id := mustBeginCall(t, s, "f")
	retHash := mustPut(t, s, object.String("done"))

	end := testTime.Add(time.Second)
	if err := s.EndCall(ctx, id, retHash, end); err != nil {
		t.Fatalf("EndCall() failed: %v", err)
	}

	call, err := s.GetCall(ctx, id)
	if err != nil {
		t.Fatalf("GetCall() failed: %v", err)
	}
	if call.State != CallClosed {
		t.Errorf("state = %s, want closed", call.State)
	}
	if call.ReturnRef != retHash {
		t.Errorf("return ref = %q, want %q", call.ReturnRef, retHash)
	}
	if !call.End.Equal(end) {
		t.Errorf("end = %v, want %v", call.End, end)
	}
	if call.Abandoned() {
		t.Error("closed call reported as abandoned")
	}
}

func TestEndCall_Twice(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id := mustBeginCall(t, s, "f")
	if err := s.EndCall(ctx, id, "", time.Time{}); err != nil {
		t.Fatalf("first EndCall() failed: %v", err)
	}

	err := s.EndCall(ctx, id, "", time.Time{})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestEndCall_Missing(t *testing.T) {
	s := createTestStore(t)

	err := s.EndCall(context.Background(), "no-such", "", time.Time{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteCall_TombstoneAndReleases(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	argHash := mustPut(t, s, object.Int(10))
	retHash := mustPut(t, s, object.String("ok"))
	id, err := s.BeginCall(ctx, BeginCallParams{
		Function: "f",
		Locals:   map[string]string{"x": argHash},
	})
	if err != nil {
		t.Fatalf("BeginCall() failed: %v", err)
	}
	if err := s.EndCall(ctx, id, retHash, time.Time{}); err != nil {
		t.Fatalf("EndCall() failed: %v", err)
	}

	if err := s.DeleteCall(ctx, id); err != nil {
		t.Fatalf("DeleteCall() failed: %v", err)
	}

	call, err := s.GetCall(ctx, id)
	if err != nil {
		t.Fatalf("GetCall() after delete failed: %v", err)
	}
	if call.State != CallDeleted {
		t.Errorf("state = %s, want deleted", call.State)
	}
	if len(call.Locals) != 0 || call.ReturnRef != "" {
		t.Errorf("tombstone still carries refs: locals=%v return=%q", call.Locals, call.ReturnRef)
	}

	// The call's references are gone; the objects are now collectible.
	if _, err := s.CollectGarbage(ctx); err != nil {
		t.Fatalf("CollectGarbage() failed: %v", err)
	}
	if _, err := s.GetObject(ctx, argHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("arg object survived delete+gc: %v", err)
	}
	if _, err := s.GetObject(ctx, retHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("return object survived delete+gc: %v", err)
	}
}

func TestDeleteCall_ReleasesSnapshotRefs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id := mustBeginCall(t, s, "f")
	snapHash := mustPut(t, s, object.Int(99))
	if _, err := s.AppendSnapshot(ctx, id, 11, map[string]string{"x": snapHash}, nil, testTime); err != nil {
		t.Fatalf("AppendSnapshot() failed: %v", err)
	}

	if err := s.DeleteCall(ctx, id); err != nil {
		t.Fatalf("DeleteCall() failed: %v", err)
	}
	if _, err := s.CollectGarbage(ctx); err != nil {
		t.Fatalf("CollectGarbage() failed: %v", err)
	}
	if _, err := s.GetObject(ctx, snapHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("snapshot object survived delete+gc: %v", err)
	}

	snaps, err := s.Snapshots(ctx, id)
	if err != nil {
		t.Fatalf("Snapshots() failed: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("%d snapshots left after delete", len(snaps))
	}
}

func TestDeleteCall_DoesNotCascade(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	parentID, err := s.BeginCall(ctx, BeginCallParams{Function: "parent", Start: testTime})
	if err != nil {
		t.Fatalf("BeginCall(parent) failed: %v", err)
	}
	childID, err := s.BeginCall(ctx, BeginCallParams{
		Function: "child",
		ParentID: parentID,
		Start:    testTime.Add(time.Second),
	})
	if err != nil {
		t.Fatalf("BeginCall(child) failed: %v", err)
	}

	if err := s.DeleteCall(ctx, parentID); err != nil {
		t.Fatalf("DeleteCall() failed: %v", err)
	}

	child, err := s.GetCall(ctx, childID)
	if err != nil {
		t.Fatalf("GetCall(child) failed: %v", err)
	}
	if child.State == CallDeleted {
		t.Error("deleting the parent cascaded to the child")
	}
	if child.ParentID != "" {
		t.Errorf("child parent = %q, want re-parented to root", child.ParentID)
	}
}

func TestDeleteCall_Twice(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id := mustBeginCall(t, s, "f")
	if err := s.DeleteCall(ctx, id); err != nil {
		t.Fatalf("first DeleteCall() failed: %v", err)
	}

	err := s.DeleteCall(ctx, id)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestChildCalls_Ordered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	parentID, err := s.BeginCall(ctx, BeginCallParams{Function: "parent", Start: testTime})
	if err != nil {
		t.Fatalf("BeginCall(parent) failed: %v", err)
	}

	var want []string
	for i := 1; i <= 3; i++ {
		id, err := s.BeginCall(ctx, BeginCallParams{
			Function: "child",
			ParentID: parentID,
			Start:    testTime.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("BeginCall(child %d) failed: %v", i, err)
		}
		want = append(want, id)
	}

	got, err := s.ChildCalls(ctx, parentID)
	if err != nil {
		t.Fatalf("ChildCalls() failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("children = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("children[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}
