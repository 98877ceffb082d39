package store

import (
	"context"
	"errors"
	"testing"

	"github.com/revenantdb/revenant/internal/object"
)

func TestAppendVersion_SequenceIncrements(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	h1 := mustPut(t, s, object.Int(1))
	h2 := mustPut(t, s, object.Int(2))

	for i, hash := range []string{h1, h2, h1} {
		seq, err := s.AppendVersion(ctx, "app.counter", hash, testTime)
		if err != nil {
			t.Fatalf("AppendVersion() %d failed: %v", i, err)
		}
		if seq != int64(i+1) {
			t.Errorf("seq = %d, want %d", seq, i+1)
		}
	}
}

func TestAppendVersion_RepeatedHashNotSuppressed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	hash := mustPut(t, s, object.String("same"))

	// An unchanged value observed twice is still two observations.
	for i := 0; i < 2; i++ {
		if _, err := s.AppendVersion(ctx, "app.state", hash, testTime); err != nil {
			t.Fatalf("AppendVersion() %d failed: %v", i, err)
		}
	}

	history, err := s.History(ctx, "app.state")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Hash != hash || history[1].Hash != hash {
		t.Error("history entries do not carry the observed hash")
	}
}

func TestAppendVersion_TakesOwnReference(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	hash := mustPut(t, s, object.Int(5))
	if _, err := s.AppendVersion(ctx, "app.x", hash, testTime); err != nil {
		t.Fatalf("AppendVersion() failed: %v", err)
	}

	// Give back the PutValue reference; the chain's own keeps the object.
	if err := s.Release(ctx, hash); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if _, err := s.CollectGarbage(ctx); err != nil {
		t.Fatalf("CollectGarbage() failed: %v", err)
	}
	if _, err := s.GetObject(ctx, hash); err != nil {
		t.Errorf("versioned object was collected: %v", err)
	}
}

func TestAppendVersion_UnknownHash(t *testing.T) {
	s := createTestStore(t)

	_, err := s.AppendVersion(context.Background(), "app.x", "deadbeef", testTime)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetVersion_BySeqAndLatest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	h1 := mustPut(t, s, object.Int(1))
	h2 := mustPut(t, s, object.Int(2))
	if _, err := s.AppendVersion(ctx, "app.v", h1, testTime); err != nil {
		t.Fatalf("AppendVersion() failed: %v", err)
	}
	if _, err := s.AppendVersion(ctx, "app.v", h2, testTime); err != nil {
		t.Fatalf("AppendVersion() failed: %v", err)
	}

	got, err := s.GetVersion(ctx, "app.v", 1)
	if err != nil {
		t.Fatalf("GetVersion(1) failed: %v", err)
	}
	if got != h1 {
		t.Errorf("GetVersion(1) = %s, want %s", got, h1)
	}

	got, err = s.GetVersion(ctx, "app.v", LatestSeq)
	if err != nil {
		t.Fatalf("GetVersion(latest) failed: %v", err)
	}
	if got != h2 {
		t.Errorf("GetVersion(latest) = %s, want %s", got, h2)
	}
}

func TestGetVersion_UnknownIdentity(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetVersion(context.Background(), "no.such", LatestSeq)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestHistory_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	history, err := s.History(context.Background(), "no.such")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if history == nil {
		t.Error("History() returned nil, want empty slice")
	}
	if len(history) != 0 {
		t.Errorf("history length = %d, want 0", len(history))
	}
}
