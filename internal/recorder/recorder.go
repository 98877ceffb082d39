// Package recorder is the core-side boundary for capture events.
//
// Collectors observe the running program and hand the recorder plain
// name/value lists - never live stack frames. The recorder consults the
// recording gate, hashes values into the object store, and maintains call,
// snapshot, and session records.
//
// A capture failure must never crash monitored code: every method swallows
// storage errors, logs them, and reports the event as dropped.
package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/revenantdb/revenant/internal/gate"
	"github.com/revenantdb/revenant/internal/store"
)

// Recorder consumes collector events and persists them.
type Recorder struct {
	store *store.Store
	gate  *gate.Gate
	clock *Clock
	log   *slog.Logger
}

// New creates a recorder. A nil gate uses the process-wide default; a nil
// logger discards nothing and logs through slog's default handler.
func New(s *store.Store, g *gate.Gate, log *slog.Logger) *Recorder {
	if g == nil {
		g = gate.Default
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: s, gate: g, clock: NewClock(), log: log}
}

// Gate exposes the recorder's recording gate.
func (r *Recorder) Gate() *gate.Gate {
	return r.gate
}

// CallStart records a function entry. Returns the new call id and true when
// the event was recorded, or "" and false when recording is off or the
// event had to be dropped.
func (r *Recorder) CallStart(ctx context.Context, ev CallStart) (string, bool) {
	if !r.gate.Enabled() {
		return "", false
	}
	seq := r.clock.Next()

	locals, ok := r.storeBindings(ctx, ev.Args, "arg")
	if !ok {
		return "", false
	}
	globals, ok := r.storeBindings(ctx, ev.Globals, "global")
	if !ok {
		r.releaseRefs(ctx, locals)
		return "", false
	}

	callID, err := r.store.BeginCall(ctx, store.BeginCallParams{
		Function:       ev.FunctionIdentity,
		File:           ev.File,
		Line:           ev.Line,
		ParentID:       ev.ParentCallID,
		CodeVersionRef: ev.CodeVersionRef,
		Locals:         locals,
		Globals:        globals,
		Start:          ev.Timestamp,
	})
	if err != nil {
		r.releaseRefs(ctx, locals)
		r.releaseRefs(ctx, globals)
		r.log.Warn("dropping call start event",
			"function", ev.FunctionIdentity, "seq", seq, "error", err)
		return "", false
	}
	return callID, true
}

// CallEnd records a function return.
func (r *Recorder) CallEnd(ctx context.Context, ev CallEnd) bool {
	if !r.gate.Enabled() {
		return false
	}
	seq := r.clock.Next()

	var returnRef string
	if ev.ReturnValue != nil {
		ref, err := r.store.PutValue(ctx, ev.ReturnValue)
		if err != nil {
			r.log.Warn("dropping call end event: return value",
				"call", ev.CallID, "seq", seq, "error", err)
			return false
		}
		returnRef = ref
	}

	if err := r.store.EndCall(ctx, ev.CallID, returnRef, ev.Timestamp); err != nil {
		if returnRef != "" {
			r.releaseRefs(ctx, map[string]string{"return": returnRef})
		}
		r.log.Warn("dropping call end event",
			"call", ev.CallID, "seq", seq, "error", err)
		return false
	}
	return true
}

// LineSnapshot records the variable state after one executed line.
func (r *Recorder) LineSnapshot(ctx context.Context, ev LineSnapshot) bool {
	if !r.gate.Enabled() {
		return false
	}
	seq := r.clock.Next()

	locals, ok := r.storeBindings(ctx, ev.Locals, "local")
	if !ok {
		return false
	}
	globals, ok := r.storeBindings(ctx, ev.Globals, "global")
	if !ok {
		r.releaseRefs(ctx, locals)
		return false
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := r.store.AppendSnapshot(ctx, ev.CallID, ev.Line, locals, globals, ts); err != nil {
		r.releaseRefs(ctx, locals)
		r.releaseRefs(ctx, globals)
		r.log.Warn("dropping line snapshot event",
			"call", ev.CallID, "line", ev.Line, "seq", seq, "error", err)
		return false
	}
	return true
}

// StartSession opens a session; EndSession and LinkCall pass through to the
// store with the same drop-on-error contract as the event methods.
func (r *Recorder) StartSession(ctx context.Context, name string, metadata map[string]string) (string, bool) {
	id, err := r.store.StartSession(ctx, name, metadata)
	if err != nil {
		r.log.Warn("dropping session start", "name", name, "error", err)
		return "", false
	}
	return id, true
}

func (r *Recorder) EndSession(ctx context.Context, sessionID string) bool {
	if err := r.store.EndSession(ctx, sessionID); err != nil {
		r.log.Warn("dropping session end", "session", sessionID, "error", err)
		return false
	}
	return true
}

func (r *Recorder) LinkCall(ctx context.Context, sessionID, callID string) bool {
	if err := r.store.LinkCall(ctx, sessionID, callID); err != nil {
		r.log.Warn("dropping session link", "session", sessionID, "call", callID, "error", err)
		return false
	}
	return true
}

// storeBindings hashes a binding list into the object store and appends
// version-chain observations for bindings that carry an identity. A binding
// that cannot be stored drops the whole event (referential integrity over
// partial capture); the caller logs.
//
// Each stored hash carries one caller reference. On success the references
// transfer to the call or snapshot row that records them; when the event is
// dropped the recorder releases them so the values stay collectible.
func (r *Recorder) storeBindings(ctx context.Context, bindings []NamedValue, kind string) (map[string]string, bool) {
	refs := make(map[string]string, len(bindings))
	for _, nv := range bindings {
		if nv.Value == nil {
			continue
		}
		hash, err := r.store.PutValue(ctx, nv.Value)
		if err != nil {
			r.releaseRefs(ctx, refs)
			r.log.Warn("dropping event: could not store value",
				"kind", kind, "name", nv.Name, "error", err)
			return nil, false
		}
		refs[nv.Name] = hash

		if nv.Identity != "" {
			if _, err := r.store.AppendVersion(ctx, nv.Identity, hash, time.Now()); err != nil {
				r.log.Warn("could not append version observation",
					"identity", nv.Identity, "name", nv.Name, "error", err)
				// The binding itself is still usable.
			}
		}
	}
	return refs, true
}

// releaseRefs gives back the caller references a dropped event took, keeping
// its values collectible. A failed release is logged and skipped.
func (r *Recorder) releaseRefs(ctx context.Context, refs map[string]string) {
	for name, hash := range refs {
		if err := r.store.Release(ctx, hash); err != nil {
			r.log.Warn("could not release dropped event value",
				"name", name, "hash", hash, "error", err)
		}
	}
}
