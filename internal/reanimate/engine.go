// Package reanimate reconstructs live values from stored references and
// optionally re-invokes the original computation with them.
package reanimate

import (
	"context"
	"fmt"

	"github.com/revenantdb/revenant/internal/object"
	"github.com/revenantdb/revenant/internal/store"
)

// Instance is the materialized form of a Record: an object of an arbitrary
// source type reconstructed as named fields.
type Instance struct {
	TypeName string
	Fields   map[string]any
}

// Stub stands in for a value stored as Unrepresentable. Any result
// containing one carries the Degraded flag.
type Stub struct {
	TypeName string
}

// Cache maps object hashes to already-built (or in-progress) values. One
// cache shared across a group of Materialize calls is what keeps objects
// aliased in storage aliased after reconstruction.
type Cache map[string]any

// Engine reconstructs values from the capture store.
type Engine struct {
	store *store.Store
}

// New creates a reanimation engine over a store.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Materialize reconstructs the value stored under hash. Scalars decode
// directly; composites are allocated empty, registered in the cache, and
// only then populated, so shared and cyclic references resolve to the
// already-registered container instead of recursing forever.
//
// Sequences materialize as []any, mappings as map[string]any, records as
// *Instance, and Unrepresentable sentinels as *Stub. The boolean result
// reports degradation: true when the walk encountered at least one Stub,
// whether built now or found in the cache. A composite returned wholly from
// a caller-shared cache is not re-walked; its degradation was reported by
// the pass that built it.
func (e *Engine) Materialize(ctx context.Context, hash string, cache Cache) (any, bool, error) {
	if cache == nil {
		cache = Cache{}
	}
	m := &materializer{ctx: ctx, engine: e, cache: cache}
	v, err := m.build(hash)
	if err != nil {
		return nil, false, err
	}
	return v, m.degraded, nil
}

// materializer carries the shared cache, the in-progress container stack
// used to resolve cycle back-references, and the degradation flag for one
// reconstruction pass.
type materializer struct {
	ctx      context.Context
	engine   *Engine
	cache    Cache
	stack    []any
	degraded bool
}

func (m *materializer) build(hash string) (any, error) {
	if v, ok := m.cache[hash]; ok {
		if _, isStub := v.(*Stub); isStub {
			m.degraded = true
		}
		return v, nil
	}

	rec, err := m.engine.store.GetObject(m.ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}

	switch rec.Tag {
	case object.TagSequence:
		// Register before populating: a cyclic child lookup must find
		// this container already present.
		s := make([]any, len(rec.Payload.Children))
		m.cache[hash] = s
		m.stack = append(m.stack, s)
		for i, ref := range rec.Payload.Children {
			child, err := m.resolve(ref)
			if err != nil {
				return nil, fmt.Errorf("materialize sequence %s[%d]: %w", hash, i, err)
			}
			s[i] = child
		}
		m.stack = m.stack[:len(m.stack)-1]
		return s, nil

	case object.TagMapping:
		mp := make(map[string]any, len(rec.Payload.Entries))
		m.cache[hash] = mp
		m.stack = append(m.stack, mp)
		for k, ref := range rec.Payload.Entries {
			child, err := m.resolve(ref)
			if err != nil {
				return nil, fmt.Errorf("materialize mapping %s[%q]: %w", hash, k, err)
			}
			mp[k] = child
		}
		m.stack = m.stack[:len(m.stack)-1]
		return mp, nil

	case object.TagRecord:
		inst := &Instance{TypeName: rec.Payload.TypeName, Fields: make(map[string]any, len(rec.Payload.Entries))}
		m.cache[hash] = inst
		m.stack = append(m.stack, inst)
		for k, ref := range rec.Payload.Entries {
			child, err := m.resolve(ref)
			if err != nil {
				return nil, fmt.Errorf("materialize record %s.%s: %w", hash, k, err)
			}
			inst.Fields[k] = child
		}
		m.stack = m.stack[:len(m.stack)-1]
		return inst, nil

	case object.TagUnrepresentable:
		stub := &Stub{TypeName: rec.Payload.TypeName}
		m.cache[hash] = stub
		m.degraded = true
		return stub, nil

	default:
		v, err := decodeScalar(rec.Tag, rec.Payload.Scalar)
		if err != nil {
			return nil, fmt.Errorf("materialize scalar %s: %w", hash, err)
		}
		m.cache[hash] = v
		return v, nil
	}
}

// resolve turns one child reference into a value: a cache or store lookup
// for hashes, a walk up the in-progress stack for cycle back-references.
func (m *materializer) resolve(ref object.ChildRef) (any, error) {
	if !ref.IsCycle {
		return m.build(ref.Hash)
	}
	// Distance 0 is the referencing node itself, which sits on top of the
	// stack while its children are being resolved.
	idx := len(m.stack) - 1 - ref.Distance
	if idx < 0 || idx >= len(m.stack) {
		return nil, fmt.Errorf("cycle reference distance %d exceeds nesting depth %d", ref.Distance, len(m.stack))
	}
	return m.stack[idx], nil
}

func decodeScalar(tag object.Tag, payload []byte) (any, error) {
	v, err := object.DecodeScalar(tag, payload)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case object.Nil:
		return nil, nil
	case object.Bool:
		return bool(val), nil
	case object.Int:
		return int64(val), nil
	case object.Float:
		return float64(val), nil
	case object.String:
		return string(val), nil
	case object.Bytes:
		return []byte(val), nil
	default:
		return nil, fmt.Errorf("unexpected scalar type %T", v)
	}
}

// CallResult is the reconstructed state of one call.
type CallResult struct {
	CallID    string
	Function  string
	Locals    map[string]any
	Globals   map[string]any
	Return    any
	HasReturn bool

	// Degraded is set when any reconstructed value contains a Stub for an
	// Unrepresentable capture. A degraded result is still returned; it is
	// never silently merged with a clean one.
	Degraded bool
}

// ReanimateCall reconstructs a call's locals, globals, and return value
// through one shared cache, so values aliased between bindings in storage
// come back as the same reconstructed object.
//
// When the call has line snapshots, the last snapshot's bindings are used:
// they are the call's final observed state. A call without snapshots yields
// its entry bindings.
func (e *Engine) ReanimateCall(ctx context.Context, callID string) (*CallResult, error) {
	call, err := e.store.GetCall(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("reanimate call: %w", err)
	}

	locals, globals := call.Locals, call.Globals
	snaps, err := e.store.Snapshots(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("reanimate call: %w", err)
	}
	if len(snaps) > 0 {
		last := snaps[len(snaps)-1]
		locals, globals = last.Locals, last.Globals
	}

	result := &CallResult{
		CallID:   callID,
		Function: call.Function,
		Locals:   make(map[string]any, len(locals)),
		Globals:  make(map[string]any, len(globals)),
	}

	cache := Cache{}
	m := &materializer{ctx: ctx, engine: e, cache: cache}

	for name, hash := range locals {
		v, err := m.build(hash)
		if err != nil {
			return nil, fmt.Errorf("reanimate call %s: local %q: %w", callID, name, err)
		}
		result.Locals[name] = v
	}
	for name, hash := range globals {
		v, err := m.build(hash)
		if err != nil {
			return nil, fmt.Errorf("reanimate call %s: global %q: %w", callID, name, err)
		}
		result.Globals[name] = v
	}
	if call.ReturnRef != "" {
		v, err := m.build(call.ReturnRef)
		if err != nil {
			return nil, fmt.Errorf("reanimate call %s: return: %w", callID, err)
		}
		result.Return = v
		result.HasReturn = true
	}

	result.Degraded = m.degraded
	return result, nil
}
