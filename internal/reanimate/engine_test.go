package reanimate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revenantdb/revenant/internal/object"
	"github.com/revenantdb/revenant/internal/store"
	"github.com/revenantdb/revenant/internal/testutil"
)

func TestMaterialize_Scalars(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	tests := []struct {
		name string
		in   object.Value
		want any
	}{
		{"nil", object.Nil{}, nil},
		{"bool", object.Bool(true), true},
		{"int", object.Int(-42), int64(-42)},
		{"float", object.Float(1.5), 1.5},
		{"string", object.String("héllo"), "héllo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := st.PutValue(ctx, tt.in)
			require.NoError(t, err)

			got, degraded, err := engine.Materialize(ctx, hash, nil)
			require.NoError(t, err)
			assert.False(t, degraded)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaterialize_NestedComposite(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	m := object.NewMapping()
	m.Entries["name"] = object.String("ada")
	m.Entries["scores"] = object.NewSequence(object.Int(1), object.Int(2))

	hash, err := st.PutValue(ctx, m)
	require.NoError(t, err)

	got, degraded, err := engine.Materialize(ctx, hash, nil)
	require.NoError(t, err)
	assert.False(t, degraded)

	asMap, ok := got.(map[string]any)
	require.True(t, ok, "mapping should come back as map[string]any")
	assert.Equal(t, "ada", asMap["name"])
	assert.Equal(t, []any{int64(1), int64(2)}, asMap["scores"])
}

func TestMaterialize_Record(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	rec := object.NewRecord("app.models.User")
	rec.Fields["id"] = object.Int(7)
	rec.Fields["name"] = object.String("bo")

	hash, err := st.PutValue(ctx, rec)
	require.NoError(t, err)

	got, degraded, err := engine.Materialize(ctx, hash, nil)
	require.NoError(t, err)
	assert.False(t, degraded)

	inst, ok := got.(*Instance)
	require.True(t, ok, "record should come back as *Instance")
	assert.Equal(t, "app.models.User", inst.TypeName)
	assert.Equal(t, int64(7), inst.Fields["id"])
	assert.Equal(t, "bo", inst.Fields["name"])
}

func TestMaterialize_SelfCycle(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	hash, err := st.PutValue(ctx, testutil.SelfCycle())
	require.NoError(t, err)

	got, degraded, err := engine.Materialize(ctx, hash, nil)
	require.NoError(t, err)
	assert.False(t, degraded)

	outer, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, outer, 1)

	inner, ok := outer[0].([]any)
	require.True(t, ok, "self reference should resolve to a slice, got %T", outer[0])
	assert.Same(t, &outer[0], &inner[0], "self reference must share the outer slice's backing array")
}

func TestMaterialize_MutualCycle(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	hash, err := st.PutValue(ctx, testutil.MutualCycle())
	require.NoError(t, err)

	got, _, err := engine.Materialize(ctx, hash, nil)
	require.NoError(t, err)

	a, ok := got.(*Instance)
	require.True(t, ok)
	b, ok := a.Fields["peer"].(*Instance)
	require.True(t, ok)
	assert.Same(t, a, b.Fields["peer"], "peer of peer must be the original instance")
}

func TestMaterialize_SharingPreserved(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	shared, _ := testutil.SharedLeaf()
	hash, err := st.PutValue(ctx, shared)
	require.NoError(t, err)

	got, _, err := engine.Materialize(ctx, hash, nil)
	require.NoError(t, err)

	outer, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, outer, 2)

	first, ok := outer[0].(map[string]any)
	require.True(t, ok)
	second, ok := outer[1].(map[string]any)
	require.True(t, ok)

	// Same map, not an equal copy: a write through one side is visible
	// through the other.
	first["probe"] = int64(1)
	assert.Contains(t, second, "probe", "aliased children must reconstruct as one object")
}

func TestMaterialize_SharedCacheAcrossCalls(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	leaf := object.NewMapping()
	leaf.Entries["k"] = object.Int(1)
	hash, err := st.PutValue(ctx, leaf)
	require.NoError(t, err)

	cache := Cache{}
	first, _, err := engine.Materialize(ctx, hash, cache)
	require.NoError(t, err)
	second, _, err := engine.Materialize(ctx, hash, cache)
	require.NoError(t, err)

	first.(map[string]any)["probe"] = int64(1)
	assert.Contains(t, second.(map[string]any), "probe", "one cache must yield one object per hash")
}

func TestMaterialize_Degraded(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	hash, err := st.PutValue(ctx, testutil.Degraded())
	require.NoError(t, err)

	got, degraded, err := engine.Materialize(ctx, hash, nil)
	require.NoError(t, err)
	assert.True(t, degraded, "stub in the graph must mark the result degraded")

	inst := got.(*Instance)
	stub, ok := inst.Fields["raw"].(*Stub)
	require.True(t, ok)
	assert.Equal(t, "io.TextIOWrapper", stub.TypeName)
	assert.Equal(t, "stdout", inst.Fields["name"], "faithful fields survive alongside the stub")
}

func TestMaterialize_DegradedOnCachedStub(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	hash, err := st.PutValue(ctx, &object.Unrepresentable{TypeName: "socket.socket"})
	require.NoError(t, err)

	cache := Cache{}
	_, degraded, err := engine.Materialize(ctx, hash, cache)
	require.NoError(t, err)
	require.True(t, degraded)

	_, degraded, err = engine.Materialize(ctx, hash, cache)
	require.NoError(t, err)
	assert.True(t, degraded, "a stub served from a shared cache still degrades the result")
}

func TestMaterialize_UnknownHash(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)

	_, _, err := engine.Materialize(context.Background(), "deadbeef", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReanimateCall_EntryBindings(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	argHash, err := st.PutValue(ctx, object.Int(10))
	require.NoError(t, err)
	callID, err := st.BeginCall(ctx, store.BeginCallParams{
		Function: "app.compute",
		Locals:   map[string]string{"x": argHash},
	})
	require.NoError(t, err)

	retHash, err := st.PutValue(ctx, object.Int(20))
	require.NoError(t, err)
	require.NoError(t, st.EndCall(ctx, callID, retHash, testEnd))

	res, err := engine.ReanimateCall(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, "app.compute", res.Function)
	assert.Equal(t, int64(10), res.Locals["x"])
	assert.True(t, res.HasReturn)
	assert.Equal(t, int64(20), res.Return)
	assert.False(t, res.Degraded)
}

func TestReanimateCall_UsesLastSnapshot(t *testing.T) {
	st := testutil.TempStore(t)
	engine := New(st)
	ctx := context.Background()

	entryHash, err := st.PutValue(ctx, object.Int(1))
	require.NoError(t, err)
	callID, err := st.BeginCall(ctx, store.BeginCallParams{
		Function: "app.loop",
		Locals:   map[string]string{"i": entryHash},
	})
	require.NoError(t, err)

	// Two line snapshots; the final one is the call's last observed state.
	for _, v := range []int64{2, 3} {
		hash, err := st.PutValue(ctx, object.Int(v))
		require.NoError(t, err)
		_, err = st.AppendSnapshot(ctx, callID, 14, map[string]string{"i": hash}, nil, testEnd)
		require.NoError(t, err)
	}

	res, err := engine.ReanimateCall(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Locals["i"], "bindings must come from the last snapshot")
}
