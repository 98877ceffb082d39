package testutil

import "github.com/revenantdb/revenant/internal/object"

// SelfCycle returns a sequence whose single element is the sequence itself.
func SelfCycle() *object.Sequence {
	seq := object.NewSequence(object.Nil{})
	seq.Items[0] = seq
	return seq
}

// MutualCycle returns two records that reference each other through a
// "peer" field. The first record is returned.
func MutualCycle() *object.Record {
	a := object.NewRecord("Node")
	b := object.NewRecord("Node")
	a.Fields["peer"] = b
	b.Fields["peer"] = a
	return a
}

// SharedLeaf returns a sequence holding the same mapping twice, so storage
// and reconstruction can be checked for structure sharing.
func SharedLeaf() (*object.Sequence, *object.Mapping) {
	leaf := object.NewMapping()
	leaf.Entries["k"] = object.Int(7)
	return object.NewSequence(leaf, leaf), leaf
}

// Degraded returns a record with one faithful field and one field that
// could not be captured.
func Degraded() *object.Record {
	rec := object.NewRecord("Handle")
	rec.Fields["name"] = object.String("stdout")
	rec.Fields["raw"] = &object.Unrepresentable{TypeName: "io.TextIOWrapper"}
	return rec
}
