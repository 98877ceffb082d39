package object

// Value is a sealed interface over the closed variant set of capturable
// values. Only the types in this file implement it.
type Value interface {
	value()
}

// Nil represents the absence of a value (None, nil, null in the source
// program).
type Nil struct{}

func (Nil) value() {}

// Bool is a boolean scalar.
type Bool bool

func (Bool) value() {}

// Int is a 64-bit integer scalar.
type Int int64

func (Int) value() {}

// Float is a 64-bit floating point scalar. NaN cannot be canonically
// encoded; callers must capture it as Unrepresentable.
type Float float64

func (Float) value() {}

// String is a text scalar. NFC normalization happens at the encoding
// boundary, not at construction.
type String string

func (String) value() {}

// Bytes is a raw byte scalar.
type Bytes []byte

func (Bytes) value() {}

// Sequence is an ordered list of values. Always used through a pointer so
// that self-referential sequences can be expressed and detected.
type Sequence struct {
	Items []Value
}

func (*Sequence) value() {}

// NewSequence creates a sequence from values.
func NewSequence(items ...Value) *Sequence {
	return &Sequence{Items: items}
}

// Mapping is a string-keyed map of values. Always used through a pointer.
type Mapping struct {
	Entries map[string]Value
}

func (*Mapping) value() {}

// NewMapping creates an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{Entries: make(map[string]Value)}
}

// Record captures an instance of an arbitrary named source type as a set of
// named fields. Always used through a pointer.
type Record struct {
	TypeName string
	Fields   map[string]Value
}

func (*Record) value() {}

// NewRecord creates a record with no fields for the given source type name.
func NewRecord(typeName string) *Record {
	return &Record{TypeName: typeName, Fields: make(map[string]Value)}
}

// Unrepresentable stands in for a value that could not be deterministically
// encoded. Storing one degrades the capture instead of failing it.
type Unrepresentable struct {
	TypeName string
}

func (*Unrepresentable) value() {}
