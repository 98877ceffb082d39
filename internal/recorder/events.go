package recorder

import (
	"time"

	"github.com/revenantdb/revenant/internal/object"
)

// NamedValue is one captured binding: a variable name and its value at the
// moment of capture. Identity, when set, names the logical object the value
// belongs to across mutations; the recorder appends an observation to that
// identity's version chain. Identities are assigned by the collector and
// are opaque here.
type NamedValue struct {
	Name     string
	Value    object.Value
	Identity string
}

// CallStart is emitted when the monitored program enters a function.
type CallStart struct {
	FunctionIdentity string
	File             string
	Line             int
	Args             []NamedValue
	Globals          []NamedValue
	ParentCallID     string
	CodeVersionRef   string
	Timestamp        time.Time
}

// CallEnd is emitted when a call returns.
type CallEnd struct {
	CallID      string
	ReturnValue object.Value
	Timestamp   time.Time
}

// LineSnapshot is emitted after a line of an instrumented call executes.
type LineSnapshot struct {
	CallID    string
	Line      int
	Locals    []NamedValue
	Globals   []NamedValue
	Timestamp time.Time
}
