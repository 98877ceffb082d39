package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/revenantdb/revenant/internal/object"
)

// ObjectRecord is one row of the content-addressed object table.
// Immutable once written; only the refcount changes.
type ObjectRecord struct {
	Hash      string
	Tag       object.Tag
	Payload   object.Payload
	Refcount  int64
	CreatedAt time.Time
}

// VersionEntry is one observation in an identity's version chain.
type VersionEntry struct {
	Identity  string
	Seq       int64
	Hash      string
	Timestamp time.Time
}

// CallState is the lifecycle state of a function call record.
type CallState string

const (
	CallOpen    CallState = "open"
	CallClosed  CallState = "closed"
	CallDeleted CallState = "deleted"
)

// Call is a function call record. Locals and Globals map variable names to
// object hashes; the full values live in the objects table.
//
// A call that is still Open after its host process terminated is
// "abandoned": a defined, readable state, not an error.
type Call struct {
	ID             string
	Function       string
	File           string
	Line           int
	ParentID       string // empty when the call has no (or no longer a) parent
	Start          time.Time
	End            time.Time // zero while the call is open
	Locals         map[string]string
	Globals        map[string]string
	ReturnRef      string
	CodeVersionRef string
	SessionID      string
	State          CallState
}

// Abandoned reports whether the call was left open by a terminated process.
// Any open call read back from storage is potentially abandoned; the store
// cannot distinguish "still running" from "host died", so readers decide
// based on their own liveness knowledge.
func (c Call) Abandoned() bool {
	return c.State == CallOpen
}

// Snapshot is one recorded line execution within a call. Immutable once
// appended; Seq is contiguous and strictly increasing within the call.
type Snapshot struct {
	ID        int64
	CallID    string
	Seq       int64
	Line      int
	Locals    map[string]string
	Globals   map[string]string
	Timestamp time.Time
}

// Session groups an ordered list of calls under a name.
type Session struct {
	ID       string
	Name     string
	Metadata map[string]string
	Start    time.Time
	End      time.Time // zero while the session is open
}

// CodeVersion is a distinguished record holding the source text of the
// function (or class) a call executed, keyed by content hash.
type CodeVersion struct {
	Hash        string
	Name        string
	Content     string
	ModulePath  string
	ClassName   string
	FirstLineNo int
	CreatedAt   time.Time
}

// marshalRefs serializes a name->hash map for storage. encoding/json sorts
// map keys, so the stored form is deterministic.
func marshalRefs(refs map[string]string) (string, error) {
	if refs == nil {
		refs = map[string]string{}
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("marshal refs: %w", err)
	}
	return string(data), nil
}

func unmarshalRefs(data string) (map[string]string, error) {
	if data == "" {
		return map[string]string{}, nil
	}
	var refs map[string]string
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal refs: %w", err)
	}
	if refs == nil {
		refs = map[string]string{}
	}
	return refs, nil
}

// timestamps are stored as integer nanoseconds since the Unix epoch.

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
