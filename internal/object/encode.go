package object

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Tag identifies the shape of a stored object.
type Tag string

const (
	TagNil             Tag = "nil"
	TagBool            Tag = "bool"
	TagInt             Tag = "int"
	TagFloat           Tag = "float"
	TagString          Tag = "string"
	TagBytes           Tag = "bytes"
	TagSequence        Tag = "sequence"
	TagMapping         Tag = "mapping"
	TagRecord          Tag = "record"
	TagUnrepresentable Tag = "unrepresentable"
)

// cyclePrefix marks a back-reference token inside a composite payload.
const cyclePrefix = "cycle:"

// ChildRef is one child slot of a composite payload: either the hash of a
// stored object or a back-reference to an in-progress ancestor.
type ChildRef struct {
	Hash     string
	Distance int
	IsCycle  bool
}

// HashRef creates a child reference to a stored hash.
func HashRef(hash string) ChildRef {
	return ChildRef{Hash: hash}
}

// CycleRef creates a back-reference to the enclosing composite `distance`
// levels up from the referencing node (0 is the node itself).
//
// Distances are relative to the encoding path, so a cyclic node reached at
// two different nesting depths encodes with different tokens and hashes as
// two objects. Such a graph still round-trips, but the duplicated node is
// stored twice and comes back as two values rather than one shared one.
func CycleRef(distance int) ChildRef {
	return ChildRef{Distance: distance, IsCycle: true}
}

// Token renders the reference as it appears in a canonical payload.
func (r ChildRef) Token() string {
	if r.IsCycle {
		return cyclePrefix + strconv.Itoa(r.Distance)
	}
	return r.Hash
}

// ParseToken decodes a payload token back into a ChildRef.
func ParseToken(tok string) (ChildRef, error) {
	if rest, ok := strings.CutPrefix(tok, cyclePrefix); ok {
		d, err := strconv.Atoi(rest)
		if err != nil || d < 0 {
			return ChildRef{}, fmt.Errorf("invalid cycle token %q", tok)
		}
		return CycleRef(d), nil
	}
	if tok == "" {
		return ChildRef{}, fmt.Errorf("empty child token")
	}
	return HashRef(tok), nil
}

// EncodeScalar produces the tag and canonical payload bytes for a scalar or
// Unrepresentable value. Composite values are rejected; NaN floats are
// rejected because they have no canonical decimal form.
func EncodeScalar(v Value) (Tag, []byte, error) {
	switch val := v.(type) {
	case Nil:
		return TagNil, nil, nil
	case Bool:
		if val {
			return TagBool, []byte("true"), nil
		}
		return TagBool, []byte("false"), nil
	case Int:
		return TagInt, strconv.AppendInt(nil, int64(val), 10), nil
	case Float:
		if math.IsNaN(float64(val)) {
			return "", nil, fmt.Errorf("NaN has no canonical encoding")
		}
		return TagFloat, strconv.AppendFloat(nil, float64(val), 'g', -1, 64), nil
	case String:
		return TagString, []byte(norm.NFC.String(string(val))), nil
	case Bytes:
		return TagBytes, []byte(val), nil
	case *Unrepresentable:
		return TagUnrepresentable, []byte(norm.NFC.String(val.TypeName)), nil
	default:
		return "", nil, fmt.Errorf("not a scalar value: %T", v)
	}
}

// DecodeScalar reverses EncodeScalar.
func DecodeScalar(tag Tag, payload []byte) (Value, error) {
	switch tag {
	case TagNil:
		return Nil{}, nil
	case TagBool:
		switch string(payload) {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		}
		return nil, fmt.Errorf("invalid bool payload %q", payload)
	case TagInt:
		n, err := strconv.ParseInt(string(payload), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int payload %q: %w", payload, err)
		}
		return Int(n), nil
	case TagFloat:
		f, err := strconv.ParseFloat(string(payload), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float payload %q: %w", payload, err)
		}
		return Float(f), nil
	case TagString:
		return String(payload), nil
	case TagBytes:
		return Bytes(payload), nil
	case TagUnrepresentable:
		return &Unrepresentable{TypeName: string(payload)}, nil
	default:
		return nil, fmt.Errorf("not a scalar tag: %s", tag)
	}
}

// EncodeSequencePayload builds the canonical payload for a sequence: a JSON
// array of child tokens in element order.
func EncodeSequencePayload(refs []ChildRef) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range refs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(r.Token())
		buf.WriteByte('"')
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// EncodeMappingPayload builds the canonical payload for a mapping: a JSON
// object of name to child token, keys in UTF-16 code unit order.
func EncodeMappingPayload(entries map[string]ChildRef) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range sortedKeys(entries) {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := canonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.WriteByte('"')
		buf.WriteString(entries[k].Token())
		buf.WriteByte('"')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EncodeRecordPayload builds the canonical payload for a record: the source
// type name plus its fields, in a fixed-key JSON object.
func EncodeRecordPayload(typeName string, fields map[string]ChildRef) ([]byte, error) {
	fieldsJSON, err := EncodeMappingPayload(fields)
	if err != nil {
		return nil, err
	}
	nameJSON, err := canonicalString(typeName)
	if err != nil {
		return nil, fmt.Errorf("encode type name %q: %w", typeName, err)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"fields":`)
	buf.Write(fieldsJSON)
	buf.WriteString(`,"type":`)
	buf.Write(nameJSON)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Payload is the parsed form of a stored object's payload bytes.
type Payload struct {
	Scalar   []byte              // scalar tags and Unrepresentable
	Children []ChildRef          // sequence
	Entries  map[string]ChildRef // mapping and record fields
	TypeName string              // record and Unrepresentable
}

// DecodePayload parses stored payload bytes according to the object's tag.
func DecodePayload(tag Tag, payload []byte) (Payload, error) {
	switch tag {
	case TagSequence:
		var toks []string
		if err := json.Unmarshal(payload, &toks); err != nil {
			return Payload{}, fmt.Errorf("decode sequence payload: %w", err)
		}
		refs := make([]ChildRef, len(toks))
		for i, tok := range toks {
			r, err := ParseToken(tok)
			if err != nil {
				return Payload{}, fmt.Errorf("decode sequence payload: %w", err)
			}
			refs[i] = r
		}
		return Payload{Children: refs}, nil

	case TagMapping:
		entries, err := decodeTokenMap(payload)
		if err != nil {
			return Payload{}, fmt.Errorf("decode mapping payload: %w", err)
		}
		return Payload{Entries: entries}, nil

	case TagRecord:
		var raw struct {
			Fields map[string]string `json:"fields"`
			Type   string            `json:"type"`
		}
		if err := json.Unmarshal(payload, &raw); err != nil {
			return Payload{}, fmt.Errorf("decode record payload: %w", err)
		}
		entries := make(map[string]ChildRef, len(raw.Fields))
		for k, tok := range raw.Fields {
			r, err := ParseToken(tok)
			if err != nil {
				return Payload{}, fmt.Errorf("decode record field %q: %w", k, err)
			}
			entries[k] = r
		}
		return Payload{Entries: entries, TypeName: raw.Type}, nil

	case TagUnrepresentable:
		return Payload{Scalar: payload, TypeName: string(payload)}, nil

	default:
		return Payload{Scalar: payload}, nil
	}
}

func decodeTokenMap(payload []byte) (map[string]ChildRef, error) {
	var raw map[string]string
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	entries := make(map[string]ChildRef, len(raw))
	for k, tok := range raw {
		r, err := ParseToken(tok)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		entries[k] = r
	}
	return entries, nil
}

// canonicalString encodes a string as a JSON string literal with NFC
// normalization and no HTML escaping.
func canonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline.
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// compareKeysUTF16 orders strings by UTF-16 code units as required by
// RFC 8785. Go's native string comparison is UTF-8 and produces a different
// order for strings containing surrogate-range code points.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	if len(a16) < len(b16) {
		return -1
	}
	if len(a16) > len(b16) {
		return 1
	}
	return 0
}
