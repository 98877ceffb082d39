// Package object defines the structural value model for captured program
// state and its canonical, content-addressable encoding.
//
// Captured values are represented as a closed tagged-variant set:
//
//   - Scalars: Nil, Bool, Int, Float, String, Bytes
//   - Composites: Sequence, Mapping, Record (named fields of an arbitrary
//     source type)
//   - Unrepresentable: an explicit sentinel for values that could not be
//     faithfully encoded
//
// Previously unseen source shapes are captured generically via Record rather
// than open reflection, so the variant set stays closed.
//
// # Content addressing
//
// Every value has a content hash: SHA-256 over a domain-separated canonical
// encoding. Composite encodings contain the hashes of their children, never
// inline payloads, so structurally equal values always hash identically and
// shared substructure is stored exactly once.
//
// Canonical encoding rules:
//   - Mapping and Record keys are ordered by UTF-16 code units (RFC 8785)
//   - Strings are NFC normalized at the encoding boundary
//   - Floats use the shortest round-trip decimal form; NaN has no canonical
//     form and must be captured as Unrepresentable
//
// # Cycles
//
// A child that is an in-progress ancestor of its own encoding is encoded as a
// back-reference token ("cycle:<distance>") instead of a hash. The distance
// counts enclosing composites upward from the referencing node, so the
// encoding stays deterministic and structural equality still implies equal
// hashes.
package object
