// Package store provides SQLite-backed durable storage for captured
// execution history.
//
// The store holds five record families:
//   - Objects: content-addressed, refcounted, structurally deduplicated
//     values (objects.go)
//   - Object versions: per-identity chronological version chains (versions.go)
//   - Calls: function call records with lifecycle and parent/child linkage
//     (calls.go)
//   - Snapshots: ordered per-call line-execution state (snapshots.go)
//   - Sessions and code versions: call grouping and source text
//     (sessions.go, code.go)
//
// # Critical Patterns
//
// Insert-if-absent is one atomic operation per hash: the objects table uses
// ON CONFLICT(hash) DO NOTHING on a single-writer connection, so two
// concurrent writers storing the same structural value can never duplicate
// a payload or lose a refcount update.
//
// Every cross-table reference is by hash or id; full payloads are never
// duplicated inline. A call, snapshot, or version entry referencing a hash
// holds one refcount on it, and the walk in DeleteCall gives those
// references back.
//
// Within-call snapshot order is assigned transactionally (seq = count of
// existing snapshots), so it is preserved regardless of how persistence is
// scheduled; cross-call ordering carries no guarantee.
//
// A call left open by a terminated process is "abandoned": a defined,
// readable state, never an error.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - Single writer connection: avoids SQLITE_BUSY and makes writes atomic
//   - PRAGMA user_version: schema migration tracking
package store
