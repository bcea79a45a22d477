// Package goAttend runs time-boxed classroom attendance sessions: a teacher opens
// a session for a course and a set of classes, students check in by scanning a
// rotating single-use QR token, and the session ends explicitly or by deadline.
//
// Engine methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// goAttend is the public surface. It exposes [Engine], [Builder], [Config], the
// [Store] contract and value types (Session, RosterEntry, QRCode, etc.). Ephemeral
// state lives in Redis behind package cache; the durable store is supplied by the
// caller (see store/gormstore). HTTP transport lives in httpapi and identity
// checks in middleware.
//
// Two operations are the only synchronization points: the conditional flip of a
// session from active to ended in the durable store and the atomic check-and-delete
// of a QR nonce in the cache. Everything else is idempotent.
//
// # What this package must NOT do
//
//   - Expose Redis clients or cache encoding details in its public API.
//   - Recreate cache state for a session that has ended.
//   - Import httpapi, middleware or any store implementation (no import cycles).
//
// # Latency contract
//
// IssueQR and VerifyQR touch only the cache. Mark and Unmark write the durable row
// before the cache so a cache outage never loses a mark.
package goAttend
