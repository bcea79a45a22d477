// Package cache provides the ephemeral state layer for attendance sessions: a small
// [Cache] contract, its Redis implementation, and the typed [State] accessor that owns
// key layout and record encoding.
//
// # Key layout
//
//   - activeSession:<id>  encoded [SessionEntry], TTL = remaining duration + grace
//   - liveAttendance:<id> set of student ids, TTL aligned to the session entry
//   - qr:<nonce>          encoded [NonceRecord], TTL = token validity + skew buffer
//
// An optional namespace is prepended as "<namespace>:".
//
// # Binary encoding
//
// Records are stored as a compact versioned binary format: one version byte, then
// length-prefixed strings and big-endian int64 timestamps.
//
// # What this package must NOT do
//
//   - Import goAttend or the durable store (no upward imports).
//   - Decide session lifecycle policy. Expiry here is only TTL bookkeeping.
package cache
