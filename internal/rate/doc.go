// Package rate provides the Redis-backed fixed-window limiter applied to student
// QR scans.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - sr: scan attempts per student
//
// # What this package must NOT do
//
//   - Decide what a scan is allowed to do (that lives in the engine).
//   - Be imported outside the goAttend module.
package rate
