// Package internal contains helpers that are private to goAttend, such as secure
// random session ids and QR nonces.
//
// # Sub-packages
//
//   - logging: slog logger factory shared by the engine and the CLI
//   - qrimage: PNG data URL rendering for QR tokens
//   - rate: Redis-backed fixed-window limiter for student scans
//
// # What this package must NOT do
//
//   - Export types that appear in the public goAttend API.
//   - Be imported by any package outside the goAttend module.
package internal
