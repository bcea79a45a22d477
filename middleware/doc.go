// Package middleware exposes HTTP middleware that turns bearer identity tokens
// into a [goAttend.Principal] on the request context and enforces caller roles.
//
// # Guards
//
//   - [Authenticate]: verifies the Authorization header through an [IdentityParser].
//   - [RequireRole], [RequireTeacher], [RequireStudent]: role gates.
//
// # Architecture boundaries
//
// Identity issuance belongs to another system. This package only verifies tokens
// and makes role decisions; ownership of courses and sessions is checked by the
// Engine.
//
// # What this package must NOT do
//
//   - Access Redis or the durable store.
//   - Make ownership decisions beyond the caller's role.
package middleware
