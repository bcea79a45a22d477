// Package jwt signs and verifies the service's JSON Web Tokens: short-lived QR tokens
// bound to a session and nonce, and bearer identity tokens carrying {sub, role}.
//
// QR token time validity is not checked here: the engine compares exp against its
// own clock and consumes the nonce from the cache.
package jwt
