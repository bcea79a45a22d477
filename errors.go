package goAttend

import "errors"

var (
	// ErrNotFound is returned when a session, course or student does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized is returned when the caller does not own the target resource.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidInput is returned for malformed or out-of-range request values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionInactive is returned when an operation needs a live session.
	ErrSessionInactive = errors.New("session inactive")
	// ErrTokenReplayedOrExpired is returned when a QR token is past its window or its
	// nonce was already consumed.
	ErrTokenReplayedOrExpired = errors.New("qr token replayed or expired")
	// ErrTokenInvalid is returned when a QR token fails signature or shape checks.
	ErrTokenInvalid = errors.New("qr token invalid")
	// ErrConflictIgnored is returned when a state transition already happened. Callers
	// treat it as success.
	ErrConflictIgnored = errors.New("conflict ignored")
	// ErrScanRateLimited is returned when a student exceeds the scan attempt budget.
	ErrScanRateLimited = errors.New("scan rate limited")
	// ErrUnavailable wraps cache and durable store failures.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
