package goAttend

import (
	"context"
	"errors"
)

const (
	auditEventSessionStarted     = "session_started"
	auditEventSessionExtended    = "session_extended"
	auditEventSessionEnded       = "session_ended"
	auditEventSessionSwept       = "session_swept"
	auditEventSweepFailed        = "sweep_failed"
	auditEventQRIssued           = "qr_issued"
	auditEventQRVerified         = "qr_verified"
	auditEventQRRejected         = "qr_rejected"
	auditEventAttendanceMarked   = "attendance_marked"
	auditEventAttendanceUnmarked = "attendance_unmarked"
	auditEventScanRateLimited    = "scan_rate_limited"
	auditEventScanNotPermitted   = "scan_not_permitted"
)

// AuditErrorCode is the stable reason string attached to failed audit events.
type AuditErrorCode string

const (
	auditErrNotFound        AuditErrorCode = "not_found"
	auditErrNotAuthorized   AuditErrorCode = "not_authorized"
	auditErrInvalidInput    AuditErrorCode = "invalid_input"
	auditErrSessionInactive AuditErrorCode = "session_inactive"
	auditErrReplayOrExpired AuditErrorCode = "replayed_or_expired"
	auditErrInvalidToken    AuditErrorCode = "invalid_token"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrConflict        AuditErrorCode = "conflict_ignored"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}
	if principalID == "" {
		principalID = principalIDFromContext(ctx)
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		PrincipalID: principalID,
		SessionID:   sessionID,
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.publish(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrNotAuthorized):
		return auditErrNotAuthorized
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrSessionInactive):
		return auditErrSessionInactive
	case errors.Is(err, ErrTokenReplayedOrExpired):
		return auditErrReplayOrExpired
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrScanRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrConflictIgnored):
		return auditErrConflict
	case errors.Is(err, ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
