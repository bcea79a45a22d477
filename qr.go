package goAttend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goAttend/cache"
	"github.com/MrEthical07/goAttend/internal"
	"github.com/MrEthical07/goAttend/internal/qrimage"
	"github.com/MrEthical07/goAttend/internal/rate"
)

// IssueQR mints a rotating token for an active session. Only the cache is
// consulted: a session whose entry expired is inactive for issuance even if the
// durable row has not been swept yet.
func (e *Engine) IssueQR(ctx context.Context, teacherID, sessionID string) (*QRCode, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	code, err := e.issueQR(ctx, teacherID, sessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventQRIssued, false, teacherID, sessionID, err, nil)
		return nil, err
	}

	e.metricInc(MetricQRIssued)
	e.emitAudit(ctx, auditEventQRIssued, true, teacherID, sessionID, nil, nil)
	return code, nil
}

func (e *Engine) issueQR(ctx context.Context, teacherID, sessionID string) (*QRCode, error) {
	if teacherID == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}

	entry, err := e.state.Session(ctx, sessionID)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrSessionInactive
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if entry.TeacherID != teacherID {
		return nil, ErrNotAuthorized
	}

	nonce, err := internal.NewNonce()
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	issuedAt := time.Unix(e.now().Unix(), 0)
	expiresAt := issuedAt.Add(e.config.QR.Validity)

	token, err := e.qr.CreateQR(sessionID, nonce, issuedAt, expiresAt)
	if err != nil {
		return nil, err
	}

	rec := &cache.NonceRecord{
		SessionID: sessionID,
		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := e.state.PutNonce(ctx, nonce, rec, e.config.QR.Validity+e.config.QR.SkewBuffer); err != nil {
		return nil, unavailable(err)
	}

	code := &QRCode{
		SessionID: sessionID,
		Nonce:     nonce,
		Token:     token,
		ValidFrom: issuedAt,
		ValidTo:   expiresAt,
	}
	if size := e.config.QR.ImageSize; size > 0 {
		image, err := qrimage.DataURL(token, size)
		if err != nil {
			return nil, fmt.Errorf("qr image: %w", err)
		}
		code.Image = image
	}
	return code, nil
}

// VerifyQR checks a scanned token and consumes its nonce. A token verifies at
// most once; every later attempt returns ErrTokenReplayedOrExpired.
func (e *Engine) VerifyQR(ctx context.Context, token string) (*QRClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.verifyQR(ctx, token)
	if err != nil {
		sessionID := ""
		if claims != nil {
			sessionID = claims.SessionID
		}
		e.metricInc(MetricQRRejected)
		e.emitAudit(ctx, auditEventQRRejected, false, "", sessionID, err, nil)
		return nil, err
	}

	e.metricInc(MetricQRVerified)
	e.emitAudit(ctx, auditEventQRVerified, true, "", claims.SessionID, nil, nil)
	return claims, nil
}

// verifyQR may return partial claims alongside an error so the caller can
// attribute the rejection.
func (e *Engine) verifyQR(ctx context.Context, token string) (*QRClaims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	parsed, err := e.qr.ParseQR(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims := &QRClaims{
		SessionID: parsed.SessionID,
		Nonce:     parsed.Nonce,
		ExpiresAt: parsed.ExpiresAt.Time,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}

	if e.now().After(claims.ExpiresAt) {
		return claims, ErrTokenReplayedOrExpired
	}

	rec, err := e.state.ConsumeNonce(ctx, claims.Nonce)
	if errors.Is(err, cache.ErrMiss) {
		return claims, ErrTokenReplayedOrExpired
	}
	if err != nil {
		return claims, unavailable(err)
	}
	if rec.SessionID != claims.SessionID {
		return claims, ErrTokenInvalid
	}

	return claims, nil
}

// Scan is the student side of a QR check-in: it verifies token and marks
// studentID present in the session the token was issued for. A student outside
// the session's classes is returned in Skipped.
func (e *Engine) Scan(ctx context.Context, studentID, token string) (*MarkResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if studentID == "" {
		return nil, ErrInvalidInput
	}
	e.sweepBeforeRequest(ctx)

	if err := e.limiter.CheckScan(ctx, studentID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricScanRateLimited)
			e.emitAudit(ctx, auditEventScanRateLimited, false, studentID, "", ErrScanRateLimited, nil)
			return nil, ErrScanRateLimited
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	claims, err := e.VerifyQR(ctx, token)
	if err != nil {
		return nil, err
	}

	if _, err := e.state.Session(ctx, claims.SessionID); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrSessionInactive
		}
		return nil, unavailable(err)
	}
	sess, err := e.store.FindSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, ErrSessionInactive
	}

	res, err := e.mark(ctx, sess, []string{studentID})
	if err != nil {
		return nil, err
	}
	if len(res.Skipped) > 0 {
		e.emitAudit(ctx, auditEventScanNotPermitted, false, studentID, sess.ID, ErrNotAuthorized, nil)
		return res, nil
	}

	if err := e.limiter.ResetScan(ctx, studentID); err != nil {
		e.logger.Warn("scan limiter not reset", "student", studentID, "error", err)
	}
	e.emitAudit(ctx, auditEventAttendanceMarked, true, studentID, sess.ID, nil, func() map[string]string {
		return map[string]string{"source": "scan"}
	})
	return res, nil
}
