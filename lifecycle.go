package goAttend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goAttend/cache"
	"github.com/MrEthical07/goAttend/internal"
)

// maxIDLength bounds the ids carried in the session cache entry.
const maxIDLength = 255

// Start opens a session of durationMinutes for courseID over classIDs. Zero minutes
// selects the configured default.
//
// The durable row, its class links and the per-class session counters commit
// together. The cache entry is then written with a lifetime of the duration plus
// the configured grace; if that write fails the session still starts and the
// entry is rebuilt by the next Extend.
func (e *Engine) Start(ctx context.Context, teacherID, courseID string, classIDs []string, durationMinutes int) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.sweepBeforeRequest(ctx)

	sess, err := e.start(ctx, teacherID, courseID, classIDs, durationMinutes)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionStarted, false, teacherID, "", err, func() map[string]string {
			return map[string]string{"course_id": courseID}
		})
		return nil, err
	}

	e.metricInc(MetricSessionStarted)
	e.emitAudit(ctx, auditEventSessionStarted, true, teacherID, sess.ID, nil, func() map[string]string {
		return map[string]string{
			"course_id": sess.CourseID,
			"classes":   strconv.Itoa(len(sess.ClassIDs)),
			"ends_at":   sess.EndTime.UTC().Format(time.RFC3339),
		}
	})
	return sess, nil
}

func (e *Engine) start(ctx context.Context, teacherID, courseID string, classIDs []string, durationMinutes int) (*Session, error) {
	if teacherID == "" || courseID == "" {
		return nil, ErrInvalidInput
	}
	classes := normalizeIDs(classIDs)
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: at least one class is required", ErrInvalidInput)
	}
	if len(classes) > e.config.Session.MaxClasses {
		return nil, fmt.Errorf("%w: too many classes", ErrInvalidInput)
	}
	if len(teacherID) > maxIDLength || len(courseID) > maxIDLength {
		return nil, fmt.Errorf("%w: id longer than %d bytes", ErrInvalidInput, maxIDLength)
	}
	for _, classID := range classes {
		if len(classID) > maxIDLength {
			return nil, fmt.Errorf("%w: class id longer than %d bytes", ErrInvalidInput, maxIDLength)
		}
	}

	duration, err := e.sessionDuration(durationMinutes)
	if err != nil {
		return nil, err
	}

	course, err := e.store.FindCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course.TeacherID != teacherID {
		return nil, ErrNotAuthorized
	}
	linked := stringSet(course.ClassIDs)
	for _, classID := range classes {
		if _, ok := linked[classID]; !ok {
			return nil, fmt.Errorf("%w: class %q does not take course %q", ErrInvalidInput, classID, courseID)
		}
	}

	now := e.now()
	sess := &Session{
		ID:        internal.NewSessionID(),
		CourseID:  courseID,
		TeacherID: teacherID,
		ClassIDs:  classes,
		StartTime: now,
		EndTime:   now.Add(duration),
		Active:    true,
	}
	if err := e.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	if err := e.state.PutSession(ctx, sess.ID, sessionEntry(sess), duration+e.config.Session.CacheGrace); err != nil {
		e.logger.Warn("session cache entry not written", "session", sess.ID, "error", err)
	}

	return sess, nil
}

func (e *Engine) sessionDuration(minutes int) (time.Duration, error) {
	if minutes < 0 {
		return 0, fmt.Errorf("%w: duration must be >= 0", ErrInvalidInput)
	}
	if minutes == 0 {
		return e.config.Session.DefaultDuration, nil
	}
	d := time.Duration(minutes) * time.Minute
	if d > e.config.Session.MaxDuration {
		return 0, fmt.Errorf("%w: duration exceeds %s", ErrInvalidInput, e.config.Session.MaxDuration)
	}
	return d, nil
}

// Extend pushes the deadline of an active session by extraMinutes. Extends
// accumulate. A session past its deadline that was not yet swept is revived.
func (e *Engine) Extend(ctx context.Context, teacherID, sessionID string, extraMinutes int) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.sweepBeforeRequest(ctx)

	sess, err := e.extend(ctx, teacherID, sessionID, extraMinutes)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionExtended, false, teacherID, sessionID, err, nil)
		return nil, err
	}

	e.metricInc(MetricSessionExtended)
	e.emitAudit(ctx, auditEventSessionExtended, true, teacherID, sessionID, nil, func() map[string]string {
		return map[string]string{
			"extra_minutes": strconv.Itoa(extraMinutes),
			"ends_at":       sess.EndTime.UTC().Format(time.RFC3339),
		}
	})
	return sess, nil
}

func (e *Engine) extend(ctx context.Context, teacherID, sessionID string, extraMinutes int) (*Session, error) {
	if extraMinutes <= 0 {
		return nil, fmt.Errorf("%w: extraMinutes must be > 0", ErrInvalidInput)
	}
	extra := time.Duration(extraMinutes) * time.Minute

	sess, err := e.ownedSession(ctx, teacherID, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, ErrSessionInactive
	}
	if sess.EndTime.Sub(sess.StartTime)+extra > e.config.Session.MaxDuration {
		return nil, fmt.Errorf("%w: duration exceeds %s", ErrInvalidInput, e.config.Session.MaxDuration)
	}

	updated, err := e.store.ExtendSession(ctx, sessionID, extra)
	if err != nil {
		return nil, err
	}

	_, err = e.state.ExtendSession(ctx, sessionID, extra)
	switch {
	case err == nil:
		if err := e.state.ReplaceSession(ctx, sessionID, sessionEntry(updated)); err != nil && !errors.Is(err, cache.ErrMiss) {
			e.logger.Warn("session cache deadline not rewritten", "session", sessionID, "error", err)
		}
	case errors.Is(err, cache.ErrMiss):
		// The entry already lapsed: rebuild it against the new deadline.
		ttl := updated.EndTime.Sub(e.now())
		if ttl < 0 {
			ttl = 0
		}
		if err := e.state.PutSession(ctx, sessionID, sessionEntry(updated), ttl+e.config.Session.CacheGrace); err != nil {
			e.logger.Warn("session cache entry not rebuilt", "session", sessionID, "error", err)
		}
	default:
		e.logger.Warn("session cache entry not extended", "session", sessionID, "error", err)
	}

	return updated, nil
}

func sessionEntry(s *Session) *cache.SessionEntry {
	return &cache.SessionEntry{
		TeacherID: s.TeacherID,
		CourseID:  s.CourseID,
		ClassIDs:  s.ClassIDs,
		StartedAt: s.StartTime.Unix(),
		EndsAt:    s.EndTime.Unix(),
	}
}

// End closes a session now and writes its live set through to durable attendance.
// Ending an already ended session returns ErrConflictIgnored.
func (e *Engine) End(ctx context.Context, teacherID, sessionID string) (*EndResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.sweepBeforeRequest(ctx)

	sess, err := e.ownedSession(ctx, teacherID, sessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionEnded, false, teacherID, sessionID, err, nil)
		return nil, err
	}
	if !sess.Active {
		return nil, ErrConflictIgnored
	}

	res, err := e.closeSession(ctx, sess, e.now(), time.Time{})
	if err != nil {
		if !errors.Is(err, ErrConflictIgnored) {
			e.emitAudit(ctx, auditEventSessionEnded, false, teacherID, sessionID, err, nil)
		}
		return nil, err
	}

	e.metricInc(MetricSessionEnded)
	e.emitAudit(ctx, auditEventSessionEnded, true, teacherID, sessionID, nil, func() map[string]string {
		return map[string]string{
			"flushed": strconv.Itoa(res.Flushed),
			"present": strconv.FormatInt(res.Present, 10),
		}
	})
	return res, nil
}

// closeSession is the single ending path shared by End and Sweep. Only the caller
// that wins the durable active flip goes on to flush; every other caller gets
// ErrConflictIgnored. A non-zero expiredBefore limits the flip to a session whose
// deadline is still before it, so a sweep loses to an Extend that landed after
// the session was listed.
func (e *Engine) closeSession(ctx context.Context, sess *Session, endTime, expiredBefore time.Time) (*EndResult, error) {
	var (
		won bool
		err error
	)
	if expiredBefore.IsZero() {
		won, err = e.store.DeactivateSession(ctx, sess.ID, endTime)
	} else {
		won, err = e.store.DeactivateExpiredSession(ctx, sess.ID, expiredBefore)
	}
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrConflictIgnored
	}

	closed := *sess
	closed.Active = false
	closed.EndTime = endTime
	res := &EndResult{Session: &closed}

	members, err := e.state.Live(ctx, sess.ID)
	if err != nil {
		// Marks are written durably before they reach the live set, so rows
		// already exist for everyone who was marked.
		e.logger.Warn("live set unreadable on close", "session", sess.ID, "error", err)
	}

	// An Unmark that lands after the live set was read is undone here.
	var errs []error
	for _, studentID := range members {
		created, err := e.store.CreateAttendanceIfAbsent(ctx, sess.ID, studentID, endTime)
		if err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", studentID, err))
			continue
		}
		res.Flushed++
		if created {
			res.Recovered++
		}
	}
	e.metricAdd(MetricLiveFlushed, res.Flushed)

	if len(errs) > 0 {
		// The live set is left to its TTL.
		return nil, errors.Join(errs...)
	}

	if err := e.state.DropSession(ctx, sess.ID); err != nil {
		e.logger.Warn("session cache not dropped", "session", sess.ID, "error", err)
	}

	present, err := e.store.CountAttendance(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	res.Present = present

	return res, nil
}
