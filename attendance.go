package goAttend

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goAttend/cache"
)

// Mark records studentIDs present in a session owned by teacherID. Students that
// are unknown or outside the session's classes are skipped. Marking an ended
// session still writes durable rows, which is how teachers correct attendance.
func (e *Engine) Mark(ctx context.Context, teacherID, sessionID string, studentIDs []string) (*MarkResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.sweepBeforeRequest(ctx)

	sess, err := e.ownedSession(ctx, teacherID, sessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventAttendanceMarked, false, teacherID, sessionID, err, nil)
		return nil, err
	}

	res, err := e.mark(ctx, sess, studentIDs)
	if err != nil {
		e.emitAudit(ctx, auditEventAttendanceMarked, false, teacherID, sessionID, err, nil)
		return nil, err
	}
	e.emitAudit(ctx, auditEventAttendanceMarked, true, teacherID, sessionID, nil, res.metadata)
	return res, nil
}

// Unmark removes the present marks of studentIDs with the same allow-list as Mark.
func (e *Engine) Unmark(ctx context.Context, teacherID, sessionID string, studentIDs []string) (*MarkResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.sweepBeforeRequest(ctx)

	sess, err := e.ownedSession(ctx, teacherID, sessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventAttendanceUnmarked, false, teacherID, sessionID, err, nil)
		return nil, err
	}

	res, err := e.unmark(ctx, sess, studentIDs)
	if err != nil {
		e.emitAudit(ctx, auditEventAttendanceUnmarked, false, teacherID, sessionID, err, nil)
		return nil, err
	}
	e.emitAudit(ctx, auditEventAttendanceUnmarked, true, teacherID, sessionID, nil, res.metadata)
	return res, nil
}

// ApplyMarks marks and unmarks in one call. A student may not appear in both lists.
func (e *Engine) ApplyMarks(ctx context.Context, teacherID, sessionID string, marked, unmarked []string) (*MarkSummary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	marked = normalizeIDs(marked)
	unmarked = normalizeIDs(unmarked)
	if len(marked) == 0 && len(unmarked) == 0 {
		return nil, fmt.Errorf("%w: nothing to apply", ErrInvalidInput)
	}
	markedSet := stringSet(marked)
	for _, id := range unmarked {
		if _, ok := markedSet[id]; ok {
			return nil, fmt.Errorf("%w: student %q is both marked and unmarked", ErrInvalidInput, id)
		}
	}

	e.sweepBeforeRequest(ctx)

	sess, err := e.ownedSession(ctx, teacherID, sessionID)
	if err != nil {
		return nil, err
	}

	summary := &MarkSummary{}
	if len(marked) > 0 {
		summary.Marked, err = e.mark(ctx, sess, marked)
		if err != nil {
			e.emitAudit(ctx, auditEventAttendanceMarked, false, teacherID, sessionID, err, nil)
			return nil, err
		}
		e.emitAudit(ctx, auditEventAttendanceMarked, true, teacherID, sessionID, nil, summary.Marked.metadata)
	}
	if len(unmarked) > 0 {
		summary.Unmarked, err = e.unmark(ctx, sess, unmarked)
		if err != nil {
			e.emitAudit(ctx, auditEventAttendanceUnmarked, false, teacherID, sessionID, err, nil)
			return nil, err
		}
		e.emitAudit(ctx, auditEventAttendanceUnmarked, true, teacherID, sessionID, nil, summary.Unmarked.metadata)
	}
	return summary, nil
}

// mark writes the durable row first and mirrors it into the live set only while
// the session is active. The live add is guarded by the session entry, so an ended
// session never regains cache state.
func (e *Engine) mark(ctx context.Context, sess *Session, studentIDs []string) (*MarkResult, error) {
	allowed, res, err := e.partitionStudents(ctx, sess, studentIDs)
	if err != nil {
		return nil, err
	}

	now := e.now()
	for _, studentID := range allowed {
		if _, err := e.store.CreateAttendanceIfAbsent(ctx, sess.ID, studentID, now); err != nil {
			return nil, err
		}
		if sess.Active {
			if _, err := e.state.AddLive(ctx, sess.ID, studentID); err != nil {
				e.logger.Warn("live set not updated", "session", sess.ID, "student", studentID, "error", err)
			}
		}
		res.Applied = append(res.Applied, studentID)
	}

	e.metricAdd(MetricAttendanceMarked, len(res.Applied))
	e.metricAdd(MetricAttendanceSkipped, len(res.Skipped))
	return res, nil
}

func (e *Engine) unmark(ctx context.Context, sess *Session, studentIDs []string) (*MarkResult, error) {
	allowed, res, err := e.partitionStudents(ctx, sess, studentIDs)
	if err != nil {
		return nil, err
	}

	for _, studentID := range allowed {
		if _, err := e.store.DeleteAttendance(ctx, sess.ID, studentID); err != nil {
			return nil, err
		}
		if err := e.state.RemoveLive(ctx, sess.ID, studentID); err != nil {
			e.logger.Warn("live set not updated", "session", sess.ID, "student", studentID, "error", err)
		}
		res.Applied = append(res.Applied, studentID)
	}

	e.metricAdd(MetricAttendanceUnmarked, len(res.Applied))
	e.metricAdd(MetricAttendanceSkipped, len(res.Skipped))
	return res, nil
}

// partitionStudents splits studentIDs into those enrolled in one of the session's
// classes and those skipped. Input order is kept.
func (e *Engine) partitionStudents(ctx context.Context, sess *Session, studentIDs []string) ([]string, *MarkResult, error) {
	ids := normalizeIDs(studentIDs)
	res := &MarkResult{Applied: []string{}, Skipped: []string{}}
	if len(ids) == 0 {
		return nil, res, nil
	}

	students, err := e.store.FindStudents(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	classOf := make(map[string]string, len(students))
	for _, s := range students {
		classOf[s.ID] = s.ClassID
	}
	classes := stringSet(sess.ClassIDs)

	allowed := make([]string, 0, len(ids))
	for _, id := range ids {
		classID, known := classOf[id]
		if _, ok := classes[classID]; !known || !ok {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		allowed = append(allowed, id)
	}
	return allowed, res, nil
}

func (r *MarkResult) metadata() map[string]string {
	return map[string]string{
		"applied": strconv.Itoa(len(r.Applied)),
		"skipped": strconv.Itoa(len(r.Skipped)),
	}
}

// LiveView returns the students currently in the live set of an active session,
// ordered by student id. An ended or expired session has an empty live view.
func (e *Engine) LiveView(ctx context.Context, teacherID, sessionID string) ([]Student, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if teacherID == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}

	entry, err := e.state.Session(ctx, sessionID)
	switch {
	case errors.Is(err, cache.ErrMiss):
		if _, err := e.ownedSession(ctx, teacherID, sessionID); err != nil {
			return nil, err
		}
		return []Student{}, nil
	case err != nil:
		return nil, unavailable(err)
	case entry.TeacherID != teacherID:
		return nil, ErrNotAuthorized
	}

	members, err := e.state.Live(ctx, sessionID)
	if err != nil {
		return nil, unavailable(err)
	}
	if len(members) == 0 {
		return []Student{}, nil
	}

	students, err := e.store.FindStudents(ctx, members)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Student, len(students))
	for _, s := range students {
		byID[s.ID] = s
	}
	out := make([]Student, 0, len(members))
	for _, id := range members {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// RosterView returns every student of the session's classes with presence taken
// from durable attendance.
func (e *Engine) RosterView(ctx context.Context, teacherID, sessionID string) ([]RosterEntry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.sweepBeforeRequest(ctx)

	sess, err := e.ownedSession(ctx, teacherID, sessionID)
	if err != nil {
		return nil, err
	}

	students, err := e.store.StudentsInClasses(ctx, sess.ClassIDs)
	if err != nil {
		return nil, err
	}
	marks, err := e.store.ListAttendance(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	present := make(map[string]Attendance, len(marks))
	for _, a := range marks {
		present[a.StudentID] = a
	}

	roster := make([]RosterEntry, 0, len(students))
	for _, s := range students {
		entry := RosterEntry{Student: s}
		if a, ok := present[s.ID]; ok {
			entry.Present = true
			entry.MarkedAt = a.MarkedAt
		}
		roster = append(roster, entry)
	}
	return roster, nil
}
