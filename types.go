package goAttend

import (
	"context"
	"time"
)

// Role is the identity role of a caller.
type Role string

const (
	// RoleTeacher owns courses and runs sessions.
	RoleTeacher Role = "teacher"
	// RoleStudent scans QR codes.
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Principal is the authenticated caller supplied by the identity layer.
type Principal struct {
	ID   string
	Role Role
}

// SessionState is the lifecycle state of an attendance session.
type SessionState int

const (
	// SessionPending is the zero state before Start commits.
	SessionPending SessionState = iota
	// SessionActive accepts marks and QR issuance.
	SessionActive
	// SessionEnded is terminal.
	SessionEnded
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionEnded:
		return "ended"
	default:
		return "pending"
	}
}

// Session is the durable record of one attendance session.
//
// Active with a passed EndTime is a transient state that the next sweep resolves.
type Session struct {
	ID        string
	CourseID  string
	TeacherID string
	ClassIDs  []string
	StartTime time.Time
	EndTime   time.Time
	Active    bool
}

// State reports the lifecycle state of s.
func (s *Session) State() SessionState {
	switch {
	case s == nil || s.ID == "":
		return SessionPending
	case s.Active:
		return SessionActive
	default:
		return SessionEnded
	}
}

// Remaining returns the time left until the deadline, or zero when it passed.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s == nil || !s.Active {
		return 0
	}
	if d := s.EndTime.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Course is reference data owned by another system.
type Course struct {
	ID        string
	Name      string
	Code      string
	TeacherID string
	// ClassIDs lists the class groups that take the course.
	ClassIDs []string
}

// Class is a class group.
type Class struct {
	ID   string
	Name string
	Code string
}

// CourseClass is a class taking a course with its session counter.
type CourseClass struct {
	Class
	TotalSessions int
}

// CourseOverview is a teacher's course with per-class session totals.
type CourseOverview struct {
	Course
	Classes []CourseClass
}

// Student is reference data owned by another system.
type Student struct {
	ID         string
	FirstName  string
	LastName   string
	MIS        string
	Department string
	Branch     string
	ClassID    string
}

// Attendance is one durable present mark.
type Attendance struct {
	SessionID string
	StudentID string
	MarkedAt  time.Time
}

// RosterEntry is a student of the session's classes with presence resolved.
type RosterEntry struct {
	Student
	Present  bool
	MarkedAt time.Time
}

// MarkResult lists the student ids a mark or unmark applied to and those skipped
// because they are unknown or outside the session's classes.
type MarkResult struct {
	Applied []string
	Skipped []string
}

// MarkSummary is the outcome of a combined mark/unmark request.
type MarkSummary struct {
	Marked   *MarkResult
	Unmarked *MarkResult
}

// EndResult is the outcome of closing a session.
type EndResult struct {
	Session *Session
	// Flushed is the number of live set members written through on close.
	Flushed int
	// Recovered counts flushed members that had no durable row yet.
	Recovered int
	// Present is the durable attendance count after the flush.
	Present int64
}

// SweepResult is the outcome of one reconciliation pass.
type SweepResult struct {
	Closed    []string
	Flushed   int
	Recovered int
}

// QRCode is a freshly issued rotating token.
type QRCode struct {
	SessionID string
	Nonce     string
	Token     string
	// Image is a PNG data URL of Token, empty when rendering is disabled.
	Image     string
	ValidFrom time.Time
	ValidTo   time.Time
}

// QRClaims is a verified QR token payload.
type QRClaims struct {
	SessionID string
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store is the durable persistence contract.
//
// Implementations return ErrNotFound for missing records and wrap backend
// failures with ErrUnavailable.
type Store interface {
	// CreateSession persists s with its class links and increments the course
	// counter of every class, all in one transaction.
	CreateSession(ctx context.Context, s *Session) error
	FindSession(ctx context.Context, id string) (*Session, error)
	// ExtendSession pushes the deadline of an active session by extra. It returns
	// ErrSessionInactive when the session already ended.
	ExtendSession(ctx context.Context, id string, extra time.Duration) (*Session, error)
	// DeactivateSession flips active to false and records endTime only if the
	// session is still active. It reports whether this call made the transition.
	DeactivateSession(ctx context.Context, id string, endTime time.Time) (bool, error)
	// DeactivateExpiredSession flips active to false only if the session is still
	// active and its deadline is before now. The deadline is kept as end time. A
	// session extended after it was listed as expired is left alone.
	DeactivateExpiredSession(ctx context.Context, id string, now time.Time) (bool, error)
	// ListExpiredSessions returns active sessions whose deadline is before now.
	ListExpiredSessions(ctx context.Context, now time.Time) ([]Session, error)

	// CreateAttendanceIfAbsent inserts the mark unless one exists and reports
	// whether a row was created.
	CreateAttendanceIfAbsent(ctx context.Context, sessionID, studentID string, markedAt time.Time) (bool, error)
	DeleteAttendance(ctx context.Context, sessionID, studentID string) (bool, error)
	ListAttendance(ctx context.Context, sessionID string) ([]Attendance, error)
	CountAttendance(ctx context.Context, sessionID string) (int64, error)

	FindCourse(ctx context.Context, id string) (*Course, error)
	CoursesByTeacher(ctx context.Context, teacherID string) ([]CourseOverview, error)
	FindStudents(ctx context.Context, ids []string) ([]Student, error)
	StudentsInClasses(ctx context.Context, classIDs []string) ([]Student, error)
}
