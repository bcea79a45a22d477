package gormstore

import (
	"time"

	goAttend "github.com/MrEthical07/goAttend"
)

// SessionRecord is one attendance session.
type SessionRecord struct {
	ID        string               `gorm:"primaryKey;size:36"`
	CourseID  string               `gorm:"size:64;not null;index"`
	TeacherID string               `gorm:"size:64;not null;index"`
	StartTime time.Time            `gorm:"not null"`
	EndTime   time.Time            `gorm:"not null;index:idx_sessions_active_end,priority:2"`
	Active    bool                 `gorm:"not null;index:idx_sessions_active_end,priority:1"`
	Classes   []SessionClassRecord `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SessionRecord) TableName() string { return "sessions" }

// SessionClassRecord links a session to one of the classes it covers.
type SessionClassRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"size:36;not null;uniqueIndex:idx_session_class"`
	ClassID   string `gorm:"size:64;not null;uniqueIndex:idx_session_class;index"`
}

func (SessionClassRecord) TableName() string { return "session_classes" }

// AttendanceRecord is one present mark. The unique index makes every write path
// idempotent.
type AttendanceRecord struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID string    `gorm:"size:36;not null;uniqueIndex:idx_attendance_session_student"`
	StudentID string    `gorm:"size:64;not null;uniqueIndex:idx_attendance_session_student;index"`
	MarkedAt  time.Time `gorm:"not null"`
}

func (AttendanceRecord) TableName() string { return "attendances" }

// CourseStatRecord counts sessions held per course and class.
type CourseStatRecord struct {
	CourseID      string `gorm:"primaryKey;size:64"`
	ClassID       string `gorm:"primaryKey;size:64"`
	TotalSessions int    `gorm:"not null;default:0"`
}

func (CourseStatRecord) TableName() string { return "course_stats" }

// CourseRecord is reference data maintained by the timetable system.
type CourseRecord struct {
	ID        string        `gorm:"primaryKey;size:64"`
	Name      string        `gorm:"size:255"`
	Code      string        `gorm:"size:64;index"`
	TeacherID string        `gorm:"size:64;not null;index"`
	Classes   []ClassRecord `gorm:"many2many:course_classes;joinForeignKey:CourseID;joinReferences:ClassID"`
}

func (CourseRecord) TableName() string { return "courses" }

type ClassRecord struct {
	ID   string `gorm:"primaryKey;size:64"`
	Name string `gorm:"size:255"`
	Code string `gorm:"size:64"`
}

func (ClassRecord) TableName() string { return "classes" }

type StudentRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	FirstName  string `gorm:"size:128"`
	LastName   string `gorm:"size:128"`
	MIS        string `gorm:"column:mis;size:32;index"`
	Department string `gorm:"size:128"`
	Branch     string `gorm:"size:128"`
	ClassID    string `gorm:"size:64;not null;index"`
}

func (StudentRecord) TableName() string { return "students" }

func allModels() []any {
	return []any{
		&ClassRecord{},
		&CourseRecord{},
		&StudentRecord{},
		&CourseStatRecord{},
		&SessionRecord{},
		&SessionClassRecord{},
		&AttendanceRecord{},
	}
}

func (r *SessionRecord) toSession() *goAttend.Session {
	classIDs := make([]string, 0, len(r.Classes))
	for _, c := range r.Classes {
		classIDs = append(classIDs, c.ClassID)
	}
	return &goAttend.Session{
		ID:        r.ID,
		CourseID:  r.CourseID,
		TeacherID: r.TeacherID,
		ClassIDs:  classIDs,
		StartTime: r.StartTime.UTC(),
		EndTime:   r.EndTime.UTC(),
		Active:    r.Active,
	}
}

func sessionRecordFrom(s *goAttend.Session) *SessionRecord {
	rec := &SessionRecord{
		ID:        s.ID,
		CourseID:  s.CourseID,
		TeacherID: s.TeacherID,
		StartTime: s.StartTime.UTC(),
		EndTime:   s.EndTime.UTC(),
		Active:    s.Active,
	}
	for _, classID := range s.ClassIDs {
		rec.Classes = append(rec.Classes, SessionClassRecord{SessionID: s.ID, ClassID: classID})
	}
	return rec
}

func (r *StudentRecord) toStudent() goAttend.Student {
	return goAttend.Student{
		ID:         r.ID,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		MIS:        r.MIS,
		Department: r.Department,
		Branch:     r.Branch,
		ClassID:    r.ClassID,
	}
}

func (r *ClassRecord) toClass() goAttend.Class {
	return goAttend.Class{ID: r.ID, Name: r.Name, Code: r.Code}
}

func (r *CourseRecord) toCourse() goAttend.Course {
	classIDs := make([]string, 0, len(r.Classes))
	for _, c := range r.Classes {
		classIDs = append(classIDs, c.ID)
	}
	return goAttend.Course{
		ID:        r.ID,
		Name:      r.Name,
		Code:      r.Code,
		TeacherID: r.TeacherID,
		ClassIDs:  classIDs,
	}
}
