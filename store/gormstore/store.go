package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goAttend "github.com/MrEthical07/goAttend"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements [goAttend.Store] over gorm.
type Store struct {
	db *gorm.DB
}

var _ goAttend.Store = (*Store)(nil)

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates or updates every table and index the store needs.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return goAttend.ErrNotFound
	case errors.Is(err, goAttend.ErrNotFound),
		errors.Is(err, goAttend.ErrSessionInactive),
		errors.Is(err, goAttend.ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", goAttend.ErrUnavailable, err)
	}
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

/*
====================================
SESSIONS
====================================
*/

func (s *Store) CreateSession(ctx context.Context, sess *goAttend.Session) error {
	rec := sessionRecordFrom(sess)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		for _, classID := range sess.ClassIDs {
			if err := incrementCounter(tx, sess.CourseID, classID); err != nil {
				return err
			}
		}
		return nil
	})
	return wrap(err)
}

// IncrementCourseClassCounter adds one to the session total of classID in courseID.
func (s *Store) IncrementCourseClassCounter(ctx context.Context, courseID, classID string) error {
	return wrap(incrementCounter(s.db.WithContext(ctx), courseID, classID))
}

func incrementCounter(tx *gorm.DB, courseID, classID string) error {
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "course_id"}, {Name: "class_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total_sessions": gorm.Expr("course_stats.total_sessions + 1"),
		}),
	}).Create(&CourseStatRecord{CourseID: courseID, ClassID: classID, TotalSessions: 1}).Error
}

func (s *Store) FindSession(ctx context.Context, id string) (*goAttend.Session, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).Preload("Classes", orderByID).First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, wrap(err)
	}
	return rec.toSession(), nil
}

func (s *Store) ExtendSession(ctx context.Context, id string, extra time.Duration) (*goAttend.Session, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Classes", orderByID).
			First(&rec, "id = ?", id).Error
		if err != nil {
			return err
		}
		if !rec.Active {
			return goAttend.ErrSessionInactive
		}

		next := rec.EndTime.Add(extra).UTC()
		res := tx.Model(&SessionRecord{}).
			Where("id = ? AND active = ?", id, true).
			Update("end_time", next)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return goAttend.ErrSessionInactive
		}
		rec.EndTime = next
		return nil
	})
	if err != nil {
		return nil, wrap(err)
	}
	return rec.toSession(), nil
}

// DeactivateSession is the single atomic transition from active to ended.
func (s *Store) DeactivateSession(ctx context.Context, id string, endTime time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&SessionRecord{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{
			"active":   false,
			"end_time": endTime.UTC(),
		})
	if res.Error != nil {
		return false, wrap(res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	return false, s.ensureSession(ctx, id)
}

func (s *Store) ensureSession(ctx context.Context, id string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&SessionRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return wrap(err)
	}
	if count == 0 {
		return goAttend.ErrNotFound
	}
	return nil
}

// DeactivateExpiredSession ends a session whose deadline passed, keeping the
// deadline as end time. A concurrent extend moves end_time past now and makes
// this a no-op.
func (s *Store) DeactivateExpiredSession(ctx context.Context, id string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&SessionRecord{}).
		Where("id = ? AND active = ? AND end_time < ?", id, true, now.UTC()).
		Update("active", false)
	if res.Error != nil {
		return false, wrap(res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	return false, s.ensureSession(ctx, id)
}

func (s *Store) ListExpiredSessions(ctx context.Context, now time.Time) ([]goAttend.Session, error) {
	var recs []SessionRecord
	err := s.db.WithContext(ctx).
		Preload("Classes", orderByID).
		Where("active = ? AND end_time < ?", true, now.UTC()).
		Order("end_time").
		Find(&recs).Error
	if err != nil {
		return nil, wrap(err)
	}

	out := make([]goAttend.Session, 0, len(recs))
	for i := range recs {
		out = append(out, *recs[i].toSession())
	}
	return out, nil
}

/*
====================================
ATTENDANCE
====================================
*/

func (s *Store) CreateAttendanceIfAbsent(ctx context.Context, sessionID, studentID string, markedAt time.Time) (bool, error) {
	rec := AttendanceRecord{SessionID: sessionID, StudentID: studentID, MarkedAt: markedAt.UTC()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "student_id"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		return false, wrap(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) DeleteAttendance(ctx context.Context, sessionID, studentID string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("session_id = ? AND student_id = ?", sessionID, studentID).
		Delete(&AttendanceRecord{})
	if res.Error != nil {
		return false, wrap(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListAttendance(ctx context.Context, sessionID string) ([]goAttend.Attendance, error) {
	var recs []AttendanceRecord
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("student_id").Find(&recs).Error
	if err != nil {
		return nil, wrap(err)
	}

	out := make([]goAttend.Attendance, 0, len(recs))
	for _, r := range recs {
		out = append(out, goAttend.Attendance{
			SessionID: r.SessionID,
			StudentID: r.StudentID,
			MarkedAt:  r.MarkedAt.UTC(),
		})
	}
	return out, nil
}

func (s *Store) CountAttendance(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&AttendanceRecord{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, wrap(err)
}

/*
====================================
REFERENCE DATA
====================================
*/

func (s *Store) FindCourse(ctx context.Context, id string) (*goAttend.Course, error) {
	var rec CourseRecord
	err := s.db.WithContext(ctx).Preload("Classes", orderByID).First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, wrap(err)
	}
	course := rec.toCourse()
	return &course, nil
}

func (s *Store) CoursesByTeacher(ctx context.Context, teacherID string) ([]goAttend.CourseOverview, error) {
	var recs []CourseRecord
	err := s.db.WithContext(ctx).
		Preload("Classes", orderByID).
		Where("teacher_id = ?", teacherID).
		Order("id").
		Find(&recs).Error
	if err != nil {
		return nil, wrap(err)
	}
	if len(recs) == 0 {
		return []goAttend.CourseOverview{}, nil
	}

	courseIDs := make([]string, 0, len(recs))
	for _, r := range recs {
		courseIDs = append(courseIDs, r.ID)
	}
	var stats []CourseStatRecord
	if err := s.db.WithContext(ctx).Where("course_id IN ?", courseIDs).Find(&stats).Error; err != nil {
		return nil, wrap(err)
	}
	totals := make(map[[2]string]int, len(stats))
	for _, st := range stats {
		totals[[2]string{st.CourseID, st.ClassID}] = st.TotalSessions
	}

	out := make([]goAttend.CourseOverview, 0, len(recs))
	for i := range recs {
		ov := goAttend.CourseOverview{Course: recs[i].toCourse()}
		for j := range recs[i].Classes {
			class := &recs[i].Classes[j]
			ov.Classes = append(ov.Classes, goAttend.CourseClass{
				Class:         class.toClass(),
				TotalSessions: totals[[2]string{recs[i].ID, class.ID}],
			})
		}
		out = append(out, ov)
	}
	return out, nil
}

func (s *Store) FindStudents(ctx context.Context, ids []string) ([]goAttend.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var recs []StudentRecord
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id").Find(&recs).Error; err != nil {
		return nil, wrap(err)
	}
	return toStudents(recs), nil
}

func (s *Store) StudentsInClasses(ctx context.Context, classIDs []string) ([]goAttend.Student, error) {
	if len(classIDs) == 0 {
		return nil, nil
	}
	var recs []StudentRecord
	err := s.db.WithContext(ctx).
		Where("class_id IN ?", classIDs).
		Order("class_id").Order("last_name").Order("first_name").Order("id").
		Find(&recs).Error
	if err != nil {
		return nil, wrap(err)
	}
	return toStudents(recs), nil
}

func toStudents(recs []StudentRecord) []goAttend.Student {
	out := make([]goAttend.Student, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].toStudent())
	}
	return out
}

// SaveClass inserts or updates a class.
func (s *Store) SaveClass(ctx context.Context, c goAttend.Class) error {
	rec := ClassRecord{ID: c.ID, Name: c.Name, Code: c.Code}
	return wrap(s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error)
}

// SaveStudent inserts or updates a student.
func (s *Store) SaveStudent(ctx context.Context, st goAttend.Student) error {
	rec := StudentRecord{
		ID:         st.ID,
		FirstName:  st.FirstName,
		LastName:   st.LastName,
		MIS:        st.MIS,
		Department: st.Department,
		Branch:     st.Branch,
		ClassID:    st.ClassID,
	}
	return wrap(s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error)
}

// SaveCourse inserts or updates a course and replaces its class links. The
// classes must already exist.
func (s *Store) SaveCourse(ctx context.Context, c goAttend.Course) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := CourseRecord{ID: c.ID, Name: c.Name, Code: c.Code, TeacherID: c.TeacherID}
		if err := tx.Omit("Classes").Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error; err != nil {
			return err
		}

		classes := make([]ClassRecord, 0, len(c.ClassIDs))
		if len(c.ClassIDs) > 0 {
			if err := tx.Where("id IN ?", c.ClassIDs).Find(&classes).Error; err != nil {
				return err
			}
			if len(classes) != len(c.ClassIDs) {
				return fmt.Errorf("%w: course %q references unknown classes", goAttend.ErrNotFound, c.ID)
			}
		}
		return tx.Model(&rec).Association("Classes").Replace(classes)
	})
	return wrap(err)
}
