package goAttend

import "context"

// Session returns one session owned by teacherID.
func (e *Engine) Session(ctx context.Context, teacherID, sessionID string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.ownedSession(ctx, teacherID, sessionID)
}

// TeacherCourses lists the courses taught by teacherID with the session total of
// every class taking them.
func (e *Engine) TeacherCourses(ctx context.Context, teacherID string) ([]CourseOverview, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if teacherID == "" {
		return nil, ErrInvalidInput
	}
	courses, err := e.store.CoursesByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if courses == nil {
		courses = []CourseOverview{}
	}
	return courses, nil
}
