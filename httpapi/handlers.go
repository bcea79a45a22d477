package httpapi

import (
	"errors"
	"net/http"
	"time"

	goAttend "github.com/MrEthical07/goAttend"
	"github.com/go-chi/chi/v5"
)

type sessionJSON struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"courseId"`
	TeacherID string    `json:"teacherId"`
	ClassIDs  []string  `json:"classIds"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Active    bool      `json:"active"`
	State     string    `json:"state"`
}

func toSessionJSON(s *goAttend.Session) sessionJSON {
	classIDs := s.ClassIDs
	if classIDs == nil {
		classIDs = []string{}
	}
	return sessionJSON{
		ID:        s.ID,
		CourseID:  s.CourseID,
		TeacherID: s.TeacherID,
		ClassIDs:  classIDs,
		StartTime: s.StartTime.UTC(),
		EndTime:   s.EndTime.UTC(),
		Active:    s.Active,
		State:     s.State().String(),
	}
}

type studentJSON struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	MIS        string `json:"MIS"`
	Department string `json:"department,omitempty"`
	Branch     string `json:"branch,omitempty"`
	ClassID    string `json:"classId"`
}

func toStudentJSON(st goAttend.Student) studentJSON {
	return studentJSON{
		ID:         st.ID,
		FirstName:  st.FirstName,
		LastName:   st.LastName,
		MIS:        st.MIS,
		Department: st.Department,
		Branch:     st.Branch,
		ClassID:    st.ClassID,
	}
}

type rosterJSON struct {
	studentJSON
	Present  bool       `json:"present"`
	MarkedAt *time.Time `json:"markedAt,omitempty"`
}

type classJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Code          string `json:"code"`
	TotalSessions int    `json:"totalSessions"`
}

type courseJSON struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Code    string      `json:"code"`
	Classes []classJSON `json:"classes"`
}

type markResultJSON struct {
	Applied []string `json:"applied"`
	Skipped []string `json:"skipped"`
}

func toMarkResultJSON(m *goAttend.MarkResult) markResultJSON {
	out := markResultJSON{Applied: []string{}, Skipped: []string{}}
	if m == nil {
		return out
	}
	if m.Applied != nil {
		out.Applied = m.Applied
	}
	if m.Skipped != nil {
		out.Skipped = m.Skipped
	}
	return out
}

func principalID(r *http.Request) string {
	p, _ := goAttend.PrincipalFromContext(r.Context())
	return p.ID
}

// Health handles GET /api/healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeFailure(w, http.StatusServiceUnavailable, "unavailable", "cache unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

// Courses handles GET /api/teacher/courses.
func (s *Server) Courses(w http.ResponseWriter, r *http.Request) {
	overviews, err := s.Engine.TeacherCourses(r.Context(), principalID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	courses := make([]courseJSON, 0, len(overviews))
	for _, ov := range overviews {
		c := courseJSON{ID: ov.ID, Name: ov.Name, Code: ov.Code, Classes: make([]classJSON, 0, len(ov.Classes))}
		for _, cl := range ov.Classes {
			c.Classes = append(c.Classes, classJSON{
				ID:            cl.ID,
				Name:          cl.Name,
				Code:          cl.Code,
				TotalSessions: cl.TotalSessions,
			})
		}
		courses = append(courses, c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "courses": courses})
}

type startRequest struct {
	CourseID string   `json:"courseId"`
	ClassIDs []string `json:"classIds"`
	Duration int      `json:"duration"`
}

// StartSession handles POST /api/teacher/sessions.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	sess, err := s.Engine.Start(r.Context(), principalID(r), body.CourseID, body.ClassIDs, body.Duration)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "session": toSessionJSON(sess)})
}

// GetSession handles GET /api/teacher/sessions/{sessionID}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Engine.Session(r.Context(), principalID(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": toSessionJSON(sess)})
}

// QR handles GET /api/teacher/sessions/{sessionID}/qr. Validity bounds are unix
// milliseconds.
func (s *Server) QR(w http.ResponseWriter, r *http.Request) {
	code, err := s.Engine.IssueQR(r.Context(), principalID(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"qrToken":   code.Token,
		"qrImage":   code.Image,
		"validFrom": code.ValidFrom.UnixMilli(),
		"validTo":   code.ValidTo.UnixMilli(),
	})
}

// Live handles GET /api/teacher/sessions/{sessionID}/live.
func (s *Server) Live(w http.ResponseWriter, r *http.Request) {
	students, err := s.Engine.LiveView(r.Context(), principalID(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	present := make([]studentJSON, 0, len(students))
	for _, st := range students {
		present = append(present, toStudentJSON(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "presentStudents": present})
}

// Students handles GET /api/teacher/sessions/{sessionID}/students.
func (s *Server) Students(w http.ResponseWriter, r *http.Request) {
	roster, err := s.Engine.RosterView(r.Context(), principalID(r), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]rosterJSON, 0, len(roster))
	for _, entry := range roster {
		row := rosterJSON{studentJSON: toStudentJSON(entry.Student), Present: entry.Present}
		if entry.Present && !entry.MarkedAt.IsZero() {
			at := entry.MarkedAt.UTC()
			row.MarkedAt = &at
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "students": out})
}

type markRequest struct {
	Marked   []string `json:"marked"`
	Unmarked []string `json:"unmarked"`
}

// Mark handles POST /api/teacher/sessions/{sessionID}/mark.
func (s *Server) Mark(w http.ResponseWriter, r *http.Request) {
	var body markRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	summary, err := s.Engine.ApplyMarks(r.Context(), principalID(r), chi.URLParam(r, "sessionID"), body.Marked, body.Unmarked)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	marked := toMarkResultJSON(summary.Marked)
	unmarked := toMarkResultJSON(summary.Unmarked)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Attendance updated",
		"summary": map[string]any{
			"markedCount":   len(marked.Applied),
			"unmarkedCount": len(unmarked.Applied),
			"marked":        marked,
			"unmarked":      unmarked,
		},
	})
}

type extendRequest struct {
	ExtraMinutes int `json:"extraMinutes"`
}

// Extend handles POST /api/teacher/sessions/{sessionID}/extend.
func (s *Server) Extend(w http.ResponseWriter, r *http.Request) {
	var body extendRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	sess, err := s.Engine.Extend(r.Context(), principalID(r), chi.URLParam(r, "sessionID"), body.ExtraMinutes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Session extended",
		"newEnd":  sess.EndTime.UTC(),
		"session": toSessionJSON(sess),
	})
}

// End handles POST /api/teacher/sessions/{sessionID}/end. Ending an ended
// session succeeds with alreadyEnded set.
func (s *Server) End(w http.ResponseWriter, r *http.Request) {
	res, err := s.Engine.End(r.Context(), principalID(r), chi.URLParam(r, "sessionID"))
	if errors.Is(err, goAttend.ErrConflictIgnored) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"message":      "Session already ended",
			"alreadyEnded": true,
		})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Session ended",
		"alreadyEnded": false,
		"flushed":      res.Flushed,
		"present":      res.Present,
		"session":      toSessionJSON(res.Session),
	})
}

type scanRequest struct {
	Token string `json:"token"`
}

// Scan handles POST /api/student/scan.
func (s *Server) Scan(w http.ResponseWriter, r *http.Request) {
	var body scanRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.Engine.Scan(r.Context(), principalID(r), body.Token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(res.Applied) == 0 {
		writeFailure(w, http.StatusForbidden, "not_enrolled", "student is not enrolled in this session's classes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Attendance marked"})
}
