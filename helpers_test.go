package goAttend

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testQRSecret = []byte("0123456789abcdef0123456789abcdef")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore is an in-memory Store. Its DeactivateSession is a compare-and-swap
// under the mutex, mirroring the conditional update of a SQL store.
type memStore struct {
	mu sync.Mutex

	sessions   map[string]Session
	attendance map[string]map[string]Attendance
	courses    map[string]Course
	classes    map[string]Class
	students   map[string]Student
	counters   map[[2]string]int

	inserts int

	failCreateAttendance error
}

func newMemStore() *memStore {
	s := &memStore{
		sessions:   map[string]Session{},
		attendance: map[string]map[string]Attendance{},
		courses:    map[string]Course{},
		classes:    map[string]Class{},
		students:   map[string]Student{},
		counters:   map[[2]string]int{},
	}

	s.classes["A"] = Class{ID: "A", Name: "Class A", Code: "CA"}
	s.classes["B"] = Class{ID: "B", Name: "Class B", Code: "CB"}
	s.classes["Z"] = Class{ID: "Z", Name: "Class Z", Code: "CZ"}
	s.courses["C"] = Course{ID: "C", Name: "Compilers", Code: "CS401", TeacherID: "t1", ClassIDs: []string{"A", "B"}}
	s.courses["D"] = Course{ID: "D", Name: "Databases", Code: "CS402", TeacherID: "t2", ClassIDs: []string{"Z"}}
	s.students["s1"] = Student{ID: "s1", FirstName: "Ada", LastName: "L", MIS: "1001", ClassID: "A"}
	s.students["s2"] = Student{ID: "s2", FirstName: "Bo", LastName: "M", MIS: "1002", ClassID: "A"}
	s.students["s3"] = Student{ID: "s3", FirstName: "Cy", LastName: "N", MIS: "1003", ClassID: "B"}
	s.students["s9"] = Student{ID: "s9", FirstName: "Zed", LastName: "Q", MIS: "1009", ClassID: "Z"}
	return s
}

func cloneSession(s Session) *Session {
	s.ClassIDs = append([]string(nil), s.ClassIDs...)
	return &s
}

func (m *memStore) CreateSession(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return errors.New("duplicate session")
	}
	m.sessions[s.ID] = *cloneSession(*s)
	for _, classID := range s.ClassIDs {
		m.counters[[2]string{s.CourseID, classID}]++
	}
	return nil
}

func (m *memStore) FindSession(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *memStore) ExtendSession(_ context.Context, id string, extra time.Duration) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.Active {
		return nil, ErrSessionInactive
	}
	s.EndTime = s.EndTime.Add(extra)
	m.sessions[id] = s
	return cloneSession(s), nil
}

func (m *memStore) DeactivateSession(_ context.Context, id string, endTime time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if !s.Active {
		return false, nil
	}
	s.Active = false
	s.EndTime = endTime
	m.sessions[id] = s
	return true, nil
}

func (m *memStore) DeactivateExpiredSession(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false, ErrNotFound
	}
	if !s.Active || !s.EndTime.Before(now) {
		return false, nil
	}
	s.Active = false
	m.sessions[id] = s
	return true, nil
}

func (m *memStore) ListExpiredSessions(_ context.Context, now time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if s.Active && s.EndTime.Before(now) {
			out = append(out, *cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateAttendanceIfAbsent(_ context.Context, sessionID, studentID string, markedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateAttendance != nil {
		return false, m.failCreateAttendance
	}
	rows := m.attendance[sessionID]
	if rows == nil {
		rows = map[string]Attendance{}
		m.attendance[sessionID] = rows
	}
	if _, ok := rows[studentID]; ok {
		return false, nil
	}
	rows[studentID] = Attendance{SessionID: sessionID, StudentID: studentID, MarkedAt: markedAt}
	m.inserts++
	return true, nil
}

func (m *memStore) DeleteAttendance(_ context.Context, sessionID, studentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.attendance[sessionID]
	if _, ok := rows[studentID]; !ok {
		return false, nil
	}
	delete(rows, studentID)
	return true, nil
}

func (m *memStore) ListAttendance(_ context.Context, sessionID string) ([]Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Attendance, 0, len(m.attendance[sessionID]))
	for _, a := range m.attendance[sessionID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *memStore) CountAttendance(_ context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.attendance[sessionID])), nil
}

func (m *memStore) FindCourse(_ context.Context, id string) (*Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.ClassIDs = append([]string(nil), c.ClassIDs...)
	return &c, nil
}

func (m *memStore) CoursesByTeacher(_ context.Context, teacherID string) ([]CourseOverview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CourseOverview
	for _, c := range m.courses {
		if c.TeacherID != teacherID {
			continue
		}
		ov := CourseOverview{Course: c}
		for _, classID := range c.ClassIDs {
			ov.Classes = append(ov.Classes, CourseClass{
				Class:         m.classes[classID],
				TotalSessions: m.counters[[2]string{c.ID, classID}],
			})
		}
		out = append(out, ov)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) FindStudents(_ context.Context, ids []string) ([]Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Student
	for _, id := range ids {
		if s, ok := m.students[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) StudentsInClasses(_ context.Context, classIDs []string) ([]Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	classes := stringSet(classIDs)
	var out []Student
	for _, s := range m.students {
		if _, ok := classes[s.ClassID]; ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) session(id string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *memStore) insertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

func (m *memStore) counter(courseID, classID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[[2]string{courseID, classID}]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.QR.PrivateKey = append([]byte(nil), testQRSecret...)
	cfg.QR.Issuer = "goattend-test"
	cfg.QR.ImageSize = 0
	cfg.Metrics.Enabled = false
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *memStore
	clock  *testClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

// advance moves the engine clock and the cache clock together.
func (env *testEnv) advance(d time.Duration) {
	env.clock.Advance(d)
	env.mr.FastForward(d)
}

func newTestEnv(t *testing.T, cfg Config, opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := newMemStore()
	clock := newTestClock()

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(store).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &testEnv{engine: engine, store: store, clock: clock, mr: mr, rdb: rdb}
}

func startTestSession(t *testing.T, env *testEnv, minutes int) *Session {
	t.Helper()

	sess, err := env.engine.Start(context.Background(), "t1", "C", []string{"A", "B"}, minutes)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return sess
}
