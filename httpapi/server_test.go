package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	goAttend "github.com/MrEthical07/goAttend"
	"github.com/MrEthical07/goAttend/jwt"
	"github.com/MrEthical07/goAttend/store/gormstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	handler  http.Handler
	identity *jwt.Manager
	mr       *miniredis.Miniredis
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	ctx := context.Background()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := gormstore.Open(gormstore.DriverSQLite, "file:api_"+name+"?mode=memory&cache=shared", gormstore.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	for _, c := range []goAttend.Class{{ID: "A", Name: "Class A"}, {ID: "B", Name: "Class B"}, {ID: "Z", Name: "Class Z"}} {
		require.NoError(t, store.SaveClass(ctx, c))
	}
	require.NoError(t, store.SaveCourse(ctx, goAttend.Course{ID: "C", Name: "Compilers", TeacherID: "t1", ClassIDs: []string{"A", "B"}}))
	require.NoError(t, store.SaveCourse(ctx, goAttend.Course{ID: "D", Name: "Databases", TeacherID: "t2", ClassIDs: []string{"Z"}}))
	for _, s := range []goAttend.Student{
		{ID: "s1", FirstName: "Ada", LastName: "L", MIS: "1001", ClassID: "A"},
		{ID: "s2", FirstName: "Bo", LastName: "M", MIS: "1002", ClassID: "A"},
		{ID: "s9", FirstName: "Zed", LastName: "Q", MIS: "1009", ClassID: "Z"},
	} {
		require.NoError(t, store.SaveStudent(ctx, s))
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := goAttend.DefaultConfig()
	cfg.QR.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.QR.ImageSize = 0
	reg := prometheus.NewRegistry()
	engine, err := goAttend.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(store).
		WithRegisterer(reg).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	identity, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("identity-secret-identity-secret!"),
		Issuer:        "idp",
	})
	require.NoError(t, err)

	return &apiEnv{
		handler:  NewHandler(engine, identity, Options{Gatherer: reg, AllowedOrigins: []string{"https://app.example"}}),
		identity: identity,
		mr:       mr,
	}
}

func (env *apiEnv) token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := env.identity.CreateIdentity(sub, role, time.Now(), time.Hour)
	require.NoError(t, err)
	return tok
}

func (env *apiEnv) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (env *apiEnv) startSession(t *testing.T, teacher string) string {
	t.Helper()
	rec, body := env.do(t, http.MethodPost, "/api/teacher/sessions", teacher, map[string]any{
		"courseId": "C",
		"classIds": []string{"A", "B"},
		"duration": 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sess := body["session"].(map[string]any)
	return sess["id"].(string)
}

func TestSessionFlowOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	teacher := env.token(t, "t1", "teacher")
	student := env.token(t, "s1", "student")

	id := env.startSession(t, teacher)

	rec, body := env.do(t, http.MethodGet, "/api/teacher/sessions/"+id, teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sess := body["session"].(map[string]any)
	assert.Equal(t, true, sess["active"])
	assert.Equal(t, "active", sess["state"])

	rec, body = env.do(t, http.MethodGet, "/api/teacher/sessions/"+id+"/qr", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	qrToken := body["qrToken"].(string)
	require.NotEmpty(t, qrToken)
	assert.InDelta(t, 5000, body["validTo"].(float64)-body["validFrom"].(float64), 0)

	rec, body = env.do(t, http.MethodPost, "/api/student/scan", student, map[string]string{"token": qrToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])

	rec, body = env.do(t, http.MethodPost, "/api/student/scan", student, map[string]string{"token": qrToken})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "token_replayed_or_expired", body["error"])

	rec, body = env.do(t, http.MethodGet, "/api/teacher/sessions/"+id+"/live", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	present := body["presentStudents"].([]any)
	require.Len(t, present, 1)
	assert.Equal(t, "s1", present[0].(map[string]any)["id"])

	rec, body = env.do(t, http.MethodPost, "/api/teacher/sessions/"+id+"/mark", teacher, map[string]any{
		"marked":   []string{"s2", "s9"},
		"unmarked": []string{"s1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := body["summary"].(map[string]any)
	assert.EqualValues(t, 1, summary["markedCount"])
	assert.EqualValues(t, 1, summary["unmarkedCount"])
	assert.Equal(t, []any{"s9"}, summary["marked"].(map[string]any)["skipped"])

	rec, body = env.do(t, http.MethodPost, "/api/teacher/sessions/"+id+"/extend", teacher, map[string]int{"extraMinutes": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, body["newEnd"])

	rec, body = env.do(t, http.MethodPost, "/api/teacher/sessions/"+id+"/end", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["alreadyEnded"])
	assert.EqualValues(t, 1, body["present"])

	rec, body = env.do(t, http.MethodPost, "/api/teacher/sessions/"+id+"/end", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["alreadyEnded"])

	rec, body = env.do(t, http.MethodGet, "/api/teacher/sessions/"+id+"/students", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	roster := map[string]bool{}
	for _, row := range body["students"].([]any) {
		entry := row.(map[string]any)
		roster[entry["id"].(string)] = entry["present"].(bool)
	}
	assert.Equal(t, map[string]bool{"s1": false, "s2": true}, roster)

	rec, body = env.do(t, http.MethodGet, "/api/teacher/sessions/"+id+"/qr", teacher, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "session_inactive", body["error"])
}

func TestCoursesOverHTTP(t *testing.T) {
	env := newAPIEnv(t)
	teacher := env.token(t, "t1", "teacher")
	env.startSession(t, teacher)

	rec, body := env.do(t, http.MethodGet, "/api/teacher/courses", teacher, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	courses := body["courses"].([]any)
	require.Len(t, courses, 1)
	course := courses[0].(map[string]any)
	assert.Equal(t, "C", course["id"])
	for _, cl := range course["classes"].([]any) {
		assert.EqualValues(t, 1, cl.(map[string]any)["totalSessions"])
	}

	rec, body = env.do(t, http.MethodGet, "/api/teacher/courses", env.token(t, "t9", "teacher"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["courses"])
}

func TestErrorMapping(t *testing.T) {
	env := newAPIEnv(t)
	teacher := env.token(t, "t1", "teacher")
	other := env.token(t, "t2", "teacher")
	student := env.token(t, "s1", "student")
	id := env.startSession(t, teacher)

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		body   any
		status int
		code   string
	}{
		{name: "no token", method: http.MethodGet, path: "/api/teacher/courses", status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "student on teacher route", method: http.MethodGet, path: "/api/teacher/courses", bearer: student, status: http.StatusForbidden, code: "forbidden"},
		{name: "teacher on student route", method: http.MethodPost, path: "/api/student/scan", bearer: teacher, body: map[string]string{"token": "x"}, status: http.StatusForbidden, code: "forbidden"},
		{name: "unknown session", method: http.MethodGet, path: "/api/teacher/sessions/missing", bearer: teacher, status: http.StatusNotFound, code: "not_found"},
		{name: "foreign session", method: http.MethodGet, path: "/api/teacher/sessions/" + id + "/live", bearer: other, status: http.StatusForbidden, code: "not_authorized"},
		{name: "bad duration", method: http.MethodPost, path: "/api/teacher/sessions", bearer: teacher, body: map[string]any{"courseId": "C", "classIds": []string{"A"}, "duration": -1}, status: http.StatusBadRequest, code: "invalid_input"},
		{name: "unknown field", method: http.MethodPost, path: "/api/teacher/sessions/" + id + "/extend", bearer: teacher, body: map[string]any{"minutes": 2}, status: http.StatusBadRequest, code: "invalid_input"},
		{name: "forged qr", method: http.MethodPost, path: "/api/student/scan", bearer: student, body: map[string]string{"token": "not.a.token"}, status: http.StatusUnauthorized, code: "token_invalid"},
		{name: "unknown route", method: http.MethodGet, path: "/api/nope", status: http.StatusNotFound, code: "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, tt.method, tt.path, tt.bearer, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestScanNotEnrolled(t *testing.T) {
	env := newAPIEnv(t)
	teacher := env.token(t, "t1", "teacher")
	id := env.startSession(t, teacher)

	_, body := env.do(t, http.MethodGet, "/api/teacher/sessions/"+id+"/qr", teacher, nil)
	rec, body := env.do(t, http.MethodPost, "/api/student/scan", env.token(t, "s9", "student"), map[string]string{"token": body["qrToken"].(string)})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "not_enrolled", body["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	env := newAPIEnv(t)

	rec, body := env.do(t, http.MethodGet, "/api/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	mrec := httptest.NewRecorder()
	env.handler.ServeHTTP(mrec, req)
	require.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "goattend_")

	env.mr.Close()
	rec, body = env.do(t, http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["error"])
}

func TestCORSPreflight(t *testing.T) {
	env := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/teacher/courses", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

type stubEngine struct {
	Engine
	err error
}

func (s stubEngine) TeacherCourses(context.Context, string) ([]goAttend.CourseOverview, error) {
	return nil, s.err
}

func TestInternalErrorsHideDetail(t *testing.T) {
	identity, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("identity-secret-identity-secret!"),
		Issuer:        "idp",
	})
	require.NoError(t, err)
	tok, err := identity.CreateIdentity("t1", "teacher", time.Now(), time.Hour)
	require.NoError(t, err)

	stub := stubEngine{err: fmt.Errorf("%w: dial tcp: refused", goAttend.ErrUnavailable)}
	h := NewHandler(stub, identity, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/teacher/courses", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "refused")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{goAttend.ErrNotFound, http.StatusNotFound},
		{goAttend.ErrNotAuthorized, http.StatusForbidden},
		{goAttend.ErrInvalidInput, http.StatusBadRequest},
		{goAttend.ErrSessionInactive, http.StatusConflict},
		{goAttend.ErrTokenReplayedOrExpired, http.StatusGone},
		{goAttend.ErrTokenInvalid, http.StatusUnauthorized},
		{goAttend.ErrScanRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("wrapped: %w", goAttend.ErrNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
