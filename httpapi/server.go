package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	goAttend "github.com/MrEthical07/goAttend"
	"github.com/MrEthical07/goAttend/internal/logging"
	"github.com/MrEthical07/goAttend/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Engine is the part of [goAttend.Engine] the HTTP layer drives.
type Engine interface {
	Ping(ctx context.Context) error
	TeacherCourses(ctx context.Context, teacherID string) ([]goAttend.CourseOverview, error)
	Start(ctx context.Context, teacherID, courseID string, classIDs []string, durationMinutes int) (*goAttend.Session, error)
	Session(ctx context.Context, teacherID, sessionID string) (*goAttend.Session, error)
	IssueQR(ctx context.Context, teacherID, sessionID string) (*goAttend.QRCode, error)
	LiveView(ctx context.Context, teacherID, sessionID string) ([]goAttend.Student, error)
	RosterView(ctx context.Context, teacherID, sessionID string) ([]goAttend.RosterEntry, error)
	ApplyMarks(ctx context.Context, teacherID, sessionID string, marked, unmarked []string) (*goAttend.MarkSummary, error)
	Extend(ctx context.Context, teacherID, sessionID string, extraMinutes int) (*goAttend.Session, error)
	End(ctx context.Context, teacherID, sessionID string) (*goAttend.EndResult, error)
	Scan(ctx context.Context, studentID, token string) (*goAttend.MarkResult, error)
}

var _ Engine = (*goAttend.Engine)(nil)

// Options configures [NewHandler].
type Options struct {
	// AllowedOrigins is the CORS allow list. Empty serves same-origin only.
	AllowedOrigins []string
	// Gatherer backs /api/metrics. Nil leaves the route unmounted.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// RequestTimeout bounds each request. Zero means no limit.
	RequestTimeout time.Duration
}

// Server holds the handler dependencies.
type Server struct {
	Engine Engine
	logger *slog.Logger
}

// NewHandler builds the API router. parser verifies bearer identity tokens.
func NewHandler(engine Engine, parser middleware.IdentityParser, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{Engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.Health)
		if opts.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(parser))

			r.Route("/teacher", func(r chi.Router) {
				r.Use(middleware.RequireTeacher())
				r.Get("/courses", s.Courses)
				r.Post("/sessions", s.StartSession)
				r.Route("/sessions/{sessionID}", func(r chi.Router) {
					r.Get("/", s.GetSession)
					r.Get("/qr", s.QR)
					r.Get("/live", s.Live)
					r.Get("/students", s.Students)
					r.Post("/mark", s.Mark)
					r.Post("/extend", s.Extend)
					r.Post("/end", s.End)
				})
			})

			r.Route("/student", func(r chi.Router) {
				r.Use(middleware.RequireStudent())
				r.Post("/scan", s.Scan)
			})
		})
	})

	if len(opts.AllowedOrigins) == 0 {
		return r
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
