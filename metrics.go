package goAttend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricID identifies an engine event counter.
type MetricID uint8

const (
	MetricSessionStarted MetricID = iota
	MetricSessionExtended
	MetricSessionEnded
	MetricSessionSwept
	MetricQRIssued
	MetricQRVerified
	MetricQRRejected
	MetricAttendanceMarked
	MetricAttendanceUnmarked
	MetricAttendanceSkipped
	MetricScanRateLimited
	MetricLiveFlushed
	MetricAuditDropped
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricSessionStarted:     "session_started",
	MetricSessionExtended:    "session_extended",
	MetricSessionEnded:       "session_ended",
	MetricSessionSwept:       "session_swept",
	MetricQRIssued:           "qr_issued",
	MetricQRVerified:         "qr_verified",
	MetricQRRejected:         "qr_rejected",
	MetricAttendanceMarked:   "attendance_marked",
	MetricAttendanceUnmarked: "attendance_unmarked",
	MetricAttendanceSkipped:  "attendance_skipped",
	MetricScanRateLimited:    "scan_rate_limited",
	MetricLiveFlushed:        "live_flushed",
	MetricAuditDropped:       "audit_dropped",
}

// String returns the label value used for id.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	events        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

// NewMetrics builds the collectors and registers them on reg when reg is non-nil.
// It returns nil when metrics are disabled.
func NewMetrics(cfg MetricsConfig, reg prometheus.Registerer) (*Metrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "events_total",
				Help:      "Attendance engine events by type.",
			},
			[]string{"event"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Duration of expiry reconciliation passes.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
	}

	// Every series exists at zero before its first event.
	for id := MetricID(0); id < metricIDCount; id++ {
		m.events.WithLabelValues(id.String())
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.events, m.sweepDuration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// Inc adds one to the counter for id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to the counter for id.
func (m *Metrics) Add(id MetricID, n int) {
	if m == nil || n <= 0 || id >= metricIDCount {
		return
	}
	m.events.WithLabelValues(id.String()).Add(float64(n))
}

// ObserveSweep records the duration of one sweep pass.
func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n int) {
	if e == nil {
		return
	}
	e.metrics.Add(id, n)
}
