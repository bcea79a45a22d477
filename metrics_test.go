package goAttend

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDisabledIsNil(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false}, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	if m != nil {
		t.Fatal("expected nil metrics when disabled")
	}

	// A nil *Metrics records nothing and does not panic.
	m.Inc(MetricSessionStarted)
	m.ObserveSweep(time.Millisecond)
}

func TestMetricsSeriesStartAtZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "test"}, reg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	if got := testutil.CollectAndCount(m.events); got != int(metricIDCount) {
		t.Fatalf("expected %d series, got %d", metricIDCount, got)
	}

	m.Add(MetricAttendanceMarked, 3)
	m.Add(MetricAttendanceMarked, 0)
	m.Add(MetricAttendanceMarked, -1)
	if got := testutil.ToFloat64(m.events.WithLabelValues("attendance_marked")); got != 3 {
		t.Fatalf("attendance_marked = %v, want 3", got)
	}
}

func TestMetricsDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := MetricsConfig{Enabled: true, Namespace: "test"}
	if _, err := NewMetrics(cfg, reg); err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	if _, err := NewMetrics(cfg, reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestMetricIDString(t *testing.T) {
	if got := MetricQRRejected.String(); got != "qr_rejected" {
		t.Fatalf("got %q", got)
	}
	if got := MetricID(200).String(); got != "unknown" {
		t.Fatalf("got %q", got)
	}
}

func TestEngineRecordsLifecycleMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, cfg, func(b *Builder) { b.WithRegisterer(reg) })
	ctx := context.Background()

	sess := startTestSession(t, env, 3)
	if _, err := env.engine.Mark(ctx, "t1", sess.ID, []string{"s1", "s9"}); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	code, err := env.engine.IssueQR(ctx, "t1", sess.ID)
	if err != nil {
		t.Fatalf("IssueQR failed: %v", err)
	}
	if _, err := env.engine.VerifyQR(ctx, code.Token); err != nil {
		t.Fatalf("VerifyQR failed: %v", err)
	}
	if _, err := env.engine.VerifyQR(ctx, code.Token); err == nil {
		t.Fatal("expected replay to fail")
	}
	if _, err := env.engine.End(ctx, "t1", sess.ID); err != nil {
		t.Fatalf("End failed: %v", err)
	}

	events := env.engine.metrics.events
	want := map[string]float64{
		"session_started":    1,
		"session_ended":      1,
		"attendance_marked":  1,
		"attendance_skipped": 1,
		"qr_issued":          1,
		"qr_verified":        1,
		"qr_rejected":        1,
		"live_flushed":       1,
	}
	for label, v := range want {
		if got := testutil.ToFloat64(events.WithLabelValues(label)); got != v {
			t.Fatalf("%s = %v, want %v", label, got, v)
		}
	}

	if got := testutil.CollectAndCount(env.engine.metrics.sweepDuration); got != 1 {
		t.Fatalf("expected sweep histogram to be collected, got %d", got)
	}
}
