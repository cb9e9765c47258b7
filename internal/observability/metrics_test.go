package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/signalsfoundry/air-defense-simulator/core"
	"github.com/signalsfoundry/air-defense-simulator/internal/logging"
)

var _ core.EngagementMetrics = (*EngagementCollector)(nil)

func TestEngagementCollectorRecordsDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngagementCollector(reg)
	if err != nil {
		t.Fatalf("NewEngagementCollector: %v", err)
	}

	collector.RecordDecision(core.OutcomeLaunched)
	collector.RecordDecision(core.OutcomeBelowThreshold)
	collector.RecordDecision(core.OutcomeBelowThreshold)
	collector.RecordInterceptorOutcome("hit")
	collector.SetEngagedTargets(2)
	collector.SetArmedInterceptors(1)
	collector.ObserveThreatScore(51)
	collector.ObserveFrameDuration(200 * time.Microsecond)

	if got := testutil.ToFloat64(collector.Decisions.WithLabelValues(core.OutcomeBelowThreshold)); got != 2 {
		t.Fatalf("below_threshold decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Decisions.WithLabelValues(core.OutcomeLaunched)); got != 1 {
		t.Fatalf("launched decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.InterceptorOutcomes.WithLabelValues("hit")); got != 1 {
		t.Fatalf("hit outcomes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.EngagedTargets); got != 2 {
		t.Fatalf("engaged gauge = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "adsim_threat_score", nil); count != 1 {
		t.Fatalf("adsim_threat_score sample_count = %d, want 1", count)
	}
	if count := histogramSampleCount(t, reg, "adsim_frame_duration_seconds", nil); count != 1 {
		t.Fatalf("adsim_frame_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestEngagementCollectorReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngagementCollector(reg)
	if err != nil {
		t.Fatalf("first NewEngagementCollector: %v", err)
	}
	second, err := NewEngagementCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngagementCollector: %v", err)
	}
	first.RecordDecision(core.OutcomeIdle)
	if got := testutil.ToFloat64(second.Decisions.WithLabelValues(core.OutcomeIdle)); got != 1 {
		t.Fatalf("second collector should share the registered counter, got %v", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *EngagementCollector
	c.RecordDecision("idle")
	c.ObserveThreatScore(1)
	c.SetArmedInterceptors(1)

	var s *SchedulerCollector
	s.ObservePhysicsStep(time.Time{}, time.Millisecond)
	s.ObserveFrame(time.Time{}, time.Millisecond)
	s.SetDroppedSteps(3)
}

func TestMetricsHandlerExposesEngagementAndSchedulerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEngagementCollector(reg)
	if err != nil {
		t.Fatalf("NewEngagementCollector: %v", err)
	}
	sched, err := NewSchedulerCollector(reg)
	if err != nil {
		t.Fatalf("NewSchedulerCollector: %v", err)
	}
	collector.RecordDecision(core.OutcomeCooldown)
	collector.SetArmedInterceptors(3)
	collector.RecordInterceptorOutcome("miss")
	sched.ObservePhysicsStep(time.Time{}, 20*time.Millisecond)
	sched.ObserveFrame(time.Time{}, 16*time.Millisecond)
	sched.SetDroppedSteps(4)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"adsim_decisions_total",
		"adsim_armed_interceptors 3",
		"adsim_interceptor_outcomes_total",
		"adsim_physics_steps_total 1",
		"adsim_frames_total 1",
		"adsim_frame_interval_seconds",
		"adsim_physics_steps_dropped 4",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestTracingDisabledInstallsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}

func TestTracingStdoutExporterWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	ctx, runID := logging.EnsureRunID(context.Background())
	shutdown, err := InitTracing(ctx, TracingConfig{Enabled: true, Exporter: "stdout", SampleRatio: 1, Output: &buf}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(ctx, "engine.frame")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	otel.SetTracerProvider(noop.NewTracerProvider())

	out := buf.String()
	if !strings.Contains(out, "engine.frame") || !strings.Contains(out, runID) {
		t.Fatalf("span output missing name or run id:\n%s", out)
	}
}

func TestUnsupportedExporterFails(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, nil)
	if err == nil {
		t.Fatalf("expected unsupported exporter error")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
