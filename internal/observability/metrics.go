package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EngagementCollector bundles Prometheus metrics for the sense/decide/act
// loop. It satisfies core.EngagementMetrics.
type EngagementCollector struct {
	gatherer prometheus.Gatherer

	ThreatScores         prometheus.Histogram
	Decisions            *prometheus.CounterVec
	EngagedTargets       prometheus.Gauge
	ArmedInterceptors    prometheus.Gauge
	InterceptorOutcomes  *prometheus.CounterVec
	FrameDurationSeconds prometheus.Histogram
}

// NewEngagementCollector registers engagement metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewEngagementCollector(reg prometheus.Registerer) (*EngagementCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	scores, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adsim_threat_score",
		Help:    "Threat scores computed for detected targets.",
		Buckets: []float64{1, 5, 10, 25, 50, 75, 100, 250, 500, 1000},
	}), "adsim_threat_score")
	if err != nil {
		return nil, err
	}

	decisions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adsim_decisions_total",
		Help: "Threat evaluation decisions, labeled by outcome.",
	}, []string{"outcome"}), "adsim_decisions_total")
	if err != nil {
		return nil, err
	}

	engaged, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adsim_engaged_targets",
		Help: "Targets currently in the engaged set.",
	}), "adsim_engaged_targets")
	if err != nil {
		return nil, err
	}

	armed, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adsim_armed_interceptors",
		Help: "Interceptors currently in flight.",
	}), "adsim_armed_interceptors")
	if err != nil {
		return nil, err
	}

	outcomes, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adsim_interceptor_outcomes_total",
		Help: "Terminated interceptors, labeled by outcome (hit, miss, lost).",
	}, []string{"outcome"}), "adsim_interceptor_outcomes_total")
	if err != nil {
		return nil, err
	}

	frames, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adsim_frame_duration_seconds",
		Help:    "Wall-clock time spent evaluating one frame.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
	}), "adsim_frame_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &EngagementCollector{
		gatherer:             gatherer,
		ThreatScores:         scores,
		Decisions:            decisions,
		EngagedTargets:       engaged,
		ArmedInterceptors:    armed,
		InterceptorOutcomes:  outcomes,
		FrameDurationSeconds: frames,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *EngagementCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *EngagementCollector) ObserveThreatScore(score float64) {
	if c == nil || c.ThreatScores == nil {
		return
	}
	c.ThreatScores.Observe(score)
}

func (c *EngagementCollector) RecordDecision(outcome string) {
	if c == nil || c.Decisions == nil {
		return
	}
	c.Decisions.WithLabelValues(outcome).Inc()
}

func (c *EngagementCollector) SetEngagedTargets(n int) {
	if c == nil || c.EngagedTargets == nil {
		return
	}
	c.EngagedTargets.Set(float64(n))
}

func (c *EngagementCollector) SetArmedInterceptors(n int) {
	if c == nil || c.ArmedInterceptors == nil {
		return
	}
	c.ArmedInterceptors.Set(float64(n))
}

func (c *EngagementCollector) RecordInterceptorOutcome(outcome string) {
	if c == nil || c.InterceptorOutcomes == nil {
		return
	}
	c.InterceptorOutcomes.WithLabelValues(outcome).Inc()
}

func (c *EngagementCollector) ObserveFrameDuration(d time.Duration) {
	if c == nil || c.FrameDurationSeconds == nil {
		return
	}
	c.FrameDurationSeconds.Observe(d.Seconds())
}

// register adds collector to reg, returning the already-registered instance
// when an identical collector exists.
func register[C prometheus.Collector](reg prometheus.Registerer, collector C, name string) (C, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return collector, nil
}
