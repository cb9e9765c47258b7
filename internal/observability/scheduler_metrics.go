package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerCollector exposes metrics for the two simulation clocks.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	PhysicsSteps   prometheus.Counter
	Frames         prometheus.Counter
	FrameIntervals prometheus.Histogram
	DroppedSteps   prometheus.Gauge
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	steps, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adsim_physics_steps_total",
		Help: "Fixed-rate physics steps executed.",
	}), "adsim_physics_steps_total")
	if err != nil {
		return nil, err
	}

	frames, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "adsim_frames_total",
		Help: "Variable-rate frames executed.",
	}), "adsim_frames_total")
	if err != nil {
		return nil, err
	}

	intervals, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "adsim_frame_interval_seconds",
		Help:    "Simulated length of each frame.",
		Buckets: []float64{0.004, 0.008, 0.012, 0.016, 0.02, 0.025, 0.033, 0.05, 0.1},
	}), "adsim_frame_interval_seconds")
	if err != nil {
		return nil, err
	}

	dropped, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "adsim_physics_steps_dropped",
		Help: "Physics steps skipped by the per-frame catch-up cap.",
	}), "adsim_physics_steps_dropped")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:       gatherer,
		PhysicsSteps:   steps,
		Frames:         frames,
		FrameIntervals: intervals,
		DroppedSteps:   dropped,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObservePhysicsStep counts one fixed step.
func (c *SchedulerCollector) ObservePhysicsStep(time.Time, time.Duration) {
	if c == nil || c.PhysicsSteps == nil {
		return
	}
	c.PhysicsSteps.Inc()
}

// ObserveFrame counts one frame and records its simulated length.
func (c *SchedulerCollector) ObserveFrame(_ time.Time, dt time.Duration) {
	if c == nil {
		return
	}
	if c.Frames != nil {
		c.Frames.Inc()
	}
	if c.FrameIntervals != nil {
		c.FrameIntervals.Observe(dt.Seconds())
	}
}

// SetDroppedSteps updates the dropped-step gauge.
func (c *SchedulerCollector) SetDroppedSteps(n uint64) {
	if c == nil || c.DroppedSteps == nil {
		return
	}
	c.DroppedSteps.Set(float64(n))
}
