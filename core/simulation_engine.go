package core

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/air-defense-simulator/internal/events"
	"github.com/signalsfoundry/air-defense-simulator/internal/logging"
	"github.com/signalsfoundry/air-defense-simulator/model"
)

const tracerName = "github.com/signalsfoundry/air-defense-simulator/core"

// SimulationEngine wires the sense/decide/act loop onto two clocks.
// FrameStep runs on the variable-rate frame clock (scan countdown, then
// evaluation, then arming); PhysicsStep runs on the fixed-rate clock
// (guidance for every armed interceptor, then world integration and contact
// resolution). Both are plain calls from a single goroutine.
type SimulationEngine struct {
	World     PhysicsWorld
	Stepper   Stepper
	Detector  Detector
	Evaluator *ThreatEvaluator

	interceptors []*Interceptor
	byBody       map[model.Handle]*Interceptor
	outcomes     map[InterceptorState]int

	frameListeners []func(time.Time, Decision)
	now            time.Time

	log     logging.Logger
	sink    events.Sink
	metrics EngagementMetrics
	tracer  trace.Tracer
}

// EngineOption customises SimulationEngine construction.
type EngineOption func(*SimulationEngine)

// WithEngineLogger attaches a structured logger.
func WithEngineLogger(l logging.Logger) EngineOption {
	return func(se *SimulationEngine) {
		if l != nil {
			se.log = l
		}
	}
}

// WithEngineEvents attaches the event sink.
func WithEngineEvents(s events.Sink) EngineOption {
	return func(se *SimulationEngine) {
		if s != nil {
			se.sink = s
		}
	}
}

// WithEngineMetrics attaches a metrics recorder.
func WithEngineMetrics(m EngagementMetrics) EngineOption {
	return func(se *SimulationEngine) {
		if m != nil {
			se.metrics = m
		}
	}
}

// NewSimulationEngine constructs an engine with no armed interceptors. The
// evaluator may be attached after construction because the launcher it uses
// needs the engine as its Arsenal.
func NewSimulationEngine(world PhysicsWorld, stepper Stepper, detector Detector, opts ...EngineOption) *SimulationEngine {
	se := &SimulationEngine{
		World:    world,
		Stepper:  stepper,
		Detector: detector,
		byBody:   make(map[model.Handle]*Interceptor),
		outcomes: make(map[InterceptorState]int),
		log:      logging.Noop(),
		sink:     events.Discard,
		metrics:  nopMetrics{},
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(se)
	}
	return se
}

// RegisterFrameListener adds a callback invoked after every frame.
func (se *SimulationEngine) RegisterFrameListener(fn func(time.Time, Decision)) {
	se.frameListeners = append(se.frameListeners, fn)
}

// Arm implements Arsenal.
func (se *SimulationEngine) Arm(ic *Interceptor) {
	se.interceptors = append(se.interceptors, ic)
	se.byBody[ic.Body()] = ic
	se.metrics.SetArmedInterceptors(len(se.interceptors))
	se.sink.Emit(events.Event{
		Kind:        events.KindInterceptorArmed,
		Time:        se.now,
		Target:      ic.Target(),
		Interceptor: ic.Body(),
	})
}

// Armed returns the interceptors currently in flight.
func (se *SimulationEngine) Armed() []*Interceptor {
	return append([]*Interceptor(nil), se.interceptors...)
}

// Outcomes returns how many interceptors ended in each terminal state.
func (se *SimulationEngine) Outcomes() map[string]int {
	out := make(map[string]int, len(se.outcomes))
	for state, n := range se.outcomes {
		out[state.String()] = n
	}
	return out
}

// FrameStep runs one frame: the detector scan countdown, then threat
// evaluation over its latest result (which may arm a new interceptor).
func (se *SimulationEngine) FrameStep(ctx context.Context, now time.Time, dt time.Duration) Decision {
	start := time.Now()
	ctx, span := se.tracer.Start(ctx, "engine.frame",
		trace.WithAttributes(attribute.String("sim.time", now.Format(time.RFC3339Nano))),
	)
	defer span.End()
	se.now = now

	if scanner, ok := se.Detector.(ScanningDetector); ok {
		scanner.Update(now, dt)
	}

	var d Decision
	switch {
	case se.Evaluator == nil:
		se.log.Warn(ctx, "no threat evaluator wired; skipping frame")
		se.sink.Emit(events.Event{Kind: events.KindMissingCollaborator, Time: now, Detail: "evaluator"})
		d = Decision{Outcome: OutcomeIdle}
	case se.Detector == nil:
		d = se.Evaluator.FrameStep(ctx, now)
	default:
		d = se.Evaluator.Tick(ctx, now, se.Detector.Detected())
	}

	span.SetAttributes(
		attribute.String("decision.outcome", d.Outcome),
		attribute.Int("decision.scored", d.Scored),
		attribute.Int("interceptors.armed", len(se.interceptors)),
	)
	if d.Candidate != nil {
		span.SetAttributes(
			attribute.String("decision.target", d.Candidate.Target.String()),
			attribute.Float64("decision.score", d.Candidate.Total),
		)
	}

	for _, fn := range se.frameListeners {
		fn(now, d)
	}
	se.metrics.ObserveFrameDuration(time.Since(start))
	return d
}

// PhysicsStep runs one fixed step: guidance for every armed interceptor,
// world integration, then contact resolution. Terminated interceptors are
// dropped at the end of the step.
func (se *SimulationEngine) PhysicsStep(now time.Time, dt time.Duration) {
	se.now = now
	for _, ic := range se.interceptors {
		ic.PhysicsStep(now)
	}

	if se.Stepper != nil {
		for _, c := range se.Stepper.Step(now, dt) {
			se.resolve(now, c)
		}
	}

	se.compact()
}

func (se *SimulationEngine) resolve(now time.Time, c Contact) {
	if se.World != nil && (!se.World.Valid(c.A) || !se.World.Valid(c.B)) {
		return
	}
	if ic, ok := se.byBody[c.A]; ok {
		ic.OnContact(now, c.B)
	}
	if ic, ok := se.byBody[c.B]; ok {
		ic.OnContact(now, c.A)
	}
}

func (se *SimulationEngine) compact() {
	kept := se.interceptors[:0]
	for _, ic := range se.interceptors {
		if ic.State().Terminal() {
			se.outcomes[ic.State()]++
			delete(se.byBody, ic.Body())
			continue
		}
		kept = append(kept, ic)
	}
	for i := len(kept); i < len(se.interceptors); i++ {
		se.interceptors[i] = nil
	}
	se.interceptors = kept
	se.metrics.SetArmedInterceptors(len(se.interceptors))
}
