package core

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/air-defense-simulator/internal/events"
	"github.com/signalsfoundry/air-defense-simulator/internal/logging"
	"github.com/signalsfoundry/air-defense-simulator/model"
)

// MinScoringDistance floors the distance term so a target sitting exactly on
// the evaluator does not divide by zero.
const MinScoringDistance = 0.01

// Decision outcomes reported by ThreatEvaluator.Tick.
const (
	OutcomeIdle           = "idle"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeAlreadyEngaged = "already_engaged"
	OutcomeCooldown       = "cooldown"
	OutcomeLaunched       = "launched"
	OutcomeNoLauncher     = "no_launcher"
	OutcomeLaunchFailed   = "launch_failed"
)

// ScoringWeights scales the three threat terms.
type ScoringWeights struct {
	Distance float64
	Speed    float64
	RCS      float64
}

// EvaluatorConfig is the static configuration of a ThreatEvaluator.
type EvaluatorConfig struct {
	// Position is the site the evaluator defends; distances are measured
	// from here and launches originate above it.
	Position           Vec3
	Weights            ScoringWeights
	Threshold          float64
	Cooldown           time.Duration
	LaunchHeightOffset float64
}

// ThreatScore is the per-target breakdown computed every tick.
type ThreatScore struct {
	Target       model.Handle
	Tag          string
	Distance     float64
	Speed        float64
	DistanceTerm float64
	SpeedTerm    float64
	RCSTerm      float64
	Total        float64
	KnownTag     bool
}

// Decision summarises one Tick.
type Decision struct {
	Outcome     string
	Candidate   *ThreatScore
	Interceptor model.Handle
	Scored      int
}

// ThreatEvaluator scores detections, picks the single highest threat and
// decides whether to launch at it. A target is fired upon at most once while
// its handle stays valid, and launches are spaced by at least Cooldown.
type ThreatEvaluator struct {
	cfg      EvaluatorConfig
	space    Space
	rcs      *RCSTable
	launcher Launcher
	detector Detector

	log     logging.Logger
	sink    events.Sink
	metrics EngagementMetrics

	engaged    map[model.Handle]struct{}
	lastLaunch time.Time
	launched   bool
	current    *ThreatScore
}

// EvaluatorOption customises ThreatEvaluator construction.
type EvaluatorOption func(*ThreatEvaluator)

// WithLauncher wires the interceptor factory used when an engagement fires.
func WithLauncher(l Launcher) EvaluatorOption {
	return func(e *ThreatEvaluator) { e.launcher = l }
}

// WithDetector wires the detector polled by FrameStep.
func WithDetector(d Detector) EvaluatorOption {
	return func(e *ThreatEvaluator) { e.detector = d }
}

// WithEvaluatorLogger attaches a structured logger.
func WithEvaluatorLogger(l logging.Logger) EvaluatorOption {
	return func(e *ThreatEvaluator) {
		if l != nil {
			e.log = l
		}
	}
}

// WithEvaluatorEvents attaches the decision event sink.
func WithEvaluatorEvents(s events.Sink) EvaluatorOption {
	return func(e *ThreatEvaluator) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithEvaluatorMetrics attaches a metrics recorder.
func WithEvaluatorMetrics(m EngagementMetrics) EvaluatorOption {
	return func(e *ThreatEvaluator) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewThreatEvaluator builds an evaluator with an empty engagement record.
// When a detector is wired it is configured with the RCS table's tags.
func NewThreatEvaluator(cfg EvaluatorConfig, space Space, rcs *RCSTable, opts ...EvaluatorOption) *ThreatEvaluator {
	e := &ThreatEvaluator{
		cfg:     cfg,
		space:   space,
		rcs:     rcs,
		log:     logging.Noop(),
		sink:    events.Discard,
		metrics: nopMetrics{},
		engaged: make(map[model.Handle]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.detector != nil {
		e.detector.ConfigureTags(rcs.Tags())
	}
	return e
}

// LaunchOrigin is the evaluator position raised by the launch height offset.
func (e *ThreatEvaluator) LaunchOrigin() Vec3 {
	return e.cfg.Position.Add(AxisUp.Scale(e.cfg.LaunchHeightOffset))
}

// CurrentThreat returns the highest-scoring target of the last tick, if any.
func (e *ThreatEvaluator) CurrentThreat() (ThreatScore, bool) {
	if e.current == nil {
		return ThreatScore{}, false
	}
	return *e.current, true
}

// IsEngaged reports whether h has already been fired upon.
func (e *ThreatEvaluator) IsEngaged(h model.Handle) bool {
	_, ok := e.engaged[h]
	return ok
}

// EngagedCount returns the size of the engaged set.
func (e *ThreatEvaluator) EngagedCount() int { return len(e.engaged) }

// LastLaunch returns the time of the most recent launch.
func (e *ThreatEvaluator) LastLaunch() (time.Time, bool) {
	return e.lastLaunch, e.launched
}

// Score computes the threat score of h, or false when h is stale.
func (e *ThreatEvaluator) Score(h model.Handle) (ThreatScore, bool) {
	pos, ok := e.space.Position(h)
	if !ok {
		return ThreatScore{}, false
	}
	tag, _ := e.space.Tag(h)

	speed := 0.0
	if vel, ok := e.space.Velocity(h); ok {
		speed = vel.Norm()
	}
	dist := pos.DistanceTo(e.cfg.Position)
	mult, known := e.rcs.Lookup(tag)

	s := ThreatScore{
		Target:       h,
		Tag:          tag,
		Distance:     dist,
		Speed:        speed,
		DistanceTerm: e.cfg.Weights.Distance / math.Max(dist, MinScoringDistance),
		SpeedTerm:    speed * e.cfg.Weights.Speed,
		RCSTerm:      mult * e.cfg.Weights.RCS,
		KnownTag:     known,
	}
	s.Total = s.DistanceTerm + s.SpeedTerm + s.RCSTerm
	return s, true
}

// FrameStep polls the wired detector and evaluates its detections. With no
// detector wired the tick is skipped.
func (e *ThreatEvaluator) FrameStep(ctx context.Context, now time.Time) Decision {
	if e.detector == nil {
		e.log.Warn(ctx, "no detector wired; skipping threat evaluation")
		e.emit(events.Event{Kind: events.KindMissingCollaborator, Time: now, Detail: "detector"})
		return Decision{Outcome: OutcomeIdle}
	}
	return e.Tick(ctx, now, e.detector.Detected())
}

// Tick runs one evaluation cycle over detected, in the order given. The
// first of several equal top scores wins.
func (e *ThreatEvaluator) Tick(ctx context.Context, now time.Time, detected []model.Handle) Decision {
	defer e.prune(now)

	e.current = nil
	if len(detected) == 0 {
		e.metrics.RecordDecision(OutcomeIdle)
		return Decision{Outcome: OutcomeIdle}
	}

	var best *ThreatScore
	scored := 0
	for _, h := range detected {
		s, ok := e.Score(h)
		if !ok {
			continue
		}
		scored++
		e.metrics.ObserveThreatScore(s.Total)
		if !s.KnownTag {
			e.log.Debug(ctx, "unknown tag scored with default cross-section",
				logging.Stringer("target", h),
				logging.String("tag", s.Tag),
			)
			e.emit(events.Event{Kind: events.KindUnknownTag, Time: now, Target: h, Tag: s.Tag})
		}
		e.emit(scoreEvent(events.KindScoreComputed, now, s))
		if best == nil || s.Total > best.Total {
			s := s
			best = &s
		}
	}
	if best == nil {
		e.metrics.RecordDecision(OutcomeIdle)
		return Decision{Outcome: OutcomeIdle}
	}
	e.current = best

	d := Decision{Candidate: best, Scored: scored}
	switch {
	case best.Total < e.cfg.Threshold:
		d.Outcome = OutcomeBelowThreshold
		e.emit(scoreEvent(events.KindThresholdNotMet, now, *best))
	case e.IsEngaged(best.Target):
		d.Outcome = OutcomeAlreadyEngaged
		e.emit(scoreEvent(events.KindAlreadyEngaged, now, *best))
	case e.launched && now.Sub(e.lastLaunch) < e.cfg.Cooldown:
		d.Outcome = OutcomeCooldown
		ev := scoreEvent(events.KindCooldownActive, now, *best)
		ev.Detail = (e.cfg.Cooldown - now.Sub(e.lastLaunch)).String()
		e.emit(ev)
	default:
		d.Outcome, d.Interceptor = e.fire(ctx, now, *best)
	}
	e.metrics.RecordDecision(d.Outcome)
	return d
}

func (e *ThreatEvaluator) fire(ctx context.Context, now time.Time, s ThreatScore) (string, model.Handle) {
	if e.launcher == nil {
		e.log.Warn(ctx, "engagement gate passed but no launcher is wired",
			logging.Stringer("target", s.Target),
		)
		e.emit(events.Event{Kind: events.KindMissingCollaborator, Time: now, Target: s.Target, Detail: ErrNoLauncher.Error()})
		return OutcomeNoLauncher, model.NilHandle
	}

	origin := e.LaunchOrigin()
	interceptor, err := e.launcher.Launch(ctx, s.Target, origin)
	if err != nil {
		e.log.Warn(ctx, "launch failed",
			logging.Stringer("target", s.Target),
			logging.Err(err),
		)
		ev := scoreEvent(events.KindLaunchFailed, now, s)
		ev.Detail = err.Error()
		e.emit(ev)
		return OutcomeLaunchFailed, model.NilHandle
	}

	e.engaged[s.Target] = struct{}{}
	e.lastLaunch = now
	e.launched = true

	e.log.Info(ctx, "interceptor launched",
		logging.Stringer("target", s.Target),
		logging.Stringer("interceptor", interceptor),
		logging.String("tag", s.Tag),
		logging.Float("score", s.Total),
		logging.Float("distance", s.Distance),
		logging.SimTime(now),
	)
	ev := scoreEvent(events.KindLaunchFired, now, s)
	ev.Interceptor = interceptor
	ev.Detail = fmt.Sprintf("origin=(%.1f, %.1f, %.1f)", origin.X, origin.Y, origin.Z)
	e.emit(ev)
	return OutcomeLaunched, interceptor
}

// prune drops engaged handles whose bodies no longer exist so the set does
// not grow without bound.
func (e *ThreatEvaluator) prune(now time.Time) {
	for h := range e.engaged {
		if !e.space.Valid(h) {
			delete(e.engaged, h)
			e.emit(events.Event{Kind: events.KindEngagedPruned, Time: now, Target: h})
		}
	}
	e.metrics.SetEngagedTargets(len(e.engaged))
}

func (e *ThreatEvaluator) emit(ev events.Event) {
	e.sink.Emit(ev)
}

func scoreEvent(kind events.Kind, now time.Time, s ThreatScore) events.Event {
	return events.Event{
		Kind:         kind,
		Time:         now,
		Target:       s.Target,
		Tag:          s.Tag,
		Score:        s.Total,
		DistanceTerm: s.DistanceTerm,
		SpeedTerm:    s.SpeedTerm,
		RCSTerm:      s.RCSTerm,
	}
}
