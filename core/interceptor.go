package core

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/air-defense-simulator/internal/events"
	"github.com/signalsfoundry/air-defense-simulator/internal/logging"
	"github.com/signalsfoundry/air-defense-simulator/model"
)

// InterceptorState is the guidance state machine position.
type InterceptorState int

const (
	StateArmed InterceptorState = iota
	StateTerminatedHit
	StateTerminatedMiss
	StateTerminatedLost
)

func (s InterceptorState) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateTerminatedHit:
		return "hit"
	case StateTerminatedMiss:
		return "miss"
	case StateTerminatedLost:
		return "lost"
	default:
		return fmt.Sprintf("InterceptorState(%d)", int(s))
	}
}

// Terminal reports whether s ends the interceptor's life.
func (s InterceptorState) Terminal() bool { return s != StateArmed }

// PIDGains are shared by the pitch and yaw axes.
type PIDGains struct {
	P, I, D float64
}

// GuidanceConfig is the static configuration of an interceptor's guidance
// loop.
type GuidanceConfig struct {
	Thrust float64       // newtons along the body forward axis
	Gains  PIDGains      // pitch and yaw gains
	Tick   time.Duration // fixed physics step fed to the controllers
}

// Interceptor steers one airframe toward one target with two independent
// feedback controllers and full constant thrust. It never re-arms: once a
// terminal state is reached the body is gone and further calls are no-ops.
type Interceptor struct {
	world  PhysicsWorld
	body   model.Handle
	target model.Handle
	cfg    GuidanceConfig
	dt     float64

	pitch *FeedbackController
	yaw   *FeedbackController

	state InterceptorState
	log   logging.Logger
	sink  events.Sink
	stats EngagementMetrics

	lastPitchError float64
	lastYawError   float64
}

// InterceptorOption customises Interceptor construction.
type InterceptorOption func(*Interceptor)

// WithInterceptorLogger attaches a structured logger.
func WithInterceptorLogger(l logging.Logger) InterceptorOption {
	return func(i *Interceptor) {
		if l != nil {
			i.log = l
		}
	}
}

// WithInterceptorEvents attaches the event sink.
func WithInterceptorEvents(s events.Sink) InterceptorOption {
	return func(i *Interceptor) {
		if s != nil {
			i.sink = s
		}
	}
}

// WithInterceptorMetrics attaches a metrics recorder for outcomes.
func WithInterceptorMetrics(m EngagementMetrics) InterceptorOption {
	return func(i *Interceptor) {
		if m != nil {
			i.stats = m
		}
	}
}

// NewInterceptor arms guidance for body against target. The body is turned
// to face the target once before the first guidance tick.
func NewInterceptor(world PhysicsWorld, body, target model.Handle, cfg GuidanceConfig, opts ...InterceptorOption) (*Interceptor, error) {
	if cfg.Tick <= 0 {
		return nil, ErrInvalidTimestep
	}
	i := &Interceptor{
		world:  world,
		body:   body,
		target: target,
		cfg:    cfg,
		dt:     cfg.Tick.Seconds(),
		pitch:  NewFeedbackController(cfg.Gains.P, cfg.Gains.I, cfg.Gains.D),
		yaw:    NewFeedbackController(cfg.Gains.P, cfg.Gains.I, cfg.Gains.D),
		state:  StateArmed,
		log:    logging.Noop(),
		sink:   events.Discard,
		stats:  nopMetrics{},
	}
	for _, opt := range opts {
		opt(i)
	}

	if !world.Valid(body) {
		return nil, fmt.Errorf("interceptor body %s: %w", body, ErrTargetInvalid)
	}
	if targetPos, ok := world.Position(target); ok {
		if pos, ok := world.Position(body); ok {
			if dir := targetPos.Sub(pos); !dir.IsZero() {
				if err := world.SetOrientation(body, LookRotation(dir, AxisUp)); err != nil {
					return nil, fmt.Errorf("coarse acquisition: %w", err)
				}
			}
		}
	}
	return i, nil
}

// Body returns the interceptor's own handle.
func (i *Interceptor) Body() model.Handle { return i.body }

// Target returns the handle being pursued.
func (i *Interceptor) Target() model.Handle { return i.target }

// State returns the current guidance state.
func (i *Interceptor) State() InterceptorState { return i.state }

// Errors returns the pitch and yaw errors (degrees) of the last guidance tick.
func (i *Interceptor) Errors() (pitch, yaw float64) {
	return i.lastPitchError, i.lastYawError
}

// PhysicsStep runs one guidance tick: compute the angular error to the
// target about the body's right and up axes, turn each into torque through
// its controller, and apply torque plus full forward thrust.
func (i *Interceptor) PhysicsStep(now time.Time) {
	if i.state.Terminal() {
		return
	}
	targetPos, ok := i.world.Position(i.target)
	if !ok {
		i.terminate(now, StateTerminatedLost, model.NilHandle)
		return
	}
	pos, ok := i.world.Position(i.body)
	if !ok {
		i.terminate(now, StateTerminatedMiss, model.NilHandle)
		return
	}
	orient, _ := i.world.Orientation(i.body)

	forward, right, up := orient.Forward(), orient.Right(), orient.Up()
	dir := targetPos.Sub(pos).Normalize()

	var pitchErr, yawErr float64
	if !dir.IsZero() {
		pitchErr = SignedAngle(forward, dir, right)
		yawErr = SignedAngle(forward, dir, up)
	}
	i.lastPitchError, i.lastYawError = pitchErr, yawErr

	pitchTorque := i.pitch.Update(pitchErr, i.dt)
	yawTorque := i.yaw.Update(yawErr, i.dt)

	torque := right.Scale(pitchTorque).Add(up.Scale(yawTorque))
	if err := i.world.AddTorque(i.body, torque); err != nil {
		i.log.Warn(context.Background(), "apply torque failed", logging.Stringer("interceptor", i.body), logging.Err(err))
	}
	if err := i.world.AddForce(i.body, forward.Scale(i.cfg.Thrust)); err != nil {
		i.log.Warn(context.Background(), "apply thrust failed", logging.Stringer("interceptor", i.body), logging.Err(err))
	}
}

// OnContact resolves a collision between the interceptor and other.
func (i *Interceptor) OnContact(now time.Time, other model.Handle) {
	if i.state.Terminal() {
		return
	}
	if other == i.target {
		i.terminate(now, StateTerminatedHit, other)
		return
	}
	i.terminate(now, StateTerminatedMiss, other)
}

func (i *Interceptor) terminate(now time.Time, state InterceptorState, other model.Handle) {
	i.state = state
	ctx := context.Background()

	ev := events.Event{Time: now, Target: i.target, Interceptor: i.body}
	switch state {
	case StateTerminatedHit:
		ev.Kind = events.KindInterceptorHit
		if err := i.world.Destroy(i.target); err != nil {
			i.log.Debug(ctx, "target already gone at impact", logging.Err(err))
		}
	case StateTerminatedMiss:
		ev.Kind = events.KindInterceptorMiss
		if !other.IsNil() {
			ev.Detail = "collided with " + other.String()
		} else {
			ev.Detail = "airframe lost"
		}
	case StateTerminatedLost:
		ev.Kind = events.KindTargetLost
	}
	if err := i.world.Destroy(i.body); err != nil {
		i.log.Debug(ctx, "interceptor body already gone", logging.Err(err))
	}

	i.log.Info(ctx, "interceptor terminated",
		logging.Stringer("interceptor", i.body),
		logging.Stringer("target", i.target),
		logging.Stringer("outcome", state),
		logging.SimTime(now),
	)
	i.stats.RecordInterceptorOutcome(state.String())
	i.sink.Emit(ev)
}
