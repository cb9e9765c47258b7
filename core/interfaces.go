package core

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/air-defense-simulator/model"
)

var (
	// ErrNoLauncher is returned when an engagement fires with no launcher wired.
	ErrNoLauncher = errors.New("no launcher configured")
	// ErrInvalidTimestep is returned when a guidance loop is built with a
	// non-positive fixed step.
	ErrInvalidTimestep = errors.New("fixed timestep must be positive")
	// ErrTargetInvalid is returned when launching at a stale handle.
	ErrTargetInvalid = errors.New("target handle is no longer valid")
)

// Space is the read-only view of the world used to observe targets. Every
// accessor reports false once the handle has gone stale.
type Space interface {
	Valid(h model.Handle) bool
	Position(h model.Handle) (Vec3, bool)
	Velocity(h model.Handle) (Vec3, bool)
	Tag(h model.Handle) (string, bool)
}

// PhysicsWorld is the command surface of the external physics engine: the
// loop only feeds it forces, torques and orientation resets, integration and
// collision detection happen on its side.
type PhysicsWorld interface {
	Space
	Orientation(h model.Handle) (Quat, bool)
	SetOrientation(h model.Handle, q Quat) error
	AddForce(h model.Handle, f Vec3) error
	AddTorque(h model.Handle, t Vec3) error
	Spawn(spec BodySpec) (model.Handle, error)
	Destroy(h model.Handle) error
}

// Stepper advances a PhysicsWorld by one fixed step and reports the contacts
// that occurred during it.
type Stepper interface {
	Step(now time.Time, dt time.Duration) []Contact
}

// Contact is an unordered pair of bodies that touched during a step.
type Contact struct {
	A, B model.Handle
}

// Other returns the body in the contact that is not h.
func (c Contact) Other(h model.Handle) (model.Handle, bool) {
	switch h {
	case c.A:
		return c.B, true
	case c.B:
		return c.A, true
	}
	return model.NilHandle, false
}

// BodySpec describes a body to spawn.
type BodySpec struct {
	Tag         string
	Position    Vec3
	Velocity    Vec3
	Orientation Quat
	Mass        float64
	Inertia     float64
	Radius      float64

	// MaxAngularVelocity clamps the body's spin in rad/s; 0 disables it.
	MaxAngularVelocity float64

	// Drag is linear drag in 1/s: every step removes Drag·v·dt of velocity,
	// so constant thrust F settles at F/(Mass·Drag).
	Drag float64

	// Kinematic bodies ignore forces and follow Motion.
	Kinematic bool
	Motion    MotionModel
}

// Detector is the sensor boundary: ConfigureTags is issued once at startup,
// Detected is polled every evaluation tick and returns the result of the
// last completed scan in ascending handle order.
type Detector interface {
	ConfigureTags(tags []string)
	Detected() []model.Handle
}

// ScanningDetector is a Detector that runs its own scan countdown on the
// frame clock.
type ScanningDetector interface {
	Detector
	Update(now time.Time, dt time.Duration)
}

// Launcher spawns an interceptor flying at target from origin.
type Launcher interface {
	Launch(ctx context.Context, target model.Handle, origin Vec3) (model.Handle, error)
}

// EngagementMetrics receives loop measurements. Implementations must be
// safe to call from the simulation goroutine.
type EngagementMetrics interface {
	ObserveThreatScore(score float64)
	RecordDecision(outcome string)
	SetEngagedTargets(n int)
	SetArmedInterceptors(n int)
	RecordInterceptorOutcome(outcome string)
	ObserveFrameDuration(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveThreatScore(float64)         {}
func (nopMetrics) RecordDecision(string)              {}
func (nopMetrics) SetEngagedTargets(int)              {}
func (nopMetrics) SetArmedInterceptors(int)           {}
func (nopMetrics) RecordInterceptorOutcome(string)    {}
func (nopMetrics) ObserveFrameDuration(time.Duration) {}
