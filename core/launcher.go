package core

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/air-defense-simulator/model"
)

// InterceptorTag is the tag carried by spawned interceptor bodies.
const InterceptorTag = "interceptor"

// AirframeSpec is the physical description of an interceptor body.
type AirframeSpec struct {
	Mass               float64
	Inertia            float64
	Radius             float64
	MaxAngularVelocity float64 // rad/s, enforced by the physics world
	Drag               float64 // 1/s linear drag
}

// Arsenal tracks armed interceptors so their guidance runs on the physics
// clock.
type Arsenal interface {
	Arm(i *Interceptor)
}

// InterceptorFactory implements Launcher by spawning an airframe in the
// world and arming guidance for it.
type InterceptorFactory struct {
	world    PhysicsWorld
	airframe AirframeSpec
	guidance GuidanceConfig
	arsenal  Arsenal
	opts     []InterceptorOption
}

// NewInterceptorFactory wires a launcher. opts are applied to every
// interceptor it arms.
func NewInterceptorFactory(world PhysicsWorld, airframe AirframeSpec, guidance GuidanceConfig, arsenal Arsenal, opts ...InterceptorOption) *InterceptorFactory {
	return &InterceptorFactory{
		world:    world,
		airframe: airframe,
		guidance: guidance,
		arsenal:  arsenal,
		opts:     opts,
	}
}

// Launch spawns an interceptor at origin and arms it against target.
func (f *InterceptorFactory) Launch(ctx context.Context, target model.Handle, origin Vec3) (model.Handle, error) {
	if f.world == nil {
		return model.NilHandle, fmt.Errorf("launch: no physics world")
	}
	if !f.world.Valid(target) {
		return model.NilHandle, fmt.Errorf("launch at %s: %w", target, ErrTargetInvalid)
	}

	body, err := f.world.Spawn(BodySpec{
		Tag:                InterceptorTag,
		Position:           origin,
		Orientation:        IdentityQuat,
		Mass:               f.airframe.Mass,
		Inertia:            f.airframe.Inertia,
		Radius:             f.airframe.Radius,
		MaxAngularVelocity: f.airframe.MaxAngularVelocity,
		Drag:               f.airframe.Drag,
	})
	if err != nil {
		return model.NilHandle, fmt.Errorf("spawn interceptor: %w", err)
	}

	ic, err := NewInterceptor(f.world, body, target, f.guidance, f.opts...)
	if err != nil {
		_ = f.world.Destroy(body)
		return model.NilHandle, fmt.Errorf("arm interceptor: %w", err)
	}
	if f.arsenal != nil {
		f.arsenal.Arm(ic)
	}
	return body, nil
}
