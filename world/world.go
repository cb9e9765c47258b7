// Package world is a small kinematic arena: bodies addressed by
// generation-checked handles, integrated with semi-implicit Euler and tested
// for swept-sphere contacts once per fixed step.
package world

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/air-defense-simulator/core"
	"github.com/signalsfoundry/air-defense-simulator/model"
)

var (
	// ErrInvalidHandle is returned when a handle is nil or stale.
	ErrInvalidHandle = errors.New("invalid or stale body handle")
	// ErrInvalidBody is returned by Spawn for physically meaningless specs.
	ErrInvalidBody = errors.New("invalid body spec")
)

// EventType indicates what kind of change happened in the world.
type EventType int

const (
	EventBodySpawned EventType = iota
	EventBodyDestroyed
)

// Event is emitted to subscribers when a body appears or disappears.
type Event struct {
	Type   EventType
	Handle model.Handle
	Tag    string
}

type body struct {
	tag      string
	pos      core.Vec3
	vel      core.Vec3
	orient   core.Quat
	omega    core.Vec3
	mass     float64
	inertia  float64
	radius   float64
	maxOmega float64
	drag     float64

	kinematic bool
	motion    core.MotionModel

	force  core.Vec3
	torque core.Vec3
}

type slot struct {
	generation uint32
	live       bool
	body       body
}

// World is an in-memory, thread-safe body arena. It implements
// core.PhysicsWorld and core.Stepper.
type World struct {
	mu sync.RWMutex

	slots []slot
	free  []uint32
	live  int

	subs    []subscriber
	nextSub uint64
}

type subscriber struct {
	id uint64
	fn func(Event)
}

var (
	_ core.PhysicsWorld = (*World)(nil)
	_ core.Stepper      = (*World)(nil)
)

// New constructs an empty world.
func New() *World {
	return &World{}
}

// lookup returns the live body behind h. Callers hold w.mu.
func (w *World) lookup(h model.Handle) (*body, bool) {
	if h.IsNil() || int(h.Index) >= len(w.slots) {
		return nil, false
	}
	s := &w.slots[h.Index]
	if !s.live || s.generation != h.Generation {
		return nil, false
	}
	return &s.body, true
}

// Spawn adds a body and returns its handle. Dynamic bodies need a positive
// mass; a zero inertia defaults to 1. Drag must not be negative.
func (w *World) Spawn(spec core.BodySpec) (model.Handle, error) {
	if spec.Radius < 0 {
		return model.NilHandle, fmt.Errorf("radius %v: %w", spec.Radius, ErrInvalidBody)
	}
	if spec.Drag < 0 {
		return model.NilHandle, fmt.Errorf("drag %v: %w", spec.Drag, ErrInvalidBody)
	}
	if !spec.Kinematic && spec.Mass <= 0 {
		return model.NilHandle, fmt.Errorf("dynamic body mass %v: %w", spec.Mass, ErrInvalidBody)
	}
	if spec.Kinematic && spec.Motion == nil {
		spec.Motion = &core.StaticMotionModel{Position: spec.Position}
	}
	inertia := spec.Inertia
	if inertia <= 0 {
		inertia = 1
	}
	orient := spec.Orientation
	if orient == (core.Quat{}) {
		orient = core.IdentityQuat
	}

	b := body{
		tag:       core.NormalizeTag(spec.Tag),
		pos:       spec.Position,
		vel:       spec.Velocity,
		orient:    orient.Normalize(),
		mass:      spec.Mass,
		inertia:   inertia,
		radius:    spec.Radius,
		maxOmega:  spec.MaxAngularVelocity,
		drag:      spec.Drag,
		kinematic: spec.Kinematic,
		motion:    spec.Motion,
	}

	w.mu.Lock()
	var h model.Handle
	if n := len(w.free); n > 0 {
		idx := w.free[n-1]
		w.free = w.free[:n-1]
		s := &w.slots[idx]
		s.live = true
		s.body = b
		h = model.Handle{Index: idx, Generation: s.generation}
	} else {
		w.slots = append(w.slots, slot{generation: 1, live: true, body: b})
		h = model.Handle{Index: uint32(len(w.slots) - 1), Generation: 1}
	}
	w.live++
	subs := w.subscribers()
	w.mu.Unlock()

	notify(subs, Event{Type: EventBodySpawned, Handle: h, Tag: b.tag})
	return h, nil
}

// Destroy removes the body behind h immediately. Its slot is reused under a
// higher generation, so h and every copy of it go stale.
func (w *World) Destroy(h model.Handle) error {
	w.mu.Lock()
	b, ok := w.lookup(h)
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("destroy %s: %w", h, ErrInvalidHandle)
	}
	tag := b.tag
	s := &w.slots[h.Index]
	s.live = false
	s.body = body{}
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	w.free = append(w.free, h.Index)
	w.live--
	subs := w.subscribers()
	w.mu.Unlock()

	notify(subs, Event{Type: EventBodyDestroyed, Handle: h, Tag: tag})
	return nil
}

// Valid reports whether h refers to a live body.
func (w *World) Valid(h model.Handle) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.lookup(h)
	return ok
}

// Position returns the body's position.
func (w *World) Position(h model.Handle) (core.Vec3, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.lookup(h)
	if !ok {
		return core.Vec3{}, false
	}
	return b.pos, true
}

// Velocity returns the body's linear velocity.
func (w *World) Velocity(h model.Handle) (core.Vec3, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.lookup(h)
	if !ok {
		return core.Vec3{}, false
	}
	return b.vel, true
}

// AngularVelocity returns the body's spin in rad/s, world frame.
func (w *World) AngularVelocity(h model.Handle) (core.Vec3, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.lookup(h)
	if !ok {
		return core.Vec3{}, false
	}
	return b.omega, true
}

// Tag returns the body's normalised tag.
func (w *World) Tag(h model.Handle) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.lookup(h)
	if !ok {
		return "", false
	}
	return b.tag, true
}

// Orientation returns the body's orientation.
func (w *World) Orientation(h model.Handle) (core.Quat, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.lookup(h)
	if !ok {
		return core.Quat{}, false
	}
	return b.orient, true
}

// SetOrientation snaps the body to q and zeroes its spin.
func (w *World) SetOrientation(h model.Handle, q core.Quat) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.lookup(h)
	if !ok {
		return fmt.Errorf("set orientation %s: %w", h, ErrInvalidHandle)
	}
	b.orient = q.Normalize()
	b.omega = core.Vec3{}
	return nil
}

// AddForce accumulates a world-frame force for the next step.
func (w *World) AddForce(h model.Handle, f core.Vec3) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.lookup(h)
	if !ok {
		return fmt.Errorf("add force %s: %w", h, ErrInvalidHandle)
	}
	b.force = b.force.Add(f)
	return nil
}

// AddTorque accumulates a world-frame torque for the next step.
func (w *World) AddTorque(h model.Handle, t core.Vec3) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.lookup(h)
	if !ok {
		return fmt.Errorf("add torque %s: %w", h, ErrInvalidHandle)
	}
	b.torque = b.torque.Add(t)
	return nil
}

// Handles returns every live handle in ascending order.
func (w *World) Handles() []model.Handle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	res := make([]model.Handle, 0, w.live)
	for i := range w.slots {
		if w.slots[i].live {
			res = append(res, model.Handle{Index: uint32(i), Generation: w.slots[i].generation})
		}
	}
	return res
}

// Len returns the number of live bodies.
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.live
}

// Step integrates every body over dt and returns the contacts that occurred
// during the step, ordered by (A, B) with A < B. now is the simulation time
// at the end of the step; kinematic bodies are sampled there. Accumulated
// forces and torques are cleared.
func (w *World) Step(now time.Time, dt time.Duration) []core.Contact {
	if dt <= 0 {
		return nil
	}
	secs := dt.Seconds()

	w.mu.Lock()
	defer w.mu.Unlock()

	starts := make([]core.Vec3, len(w.slots))
	for i := range w.slots {
		s := &w.slots[i]
		if !s.live {
			continue
		}
		b := &s.body
		starts[i] = b.pos
		if b.kinematic {
			b.pos, b.vel = b.motion.Sample(now)
		} else {
			integrate(b, secs)
		}
		b.force, b.torque = core.Vec3{}, core.Vec3{}
	}

	var contacts []core.Contact
	for i := range w.slots {
		a := &w.slots[i]
		if !a.live {
			continue
		}
		for j := i + 1; j < len(w.slots); j++ {
			b := &w.slots[j]
			if !b.live || (a.body.kinematic && b.body.kinematic) {
				continue
			}
			reach := a.body.radius + b.body.radius
			if sweptDistance(starts[i], a.body.pos, starts[j], b.body.pos) <= reach {
				contacts = append(contacts, core.Contact{
					A: model.Handle{Index: uint32(i), Generation: a.generation},
					B: model.Handle{Index: uint32(j), Generation: b.generation},
				})
			}
		}
	}
	return contacts
}

// Subscribe registers fn for spawn and destroy events, delivered in
// subscription order after the world lock is released. The returned func
// removes exactly this subscription and is safe to call more than once.
func (w *World) Subscribe(fn func(Event)) (unsubscribe func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSub++
	id := w.nextSub
	w.subs = append(w.subs, subscriber{id: id, fn: fn})

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, s := range w.subs {
			if s.id == id {
				w.subs = append(w.subs[:i:i], w.subs[i+1:]...)
				return
			}
		}
	}
}

// subscribers snapshots the callbacks. Callers hold w.mu.
func (w *World) subscribers() []func(Event) {
	fns := make([]func(Event), len(w.subs))
	for i, s := range w.subs {
		fns[i] = s.fn
	}
	return fns
}

func integrate(b *body, dt float64) {
	acc := b.force.Scale(1 / b.mass).Sub(b.vel.Scale(b.drag))
	b.vel = b.vel.Add(acc.Scale(dt))
	b.pos = b.pos.Add(b.vel.Scale(dt))

	b.omega = b.omega.Add(b.torque.Scale(dt / b.inertia))
	if b.maxOmega > 0 {
		if n := b.omega.Norm(); n > b.maxOmega {
			b.omega = b.omega.Scale(b.maxOmega / n)
		}
	}
	b.orient = b.orient.Integrate(b.omega, dt)
}

// sweptDistance is the closest approach of two points moving linearly from
// a0 to a1 and b0 to b1 over the same interval.
func sweptDistance(a0, a1, b0, b1 core.Vec3) float64 {
	d0 := a0.Sub(b0)
	dd := a1.Sub(b1).Sub(d0)
	t := 0.0
	if den := dd.Dot(dd); den > 0 {
		t = math.Max(0, math.Min(1, -d0.Dot(dd)/den))
	}
	return d0.Add(dd.Scale(t)).Norm()
}

func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
