package core

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/air-defense-simulator/model"
)

type fakeBody struct {
	tag         string
	pos, vel    Vec3
	orient      Quat
	force       Vec3
	torque      Vec3
	setOrients  int
	lastTorques []Vec3
}

// fakeWorld is an in-memory PhysicsWorld and Stepper. It never integrates;
// tests move bodies and queue contacts by hand.
type fakeWorld struct {
	bodies   map[model.Handle]*fakeBody
	next     uint32
	contacts []Contact
	spawned  []BodySpec
	spawnErr error
	steps    int

	// Every AddForce/AddTorque call, including those on stale handles.
	forceCalls, torqueCalls int
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{bodies: make(map[model.Handle]*fakeBody)}
}

func (w *fakeWorld) add(tag string, pos, vel Vec3) model.Handle {
	w.next++
	h := model.Handle{Index: w.next, Generation: 1}
	w.bodies[h] = &fakeBody{tag: NormalizeTag(tag), pos: pos, vel: vel, orient: IdentityQuat}
	return h
}

func (w *fakeWorld) body(h model.Handle) *fakeBody { return w.bodies[h] }

func (w *fakeWorld) Valid(h model.Handle) bool {
	_, ok := w.bodies[h]
	return ok
}

func (w *fakeWorld) Position(h model.Handle) (Vec3, bool) {
	if b, ok := w.bodies[h]; ok {
		return b.pos, true
	}
	return Vec3{}, false
}

func (w *fakeWorld) Velocity(h model.Handle) (Vec3, bool) {
	if b, ok := w.bodies[h]; ok {
		return b.vel, true
	}
	return Vec3{}, false
}

func (w *fakeWorld) Tag(h model.Handle) (string, bool) {
	if b, ok := w.bodies[h]; ok {
		return b.tag, true
	}
	return "", false
}

func (w *fakeWorld) Orientation(h model.Handle) (Quat, bool) {
	if b, ok := w.bodies[h]; ok {
		return b.orient, true
	}
	return Quat{}, false
}

var errFakeGone = errors.New("no such body")

func (w *fakeWorld) SetOrientation(h model.Handle, q Quat) error {
	b, ok := w.bodies[h]
	if !ok {
		return errFakeGone
	}
	b.orient = q
	b.setOrients++
	return nil
}

func (w *fakeWorld) AddForce(h model.Handle, f Vec3) error {
	w.forceCalls++
	b, ok := w.bodies[h]
	if !ok {
		return errFakeGone
	}
	b.force = b.force.Add(f)
	return nil
}

func (w *fakeWorld) AddTorque(h model.Handle, t Vec3) error {
	w.torqueCalls++
	b, ok := w.bodies[h]
	if !ok {
		return errFakeGone
	}
	b.torque = b.torque.Add(t)
	b.lastTorques = append(b.lastTorques, t)
	return nil
}

func (w *fakeWorld) Spawn(spec BodySpec) (model.Handle, error) {
	if w.spawnErr != nil {
		return model.NilHandle, w.spawnErr
	}
	w.spawned = append(w.spawned, spec)
	h := w.add(spec.Tag, spec.Position, spec.Velocity)
	w.bodies[h].orient = spec.Orientation
	return h, nil
}

func (w *fakeWorld) Destroy(h model.Handle) error {
	if _, ok := w.bodies[h]; !ok {
		return errFakeGone
	}
	delete(w.bodies, h)
	return nil
}

func (w *fakeWorld) Step(time.Time, time.Duration) []Contact {
	w.steps++
	out := w.contacts
	w.contacts = nil
	return out
}

// fakeDetector returns a fixed detection list.
type fakeDetector struct {
	tags     []string
	detected []model.Handle
	updates  int
}

func (d *fakeDetector) ConfigureTags(tags []string) { d.tags = tags }
func (d *fakeDetector) Detected() []model.Handle    { return d.detected }
func (d *fakeDetector) Update(time.Time, time.Duration) {
	d.updates++
}

// fakeLauncher records every launch and hands out fresh handles.
type fakeLauncher struct {
	calls   []model.Handle
	origins []Vec3
	err     error
	next    uint32
}

func (l *fakeLauncher) Launch(_ context.Context, target model.Handle, origin Vec3) (model.Handle, error) {
	if l.err != nil {
		return model.NilHandle, l.err
	}
	l.calls = append(l.calls, target)
	l.origins = append(l.origins, origin)
	l.next++
	return model.Handle{Index: 1000 + l.next, Generation: 1}, nil
}
