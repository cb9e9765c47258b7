package radar

import (
	"testing"
	"time"

	"github.com/signalsfoundry/air-defense-simulator/core"
	"github.com/signalsfoundry/air-defense-simulator/model"
	"github.com/signalsfoundry/air-defense-simulator/world"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func spawn(t *testing.T, w *world.World, tag string, pos core.Vec3) model.Handle {
	t.Helper()
	h, err := w.Spawn(core.BodySpec{Tag: tag, Position: pos, Kinematic: true})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	return h
}

func TestScan_FiltersByRadiusTagAndLiveness(t *testing.T) {
	w := world.New()
	near := spawn(t, w, "Aircraft", core.Vec3{X: 100})
	spawn(t, w, "aircraft", core.Vec3{X: 5000})  // out of range
	spawn(t, w, "interceptor", core.Vec3{X: 10}) // untracked tag
	missile := spawn(t, w, "missile", core.Vec3{Z: -300})
	gone := spawn(t, w, "missile", core.Vec3{Y: 50})
	if err := w.Destroy(gone); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	r := New(w, core.Vec3{}, 1000, time.Second)
	r.ConfigureTags([]string{"AIRCRAFT", "missile"})

	got := r.Scan(t0)
	if len(got) != 2 || got[0] != near || got[1] != missile {
		t.Fatalf("Scan = %v, want [%s %s]", got, near, missile)
	}
}

func TestUpdate_ScansImmediatelyThenOnInterval(t *testing.T) {
	w := world.New()
	spawn(t, w, "drone", core.Vec3{X: 1})

	r := New(w, core.Vec3{}, 10, 100*time.Millisecond)
	r.ConfigureTags([]string{"drone"})

	if len(r.Detected()) != 0 {
		t.Fatalf("nothing should be detected before the first update")
	}
	r.Update(t0, 16*time.Millisecond)
	if r.Scans() != 1 || len(r.Detected()) != 1 {
		t.Fatalf("first update should scan: scans=%d detected=%v", r.Scans(), r.Detected())
	}

	// A new target appears but stays invisible until the next scan.
	late := spawn(t, w, "drone", core.Vec3{Y: 2})
	now := t0
	for i := 0; i < 5; i++ {
		now = now.Add(16 * time.Millisecond)
		r.Update(now, 16*time.Millisecond)
	}
	if r.Scans() != 1 {
		t.Fatalf("80ms into a 100ms interval: scans=%d", r.Scans())
	}
	r.Update(now.Add(20*time.Millisecond), 20*time.Millisecond)
	if r.Scans() != 2 {
		t.Fatalf("expected a second scan after 100ms, scans=%d", r.Scans())
	}
	got := r.Detected()
	if len(got) != 2 || got[1] != late {
		t.Fatalf("Detected = %v, want late target %s included", got, late)
	}
}

func TestDetected_ReturnsCopy(t *testing.T) {
	w := world.New()
	h := spawn(t, w, "drone", core.Vec3{})
	r := New(w, core.Vec3{}, 10, time.Second)
	r.ConfigureTags([]string{"drone"})
	r.Scan(t0)

	first := r.Detected()
	first[0] = model.NilHandle
	if second := r.Detected(); second[0] != h {
		t.Fatalf("mutating the returned slice changed radar state: %v", second)
	}
}

func TestNoTagsDetectsNothing(t *testing.T) {
	w := world.New()
	spawn(t, w, "drone", core.Vec3{})
	r := New(w, core.Vec3{}, 10, time.Second)
	if got := r.Scan(t0); len(got) != 0 {
		t.Fatalf("unconfigured radar detected %v", got)
	}
}

func TestForget_DropsDestroyedBodiesBeforeNextScan(t *testing.T) {
	w := world.New()
	a := spawn(t, w, "drone", core.Vec3{X: 1})
	b := spawn(t, w, "drone", core.Vec3{X: 2})
	c := spawn(t, w, "drone", core.Vec3{X: 3})

	r := New(w, core.Vec3{}, 10, time.Hour)
	r.ConfigureTags([]string{"drone"})
	unsubscribe := w.Subscribe(func(ev world.Event) {
		if ev.Type == world.EventBodyDestroyed {
			r.Forget(ev.Handle)
		}
	})
	defer unsubscribe()
	r.Scan(t0)

	if err := w.Destroy(b); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	got := r.Detected()
	if len(got) != 2 || got[0] != a || got[1] != c {
		t.Fatalf("Detected = %v, want [%s %s]", got, a, c)
	}
	if r.Forget(b) {
		t.Fatalf("forgetting an absent handle should report false")
	}
	if r.Scans() != 1 {
		t.Fatalf("Forget must not trigger a scan, scans=%d", r.Scans())
	}
}
