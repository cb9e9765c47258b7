package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/air-defense-simulator/model"
)

const scenarioYAML = `
name: raid
targets:
  - id: bomber
    tag: Aircraft
    motion: linear
    position: {x: 0, y: 300, z: 1800}
    velocity: {x: 0, y: 0, z: -120}
    radius: 8
  - id: helo
    tag: helicopter
    motion: waypoints
    position: {x: 0, y: 50, z: 0}
    waypoints:
      - {x: 10, y: 50, z: 0}
      - {x: 10, y: 50, z: 10}
    speed: 5
  - id: drone
    tag: drone
    position: {x: 1, y: 2, z: 3}
`

const scenarioJSON = `{
  "name": "pass",
  "targets": [
    {"id": "iss", "tag": "satellite", "motion": "tle",
     "tle": ["1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990",
             "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"]},
    {"id": "cruise", "tag": "missile", "motion": "constant",
     "position": {"x": 1500, "y": 30, "z": 0}, "velocity": {"x": -240, "y": 0, "z": 0}, "radius": 1.5}
  ]
}`

func TestLoadScenario_YAML(t *testing.T) {
	sc, err := LoadScenario(strings.NewReader(scenarioYAML), ScenarioYAML)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if sc.Name != "raid" || len(sc.Targets) != 3 {
		t.Fatalf("unexpected scenario %+v", sc)
	}
	if got := sc.TargetIDs(); strings.Join(got, ",") != "bomber,helo,drone" {
		t.Fatalf("TargetIDs = %v", got)
	}

	bomber := sc.Targets[0]
	if bomber.Tag != "aircraft" {
		t.Fatalf("tag not normalised: %q", bomber.Tag)
	}
	if bomber.MotionSource != model.MotionSourceLinear || bomber.Velocity.Z != -120 || bomber.Radius != 8 {
		t.Fatalf("bomber = %+v", bomber)
	}

	helo := sc.Targets[1]
	if helo.MotionSource != model.MotionSourceWaypoints || len(helo.Waypoints) != 2 || helo.Speed != 5 {
		t.Fatalf("helo = %+v", helo)
	}
	if helo.Radius != DefaultTargetRadius {
		t.Fatalf("default radius not applied: %v", helo.Radius)
	}

	drone := sc.Targets[2]
	if drone.MotionSource != model.MotionSourceStatic || drone.Coordinates != (model.Motion{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("drone = %+v", drone)
	}
}

func TestLoadScenario_JSON(t *testing.T) {
	sc, err := LoadScenario(strings.NewReader(scenarioJSON), ScenarioJSON)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	iss := sc.Targets[0]
	if iss.MotionSource != model.MotionSourceSpacetrack || iss.TLE1 == "" || iss.TLE2 == "" {
		t.Fatalf("iss = %+v", iss)
	}
	if sc.Targets[1].MotionSource != model.MotionSourceLinear {
		t.Fatalf("cruise motion = %v", sc.Targets[1].MotionSource)
	}
}

func TestLoadScenario_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		format ScenarioFormat
	}{
		{"empty id", `{"targets":[{"tag":"drone"}]}`, ScenarioJSON},
		{"duplicate id", `{"targets":[{"id":"a"},{"id":"a"}]}`, ScenarioJSON},
		{"unknown motion", "targets:\n  - id: a\n    motion: teleport\n", ScenarioYAML},
		{"malformed", `{"targets": [`, ScenarioJSON},
		{"unknown format", `{}`, ScenarioFormat("toml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadScenario(strings.NewReader(tt.body), tt.format); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestScenarioFormatFromPath(t *testing.T) {
	for path, want := range map[string]ScenarioFormat{
		"a.json":     ScenarioJSON,
		"dir/b.YAML": ScenarioYAML,
		"c.yml":      ScenarioYAML,
	} {
		got, err := ScenarioFormatFromPath(path)
		if err != nil || got != want {
			t.Fatalf("%s: got %q (%v), want %q", path, got, err, want)
		}
	}
	if _, err := ScenarioFormatFromPath("d.txt"); !errors.Is(err, ErrUnknownScenarioFormat) {
		t.Fatalf("err = %v, want ErrUnknownScenarioFormat", err)
	}
}

func TestSpawnScenario_KinematicBodies(t *testing.T) {
	sc, err := LoadScenario(strings.NewReader(scenarioYAML), ScenarioYAML)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	w := newFakeWorld()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	handles, err := SpawnScenario(w, sc, start, Vec3{})
	if err != nil {
		t.Fatalf("SpawnScenario: %v", err)
	}
	if len(handles) != 3 || len(w.spawned) != 3 {
		t.Fatalf("spawned %d handles, %d bodies", len(handles), len(w.spawned))
	}
	for i, spec := range w.spawned {
		if !spec.Kinematic || spec.Motion == nil {
			t.Fatalf("target %d not kinematic: %+v", i, spec)
		}
	}
	bomber := w.spawned[0]
	if bomber.Tag != "aircraft" || bomber.Radius != 8 {
		t.Fatalf("bomber spec = %+v", bomber)
	}
	if !vecNear(bomber.Position, Vec3{Y: 300, Z: 1800}, eps) || !vecNear(bomber.Velocity, Vec3{Z: -120}, eps) {
		t.Fatalf("bomber initial state pos=%+v vel=%+v", bomber.Position, bomber.Velocity)
	}
	if pos, _ := bomber.Motion.Sample(start.Add(time.Second)); !vecNear(pos, Vec3{Y: 300, Z: 1680}, 1e-9) {
		t.Fatalf("bomber after 1s = %+v", pos)
	}
}

func TestSpawnScenario_PropagatesSpawnErrors(t *testing.T) {
	sc := &Scenario{Targets: []*model.TargetDefinition{{ID: "a"}, {ID: "b"}}}
	w := newFakeWorld()
	w.spawnErr = errors.New("no room")

	handles, err := SpawnScenario(w, sc, time.Time{}, Vec3{})
	if err == nil || len(handles) != 0 {
		t.Fatalf("handles=%v err=%v", handles, err)
	}
	if _, err := SpawnScenario(nil, sc, time.Time{}, Vec3{}); err == nil {
		t.Fatalf("nil world should fail")
	}
}
