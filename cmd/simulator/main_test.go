package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/air-defense-simulator/internal/config"
	"github.com/signalsfoundry/air-defense-simulator/internal/events"
	"github.com/signalsfoundry/air-defense-simulator/internal/logging"
	"github.com/signalsfoundry/air-defense-simulator/internal/replay"
)

const hoveringTarget = `
name: single-hover
targets:
  - id: t1
    name: Hovering aircraft
    tag: Aircraft
    motion: static
    position: {x: 0, y: 5, z: 100}
    radius: 5
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testConfig(t *testing.T, scenario string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Scenario.Path = scenario
	cfg.Sim.Duration = 10 * time.Second
	cfg.Sim.Accelerated = true
	return cfg
}

// TestIntegration_SingleTargetIsIntercepted runs the whole loop against one
// stationary target straight ahead of the launcher.
func TestIntegration_SingleTargetIsIntercepted(t *testing.T) {
	cfg := testConfig(t, writeFile(t, "scenario.yaml", hoveringTarget))
	cfg.Record.Path = filepath.Join(t.TempDir(), "replay.db")

	reg := prometheus.NewRegistry()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	summary, err := run(context.Background(), cfg, logging.Noop(), runOptions{Start: start, Registry: reg})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.SimTime != cfg.Sim.Duration {
		t.Fatalf("simulated %s, want %s", summary.SimTime, cfg.Sim.Duration)
	}
	if summary.Steps != 500 {
		t.Fatalf("physics steps = %d, want 500", summary.Steps)
	}
	if summary.Launches != 1 {
		t.Fatalf("launches = %d, want 1", summary.Launches)
	}
	if summary.Outcomes["hit"] != 1 {
		t.Fatalf("outcomes = %v, want one hit", summary.Outcomes)
	}
	if summary.Survivors != 0 {
		t.Fatalf("survivors = %d, want 0", summary.Survivors)
	}
	if summary.EventKinds[events.KindEngagedPruned] != 1 {
		t.Fatalf("expected the destroyed target to be pruned once, got %d", summary.EventKinds[events.KindEngagedPruned])
	}

	store, err := replay.Open(cfg.Record.Path, summary.RunID)
	if err != nil {
		t.Fatalf("replay.Open: %v", err)
	}
	defer store.Close()
	counts, err := store.CountByKind(context.Background())
	if err != nil {
		t.Fatalf("CountByKind: %v", err)
	}
	if counts[string(events.KindLaunchFired)] != 1 || counts[string(events.KindInterceptorHit)] != 1 {
		t.Fatalf("recorded counts = %v", counts)
	}

	if n, err := testutil.GatherAndCount(reg, "adsim_interceptor_outcomes_total"); err != nil || n != 1 {
		t.Fatalf("interceptor outcome series = %d (%v), want 1", n, err)
	}
}

const crossingTarget = `
name: single-crossing
targets:
  - id: t1
    name: Crossing aircraft
    tag: aircraft
    motion: linear
    position: {x: -600, y: 400, z: 900}
    velocity: {x: 40, y: 0, z: -30}
    radius: 5
`

// TestIntegration_MovingOffAxisTargetIsIntercepted makes guidance turn and
// lead a target that is neither ahead of the launcher nor stationary.
func TestIntegration_MovingOffAxisTargetIsIntercepted(t *testing.T) {
	cfg := testConfig(t, writeFile(t, "scenario.yaml", crossingTarget))
	cfg.Sim.Duration = 20 * time.Second

	summary, err := run(context.Background(), cfg, logging.Noop(), runOptions{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Launches != 1 || summary.Outcomes["hit"] != 1 {
		t.Fatalf("launches=%d outcomes=%v, want one launch and one hit", summary.Launches, summary.Outcomes)
	}
	if summary.Survivors != 0 {
		t.Fatalf("survivors = %d, want 0", summary.Survivors)
	}
	if summary.EventKinds[events.KindEngagedPruned] != 1 {
		t.Fatalf("engaged_pruned = %d, want 1", summary.EventKinds[events.KindEngagedPruned])
	}
}

// TestIntegration_ShippedScenario runs the bundled configuration: the bomber
// is engaged first, the helicopter once the bomber is down, the drone never
// scores above the threshold and the balloon carries no configured tag.
func TestIntegration_ShippedScenario(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "adsim.yaml"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Scenario.Path = filepath.Join("..", "..", "configs", "scenario.yaml")

	summary, err := run(context.Background(), cfg, logging.Noop(), runOptions{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Targets != 4 {
		t.Fatalf("targets = %d, want 4", summary.Targets)
	}
	if summary.Launches != 2 || summary.Outcomes["hit"] != 2 {
		t.Fatalf("launches=%d outcomes=%v, want two launches and two hits", summary.Launches, summary.Outcomes)
	}
	if summary.Survivors != 2 {
		t.Fatalf("survivors = %d, want 2", summary.Survivors)
	}
}

func TestRunReportsDroppedSteps(t *testing.T) {
	far := strings.Replace(hoveringTarget, "z: 100", "z: 5000", 1)
	cfg := testConfig(t, writeFile(t, "scenario.yaml", far))
	cfg.Sim.Duration = time.Second
	cfg.Sim.FrameInterval = 200 * time.Millisecond
	cfg.Sim.FrameJitter = 0
	cfg.Sim.MaxStepsPerFrame = 5

	reg := prometheus.NewRegistry()
	summary, err := run(context.Background(), cfg, logging.Noop(), runOptions{Registry: reg})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Five 200ms frames of ten 20ms steps each, half of them capped.
	if summary.Frames != 5 || summary.Steps != 25 || summary.Dropped != 25 {
		t.Fatalf("frames=%d steps=%d dropped=%d, want 5/25/25", summary.Frames, summary.Steps, summary.Dropped)
	}
	want := `
# HELP adsim_physics_steps_dropped Physics steps skipped by the per-frame catch-up cap.
# TYPE adsim_physics_steps_dropped gauge
adsim_physics_steps_dropped 25
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "adsim_physics_steps_dropped"); err != nil {
		t.Fatalf("dropped gauge: %v", err)
	}
}

func TestIntegration_TargetOutsideRadarIsIgnored(t *testing.T) {
	far := strings.Replace(hoveringTarget, "z: 100", "z: 5000", 1)
	cfg := testConfig(t, writeFile(t, "scenario.yaml", far))

	summary, err := run(context.Background(), cfg, logging.Noop(), runOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Launches != 0 || summary.Survivors != 1 {
		t.Fatalf("expected no engagement, got %d launches and %d survivors", summary.Launches, summary.Survivors)
	}
	if n := summary.EventKinds[events.KindScoreComputed]; n != 0 {
		t.Fatalf("undetected target was scored %d times", n)
	}
}

func TestRunRejectsUnknownScenarioFormat(t *testing.T) {
	cfg := testConfig(t, writeFile(t, "scenario.txt", hoveringTarget))
	if _, err := run(context.Background(), cfg, logging.Noop(), runOptions{}); err == nil {
		t.Fatalf("expected error for unknown scenario extension")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := run(ctx, cfg, logging.Noop(), runOptions{})
	if err != context.Canceled {
		t.Fatalf("run error = %v, want context.Canceled", err)
	}
	if summary == nil || summary.Frames != 0 {
		t.Fatalf("expected an empty summary, got %+v", summary)
	}
}

func TestSummaryPrint(t *testing.T) {
	var buf bytes.Buffer
	(&Summary{
		RunID:    "abc",
		SimTime:  time.Second,
		Targets:  2,
		Launches: 1,
		Outcomes: map[string]int{"miss": 1, "hit": 2},
	}).Print(&buf)

	out := buf.String()
	for _, want := range []string{"run abc", "2 spawned", "launches: 1", "interceptor hit   2", "interceptor miss  1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "hit") > strings.Index(out, "miss") {
		t.Fatalf("outcomes not sorted:\n%s", out)
	}
}
