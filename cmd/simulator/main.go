package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/air-defense-simulator/core"
	"github.com/signalsfoundry/air-defense-simulator/internal/config"
	"github.com/signalsfoundry/air-defense-simulator/internal/events"
	"github.com/signalsfoundry/air-defense-simulator/internal/logging"
	"github.com/signalsfoundry/air-defense-simulator/internal/observability"
	"github.com/signalsfoundry/air-defense-simulator/internal/radar"
	"github.com/signalsfoundry/air-defense-simulator/internal/replay"
	"github.com/signalsfoundry/air-defense-simulator/model"
	"github.com/signalsfoundry/air-defense-simulator/timectrl"
	"github.com/signalsfoundry/air-defense-simulator/world"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML/JSON/TOML config file")
	scenarioPath := flag.String("scenario", "", "Path to a YAML or JSON scenario (overrides scenario.path)")
	duration := flag.Duration("duration", 0, "Simulated run length (overrides sim.duration)")
	realtime := flag.Bool("realtime", false, "Pace frames against the wall clock")
	recordPath := flag.String("record", "", "SQLite file to record decision events into (overrides record.path)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides metrics.addr)")
	startFlag := flag.String("start", "", "Simulation start time, RFC 3339 (default: now)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewFromEnv().Error(context.Background(), "failed to load configuration",
			logging.String("path", *configPath),
			logging.Err(err),
		)
		os.Exit(2)
	}
	if *scenarioPath != "" {
		cfg.Scenario.Path = *scenarioPath
	}
	if *duration > 0 {
		cfg.Sim.Duration = *duration
	}
	if *realtime {
		cfg.Sim.Accelerated = false
	}
	if *recordPath != "" {
		cfg.Record.Path = *recordPath
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	start := time.Now().UTC()
	if *startFlag != "" {
		start, err = time.Parse(time.RFC3339, *startFlag)
		if err != nil {
			logging.NewFromEnv().Error(context.Background(), "invalid -start", logging.Err(err))
			os.Exit(2)
		}
	}

	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx, log := logging.WithRunLogger(context.Background(), log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingOptions(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	summary, err := run(ctx, cfg, log, runOptions{Start: start, Registry: reg, ServeMetrics: true})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
	summary.Print(os.Stdout)
}

type runOptions struct {
	Start        time.Time
	Registry     *prometheus.Registry
	ServeMetrics bool
}

// Summary is what a finished run reports.
type Summary struct {
	RunID      string
	SimTime    time.Duration
	Steps      uint64
	Frames     uint64
	Dropped    uint64
	Targets    int
	Survivors  int
	Launches   int
	Outcomes   map[string]int
	EventKinds map[events.Kind]int
}

// Print writes a human-readable report.
func (s *Summary) Print(w io.Writer) {
	if s == nil {
		return
	}
	fmt.Fprintf(w, "run %s: %s simulated, %d physics steps (%d dropped), %d frames\n",
		s.RunID, s.SimTime, s.Steps, s.Dropped, s.Frames)
	fmt.Fprintf(w, "targets: %d spawned, %d surviving; launches: %d\n", s.Targets, s.Survivors, s.Launches)

	outcomes := make([]string, 0, len(s.Outcomes))
	for k := range s.Outcomes {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	for _, k := range outcomes {
		fmt.Fprintf(w, "  interceptor %-5s %d\n", k, s.Outcomes[k])
	}
}

// kindCounter tallies events by kind without retaining them.
type kindCounter map[events.Kind]int

func (k kindCounter) Emit(ev events.Event) { k[ev.Kind]++ }

// run wires the simulation from cfg and drives it for cfg.Sim.Duration of
// simulated time or until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, opts runOptions) (*Summary, error) {
	if log == nil {
		log = logging.Noop()
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC()
	}
	ctx, runID := logging.EnsureRunID(ctx)

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	collector, err := observability.NewEngagementCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("engagement metrics: %w", err)
	}
	sched, err := observability.NewSchedulerCollector(reg)
	if err != nil {
		return nil, fmt.Errorf("scheduler metrics: %w", err)
	}
	if opts.ServeMetrics {
		if srv := serveMetrics(cfg.Metrics.Addr, collector, log); srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
	}

	counts := kindCounter{}
	sinks := []events.Sink{events.NewLogSink(log), counts}
	if cfg.Record.Path != "" {
		store, err := replay.Open(cfg.Record.Path, runID, replay.WithLogger(log))
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn(ctx, "closing replay store", logging.Err(err))
			}
			if n := store.Dropped(); n > 0 {
				log.Warn(ctx, "replay events lost to write failures", logging.Int("events", int(n)))
			}
		}()
		log.Info(ctx, "recording decision events", logging.String("path", cfg.Record.Path))
		sinks = append(sinks, store)
	}
	sink := events.Multi(sinks...)

	w := world.New()
	origin := cfg.Site.Position.Vec()
	targets, err := spawnTargets(ctx, w, cfg.Scenario.Path, opts.Start, origin, log)
	if err != nil {
		return nil, err
	}

	detector := radar.New(w, origin, cfg.Detection.Radius, cfg.Detection.ScanInterval,
		radar.WithLogger(logging.Component(log, "radar")),
	)

	unwatch := w.Subscribe(func(ev world.Event) {
		if ev.Type == world.EventBodyDestroyed {
			detector.Forget(ev.Handle)
		}
	})
	defer unwatch()

	engine := core.NewSimulationEngine(w, w, detector,
		core.WithEngineLogger(logging.Component(log, "engine")),
		core.WithEngineEvents(sink),
		core.WithEngineMetrics(collector),
	)
	launcher := core.NewInterceptorFactory(w, cfg.AirframeSpec(), cfg.GuidanceConfig(), engine,
		core.WithInterceptorLogger(logging.Component(log, "interceptor")),
		core.WithInterceptorEvents(sink),
		core.WithInterceptorMetrics(collector),
	)
	engine.Evaluator = core.NewThreatEvaluator(cfg.EvaluatorConfig(), w, cfg.RCSTable(),
		core.WithLauncher(launcher),
		core.WithDetector(detector),
		core.WithEvaluatorLogger(logging.Component(log, "evaluator")),
		core.WithEvaluatorEvents(sink),
		core.WithEvaluatorMetrics(collector),
	)

	mode := timectrl.Accelerated
	if !cfg.Sim.Accelerated {
		mode = timectrl.RealTime
	}
	tc := timectrl.NewTimeController(opts.Start, cfg.Sim.Tick, mode,
		timectrl.WithFrameInterval(cfg.Sim.FrameInterval),
		timectrl.WithFrameJitter(cfg.Sim.FrameJitter, cfg.Sim.Seed),
		timectrl.WithMaxStepsPerFrame(cfg.Sim.MaxStepsPerFrame),
	)
	tc.AddFixedListener(engine.PhysicsStep)
	tc.AddFixedListener(sched.ObservePhysicsStep)
	tc.AddFrameListener(func(now time.Time, dt time.Duration) {
		engine.FrameStep(ctx, now, dt)
	})
	tc.AddFrameListener(sched.ObserveFrame)
	tc.AddFrameListener(func(time.Time, time.Duration) {
		_, _, dropped := tc.Stats()
		sched.SetDroppedSteps(dropped)
	})

	log.Info(ctx, "simulation starting",
		logging.Int("targets", len(targets)),
		logging.Duration("duration", cfg.Sim.Duration),
		logging.Duration("tick", cfg.Sim.Tick),
		logging.Bool("accelerated", cfg.Sim.Accelerated),
	)
	runErr := tc.Run(ctx, cfg.Sim.Duration)

	steps, frames, dropped := tc.Stats()
	summary := &Summary{
		RunID:      runID,
		SimTime:    tc.Now().Sub(opts.Start),
		Steps:      steps,
		Frames:     frames,
		Dropped:    dropped,
		Targets:    len(targets),
		Launches:   counts[events.KindLaunchFired],
		Outcomes:   engine.Outcomes(),
		EventKinds: counts,
	}
	for _, h := range targets {
		if w.Valid(h) {
			summary.Survivors++
		}
	}
	log.Info(ctx, "simulation finished",
		logging.Int("launches", summary.Launches),
		logging.Int("survivors", summary.Survivors),
		logging.Any("outcomes", summary.Outcomes),
	)
	return summary, runErr
}

func spawnTargets(ctx context.Context, w *world.World, path string, start time.Time, origin core.Vec3, log logging.Logger) ([]model.Handle, error) {
	if path == "" {
		log.Warn(ctx, "no scenario configured; the sky is empty")
		return nil, nil
	}
	format, err := core.ScenarioFormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	sc, err := core.LoadScenario(f, format)
	if err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", path, err)
	}
	handles, err := core.SpawnScenario(w, sc, start, origin)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "loaded scenario",
		logging.String("path", path),
		logging.String("name", sc.Name),
		logging.Int("targets", len(handles)),
	)
	return handles, nil
}

func serveMetrics(addr string, collector *observability.EngagementCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
