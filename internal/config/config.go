// Package config loads the simulator configuration with viper: built-in
// defaults, an optional JSON/YAML/TOML file, then ADSIM_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/air-defense-simulator/core"
	"github.com/signalsfoundry/air-defense-simulator/internal/logging"
	"github.com/signalsfoundry/air-defense-simulator/internal/observability"
)

// EnvPrefix prefixes every environment override, e.g. ADSIM_ENGAGEMENT_THRESHOLD.
const EnvPrefix = "ADSIM"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Position is a point in metres.
type Position struct {
	X float64 `mapstructure:"x"`
	Y float64 `mapstructure:"y"`
	Z float64 `mapstructure:"z"`
}

// Vec converts p to a core vector.
func (p Position) Vec() core.Vec3 { return core.Vec3{X: p.X, Y: p.Y, Z: p.Z} }

type SiteConfig struct {
	Position Position `mapstructure:"position"`
}

type DetectionConfig struct {
	Radius       float64       `mapstructure:"radius"`
	ScanInterval time.Duration `mapstructure:"scanInterval"`
}

type ScoringConfig struct {
	DistanceWeight float64 `mapstructure:"distanceWeight"`
	SpeedWeight    float64 `mapstructure:"speedWeight"`
	RCSWeight      float64 `mapstructure:"rcsWeight"`
}

type EngagementConfig struct {
	Threshold          float64       `mapstructure:"threshold"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
	LaunchHeightOffset float64       `mapstructure:"launchHeightOffset"`
}

type PIDConfig struct {
	P float64 `mapstructure:"p"`
	I float64 `mapstructure:"i"`
	D float64 `mapstructure:"d"`
}

type InterceptorConfig struct {
	Thrust             float64   `mapstructure:"thrust"`
	MaxAngularVelocity float64   `mapstructure:"maxAngularVelocity"`
	Mass               float64   `mapstructure:"mass"`
	Inertia            float64   `mapstructure:"inertia"`
	Radius             float64   `mapstructure:"radius"`
	Drag               float64   `mapstructure:"drag"`
	PID                PIDConfig `mapstructure:"pid"`
}

type SimConfig struct {
	Tick             time.Duration `mapstructure:"tick"`
	FrameInterval    time.Duration `mapstructure:"frameInterval"`
	FrameJitter      time.Duration `mapstructure:"frameJitter"`
	MaxStepsPerFrame int           `mapstructure:"maxStepsPerFrame"`
	Duration         time.Duration `mapstructure:"duration"`
	Accelerated      bool          `mapstructure:"accelerated"`
	Seed             int64         `mapstructure:"seed"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type RecordConfig struct {
	Path string `mapstructure:"path"`
}

type ScenarioConfig struct {
	Path string `mapstructure:"path"`
}

// TracingConfig mirrors observability.TracingConfig; ADSIM_TRACING_ENABLED
// and friends override it like any other key.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"serviceName"`
	Exporter    string  `mapstructure:"exporter"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sampleRatio"`
}

// Config is the full, static simulator configuration.
type Config struct {
	Site        SiteConfig         `mapstructure:"site"`
	Detection   DetectionConfig    `mapstructure:"detection"`
	RCS         map[string]float64 `mapstructure:"rcs"`
	Scoring     ScoringConfig      `mapstructure:"scoring"`
	Engagement  EngagementConfig   `mapstructure:"engagement"`
	Interceptor InterceptorConfig  `mapstructure:"interceptor"`
	Sim         SimConfig          `mapstructure:"sim"`
	Log         LogConfig          `mapstructure:"log"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
	Record      RecordConfig       `mapstructure:"record"`
	Scenario    ScenarioConfig     `mapstructure:"scenario"`
	Tracing     TracingConfig      `mapstructure:"tracing"`
}

// DefaultRCS is the cross-section table used when the config file names none.
var DefaultRCS = map[string]float64{
	"aircraft":   1.0,
	"helicopter": 0.8,
	"missile":    0.6,
	"drone":      0.4,
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.position.x", 0.0)
	v.SetDefault("site.position.y", 0.0)
	v.SetDefault("site.position.z", 0.0)

	v.SetDefault("detection.radius", 2000.0)
	v.SetDefault("detection.scanInterval", "500ms")

	v.SetDefault("rcs", DefaultRCS)

	v.SetDefault("scoring.distanceWeight", 1000.0)
	v.SetDefault("scoring.speedWeight", 0.5)
	v.SetDefault("scoring.rcsWeight", 50.0)

	v.SetDefault("engagement.threshold", 50.0)
	v.SetDefault("engagement.cooldown", "5s")
	v.SetDefault("engagement.launchHeightOffset", 5.0)

	v.SetDefault("interceptor.thrust", 3000.0)
	v.SetDefault("interceptor.maxAngularVelocity", 6.0)
	v.SetDefault("interceptor.mass", 20.0)
	v.SetDefault("interceptor.inertia", 1.0)
	v.SetDefault("interceptor.radius", 1.0)
	v.SetDefault("interceptor.drag", 0.5)
	v.SetDefault("interceptor.pid.p", 1.0)
	v.SetDefault("interceptor.pid.i", 0.0)
	v.SetDefault("interceptor.pid.d", 0.2)

	v.SetDefault("sim.tick", "20ms")
	v.SetDefault("sim.frameInterval", "16ms")
	v.SetDefault("sim.frameJitter", "4ms")
	v.SetDefault("sim.maxStepsPerFrame", 8)
	v.SetDefault("sim.duration", "60s")
	v.SetDefault("sim.accelerated", true)
	v.SetDefault("sim.seed", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.addr", "")
	v.SetDefault("record.path", "")
	v.SetDefault("scenario.path", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.serviceName", "air-defense-simulator")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sampleRatio", 1.0)
}

// Load reads defaults, then the file at path when path is non-empty, then
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the simulation cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v float64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, v))
		}
	}
	nonNegative := func(name string, v float64) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %v", name, v))
		}
	}

	positive("detection.radius", c.Detection.Radius)
	positive("detection.scanInterval", c.Detection.ScanInterval.Seconds())
	positive("sim.tick", c.Sim.Tick.Seconds())
	positive("interceptor.mass", c.Interceptor.Mass)
	nonNegative("interceptor.inertia", c.Interceptor.Inertia)
	nonNegative("interceptor.radius", c.Interceptor.Radius)
	nonNegative("interceptor.thrust", c.Interceptor.Thrust)
	nonNegative("interceptor.maxAngularVelocity", c.Interceptor.MaxAngularVelocity)
	nonNegative("interceptor.drag", c.Interceptor.Drag)
	nonNegative("interceptor.pid.p", c.Interceptor.PID.P)
	nonNegative("interceptor.pid.i", c.Interceptor.PID.I)
	nonNegative("interceptor.pid.d", c.Interceptor.PID.D)
	nonNegative("scoring.distanceWeight", c.Scoring.DistanceWeight)
	nonNegative("scoring.speedWeight", c.Scoring.SpeedWeight)
	nonNegative("scoring.rcsWeight", c.Scoring.RCSWeight)
	nonNegative("engagement.cooldown", c.Engagement.Cooldown.Seconds())
	nonNegative("sim.frameInterval", c.Sim.FrameInterval.Seconds())
	nonNegative("sim.frameJitter", c.Sim.FrameJitter.Seconds())
	nonNegative("sim.maxStepsPerFrame", float64(c.Sim.MaxStepsPerFrame))
	nonNegative("sim.duration", c.Sim.Duration.Seconds())

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if e := strings.ToLower(c.Tracing.Exporter); e != "stdout" && e != "otlp" {
		errs = append(errs, fmt.Errorf("tracing.exporter must be stdout or otlp, got %q", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampleRatio must be within [0, 1], got %v", c.Tracing.SampleRatio))
	}

	if len(c.RCS) == 0 {
		errs = append(errs, errors.New("rcs table must not be empty"))
	}
	for tag, mult := range c.RCS {
		nonNegative("rcs."+tag, mult)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// RCSTable builds the immutable cross-section table.
func (c *Config) RCSTable() *core.RCSTable {
	return core.NewRCSTable(c.RCS)
}

// EvaluatorConfig maps the scoring and engagement sections.
func (c *Config) EvaluatorConfig() core.EvaluatorConfig {
	return core.EvaluatorConfig{
		Position: c.Site.Position.Vec(),
		Weights: core.ScoringWeights{
			Distance: c.Scoring.DistanceWeight,
			Speed:    c.Scoring.SpeedWeight,
			RCS:      c.Scoring.RCSWeight,
		},
		Threshold:          c.Engagement.Threshold,
		Cooldown:           c.Engagement.Cooldown,
		LaunchHeightOffset: c.Engagement.LaunchHeightOffset,
	}
}

// GuidanceConfig maps the interceptor guidance settings.
func (c *Config) GuidanceConfig() core.GuidanceConfig {
	return core.GuidanceConfig{
		Thrust: c.Interceptor.Thrust,
		Gains:  core.PIDGains{P: c.Interceptor.PID.P, I: c.Interceptor.PID.I, D: c.Interceptor.PID.D},
		Tick:   c.Sim.Tick,
	}
}

// AirframeSpec maps the interceptor body settings.
func (c *Config) AirframeSpec() core.AirframeSpec {
	return core.AirframeSpec{
		Mass:               c.Interceptor.Mass,
		Inertia:            c.Interceptor.Inertia,
		Radius:             c.Interceptor.Radius,
		MaxAngularVelocity: c.Interceptor.MaxAngularVelocity,
		Drag:               c.Interceptor.Drag,
	}
}

// TracingOptions maps the tracing section.
func (c *Config) TracingOptions() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.Tracing.ServiceName,
		Exporter:    strings.ToLower(c.Tracing.Exporter),
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		SampleRatio: c.Tracing.SampleRatio,
	}
}
