// core/scenario_loader.go
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/air-defense-simulator/model"
)

// ScenarioFormat selects the decoder used by LoadScenario.
type ScenarioFormat string

const (
	ScenarioJSON ScenarioFormat = "json"
	ScenarioYAML ScenarioFormat = "yaml"
)

// DefaultTargetRadius is used when a scenario target omits its radius.
const DefaultTargetRadius = 5.0

// ErrUnknownScenarioFormat is returned for file extensions that are neither
// JSON nor YAML.
var ErrUnknownScenarioFormat = errors.New("unknown scenario format")

// Scenario is the set of targets placed in the world at start.
type Scenario struct {
	Name    string
	Targets []*model.TargetDefinition
}

// TargetIDs lists target IDs in file order. Mainly useful for logging.
func (s *Scenario) TargetIDs() []string {
	ids := make([]string, 0, len(s.Targets))
	for _, t := range s.Targets {
		ids = append(ids, t.ID)
	}
	return ids
}

// file shapes; kept unexported so the on-disk layout can evolve.
type scenarioFile struct {
	Name    string       `json:"name" yaml:"name"`
	Targets []targetFile `json:"targets" yaml:"targets"`
}

type targetFile struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Tag       string         `json:"tag" yaml:"tag"`
	Motion    string         `json:"motion" yaml:"motion"` // static | linear | waypoints | spacetrack
	Position  positionFile   `json:"position" yaml:"position"`
	Velocity  positionFile   `json:"velocity" yaml:"velocity"`
	Waypoints []positionFile `json:"waypoints" yaml:"waypoints"`
	Speed     float64        `json:"speed" yaml:"speed"`
	Radius    float64        `json:"radius" yaml:"radius"`
	TLE       []string       `json:"tle" yaml:"tle"`
}

type positionFile struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (p positionFile) motion() model.Motion {
	return model.Motion{X: p.X, Y: p.Y, Z: p.Z}
}

// ScenarioFormatFromPath picks a format from the file extension.
func ScenarioFormatFromPath(path string) (ScenarioFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ScenarioJSON, nil
	case ".yaml", ".yml":
		return ScenarioYAML, nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrUnknownScenarioFormat)
}

// LoadScenario decodes a scenario from r. It fails on decode errors, empty
// or duplicate IDs and unknown motion sources; everything else falls back to
// defaults.
func LoadScenario(r io.Reader, format ScenarioFormat) (*Scenario, error) {
	var payload scenarioFile
	switch format {
	case ScenarioJSON:
		if err := json.NewDecoder(r).Decode(&payload); err != nil {
			return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
		}
	case ScenarioYAML:
		if err := yaml.NewDecoder(r).Decode(&payload); err != nil {
			return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
		}
	default:
		return nil, fmt.Errorf("LoadScenario: %q: %w", format, ErrUnknownScenarioFormat)
	}

	sc := &Scenario{Name: payload.Name, Targets: make([]*model.TargetDefinition, 0, len(payload.Targets))}
	seen := make(map[string]struct{}, len(payload.Targets))
	for i, tf := range payload.Targets {
		if tf.ID == "" {
			return nil, fmt.Errorf("LoadScenario: target %d has empty id", i)
		}
		if _, dup := seen[tf.ID]; dup {
			return nil, fmt.Errorf("LoadScenario: duplicate target id %q", tf.ID)
		}
		seen[tf.ID] = struct{}{}

		src, err := motionSourceFromString(tf.Motion)
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: target %q: %w", tf.ID, err)
		}

		def := &model.TargetDefinition{
			ID:           tf.ID,
			Name:         tf.Name,
			Tag:          NormalizeTag(tf.Tag),
			Coordinates:  tf.Position.motion(),
			Velocity:     tf.Velocity.motion(),
			Speed:        tf.Speed,
			Radius:       tf.Radius,
			MotionSource: src,
		}
		if def.Radius <= 0 {
			def.Radius = DefaultTargetRadius
		}
		for _, wp := range tf.Waypoints {
			def.Waypoints = append(def.Waypoints, wp.motion())
		}
		if len(tf.TLE) == 2 {
			def.TLE1, def.TLE2 = tf.TLE[0], tf.TLE[1]
		}
		sc.Targets = append(sc.Targets, def)
	}
	return sc, nil
}

// SpawnScenario places every target in world as a kinematic body following
// its motion model. origin is the site position used by orbital targets.
// Handles are returned in target order.
func SpawnScenario(world PhysicsWorld, sc *Scenario, start time.Time, origin Vec3) ([]model.Handle, error) {
	if world == nil {
		return nil, fmt.Errorf("SpawnScenario: world is nil")
	}
	handles := make([]model.Handle, 0, len(sc.Targets))
	for _, def := range sc.Targets {
		motion := NewMotionModel(def, start, origin)
		pos, vel := motion.Sample(start)
		h, err := world.Spawn(BodySpec{
			Tag:         def.Tag,
			Position:    pos,
			Velocity:    vel,
			Orientation: IdentityQuat,
			Radius:      def.Radius,
			Kinematic:   true,
			Motion:      motion,
		})
		if err != nil {
			return handles, fmt.Errorf("SpawnScenario: target %q: %w", def.ID, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func motionSourceFromString(s string) (model.MotionSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static", "fixed":
		return model.MotionSourceStatic, nil
	case "linear", "constant":
		return model.MotionSourceLinear, nil
	case "waypoints", "path":
		return model.MotionSourceWaypoints, nil
	case "spacetrack", "tle", "orbit":
		return model.MotionSourceSpacetrack, nil
	}
	return model.MotionSourceStatic, fmt.Errorf("unknown motion source %q", s)
}
