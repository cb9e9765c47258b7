// Package radar implements the periodic volume-scan detector.
package radar

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/air-defense-simulator/core"
	"github.com/signalsfoundry/air-defense-simulator/internal/logging"
	"github.com/signalsfoundry/air-defense-simulator/model"
)

// Scene is what the radar sweeps: a readable space that can enumerate its
// live bodies.
type Scene interface {
	core.Space
	Handles() []model.Handle
}

// Radar scans a sphere around a fixed site every ScanInterval and keeps the
// handles whose tag is in the configured set. Detected returns the result of
// the last completed scan.
type Radar struct {
	mu sync.RWMutex

	scene    Scene
	position core.Vec3
	radius   float64
	interval time.Duration

	tags      map[string]struct{}
	countdown time.Duration
	detected  []model.Handle
	scans     uint64

	log logging.Logger
}

var _ core.ScanningDetector = (*Radar)(nil)

// Option customises a Radar.
type Option func(*Radar)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Radar) {
		if l != nil {
			r.log = l
		}
	}
}

// New builds a radar at position. The first Update scans immediately.
func New(scene Scene, position core.Vec3, radius float64, interval time.Duration, opts ...Option) *Radar {
	r := &Radar{
		scene:    scene,
		position: position,
		radius:   radius,
		interval: interval,
		tags:     make(map[string]struct{}),
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ConfigureTags replaces the set of tags the radar reports.
func (r *Radar) ConfigureTags(tags []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = make(map[string]struct{}, len(tags))
	for _, t := range tags {
		r.tags[core.NormalizeTag(t)] = struct{}{}
	}
	r.log.Info(context.Background(), "radar tags configured", logging.Int("count", len(r.tags)))
}

// Update runs the scan countdown on the frame clock.
func (r *Radar) Update(now time.Time, dt time.Duration) {
	r.mu.Lock()
	r.countdown -= dt
	due := r.countdown <= 0
	if due {
		r.countdown = r.interval
	}
	r.mu.Unlock()

	if due {
		r.Scan(now)
	}
}

// Scan sweeps the scene now, regardless of the countdown.
func (r *Radar) Scan(now time.Time) []model.Handle {
	r.mu.RLock()
	tags := r.tags
	r.mu.RUnlock()

	var found []model.Handle
	for _, h := range r.scene.Handles() {
		tag, ok := r.scene.Tag(h)
		if !ok {
			continue
		}
		if _, wanted := tags[tag]; !wanted {
			continue
		}
		pos, ok := r.scene.Position(h)
		if !ok || pos.DistanceTo(r.position) > r.radius {
			continue
		}
		found = append(found, h)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Less(found[j]) })

	r.mu.Lock()
	r.detected = found
	r.scans++
	r.mu.Unlock()

	r.log.Debug(context.Background(), "radar scan complete",
		logging.Int("contacts", len(found)),
		logging.SimTime(now),
	)
	return append([]model.Handle(nil), found...)
}

// Forget drops h from the last scan result so a body destroyed between
// sweeps is not reported again. It reports whether h was present.
func (r *Radar) Forget(h model.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, d := range r.detected {
		if d == h {
			r.detected = append(r.detected[:i], r.detected[i+1:]...)
			return true
		}
	}
	return false
}

// Detected returns a copy of the last scan's handles in ascending order.
func (r *Radar) Detected() []model.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Handle(nil), r.detected...)
}

// Scans returns how many sweeps have completed.
func (r *Radar) Scans() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scans
}
