package timectrl

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time, so components can
// depend on a clock abstraction rather than a concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime paces frames against the wall clock.
	RealTime Mode = iota
	// Accelerated runs frames back to back while still stepping by Tick.
	Accelerated
)

// Listener receives the simulation time at the end of a step and the step
// length.
type Listener func(now time.Time, dt time.Duration)

// TimeController drives two clocks from one goroutine: a fixed-rate physics
// clock stepping by Tick and a variable-rate frame clock. Every frame first
// drains whole physics steps from an accumulator, then notifies frame
// listeners. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// FrameInterval is the nominal frame length; zero means Tick.
	FrameInterval time.Duration
	// FrameJitter spreads frame lengths uniformly over ±FrameJitter.
	FrameJitter time.Duration
	// MaxStepsPerFrame caps physics catch-up per frame; zero disables the cap.
	MaxStepsPerFrame int

	currentTime time.Time
	physicsTime time.Time
	accumulator time.Duration
	steps       uint64
	frames      uint64
	dropped     uint64

	rng *rand.Rand

	fixedListeners []Listener
	frameListeners []Listener
}

// Option customises a TimeController.
type Option func(*TimeController)

// WithFrameInterval sets the nominal frame length.
func WithFrameInterval(d time.Duration) Option {
	return func(tc *TimeController) { tc.FrameInterval = d }
}

// WithFrameJitter makes frame lengths vary by up to ±jitter, drawn from a
// generator seeded with seed so runs are reproducible.
func WithFrameJitter(jitter time.Duration, seed int64) Option {
	return func(tc *TimeController) {
		tc.FrameJitter = jitter
		tc.rng = rand.New(rand.NewSource(seed))
	}
}

// WithMaxStepsPerFrame caps how many physics steps one frame may run.
func WithMaxStepsPerFrame(n int) Option {
	return func(tc *TimeController) { tc.MaxStepsPerFrame = n }
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode, opts ...Option) *TimeController {
	tc := &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
		physicsTime: start,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.rng == nil {
		tc.rng = rand.New(rand.NewSource(1))
	}
	return tc
}

// Now returns the current simulation (frame) time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime moves both clocks to t and discards any accumulated physics time.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
	tc.physicsTime = t
	tc.accumulator = 0
}

// Stats returns how many physics steps and frames have run, and how many
// physics steps were dropped by the catch-up cap.
func (tc *TimeController) Stats() (steps, frames, dropped uint64) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.steps, tc.frames, tc.dropped
}

// AddFixedListener registers a callback invoked on every physics step.
func (tc *TimeController) AddFixedListener(fn Listener) {
	tc.fixedListeners = append(tc.fixedListeners, fn)
}

// AddFrameListener registers a callback invoked once per frame, after that
// frame's physics steps.
func (tc *TimeController) AddFrameListener(fn Listener) {
	tc.frameListeners = append(tc.frameListeners, fn)
}

// NextFrameInterval draws the length of the next frame. It is always
// positive.
func (tc *TimeController) NextFrameInterval() time.Duration {
	base := tc.FrameInterval
	if base <= 0 {
		base = tc.Tick
	}
	if tc.FrameJitter <= 0 {
		return base
	}
	j := time.Duration(tc.rng.Int63n(int64(2*tc.FrameJitter)+1)) - tc.FrameJitter
	if d := base + j; d > 0 {
		return d
	}
	return time.Nanosecond
}

// Advance runs one frame of length frameDt: floor((accumulated+frameDt)/Tick)
// physics steps, then the frame listeners. Non-positive frameDt is ignored.
func (tc *TimeController) Advance(frameDt time.Duration) {
	if frameDt <= 0 || tc.Tick <= 0 {
		return
	}

	tc.mu.Lock()
	tc.accumulator += frameDt
	tc.mu.Unlock()

	ran := 0
	for {
		tc.mu.Lock()
		if tc.accumulator < tc.Tick {
			tc.mu.Unlock()
			break
		}
		if tc.MaxStepsPerFrame > 0 && ran >= tc.MaxStepsPerFrame {
			lost := tc.accumulator / tc.Tick
			tc.dropped += uint64(lost)
			tc.physicsTime = tc.physicsTime.Add(lost * tc.Tick)
			tc.accumulator -= lost * tc.Tick
			tc.mu.Unlock()
			break
		}
		tc.accumulator -= tc.Tick
		tc.physicsTime = tc.physicsTime.Add(tc.Tick)
		tc.steps++
		now := tc.physicsTime
		tc.mu.Unlock()

		for _, fn := range tc.fixedListeners {
			fn(now, tc.Tick)
		}
		ran++
	}

	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(frameDt)
	tc.frames++
	now := tc.currentTime
	tc.mu.Unlock()

	for _, fn := range tc.frameListeners {
		fn(now, frameDt)
	}
}

// Run advances frames until duration of simulation time has elapsed (zero
// means forever) or ctx is cancelled. In RealTime mode each frame waits its
// own length of wall-clock time first.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) error {
	tc.SetTime(tc.StartTime)

	var elapsed time.Duration
	for duration <= 0 || elapsed < duration {
		dt := tc.NextFrameInterval()
		if duration > 0 && elapsed+dt > duration {
			dt = duration - elapsed
		}

		if tc.Mode == RealTime {
			timer := time.NewTimer(dt)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		tc.Advance(dt)
		elapsed += dt
	}
	return nil
}

// Start runs the controller for the specified duration in a separate
// goroutine. It returns a channel that is closed when the controller
// finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tc.Run(context.Background(), duration)
	}()
	return done
}
