// Package events defines the discrete decision records emitted by the
// engagement loop. Components emit through an injected Sink so a run can be
// logged, asserted on in tests, or persisted for replay.
package events

import (
	"sync"
	"time"

	"github.com/signalsfoundry/air-defense-simulator/model"
)

// Kind identifies what happened.
type Kind string

const (
	KindScoreComputed       Kind = "score_computed"
	KindUnknownTag          Kind = "unknown_tag"
	KindThresholdNotMet     Kind = "threshold_not_met"
	KindAlreadyEngaged      Kind = "already_engaged"
	KindCooldownActive      Kind = "cooldown_active"
	KindLaunchFired         Kind = "launch_fired"
	KindLaunchFailed        Kind = "launch_failed"
	KindEngagedPruned       Kind = "engaged_pruned"
	KindMissingCollaborator Kind = "missing_collaborator"
	KindInterceptorArmed    Kind = "interceptor_armed"
	KindTargetLost          Kind = "target_lost"
	KindInterceptorHit      Kind = "interceptor_hit"
	KindInterceptorMiss     Kind = "interceptor_miss"
)

// Event is one decision record. Fields that do not apply to a kind are left
// zero.
type Event struct {
	Kind        Kind
	Time        time.Time
	Target      model.Handle
	Interceptor model.Handle
	Tag         string

	Score        float64
	DistanceTerm float64
	SpeedTerm    float64
	RCSTerm      float64

	Detail string
}

// Sink receives events. Implementations must not retain the caller's
// goroutine for long; Emit is called from inside simulation ticks.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops all events.
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return multiSink(out)
}

type multiSink []Sink

func (m multiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// Recorder keeps every event in memory, in emission order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit appends ev.
func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of the given kind.
func (r *Recorder) OfKind(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	return len(r.OfKind(kind))
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
