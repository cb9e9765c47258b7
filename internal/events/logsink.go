package events

import (
	"context"

	"github.com/signalsfoundry/air-defense-simulator/internal/logging"
)

// LogSink mirrors events into a structured logger. High-volume kinds go to
// debug; state changes go to info; problems go to warn.
type LogSink struct {
	Log logging.Logger
}

// NewLogSink wraps log, defaulting to a no-op logger.
func NewLogSink(log logging.Logger) *LogSink {
	if log == nil {
		log = logging.Noop()
	}
	return &LogSink{Log: log}
}

// Emit writes ev as a single log line.
func (s *LogSink) Emit(ev Event) {
	ctx := context.Background()
	fields := []logging.Field{
		logging.String("kind", string(ev.Kind)),
		logging.SimTime(ev.Time),
	}
	if !ev.Target.IsNil() {
		fields = append(fields, logging.Stringer("target", ev.Target))
	}
	if !ev.Interceptor.IsNil() {
		fields = append(fields, logging.Stringer("interceptor", ev.Interceptor))
	}
	if ev.Tag != "" {
		fields = append(fields, logging.String("tag", ev.Tag))
	}
	if ev.Score != 0 {
		fields = append(fields, logging.Float("score", ev.Score))
	}
	if ev.Detail != "" {
		fields = append(fields, logging.String("detail", ev.Detail))
	}

	switch ev.Kind {
	case KindScoreComputed, KindUnknownTag, KindThresholdNotMet, KindAlreadyEngaged, KindCooldownActive:
		s.Log.Debug(ctx, "engagement decision", fields...)
	case KindMissingCollaborator, KindLaunchFailed:
		s.Log.Warn(ctx, "engagement problem", fields...)
	default:
		s.Log.Info(ctx, "engagement event", fields...)
	}
}
