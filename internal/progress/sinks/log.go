// Package sinks contains progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/openclaw/chromecrawl/internal/progress"
)

// LogSink emits structured logs for the progress stream. Per-job events log
// at debug so the steady-state loop stays quiet; session milestones at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs the event using structured fields.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	fields := []zap.Field{
		zap.String("session", evt.Session.String()),
		zap.String("stage", string(evt.Stage)),
		zap.Int("seq", evt.Seq),
		zap.String("url", evt.URL),
		zap.Duration("dur", evt.Dur),
	}
	if evt.Title != "" {
		fields = append(fields, zap.String("title", evt.Title))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	if evt.Blocked {
		fields = append(fields, zap.Bool("blocked", true))
	}
	switch evt.Stage {
	case progress.StageSessionDone:
		s.logger.Info("session finished", fields...)
	case progress.StageCooldown:
		s.logger.Info("cooldown", fields...)
	case progress.StageJobError:
		s.logger.Warn("job failed", fields...)
	default:
		s.logger.Debug("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
