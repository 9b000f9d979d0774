package sinks

import (
	"context"

	"github.com/schollz/progressbar/v3"

	"github.com/openclaw/chromecrawl/internal/progress"
)

// BarSink renders a terminal progress bar across the session's job budget.
type BarSink struct {
	bar *progressbar.ProgressBar
}

// NewBarSink builds a bar sized to total jobs.
func NewBarSink(total int) *BarSink {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
	return &BarSink{bar: bar}
}

// Consume advances the bar on every finished job attempt.
func (s *BarSink) Consume(_ context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageJobDone, progress.StageJobError:
		return s.bar.Add(1)
	case progress.StageSessionDone:
		return s.bar.Finish()
	}
	return nil
}

// Close clears the bar.
func (s *BarSink) Close(context.Context) error {
	return s.bar.Close()
}
