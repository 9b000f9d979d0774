package orchestrator

import (
	"context"
	"time"
)

const (
	// MaxAttempts is the per-job retry ceiling.
	MaxAttempts = 3

	backoffBase = 5 * time.Second
	backoffCap  = 20 * time.Second
)

// Backoff returns the pause taken before re-attempting a job that has
// already failed prior times: base doubled per failure, capped. Zero for a
// first attempt.
func Backoff(prior int) time.Duration {
	if prior <= 0 {
		return 0
	}
	d := backoffBase << (prior - 1)
	if d <= 0 || d > backoffCap {
		return backoffCap
	}
	return d
}

// Sleeper abstracts context-aware pauses so tests never wait on real timers.
type Sleeper interface {
	Pause(ctx context.Context, d time.Duration)
}

type timerSleeper struct{}

// NewTimerSleeper returns the production Sleeper backed by time.Timer.
func NewTimerSleeper() Sleeper { return timerSleeper{} }

func (timerSleeper) Pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
