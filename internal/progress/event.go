// Package progress defines the event stream emitted by a crawl session and
// the hub that fans it out to reporting sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageJobStart    Stage = "JOB_START"
	StageJobDone     Stage = "JOB_DONE"
	StageJobError    Stage = "JOB_ERROR"
	StageCooldown    Stage = "COOLDOWN"
	StageSessionDone Stage = "SESSION_DONE"
)

// Event captures a single milestone of crawl progress.
type Event struct {
	// Session identifies the crawl run.
	Session uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage is the milestone kind.
	Stage Stage
	// Seq is the ledger ordinal of the job, zero for session-level events.
	Seq int
	// URL is the job target, when applicable.
	URL string
	// Title is the extracted page title on success.
	Title string
	// Note carries low-volume context: error text or cooldown reason.
	Note string
	// Dur is the job or session duration, or the cooldown length.
	Dur time.Duration
	// Blocked flags job errors caused by an anti-automation page.
	Blocked bool
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.Session == uuid.Nil {
		return errors.New("session id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
		if e.Seq <= 0 {
			return fmt.Errorf("%s requires a job seq", e.Stage)
		}
	case StageCooldown, StageSessionDone:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
