// Package orchestrator drives a crawl session: it walks the ledger's pending
// jobs in seq order, fetches each page through the browser, classifies and
// extracts the content, and persists every outcome before moving on.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openclaw/chromecrawl/internal/antiblock"
	"github.com/openclaw/chromecrawl/internal/clock"
	"github.com/openclaw/chromecrawl/internal/extract"
	"github.com/openclaw/chromecrawl/internal/ledger"
	"github.com/openclaw/chromecrawl/internal/progress"
)

// Fetcher retrieves a rendered page and can rebuild its browser connection
// after a wedged navigation.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Reset(ctx context.Context) error
}

// Classifier decides whether fetched content is an anti-automation page.
type Classifier interface {
	Classify(html string) antiblock.Verdict
}

// Config tunes the session loop. Zero values pick the defaults noted per
// field.
type Config struct {
	// OutputDir is the session root: articles, raw/ and the manifest live
	// under it.
	OutputDir string
	// DelayMin..DelayMax bound the randomized delay after every job.
	// Defaults 2s..5s.
	DelayMin time.Duration
	DelayMax time.Duration
	// Limit caps jobs executed this session; 0 means no cap.
	Limit int
	// FetchCeiling is the hard per-fetch bound; on overrun the browser
	// connection is reset. Default 45s.
	FetchCeiling time.Duration
	// CooldownEvery inserts a fixed pause after that many jobs. Default 200.
	CooldownEvery int
	// CooldownFor is the periodic pause length. Default 20s.
	CooldownFor time.Duration
	// BlockCooldown is the extended pause after a blocked classification.
	// Default 60s.
	BlockCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.DelayMin <= 0 {
		c.DelayMin = 2 * time.Second
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = c.DelayMin + 3*time.Second
	}
	if c.FetchCeiling <= 0 {
		c.FetchCeiling = 45 * time.Second
	}
	if c.CooldownEvery <= 0 {
		c.CooldownEvery = 200
	}
	if c.CooldownFor <= 0 {
		c.CooldownFor = 20 * time.Second
	}
	if c.BlockCooldown <= 0 {
		c.BlockCooldown = 60 * time.Second
	}
	return c
}

// Summary reports what one session did.
type Summary struct {
	Session   uuid.UUID
	Processed int
	OK        int
	Failed    int
	Elapsed   time.Duration
}

// Orchestrator is the single sequential crawl worker. It owns the ledger for
// the duration of a session; none of its methods are safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	ledger    *ledger.Ledger
	fetcher   Fetcher
	classify  Classifier
	extractor extract.Extractor
	clock     clock.Clock
	sleeper   Sleeper
	emitter   progress.Emitter
	logger    *zap.Logger
	session   uuid.UUID

	// delay draws the inter-job delay; swapped out in tests.
	delay func() time.Duration
}

// New wires an Orchestrator. Emitter may be nil when no progress reporting
// is wanted.
func New(
	cfg Config,
	ldg *ledger.Ledger,
	fetcher Fetcher,
	classifier Classifier,
	extractor extract.Extractor,
	clk clock.Clock,
	sleeper Sleeper,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Orchestrator {
	if sleeper == nil {
		sleeper = NewTimerSleeper()
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:       cfg.withDefaults(),
		ledger:    ldg,
		fetcher:   fetcher,
		classify:  classifier,
		extractor: extractor,
		clock:     clk,
		sleeper:   sleeper,
		emitter:   emitter,
		logger:    logger,
		session:   uuid.New(),
	}
	o.delay = func() time.Duration {
		span := o.cfg.DelayMax - o.cfg.DelayMin
		if span <= 0 {
			return o.cfg.DelayMin
		}
		return o.cfg.DelayMin + time.Duration(rand.Int63n(int64(span)))
	}
	return o
}

type nopEmitter struct{}

func (nopEmitter) Emit(progress.Event) {}

// Run executes passes over the pending jobs until none remain, the job
// budget is spent, or ctx is canceled. Per-job failures are recorded in the
// ledger, never returned; the error covers session-fatal conditions only
// (persistence failure, cancellation).
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := o.clock.Now()
	sum := Summary{Session: o.session}

	defer func() {
		sum.Elapsed = o.clock.Now().Sub(start)
		o.emit(progress.Event{Stage: progress.StageSessionDone, Dur: sum.Elapsed,
			Note: fmt.Sprintf("ok=%d failed=%d", sum.OK, sum.Failed)})
		o.logger.Info("session finished",
			zap.Int("processed", sum.Processed),
			zap.Int("ok", sum.OK),
			zap.Int("failed", sum.Failed),
			zap.Duration("elapsed", sum.Elapsed),
		)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("session interrupted: %w", err)
		}
		pending := o.ledger.Pending()
		if len(pending) == 0 {
			return sum, nil
		}
		progressed := false
		for _, rec := range pending {
			if err := ctx.Err(); err != nil {
				return sum, fmt.Errorf("session interrupted: %w", err)
			}
			if o.cfg.Limit > 0 && sum.Processed >= o.cfg.Limit {
				o.logger.Info("job budget reached", zap.Int("limit", o.cfg.Limit))
				return sum, nil
			}
			if rec.Status != ledger.StatusPending {
				continue
			}

			blocked := o.runJob(ctx, rec)
			progressed = true
			sum.Processed++
			switch rec.Status {
			case ledger.StatusExtracted:
				sum.OK++
			case ledger.StatusFailed:
				sum.Failed++
			}
			if err := o.ledger.Save(); err != nil {
				return sum, fmt.Errorf("persist ledger: %w", err)
			}

			if blocked {
				o.cooldown(ctx, o.cfg.BlockCooldown, "blocked content")
			}
			o.sleeper.Pause(ctx, o.delay())
			if sum.Processed%o.cfg.CooldownEvery == 0 {
				o.cooldown(ctx, o.cfg.CooldownFor, "periodic")
			}
		}
		if !progressed {
			return sum, nil
		}
	}
}

// runJob executes exactly one attempt for rec and leaves it extracted,
// pending (retryable failure) or failed (ceiling reached). Returns whether
// the attempt hit an anti-automation page.
func (o *Orchestrator) runJob(ctx context.Context, rec *ledger.Record) (blocked bool) {
	rec.Status = ledger.StatusInProgress

	if rec.Attempts > 0 {
		wait := Backoff(rec.Attempts)
		o.logger.Info("backing off before retry",
			zap.Int("seq", rec.Seq),
			zap.Int("prior_attempts", rec.Attempts),
			zap.Duration("backoff", wait),
		)
		o.sleeper.Pause(ctx, wait)
	}

	o.emit(progress.Event{Stage: progress.StageJobStart, Seq: rec.Seq, URL: rec.URL})
	started := o.clock.Now()

	html, err := o.fetchOnce(ctx, rec.URL)
	if err == nil && o.classify.Classify(html) == antiblock.VerdictBlocked {
		err = fmt.Errorf("%w: %s", antiblock.ErrBlockedContent, rec.URL)
		blocked = true
	}
	if err == nil {
		res, exErr := o.extractor.Extract(ctx, html, o.cfg.OutputDir, rec.Seq)
		if exErr == nil {
			rec.Title = res.Title
			rec.DirName = res.DirName
			rec.Author = res.Author
			rec.PublishTime = res.PublishTime
			rec.Images = res.Images
			rec.Errors = append(rec.Errors, res.Errors...)
			rec.Status = ledger.StatusExtracted
			dur := o.clock.Now().Sub(started)
			o.emit(progress.Event{Stage: progress.StageJobDone, Seq: rec.Seq,
				URL: rec.URL, Title: rec.Title, Dur: dur})
			o.logger.Info("job done",
				zap.Int("seq", rec.Seq),
				zap.String("title", rec.Title),
				zap.Duration("dur", dur),
			)
			return false
		}
		// Keep the fetched document so a later pass can re-extract
		// without another navigation.
		o.retainRaw(rec.Seq, html)
		err = exErr
	}

	rec.Attempts++
	rec.Errors = append(rec.Errors, fmt.Sprintf("attempt %d: %v", rec.Attempts, err))
	if rec.Attempts >= MaxAttempts {
		rec.Status = ledger.StatusFailed
	} else {
		rec.Status = ledger.StatusPending
	}
	o.emit(progress.Event{Stage: progress.StageJobError, Seq: rec.Seq, URL: rec.URL,
		Note: err.Error(), Dur: o.clock.Now().Sub(started), Blocked: blocked})
	o.logger.Warn("job attempt failed",
		zap.Int("seq", rec.Seq),
		zap.String("url", rec.URL),
		zap.Int("attempts", rec.Attempts),
		zap.String("status", string(rec.Status)),
		zap.Error(err),
	)
	return blocked
}

// fetchOnce applies the hard ceiling around one fetch. An overrun leaves the
// connection state unknown, so it is dropped and re-dialed before returning.
func (o *Orchestrator) fetchOnce(ctx context.Context, url string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchCeiling)
	defer cancel()

	html, err := o.fetcher.Fetch(fetchCtx, url)
	if err != nil && ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
		o.logger.Warn("fetch exceeded hard ceiling, resetting browser connection",
			zap.String("url", url),
			zap.Duration("ceiling", o.cfg.FetchCeiling),
		)
		if rerr := o.fetcher.Reset(ctx); rerr != nil {
			o.logger.Error("browser reconnect failed", zap.Error(rerr))
		}
		err = fmt.Errorf("fetch exceeded %s ceiling: %w", o.cfg.FetchCeiling, err)
	}
	return html, err
}

func (o *Orchestrator) cooldown(ctx context.Context, d time.Duration, reason string) {
	o.emit(progress.Event{Stage: progress.StageCooldown, Dur: d, Note: reason})
	o.logger.Info("cooling down", zap.Duration("for", d), zap.String("reason", reason))
	o.sleeper.Pause(ctx, d)
}

func (o *Orchestrator) retainRaw(seq int, html string) {
	dir := filepath.Join(o.cfg.OutputDir, "raw")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		o.logger.Error("creating raw dir", zap.Error(err))
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("%04d.html", seq))
	if err := os.WriteFile(path, []byte(html), 0o640); err != nil {
		o.logger.Error("retaining raw document", zap.Int("seq", seq), zap.Error(err))
	}
}

func (o *Orchestrator) emit(evt progress.Event) {
	evt.Session = o.session
	evt.TS = o.clock.Now().UTC()
	o.emitter.Emit(evt)
}
