// Package fetcher drives one browser tab through a navigate / settle /
// serialize cycle and returns the rendered document.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/chromecrawl/internal/cdp"
)

// NavigationError means the navigate call itself was rejected.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// EvaluationError means document serialization failed after navigation.
type EvaluationError struct {
	URL string
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate on %s: %v", e.URL, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// ErrContentTooShort marks a document too small to be a real page: usually a
// truncated shell or an empty frame, worth retrying but not a block signal.
var ErrContentTooShort = errors.New("fetched content below minimum size")

// EventWaiter is a one-shot event registration.
type EventWaiter interface {
	Wait(ctx context.Context, timeout time.Duration) (json.RawMessage, bool)
	Cancel()
}

// Transport is the slice of the CDP connection the fetcher uses.
type Transport interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	WaitEvent(method string) EventWaiter
}

// connTransport adapts *cdp.Conn to the Transport interface (the concrete
// waiter type differs).
type connTransport struct {
	conn *cdp.Conn
}

func (t connTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return t.conn.Call(ctx, method, params)
}

func (t connTransport) WaitEvent(method string) EventWaiter {
	return t.conn.WaitEvent(method)
}

// Config controls fetch behavior.
type Config struct {
	// LoadTimeout bounds the wait for Page.loadEventFired. Soft: pages that
	// redirect client-side often never fire it, so absence is not a failure.
	LoadTimeout time.Duration
	// SettleDelay lets deferred scripts populate the document after load.
	SettleDelay time.Duration
	// MinContentBytes below which the document counts as too short.
	MinContentBytes int
	// Expression serializes the live document; the default captures the full
	// element tree.
	Expression string
}

// Defaults for Config fields left zero.
const (
	DefaultLoadTimeout     = 30 * time.Second
	DefaultSettleDelay     = 1500 * time.Millisecond
	DefaultMinContentBytes = 1000
	DefaultExpression      = "document.documentElement.outerHTML"
)

func (c Config) withDefaults() Config {
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = DefaultLoadTimeout
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.MinContentBytes <= 0 {
		c.MinContentBytes = DefaultMinContentBytes
	}
	if c.Expression == "" {
		c.Expression = DefaultExpression
	}
	return c
}

// Fetcher fetches pages over one tab connection.
type Fetcher struct {
	transport Transport
	cfg       Config
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration)
}

// New builds a Fetcher over an arbitrary transport.
func New(transport Transport, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		transport: transport,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		sleep:     sleepCtx,
	}
}

// NewFromConn builds a Fetcher over a live CDP connection.
func NewFromConn(conn *cdp.Conn, cfg Config, logger *zap.Logger) *Fetcher {
	return New(connTransport{conn: conn}, cfg, logger)
}

type navigateResult struct {
	ErrorText string `json:"errorText"`
}

type evaluateResult struct {
	Result struct {
		Value string `json:"value"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text string `json:"text"`
	} `json:"exceptionDetails"`
}

// Fetch navigates the tab to url and returns the serialized document.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if _, err := f.transport.Call(ctx, "Page.enable", nil); err != nil {
		return "", fmt.Errorf("enable page events: %w", err)
	}

	// Register before navigating; the load event can fire before the
	// navigate response is even read.
	loadWaiter := f.transport.WaitEvent("Page.loadEventFired")

	raw, err := f.transport.Call(ctx, "Page.navigate", map[string]string{"url": url})
	if err != nil {
		loadWaiter.Cancel()
		return "", &NavigationError{URL: url, Err: err}
	}
	var nav navigateResult
	if err := json.Unmarshal(raw, &nav); err == nil && nav.ErrorText != "" {
		loadWaiter.Cancel()
		return "", &NavigationError{URL: url, Err: errors.New(nav.ErrorText)}
	}

	if _, ok := loadWaiter.Wait(ctx, f.cfg.LoadTimeout); !ok {
		// Proceed anyway; see Config.LoadTimeout.
		f.logger.Debug("load event not observed", zap.String("url", url))
	}

	f.sleep(ctx, f.cfg.SettleDelay)
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}

	raw, err = f.transport.Call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    f.cfg.Expression,
		"returnByValue": true,
	})
	if err != nil {
		return "", &EvaluationError{URL: url, Err: err}
	}
	var eval evaluateResult
	if err := json.Unmarshal(raw, &eval); err != nil {
		return "", &EvaluationError{URL: url, Err: fmt.Errorf("decode result: %w", err)}
	}
	if eval.ExceptionDetails != nil {
		return "", &EvaluationError{URL: url, Err: errors.New(eval.ExceptionDetails.Text)}
	}

	html := eval.Result.Value
	if len(html) < f.cfg.MinContentBytes {
		return "", fmt.Errorf("%w: %d bytes from %s", ErrContentTooShort, len(html), url)
	}
	return html, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
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
