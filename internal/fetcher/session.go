package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/chromecrawl/internal/cdp"
)

// SessionConfig describes how a Session locates and drives the browser.
type SessionConfig struct {
	// Endpoint is the debugger HTTP endpoint, e.g. "http://127.0.0.1:9222".
	Endpoint string
	// PreferredTabs are URL substrings that mark an existing tab as
	// reusable; see cdp.AcquireTab.
	PreferredTabs []string
	// Fetch configures the per-page fetch behavior.
	Fetch Config
}

// Session owns one debugger connection and the tab it drives. It dials
// lazily on first Fetch and can be torn down and re-established with Reset
// after a wedged navigation leaves the connection in an unknown state.
type Session struct {
	cfg    SessionConfig
	client *http.Client
	logger *zap.Logger

	conn    *cdp.Conn
	fetcher *Fetcher
	tab     cdp.Tab
}

// NewSession builds a Session. Nothing is dialed until the first Fetch.
func NewSession(cfg SessionConfig, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Tab returns the tab currently driven by the session. Zero value before the
// first successful connect.
func (s *Session) Tab() cdp.Tab { return s.tab }

// Fetch navigates the session tab to url and returns the serialized document.
func (s *Session) Fetch(ctx context.Context, url string) (string, error) {
	if s.fetcher == nil {
		if err := s.connect(ctx); err != nil {
			return "", err
		}
	}
	return s.fetcher.Fetch(ctx, url)
}

// Reset drops the current connection and dials a fresh one. Used after a
// fetch overruns its hard ceiling.
func (s *Session) Reset(ctx context.Context) error {
	s.Close()
	return s.connect(ctx)
}

// Close releases the debugger connection. The tab itself is left open; the
// browser is not ours to terminate.
func (s *Session) Close() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("closing debugger connection", zap.Error(err))
		}
	}
	s.conn = nil
	s.fetcher = nil
}

func (s *Session) connect(ctx context.Context) error {
	tab, err := cdp.AcquireTab(ctx, s.client, s.cfg.Endpoint, s.cfg.PreferredTabs)
	if err != nil {
		return fmt.Errorf("acquire tab: %w", err)
	}
	conn, err := cdp.Dial(ctx, tab.WebSocketDebuggerURL, s.logger)
	if err != nil {
		return err
	}
	s.tab = tab
	s.conn = conn
	s.fetcher = NewFromConn(conn, s.cfg.Fetch, s.logger)
	s.logger.Info("attached to browser tab",
		zap.String("tab_id", tab.ID),
		zap.String("tab_url", tab.URL),
	)
	return nil
}
