package cdp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeEndpoint serves the discovery HTTP surface of a debugging browser.
func fakeEndpoint(t *testing.T, tabs []Tab, created *Tab) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(VersionInfo{Browser: "Chrome/126.0"}) //nolint:errcheck
	})
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(tabs) //nolint:errcheck
	})
	mux.HandleFunc("/json/new", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if created == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(created) //nolint:errcheck
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server.URL
}

func TestProbe(t *testing.T) {
	t.Parallel()

	endpoint := fakeEndpoint(t, nil, nil)
	info, err := Probe(context.Background(), nil, endpoint)
	require.NoError(t, err)
	require.Equal(t, "Chrome/126.0", info.Browser)
}

func TestProbeAcceptsBareHostPort(t *testing.T) {
	t.Parallel()

	endpoint := fakeEndpoint(t, nil, nil)
	bare := strings.TrimPrefix(endpoint, "http://")
	info, err := Probe(context.Background(), nil, bare)
	require.NoError(t, err)
	require.Equal(t, "Chrome/126.0", info.Browser)
}

func TestProbeAcceptsTrailingSlash(t *testing.T) {
	t.Parallel()

	endpoint := fakeEndpoint(t, nil, nil)
	info, err := Probe(context.Background(), nil, endpoint+"/")
	require.NoError(t, err)
	require.Equal(t, "Chrome/126.0", info.Browser)
}

func TestProbeUnreachable(t *testing.T) {
	t.Parallel()

	_, err := Probe(context.Background(), nil, "127.0.0.1:1")
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestAcquireTabPrefersBlankPage(t *testing.T) {
	t.Parallel()

	endpoint := fakeEndpoint(t, []Tab{
		{ID: "bg", Type: "background_page", URL: "", WebSocketDebuggerURL: "ws://x/bg"},
		{ID: "busy", Type: "page", URL: "https://news.example.com/story", WebSocketDebuggerURL: "ws://x/busy"},
		{ID: "blank", Type: "page", URL: "about:blank", WebSocketDebuggerURL: "ws://x/blank"},
	}, nil)

	tab, err := AcquireTab(context.Background(), nil, endpoint, nil)
	require.NoError(t, err)
	require.Equal(t, "blank", tab.ID)
}

func TestAcquireTabMatchesPreferredPattern(t *testing.T) {
	t.Parallel()

	endpoint := fakeEndpoint(t, []Tab{
		{ID: "other", Type: "page", URL: "https://unrelated.example.com", WebSocketDebuggerURL: "ws://x/other"},
		{ID: "match", Type: "page", URL: "https://mp.weixin.qq.com/s/abc", WebSocketDebuggerURL: "ws://x/match"},
	}, nil)

	tab, err := AcquireTab(context.Background(), nil, endpoint, []string{"mp.weixin.qq.com"})
	require.NoError(t, err)
	require.Equal(t, "match", tab.ID)
}

func TestAcquireTabCreatesWhenNoneReusable(t *testing.T) {
	t.Parallel()

	endpoint := fakeEndpoint(t, []Tab{
		{ID: "busy", Type: "page", URL: "https://busy.example.com", WebSocketDebuggerURL: "ws://x/busy"},
	}, &Tab{ID: "fresh", Type: "page", URL: "about:blank", WebSocketDebuggerURL: "ws://x/fresh"})

	tab, err := AcquireTab(context.Background(), nil, endpoint, nil)
	require.NoError(t, err)
	require.Equal(t, "fresh", tab.ID)
}

func TestAcquireTabNoDebuggerAddress(t *testing.T) {
	t.Parallel()

	endpoint := fakeEndpoint(t, []Tab{
		{ID: "mute", Type: "page", URL: "about:blank"},
	}, nil)

	_, err := AcquireTab(context.Background(), nil, endpoint, nil)
	require.ErrorIs(t, err, ErrNoDebuggableTab)
}

func TestResolvePortExplicitWins(t *testing.T) {
	t.Parallel()

	require.Equal(t, "9333", ResolvePort("9333"))
}

func TestResolvePortDefault(t *testing.T) {
	// Not parallel: depends on HOME.
	t.Setenv("HOME", t.TempDir())
	require.Equal(t, DefaultPort, ResolvePort(""))
}

func TestResolvePortFromPortFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".chrome-crawl")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cdp-port"), []byte("9444\n"), 0o600))
	require.Equal(t, "9444", ResolvePort(""))
}
