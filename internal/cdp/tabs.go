package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Tab describes one debuggable browser target from the listing endpoint.
type Tab struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// VersionInfo identifies the browser behind a debugging endpoint.
type VersionInfo struct {
	Browser         string `json:"Browser"`
	ProtocolVersion string `json:"Protocol-Version"`
}

// DefaultPort is used when no flag or port file resolves one.
const DefaultPort = "9222"

// Port files written by the browser bootstrap tooling, checked in order.
var portFiles = []string{
	filepath.Join(".chrome-crawl", "cdp-port"),
	filepath.Join(".openclaw", "chrome-debug-port"),
}

// ResolvePort returns the debugging port: an explicit value wins, then the
// first non-empty port file under the home directory, then DefaultPort.
func ResolvePort(explicit string) string {
	if explicit != "" {
		return explicit
	}
	home, err := os.UserHomeDir()
	if err == nil {
		for _, rel := range portFiles {
			data, readErr := os.ReadFile(filepath.Join(home, rel))
			if readErr != nil {
				continue
			}
			if port := strings.TrimSpace(string(data)); port != "" {
				return port
			}
		}
	}
	return DefaultPort
}

// Probe checks that the endpoint answers /json/version. A failure here is
// fatal to session setup.
func Probe(ctx context.Context, client *http.Client, endpoint string) (VersionInfo, error) {
	var info VersionInfo
	if err := getJSON(ctx, client, endpoint, http.MethodGet, "/json/version", &info); err != nil {
		return VersionInfo{}, err
	}
	return info, nil
}

// ListTabs fetches the open target descriptors.
func ListTabs(ctx context.Context, client *http.Client, endpoint string) ([]Tab, error) {
	var tabs []Tab
	if err := getJSON(ctx, client, endpoint, http.MethodGet, "/json/list", &tabs); err != nil {
		return nil, err
	}
	return tabs, nil
}

// NewTab asks the browser to open a blank tab.
func NewTab(ctx context.Context, client *http.Client, endpoint string) (Tab, error) {
	var tab Tab
	// Chrome 111+ requires PUT for /json/new.
	if err := getJSON(ctx, client, endpoint, http.MethodPut, "/json/new", &tab); err != nil {
		return Tab{}, err
	}
	return tab, nil
}

// AcquireTab finds a reusable page target or creates one. A tab qualifies
// for reuse when it is a regular page sitting on a blank URL or one matching
// a preferred pattern; reusing one tab across jobs bounds browser resources
// and keeps the session looking like one person browsing.
func AcquireTab(ctx context.Context, client *http.Client, endpoint string, preferred []string) (Tab, error) {
	tabs, err := ListTabs(ctx, client, endpoint)
	if err != nil {
		return Tab{}, err
	}
	for _, tab := range tabs {
		if reusable(tab, preferred) {
			if tab.WebSocketDebuggerURL == "" {
				return Tab{}, ErrNoDebuggableTab
			}
			return tab, nil
		}
	}
	tab, err := NewTab(ctx, client, endpoint)
	if err != nil {
		return Tab{}, err
	}
	if tab.WebSocketDebuggerURL == "" {
		return Tab{}, ErrNoDebuggableTab
	}
	return tab, nil
}

func reusable(tab Tab, preferred []string) bool {
	if tab.Type != "page" {
		return false
	}
	if tab.URL == "" || tab.URL == "about:blank" {
		return true
	}
	for _, pattern := range preferred {
		if pattern != "" && strings.Contains(tab.URL, pattern) {
			return true
		}
	}
	return false
}

// normalizeEndpoint accepts "host:port" or a scheme-prefixed URL and returns
// a base URL with no trailing slash.
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "http://" + endpoint
}

func getJSON(ctx context.Context, client *http.Client, endpoint, method, path string, v any) error {
	if client == nil {
		client = http.DefaultClient
	}
	url := normalizeEndpoint(endpoint) + path
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("decode %s: %w", path, err)}
	}
	return nil
}
