// Package antiblock classifies fetched documents as normal content or
// anti-automation challenge pages.
package antiblock

import (
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrBlockedContent marks a fetch whose transport succeeded but whose content
// is an interstitial or challenge page. The orchestrator counts it as a
// failure and applies an extended cooldown.
var ErrBlockedContent = errors.New("blocked or challenge page detected")

// Verdict is the classification outcome.
type Verdict int

// Classification results.
const (
	VerdictNormal Verdict = iota
	VerdictBlocked
)

// Interstitials put their tell within the first few KB; scanning only the
// head region avoids false positives on articles that merely discuss
// captchas.
const markerScanBytes = 3000

// Default marker substrings seen on known challenge pages.
var defaultMarkers = []string{
	"环境异常",          // WeChat anti-crawl interstitial
	"完成验证后即可继续访问",   // WeChat verification prompt
	"checking your browser",
	"verify you are human",
	"attention required! | cloudflare",
	"please enable cookies",
	"g-recaptcha",
	"h-captcha",
}

// Default selectors present in challenge page structure.
var defaultSelectors = []string{
	"#challenge-form",
	"#cf-wrapper",
	"#challenge-running",
	"form#captcha-form",
}

// Classifier is a pure content classifier; it holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	markers   []string
	selectors []string
}

// New constructs a Classifier with the supplied signals; empty slices fall
// back to the defaults.
func New(markers, selectors []string) *Classifier {
	lowered := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		lowered = append(lowered, strings.ToLower(m))
	}
	if len(lowered) == 0 {
		lowered = defaultMarkers
	}
	if len(selectors) == 0 {
		selectors = defaultSelectors
	}
	return &Classifier{markers: lowered, selectors: selectors}
}

// Classify inspects html and reports whether it looks like a challenge page.
func (c *Classifier) Classify(html string) Verdict {
	if c == nil || html == "" {
		return VerdictNormal
	}
	if c.containsMarker(html) {
		return VerdictBlocked
	}
	if c.matchesSelector(html) {
		return VerdictBlocked
	}
	return VerdictNormal
}

func (c *Classifier) containsMarker(html string) bool {
	head := html
	if len(head) > markerScanBytes {
		head = head[:markerScanBytes]
	}
	head = strings.ToLower(head)
	for _, marker := range c.markers {
		if strings.Contains(head, marker) {
			return true
		}
	}
	return false
}

func (c *Classifier) matchesSelector(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable markup is not evidence of blocking.
		return false
	}
	for _, sel := range c.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}
