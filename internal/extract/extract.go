// Package extract turns a fetched document into files on disk plus metadata.
// The orchestrator treats extraction as an opaque collaborator: anything
// satisfying Extractor can stand in for the generic implementation here.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/openclaw/chromecrawl/internal/ledger"
)

// ExtractionError wraps a failure to turn fetched content into output files.
// Retryable; the orchestrator keeps the raw content so a later pass can
// re-extract without re-fetching.
type ExtractionError struct {
	Seq int
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract #%d: %v", e.Seq, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Result is the structured metadata returned for one extracted page.
type Result struct {
	Title       string
	DirName     string
	Author      string
	PublishTime string
	Images      *ledger.ImageStats
	Errors      []string
}

// Extractor consumes a document string plus an output directory and sequence
// number and produces files and metadata.
type Extractor interface {
	Extract(ctx context.Context, html string, outDir string, seq int) (Result, error)
}

// SafeDirName derives a filesystem-safe directory name from a sequence
// number and title, e.g. "0042_some-article-title". Unicode letters and
// digits survive; everything else collapses to single dashes.
func SafeDirName(seq int, title string) string {
	const maxTitleRunes = 50

	var b strings.Builder
	lastDash := true
	count := 0
	for _, r := range title {
		if count >= maxTitleRunes {
			break
		}
		switch {
		case isWordRune(r):
			b.WriteRune(r)
			lastDash = false
			count++
		default:
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
				count++
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "untitled"
	}
	return fmt.Sprintf("%04d_%s", seq, slug)
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.':
		return true
	case r > 127:
		// Keep CJK and other non-ASCII letters; titles are often not Latin.
		return !strings.ContainsRune("　、。，！？：；“”‘’（）《》【】", r)
	}
	return false
}
