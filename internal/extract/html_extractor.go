package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/openclaw/chromecrawl/internal/ledger"
)

// HTMLExtractor is a generic implementation of Extractor: it reads common
// metadata from the document, writes the page under a per-article directory,
// and optionally downloads the page's images.
type HTMLExtractor struct {
	client     *http.Client
	skipImages bool
	logger     *zap.Logger
}

// NewHTMLExtractor builds an extractor. client is shared across pages so
// image downloads reuse connections; nil falls back to the default client.
func NewHTMLExtractor(client *http.Client, skipImages bool, logger *zap.Logger) *HTMLExtractor {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLExtractor{client: client, skipImages: skipImages, logger: logger}
}

// Extract writes <outDir>/<NNNN_title>/index.html plus images/ and returns
// the page metadata.
func (x *HTMLExtractor) Extract(ctx context.Context, html string, outDir string, seq int) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, &ExtractionError{Seq: seq, Err: fmt.Errorf("parse document: %w", err)}
	}

	res := Result{
		Title:       pageTitle(doc),
		Author:      metaContent(doc, `meta[name="author"]`, `meta[property="article:author"]`),
		PublishTime: metaContent(doc, `meta[property="article:published_time"]`, `meta[name="publish_date"]`),
	}
	res.DirName = SafeDirName(seq, res.Title)

	articleDir := filepath.Join(outDir, res.DirName)
	if err := os.MkdirAll(articleDir, 0o750); err != nil {
		return Result{}, &ExtractionError{Seq: seq, Err: fmt.Errorf("create article dir: %w", err)}
	}
	if err := os.WriteFile(filepath.Join(articleDir, "index.html"), []byte(html), 0o600); err != nil {
		return Result{}, &ExtractionError{Seq: seq, Err: fmt.Errorf("write page: %w", err)}
	}

	stats, imgErrs := x.handleImages(ctx, doc, articleDir)
	res.Images = stats
	res.Errors = imgErrs
	return res, nil
}

func pageTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t := metaContent(doc, `meta[property="og:title"]`); t != "" {
		return t
	}
	return "untitled"
}

func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func (x *HTMLExtractor) handleImages(ctx context.Context, doc *goquery.Document, articleDir string) (*ledger.ImageStats, []string) {
	var urls []string
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			// Lazy-loaded images keep the real source in data-src.
			src, _ = sel.Attr("data-src")
		}
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			urls = append(urls, src)
		}
	})

	stats := &ledger.ImageStats{Total: len(urls)}
	if len(urls) == 0 || x.skipImages {
		return stats, nil
	}

	imagesDir := filepath.Join(articleDir, "images")
	if err := os.MkdirAll(imagesDir, 0o750); err != nil {
		return stats, []string{fmt.Sprintf("create images dir: %v", err)}
	}

	var errs []string
	for i, src := range urls {
		n, err := x.downloadImage(ctx, src, imagesDir, i)
		if err != nil {
			stats.Failed++
			// Per-image failures degrade the result, they do not fail the page.
			if len(errs) < 5 {
				errs = append(errs, fmt.Sprintf("image %d: %v", i, err))
			}
			continue
		}
		stats.OK++
		stats.Bytes += n
	}
	return stats, errs
}

func (x *HTMLExtractor) downloadImage(ctx context.Context, src, dir string, index int) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, err
	}
	resp, err := x.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}

	name := fmt.Sprintf("img_%03d%s", index, imageExt(src, resp.Header.Get("Content-Type")))
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return n, err
	}
	return n, nil
}

func imageExt(src, contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "gif"):
		return ".gif"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	}
	if ext := path.Ext(strings.SplitN(src, "?", 2)[0]); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".jpg"
}
