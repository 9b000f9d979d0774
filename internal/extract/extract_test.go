package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeDirName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		seq   int
		title string
		want  string
	}{
		{"plain", 1, "Hello World", "0001_Hello-World"},
		{"punctuation collapses", 7, "What?! A: test...", "0007_What-A-test..."},
		{"empty title", 12, "", "0012_untitled"},
		{"cjk preserved", 3, "深入理解计算机系统", "0003_深入理解计算机系统"},
		{"only punctuation", 5, "???", "0005_untitled"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, SafeDirName(tc.seq, tc.title))
		})
	}
}

func TestExtractWritesPageAndMetadata(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<title>My Article</title>
<meta name="author" content="A. Writer">
<meta property="article:published_time" content="2025-03-02T10:00:00Z">
</head><body><p>body text</p></body></html>`

	outDir := t.TempDir()
	x := NewHTMLExtractor(nil, true, nil)
	res, err := x.Extract(context.Background(), html, outDir, 4)
	require.NoError(t, err)

	assert.Equal(t, "My Article", res.Title)
	assert.Equal(t, "A. Writer", res.Author)
	assert.Equal(t, "2025-03-02T10:00:00Z", res.PublishTime)
	assert.Equal(t, "0004_My-Article", res.DirName)

	written, err := os.ReadFile(filepath.Join(outDir, res.DirName, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, html, string(written))
}

func TestExtractFallsBackToOGTitle(t *testing.T) {
	t.Parallel()

	html := `<html><head><meta property="og:title" content="Social Title"></head><body></body></html>`
	x := NewHTMLExtractor(nil, true, nil)
	res, err := x.Extract(context.Background(), html, t.TempDir(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Social Title", res.Title)
}

func TestExtractDownloadsImages(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngbytes")) //nolint:errcheck
	}))
	t.Cleanup(server.Close)

	html := `<html><head><title>Pics</title></head><body>
<img src="` + server.URL + `/one.png">
<img data-src="` + server.URL + `/two.png">
<img src="` + server.URL + `/broken.png">
<img src="/relative/skipped.png">
</body></html>`

	outDir := t.TempDir()
	x := NewHTMLExtractor(server.Client(), false, nil)
	res, err := x.Extract(context.Background(), html, outDir, 2)
	require.NoError(t, err)

	require.NotNil(t, res.Images)
	assert.Equal(t, 3, res.Images.Total, "relative sources are not counted")
	assert.Equal(t, 2, res.Images.OK)
	assert.Equal(t, 1, res.Images.Failed)
	assert.Equal(t, int64(16), res.Images.Bytes)
	assert.Len(t, res.Errors, 1)

	entries, err := os.ReadDir(filepath.Join(outDir, res.DirName, "images"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestExtractSkipImagesOnlyCounts(t *testing.T) {
	t.Parallel()

	html := `<html><head><title>Pics</title></head><body>
<img src="https://cdn.example.com/a.jpg"><img src="https://cdn.example.com/b.jpg">
</body></html>`

	outDir := t.TempDir()
	x := NewHTMLExtractor(nil, true, nil)
	res, err := x.Extract(context.Background(), html, outDir, 9)
	require.NoError(t, err)

	require.NotNil(t, res.Images)
	assert.Equal(t, 2, res.Images.Total)
	assert.Equal(t, 0, res.Images.OK)
	assert.NoDirExists(t, filepath.Join(outDir, res.DirName, "images"))
}
