// Package ledger persists the crawl job list and its per-job outcomes. The
// manifest file is the single source of truth for resuming an interrupted
// session.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the manifest file kept inside the output directory.
const FileName = "manifest.json"

// Status is the lifecycle state of one job.
type Status string

// Job statuses. StatusInProgress is an in-memory annotation only: it is
// written to disk as pending, so a crash mid-attempt can never strand a job
// in a state that does not survive restart.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusExtracted  Status = "extracted"
	StatusFailed     Status = "failed"
)

// ImageStats counts sub-resource downloads performed by the extractor.
type ImageStats struct {
	Total  int   `json:"total"`
	OK     int   `json:"ok"`
	Failed int   `json:"failed"`
	Bytes  int64 `json:"bytes"`
}

// Record is one crawl target. Seq is assigned once at first insertion and
// never reused; URL is immutable; Errors only ever grows.
type Record struct {
	Seq         int         `json:"seq"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Status      Status      `json:"status"`
	DirName     string      `json:"dir_name"`
	Author      string      `json:"author,omitempty"`
	PublishTime string      `json:"publish_time,omitempty"`
	Attempts    int         `json:"attempts"`
	Errors      []string    `json:"errors"`
	Images      *ImageStats `json:"img_stats,omitempty"`
}

// Ledger is the ordered job collection for one crawl session, keyed by URL.
// It is owned by a single goroutine; methods are not safe for concurrent use.
type Ledger struct {
	path    string
	records []*Record
	byURL   map[string]*Record
}

// Load reads the manifest at path. A missing file yields an empty ledger; an
// unreadable or corrupt file is an error so a typo never silently restarts a
// finished crawl from scratch.
func Load(path string) (*Ledger, error) {
	l := &Ledger{path: path, byURL: make(map[string]*Record)}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &l.records); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	for _, rec := range l.records {
		if rec.Status == StatusInProgress {
			// Save never writes this status; coerce anything stray.
			rec.Status = StatusPending
		}
		if rec.URL != "" {
			l.byURL[rec.URL] = rec
		}
	}
	return l, nil
}

// Path returns the manifest location.
func (l *Ledger) Path() string { return l.path }

// Len reports the number of records.
func (l *Ledger) Len() int { return len(l.records) }

// Records returns the records in seq order. The slice is a copy but the
// pointers are shared; callers mutate records in place and then Save.
func (l *Ledger) Records() []*Record {
	out := make([]*Record, len(l.records))
	copy(out, l.records)
	return out
}

// Get returns the record for url, or nil.
func (l *Ledger) Get(url string) *Record {
	return l.byURL[url]
}

// Seed merges urls into the ledger. Existing records keep their seq, status,
// attempts and errors; new URLs are appended as pending with the next seq.
// Returns the number of records added.
func (l *Ledger) Seed(urls []string) int {
	added := 0
	for _, url := range urls {
		if url == "" {
			continue
		}
		if _, exists := l.byURL[url]; exists {
			continue
		}
		rec := &Record{
			Seq:    len(l.records) + 1,
			URL:    url,
			Status: StatusPending,
			Errors: []string{},
		}
		l.records = append(l.records, rec)
		l.byURL[url] = rec
		added++
	}
	return added
}

// Save rewrites the manifest atomically: the full record list is written to a
// temp file in the same directory and renamed over the old one, so a crash
// mid-write never corrupts previously durable state. In-progress records are
// serialized as pending.
func (l *Ledger) Save() error {
	persisted := make([]Record, len(l.records))
	for i, rec := range l.records {
		persisted[i] = *rec
		if persisted[i].Status == StatusInProgress {
			persisted[i].Status = StatusPending
		}
		if persisted[i].Errors == nil {
			persisted[i].Errors = []string{}
		}
	}
	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// Pending returns the pending records in ascending seq order.
func (l *Ledger) Pending() []*Record {
	var out []*Record
	for _, rec := range l.records {
		if rec.Status == StatusPending {
			out = append(out, rec)
		}
	}
	return out
}

// Counts tallies records per status.
func (l *Ledger) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, rec := range l.records {
		counts[rec.Status]++
	}
	return counts
}

// ResetFailed re-enqueues permanently failed records: status back to pending
// and attempts back to zero so the retry ceiling applies afresh. Errors are
// history and stay.
func (l *Ledger) ResetFailed() int {
	n := 0
	for _, rec := range l.records {
		if rec.Status == StatusFailed {
			rec.Status = StatusPending
			rec.Attempts = 0
			n++
		}
	}
	return n
}

// ForceReset re-enqueues every terminal record, leaving attempts untouched so
// history is preserved.
func (l *Ledger) ForceReset() int {
	n := 0
	for _, rec := range l.records {
		if rec.Status == StatusExtracted || rec.Status == StatusFailed {
			rec.Status = StatusPending
			n++
		}
	}
	return n
}
