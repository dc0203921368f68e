// Package indexer watches configured file globs and mirrors their content
// into the memory store. Files are polled rather than watched with inotify:
// the watched sets are small, polling behaves identically across platforms,
// and a missed event cannot wedge the pipeline.
//
// Change detection is content-hash based, so touch without modification is a
// no-op. Changes debounce for a quiet window before indexing, coalescing
// editor save bursts into one run. All writes use source "file-index" and
// the file path as context; those entries live only in the database, never
// in watched files, so the indexer cannot feed on its own output.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/engramd/engram/pkg/engram/memory"
)

const (
	defaultScanInterval = 30 * time.Second
	defaultDebounce     = 5 * time.Second

	// queueCap bounds the pending-file queue; a full queue drops events and
	// the next scan picks the files up again.
	queueCap = 256
)

// Options configures an Indexer.
type Options struct {
	// Patterns are glob patterns of files to index.
	Patterns []string

	// ScanInterval is the polling period. Zero means 30s.
	ScanInterval time.Duration

	// Debounce is the quiet window before a changed file is indexed.
	// Zero means 5s.
	Debounce time.Duration

	Logger *slog.Logger
}

// Indexer keeps watched files mirrored into the store.
type Indexer struct {
	store    *memory.Store
	logger   *slog.Logger
	patterns []string

	scanInterval time.Duration
	debounce     time.Duration

	mu       sync.Mutex
	lastHash map[string]string    // path -> content hash at last index
	pending  map[string]time.Time // path -> last observed change

	queue chan string
}

// New creates an indexer over the given store.
func New(store *memory.Store, opts Options) *Indexer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scanInterval := opts.ScanInterval
	if scanInterval <= 0 {
		scanInterval = defaultScanInterval
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Indexer{
		store:        store,
		logger:       logger.With("component", "indexer"),
		patterns:     opts.Patterns,
		scanInterval: scanInterval,
		debounce:     debounce,
		lastHash:     make(map[string]string),
		pending:      make(map[string]time.Time),
		queue:        make(chan string, queueCap),
	}
}

// Run polls and indexes until the context is cancelled. A single consumer
// goroutine drains the queue, so file indexing never runs concurrently with
// itself.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.logger.Info("indexer started",
		"patterns", strings.Join(ix.patterns, ","),
		"scan_interval", ix.scanInterval,
		"debounce", ix.debounce)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ix.consume(ctx)
	}()

	scanTicker := time.NewTicker(ix.scanInterval)
	defer scanTicker.Stop()

	// Flush matured debounce entries more often than full scans.
	flushTicker := time.NewTicker(ix.flushPeriod())
	defer flushTicker.Stop()

	ix.Scan()
	ix.Flush(time.Now())

	for {
		select {
		case <-ctx.Done():
			close(ix.queue)
			wg.Wait()
			return ctx.Err()
		case <-scanTicker.C:
			ix.Scan()
		case <-flushTicker.C:
			ix.Flush(time.Now())
		}
	}
}

func (ix *Indexer) flushPeriod() time.Duration {
	p := ix.debounce / 2
	if p < 100*time.Millisecond {
		p = 100 * time.Millisecond
	}
	return p
}

// Scan resolves the glob patterns and marks changed files as pending.
// Returns the number of changes observed.
func (ix *Indexer) Scan() int {
	changed := 0
	now := time.Now()
	for _, pattern := range ix.patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			ix.logger.Warn("bad glob pattern", "pattern", pattern, "error", err.Error())
			continue
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			hash := memory.HashContent(string(data))

			ix.mu.Lock()
			if ix.lastHash[path] != hash {
				ix.pending[path] = now
				changed++
			}
			ix.mu.Unlock()
		}
	}
	return changed
}

// Flush moves pending files whose quiet window has passed into the indexing
// queue. Returns the number of files queued.
func (ix *Indexer) Flush(now time.Time) int {
	ix.mu.Lock()
	var ready []string
	for path, seen := range ix.pending {
		if now.Sub(seen) >= ix.debounce {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(ix.pending, path)
	}
	ix.mu.Unlock()

	queued := 0
	for _, path := range ready {
		select {
		case ix.queue <- path:
			queued++
		default:
			// Queue full; the next scan re-detects the file.
			ix.logger.Warn("index queue full, deferring", "path", path)
		}
	}
	return queued
}

// consume drains the queue until it is closed.
func (ix *Indexer) consume(ctx context.Context) {
	for path := range ix.queue {
		if err := ix.IndexFile(ctx, path); err != nil {
			ix.logger.Warn("index file failed", "path", path, "error", err.Error())
		}
	}
}

// IndexFile mirrors one file into the store: each paragraph becomes an
// entry, entries from a previous version of the file that no longer appear
// are removed, and unchanged paragraphs are left alone by dedup.
func (ix *Indexer) IndexFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)
	hash := memory.HashContent(content)

	paragraphs := splitParagraphs(content)
	newHashes := make(map[string]bool, len(paragraphs))
	for _, p := range paragraphs {
		newHashes[memory.HashContent(p)] = true
	}

	// Remove stale entries from earlier versions of this file.
	existing, err := ix.store.ListBySource(ctx, memory.SourceFileIndex, path)
	if err != nil {
		return fmt.Errorf("list existing: %w", err)
	}
	removed := 0
	for _, e := range existing {
		if !newHashes[e.ContentHash] {
			if _, err := ix.store.Delete(ctx, e.ID); err != nil {
				return fmt.Errorf("remove stale entry %d: %w", e.ID, err)
			}
			removed++
		}
	}

	added := 0
	for _, p := range paragraphs {
		res, err := ix.store.Add(ctx, p, memory.AddOptions{
			Source:  memory.SourceFileIndex,
			Context: path,
		})
		if err != nil {
			return fmt.Errorf("add paragraph: %w", err)
		}
		if res.Created {
			added++
		}
	}

	ix.mu.Lock()
	ix.lastHash[path] = hash
	ix.mu.Unlock()

	ix.logger.Debug("file indexed",
		"path", path, "paragraphs", len(paragraphs), "added", added, "removed", removed)
	return nil
}

// ReindexAll forces a full pass over every watched file, bypassing the
// debounce window. Used by housekeeping and `engram serve` startup.
func (ix *Indexer) ReindexAll(ctx context.Context) error {
	for _, pattern := range ix.patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, path := range matches {
			if err := ix.IndexFile(ctx, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// splitParagraphs breaks file content into blank-line separated blocks,
// dropping empty ones.
func splitParagraphs(content string) []string {
	blocks := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		b = strings.TrimSpace(b)
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}
