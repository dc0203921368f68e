package indexer

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/engramd/engram/pkg/engram/memory"
)

type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		sum := sha256.Sum256([]byte(t))
		vec := make([]float32, 4)
		for j := range vec {
			vec[j] = float32(sum[j])/255 + 0.01
		}
		out[i] = vec
	}
	return out, nil
}
func (hashEmbedder) Dimensions() int { return 4 }
func (hashEmbedder) Name() string    { return "hash" }
func (hashEmbedder) Model() string   { return "hash-1" }

func newTestIndexer(t *testing.T, patterns []string, debounce time.Duration) (*Indexer, *memory.Store) {
	t.Helper()
	store, err := memory.Open(memory.Options{
		Path:     filepath.Join(t.TempDir(), "memory.db"),
		Embedder: hashEmbedder{},
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ix := New(store, Options{
		Patterns: patterns,
		Debounce: debounce,
	})
	return ix, store
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestIndexFileAddsParagraphEntries(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	writeFile(t, path, "first paragraph about caching\n\nsecond paragraph about retries\n")

	ix, store := newTestIndexer(t, []string{filepath.Join(dir, "*.md")}, time.Millisecond)
	ctx := context.Background()

	if err := ix.IndexFile(ctx, path); err != nil {
		t.Fatalf("index file: %v", err)
	}

	entries, err := store.ListBySource(ctx, memory.SourceFileIndex, path)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Source != memory.SourceFileIndex {
			t.Errorf("source = %q", e.Source)
		}
		if e.Context != path {
			t.Errorf("context = %q, want file path", e.Context)
		}
	}
}

func TestIndexFileReconcilesChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	writeFile(t, path, "keep this paragraph\n\ndrop this paragraph\n")

	ix, store := newTestIndexer(t, []string{filepath.Join(dir, "*.md")}, time.Millisecond)
	ctx := context.Background()

	if err := ix.IndexFile(ctx, path); err != nil {
		t.Fatalf("first index: %v", err)
	}
	before, err := store.ListBySource(ctx, memory.SourceFileIndex, path)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var keptID int64
	for _, e := range before {
		if e.Content == "keep this paragraph" {
			keptID = e.ID
		}
	}

	writeFile(t, path, "keep this paragraph\n\na brand new paragraph\n")
	if err := ix.IndexFile(ctx, path); err != nil {
		t.Fatalf("second index: %v", err)
	}

	after, err := store.ListBySource(ctx, memory.SourceFileIndex, path)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("got %d entries after reindex, want 2", len(after))
	}
	found := map[string]int64{}
	for _, e := range after {
		found[e.Content] = e.ID
	}
	if _, ok := found["drop this paragraph"]; ok {
		t.Error("stale paragraph survived reindex")
	}
	if found["keep this paragraph"] != keptID {
		t.Error("unchanged paragraph was recreated instead of kept")
	}
}

func TestScanSkipsUnchangedContent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	writeFile(t, path, "stable content\n")

	ix, _ := newTestIndexer(t, []string{filepath.Join(dir, "*.md")}, time.Millisecond)

	if changed := ix.Scan(); changed != 1 {
		t.Fatalf("first scan changed = %d, want 1", changed)
	}
	if err := ix.IndexFile(context.Background(), path); err != nil {
		t.Fatalf("index: %v", err)
	}

	// Touch without modification: same hash, no pending change.
	writeFile(t, path, "stable content\n")
	ix.mu.Lock()
	ix.pending = map[string]time.Time{}
	ix.mu.Unlock()
	if changed := ix.Scan(); changed != 0 {
		t.Errorf("scan after reindex changed = %d, want 0", changed)
	}
}

func TestFlushHonorsDebounce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	writeFile(t, path, "debounced content\n")

	debounce := 5 * time.Second
	ix, _ := newTestIndexer(t, []string{filepath.Join(dir, "*.md")}, debounce)

	if changed := ix.Scan(); changed != 1 {
		t.Fatalf("scan changed = %d, want 1", changed)
	}

	// Inside the quiet window nothing is queued.
	if queued := ix.Flush(time.Now()); queued != 0 {
		t.Errorf("flush inside window queued %d", queued)
	}

	// After the window passes, the change flushes exactly once.
	later := time.Now().Add(debounce + time.Second)
	if queued := ix.Flush(later); queued != 1 {
		t.Errorf("flush after window queued %d, want 1", queued)
	}
	if queued := ix.Flush(later); queued != 0 {
		t.Errorf("second flush queued %d, want 0", queued)
	}
	if got := <-ix.queue; got != path {
		t.Errorf("queued path = %q, want %q", got, path)
	}
}

func TestReindexAll(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.md"), "alpha notes\n")
	writeFile(t, filepath.Join(dir, "b.md"), "beta notes\n")

	ix, store := newTestIndexer(t, []string{filepath.Join(dir, "*.md")}, time.Millisecond)
	if err := ix.ReindexAll(context.Background()); err != nil {
		t.Fatalf("reindex all: %v", err)
	}

	entries, err := store.ListBySource(context.Background(), memory.SourceFileIndex, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestSplitParagraphs(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "  \n \n\n ", 0},
		{"single block", "one paragraph", 1},
		{"two blocks", "one\n\ntwo", 2},
		{"windows line endings", "one\r\n\r\ntwo", 2},
		{"extra blank lines", "one\n\n\n\ntwo\n\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitParagraphs(tt.in); len(got) != tt.want {
				t.Errorf("splitParagraphs(%q) = %d blocks, want %d", tt.in, len(got), tt.want)
			}
		})
	}
}
