package memory

import (
	"context"
	"crypto/sha256"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// stubEmbedder produces deterministic vectors: fixed ones from the vectors
// map when present, otherwise a hash-derived vector. Call count is tracked
// for cache tests.
type stubEmbedder struct {
	mu      sync.Mutex
	calls   int
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls += len(texts)
	s.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := s.vectors[t]; ok {
			out[i] = v
			continue
		}
		sum := sha256.Sum256([]byte(t))
		vec := make([]float32, 4)
		for j := range vec {
			vec[j] = float32(sum[j])/255 + 0.01
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubEmbedder) Dimensions() int { return 4 }
func (s *stubEmbedder) Name() string    { return "stub" }
func (s *stubEmbedder) Model() string   { return "stub-1" }

// failEmbedder always errors, simulating a dead provider.
type failEmbedder struct{}

func (f *failEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errors.New("provider offline")
}
func (f *failEmbedder) Dimensions() int { return 0 }
func (f *failEmbedder) Name() string    { return "fail" }
func (f *failEmbedder) Model() string   { return "fail" }

func newTestStore(t testing.TB, embedder EmbeddingProvider) *Store {
	t.Helper()
	if embedder == nil {
		embedder = &stubEmbedder{}
	}
	store, err := Open(Options{
		Path:     filepath.Join(t.TempDir(), "memory.db"),
		Embedder: embedder,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAddAppliesDefaults(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)
	ctx := context.Background()

	res, err := store.Add(ctx, "the deploy pipeline runs on Fridays", AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !res.Created || res.Duplicate {
		t.Fatalf("expected fresh entry, got %+v", res)
	}

	entry, err := store.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.EntryType != TypeFact {
		t.Errorf("entry type = %q, want fact", entry.EntryType)
	}
	if entry.Source != "manual" {
		t.Errorf("source = %q, want manual", entry.Source)
	}
	if entry.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", entry.Confidence)
	}
	if entry.Importance != 5 {
		t.Errorf("importance = %d, want 5", entry.Importance)
	}
	if entry.ContentHash != HashContent("the deploy pipeline runs on Fridays") {
		t.Errorf("content hash mismatch")
	}
	if entry.CreatedAt.IsZero() || entry.UpdatedAt.IsZero() {
		t.Errorf("timestamps not set: %+v", entry)
	}
}

func TestAddDeduplicatesByContent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)
	ctx := context.Background()

	first, err := store.Add(ctx, "user prefers tabs over spaces", AddOptions{})
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	second, err := store.Add(ctx, "user prefers tabs over spaces", AddOptions{
		EntryType:  TypePreference,
		Importance: intPtr(9),
	})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("duplicate id = %d, want %d", second.ID, first.ID)
	}
	if second.Created || !second.Duplicate {
		t.Errorf("expected duplicate result, got %+v", second)
	}
	if n := store.EntryCount(); n != 1 {
		t.Errorf("entry count = %d, want 1", n)
	}

	// The duplicate attempt must not mutate the original.
	entry, err := store.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.EntryType != TypeFact || entry.Importance != 5 {
		t.Errorf("original mutated by duplicate add: %+v", entry)
	}
}

func TestAddRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := store.Add(ctx, "   \n\t ", AddOptions{}); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("whitespace content: err = %v, want ErrEmptyContent", err)
	}
	if _, err := store.Add(ctx, "x", AddOptions{EntryType: "opinion"}); err == nil {
		t.Error("invalid entry type accepted")
	}
	if _, err := store.Add(ctx, "x", AddOptions{Confidence: floatPtr(1.5)}); err == nil {
		t.Error("confidence 1.5 accepted")
	}
	if _, err := store.Add(ctx, "x", AddOptions{Importance: intPtr(0)}); err == nil {
		t.Error("importance 0 accepted")
	}
	if _, err := store.Add(ctx, "x", AddOptions{Importance: intPtr(11)}); err == nil {
		t.Error("importance 11 accepted")
	}
}

func TestAddFailsWhenEmbedderDown(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, &failEmbedder{})
	ctx := context.Background()

	_, err := store.Add(ctx, "should never be stored", AddOptions{})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}
	if n := store.EntryCount(); n != 0 {
		t.Errorf("entry count = %d, want 0 after failed add", n)
	}

	// The keyword index must not know about the failed entry either.
	results, err := store.Search(ctx, "stored", SearchOptions{Mode: ModeKeyword})
	if err != nil {
		t.Fatalf("keyword search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("keyword search found %d ghosts", len(results))
	}
}

func TestGetRecordsAccess(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)
	ctx := context.Background()

	res, err := store.Add(ctx, "standup is at 9:30", AddOptions{EntryType: TypeEvent})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	first, err := store.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if first.AccessCount != 1 || first.LastAccessedAt == nil {
		t.Errorf("first get bookkeeping: count=%d last=%v", first.AccessCount, first.LastAccessedAt)
	}

	second, err := store.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if second.AccessCount != 2 {
		t.Errorf("access count = %d, want 2", second.AccessCount)
	}
	if second.LastAccessedAt.Before(*first.LastAccessedAt) {
		t.Errorf("last accessed went backwards: %v -> %v", first.LastAccessedAt, second.LastAccessedAt)
	}

	log, err := store.AccessLog(ctx, res.ID, 10)
	if err != nil {
		t.Fatalf("access log: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("access log rows = %d, want 2", len(log))
	}
	for _, rec := range log {
		if rec.AccessType != AccessGet {
			t.Errorf("access type = %q, want get", rec.AccessType)
		}
		if rec.ID == "" {
			t.Error("access record missing id")
		}
	}
}

func TestGetUnknownID(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)

	_, err := store.Get(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesAllTraces(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)
	ctx := context.Background()

	res, err := store.Add(ctx, "temporary note about zanzibar", AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	existed, err := store.Delete(ctx, res.ID)
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}

	if _, err := store.Get(ctx, res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: err = %v, want ErrNotFound", err)
	}

	for _, mode := range []SearchMode{ModeKeyword, ModeVector, ModeHybrid} {
		results, err := store.Search(ctx, "zanzibar", SearchOptions{Mode: mode})
		if err != nil {
			t.Fatalf("%s search after delete: %v", mode, err)
		}
		if len(results) != 0 {
			t.Errorf("%s search returned %d ghost results", mode, len(results))
		}
	}

	existed, err = store.Delete(ctx, res.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if existed {
		t.Error("second delete reported an existing row")
	}
}

func TestDeleteFreesContentForReAdd(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)
	ctx := context.Background()

	first, err := store.Add(ctx, "retry budget is 3", AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	second, err := store.Add(ctx, "retry budget is 3", AddOptions{})
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if !second.Created || second.Duplicate {
		t.Errorf("re-add after delete should create fresh entry, got %+v", second)
	}
	if second.ID == first.ID {
		t.Errorf("re-add reused id %d", first.ID)
	}
}

func TestStatsEmptyStore(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEntries != 0 || stats.AvgImportance != 0 || stats.AvgConfidence != 0 {
		t.Errorf("empty stats not zeroed: %+v", stats)
	}
	if stats.OldestEntry != nil || stats.NewestEntry != nil {
		t.Errorf("empty stats carry timestamps: %+v", stats)
	}
	if len(stats.ByType) != 0 {
		t.Errorf("empty stats carry type counts: %+v", stats.ByType)
	}
}

func TestStatsAggregates(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)
	ctx := context.Background()

	adds := []struct {
		content string
		opts    AddOptions
	}{
		{"go modules cache lives in GOPATH", AddOptions{EntryType: TypeFact, Importance: intPtr(4)}},
		{"prefers dark themes", AddOptions{EntryType: TypePreference, Importance: intPtr(6)}},
		{"prefers vim keybindings", AddOptions{EntryType: TypePreference, Importance: intPtr(8), Confidence: floatPtr(0.5)}},
	}
	var lastID int64
	for _, a := range adds {
		res, err := store.Add(ctx, a.content, a.opts)
		if err != nil {
			t.Fatalf("add %q: %v", a.content, err)
		}
		lastID = res.ID
	}
	if _, err := store.Get(ctx, lastID); err != nil {
		t.Fatalf("get: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEntries != 3 {
		t.Errorf("total = %d, want 3", stats.TotalEntries)
	}
	if stats.ByType[TypeFact] != 1 || stats.ByType[TypePreference] != 2 {
		t.Errorf("by type = %+v", stats.ByType)
	}
	if stats.AvgImportance != 6 {
		t.Errorf("avg importance = %v, want 6", stats.AvgImportance)
	}
	wantConfidence := (1.0 + 1.0 + 0.5) / 3
	if diff := stats.AvgConfidence - wantConfidence; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("avg confidence = %v, want %v", stats.AvgConfidence, wantConfidence)
	}
	if stats.TotalAccesses != 1 {
		t.Errorf("total accesses = %d, want 1", stats.TotalAccesses)
	}
	if stats.OldestEntry == nil || stats.NewestEntry == nil {
		t.Fatalf("missing corpus timestamps: %+v", stats)
	}
	if stats.NewestEntry.Before(*stats.OldestEntry) {
		t.Errorf("newest %v before oldest %v", stats.NewestEntry, stats.OldestEntry)
	}
}

func TestDeleteExpired(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	expired, err := store.Add(ctx, "stale context from last sprint", AddOptions{ExpiresAt: &past})
	if err != nil {
		t.Fatalf("add expired: %v", err)
	}
	if _, err := store.Add(ctx, "still relevant decision", AddOptions{ExpiresAt: &future}); err != nil {
		t.Fatalf("add future: %v", err)
	}
	if _, err := store.Add(ctx, "never expires", AddOptions{}); err != nil {
		t.Fatalf("add permanent: %v", err)
	}

	removed, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := store.Get(ctx, expired.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired entry still readable: %v", err)
	}
	if n := store.EntryCount(); n != 2 {
		t.Errorf("entry count = %d, want 2", n)
	}
}

func TestEmbeddingCacheAvoidsReEmbed(t *testing.T) {
	t.Parallel()
	embedder := &stubEmbedder{}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	res, err := store.Add(ctx, "cached once", AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.Delete(ctx, res.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Add(ctx, "cached once", AddOptions{}); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	if calls := embedder.callCount(); calls != 1 {
		t.Errorf("embed calls = %d, want 1 (second add should hit the cache)", calls)
	}
}

func TestListRecent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		if _, err := store.Add(ctx, content, AddOptions{}); err != nil {
			t.Fatalf("add %q: %v", content, err)
		}
	}

	entries, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ID < entries[1].ID {
		t.Errorf("entries not newest-first: %d before %d", entries[0].ID, entries[1].ID)
	}
}

func TestPruneAccessLog(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, nil)
	ctx := context.Background()

	res, err := store.Add(ctx, "prune target", AddOptions{})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.Get(ctx, res.ID); err != nil {
		t.Fatalf("get: %v", err)
	}

	// Nothing is older than a day yet.
	pruned, err := store.PruneAccessLog(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 0 {
		t.Errorf("pruned %d fresh rows", pruned)
	}

	// A zero retention window prunes everything.
	pruned, err = store.PruneAccessLog(ctx, -time.Second)
	if err != nil {
		t.Fatalf("prune all: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
