package memory

import (
	"context"
	"fmt"
	"testing"
	"time"
)

const scaleCorpusSize = 10000

// seedScaleCorpus fills a store with distinct entries across every type.
func seedScaleCorpus(tb testing.TB, store *Store, n int) {
	tb.Helper()
	ctx := context.Background()
	types := []EntryType{TypeFact, TypePreference, TypeEvent, TypeInsight, TypeTask, TypeRelationship}
	for i := 0; i < n; i++ {
		content := fmt.Sprintf("entry %d covers service-%d latency on shard %d", i, i%97, i%13)
		if _, err := store.Add(ctx, content, AddOptions{EntryType: types[i%len(types)]}); err != nil {
			tb.Fatalf("seed entry %d: %v", i, err)
		}
	}
}

// TestSearchAtScale bounds per-query latency over a ten-thousand-entry
// corpus. 500ms is generous on any hardware this runs on; the point is to
// catch an accidental O(n^2) or per-result query regression.
func TestSearchAtScale(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scale test in short mode")
	}
	store := newTestStore(t, nil)
	seedScaleCorpus(t, store, scaleCorpusSize)
	ctx := context.Background()

	for _, mode := range []SearchMode{ModeKeyword, ModeVector, ModeHybrid} {
		best := time.Duration(1<<63 - 1)
		for run := 0; run < 3; run++ {
			start := time.Now()
			results, err := store.Search(ctx, "service-42 latency", SearchOptions{Mode: mode})
			if err != nil {
				t.Fatalf("%s search: %v", mode, err)
			}
			if len(results) == 0 {
				t.Fatalf("%s search returned nothing", mode)
			}
			if d := time.Since(start); d < best {
				best = d
			}
		}
		if best > 500*time.Millisecond {
			t.Errorf("%s search took %v, want under 500ms", mode, best)
		}
	}
}

func benchmarkSearch(b *testing.B, mode SearchMode) {
	store := newTestStore(b, nil)
	seedScaleCorpus(b, store, scaleCorpusSize)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.Search(ctx, "service-42 latency", SearchOptions{Mode: mode}); err != nil {
			b.Fatalf("search: %v", err)
		}
	}
}

func BenchmarkSearchKeyword(b *testing.B) { benchmarkSearch(b, ModeKeyword) }
func BenchmarkSearchVector(b *testing.B)  { benchmarkSearch(b, ModeVector) }
func BenchmarkSearchHybrid(b *testing.B)  { benchmarkSearch(b, ModeHybrid) }
