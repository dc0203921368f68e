package memory

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestQueryKeywords(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"what is the kafka consumer lag", []string{"kafka", "consumer", "lag"}},
		{"Deploy, please!", []string{"deploy", "please"}},
		{"the of and 42 a", nil},
		{"db-3 hosts staging", []string{"db-3", "hosts", "staging"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := queryKeywords(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("queryKeywords(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExpandMatchExpr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"deploying the gateway", `"deploying" OR deploying* OR "gateway" OR gateway*`},
		{"db db db", `"db"`},
		{"the of and", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandMatchExpr(tt.in); got != tt.want {
			t.Errorf("expandMatchExpr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApplyTemporalDecay(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	old := now.Add(-30 * 24 * time.Hour)

	results := []SearchResult{
		{Entry: Entry{ID: 1, EntryType: TypeEvent, CreatedAt: old}, Score: 1},
		{Entry: Entry{ID: 2, EntryType: TypeFact, CreatedAt: old}, Score: 1},
		{Entry: Entry{ID: 3, EntryType: TypeEvent, CreatedAt: now}, Score: 1},
	}
	applyTemporalDecay(results, TemporalDecayOptions{Enabled: true, HalfLifeDays: 30})

	// One half-life elapsed: the old event halves.
	if got := results[0].Score; got < 0.45 || got > 0.55 {
		t.Errorf("old event score = %v, want ~0.5", got)
	}
	// Facts are durable regardless of age.
	if results[1].Score != 1 {
		t.Errorf("old fact score = %v, want 1", results[1].Score)
	}
	// A fresh event keeps essentially its full score.
	if results[2].Score < 0.99 {
		t.Errorf("fresh event score = %v, want ~1", results[2].Score)
	}
}

func TestApplyMMRDiversifies(t *testing.T) {
	t.Parallel()
	results := []SearchResult{
		{Entry: Entry{ID: 1, Content: "kafka consumer lag rising on broker three"}, Score: 1},
		{Entry: Entry{ID: 2, Content: "kafka consumer lag rising on broker seven"}, Score: 0.99},
		{Entry: Entry{ID: 3, Content: "postgres replica promoted after failover"}, Score: 0.9},
	}

	picked := applyMMR(results, MMROptions{Enabled: true}, 2)
	if len(picked) != 2 {
		t.Fatalf("got %d results, want 2", len(picked))
	}
	if picked[0].ID != 1 {
		t.Errorf("first pick = #%d, want the top-ranked #1", picked[0].ID)
	}
	// The near-duplicate loses to the distinct result despite its higher
	// relevance.
	if picked[1].ID != 3 {
		t.Errorf("second pick = #%d, want the diverse #3", picked[1].ID)
	}

	// Under the limit, MMR is a no-op.
	if got := applyMMR(results, MMROptions{Enabled: true}, 5); len(got) != 3 {
		t.Errorf("under-limit MMR returned %d results", len(got))
	}
}

func TestJaccardSimilarity(t *testing.T) {
	t.Parallel()
	a := contentTokens("kafka consumer lag")
	b := contentTokens("kafka consumer lag")
	c := contentTokens("postgres replica failover")

	if got := jaccardSimilarity(a, b); got != 1 {
		t.Errorf("identical sets = %v, want 1", got)
	}
	if got := jaccardSimilarity(a, c); got != 0 {
		t.Errorf("disjoint sets = %v, want 0", got)
	}
	if got := jaccardSimilarity(nil, a); got != 0 {
		t.Errorf("empty vs non-empty = %v, want 0", got)
	}
}

// decayCorpus stores three entries with identical query similarity: two
// events (one backdated a quarter) and an equally old fact.
func decayCorpus(t *testing.T) (*Store, map[string]int64) {
	t.Helper()
	vec := []float32{1, 0, 0, 0}
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"deploy batch":        vec,
		"deploy batch alpha":  vec,
		"deploy batch bravo":  vec,
		"deploy policy codex": vec,
	}}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	ids := make(map[string]int64)
	add := func(content string, typ EntryType) {
		res, err := store.Add(ctx, content, AddOptions{EntryType: typ})
		if err != nil {
			t.Fatalf("add %q: %v", content, err)
		}
		ids[content] = res.ID
	}
	add("deploy batch alpha", TypeEvent)
	add("deploy batch bravo", TypeEvent)
	add("deploy policy codex", TypeFact)

	backdate := time.Now().UTC().Add(-90 * 24 * time.Hour).Format(timeFormat)
	for _, content := range []string{"deploy batch alpha", "deploy policy codex"} {
		if _, err := store.db.Exec(
			"UPDATE entries SET created_at = ? WHERE id = ?", backdate, ids[content],
		); err != nil {
			t.Fatalf("backdate %q: %v", content, err)
		}
	}
	return store, ids
}

func TestSearchTemporalDecayPrefersRecent(t *testing.T) {
	t.Parallel()
	store, ids := decayCorpus(t)
	ctx := context.Background()

	plain, err := store.Search(ctx, "deploy batch", SearchOptions{Mode: ModeVector})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(plain) != 3 {
		t.Fatalf("got %d results, want 3", len(plain))
	}
	if plain[0].ID != ids["deploy batch alpha"] {
		t.Errorf("undecayed top = #%d, want oldest id on tied scores", plain[0].ID)
	}

	decayed, err := store.Search(ctx, "deploy batch", SearchOptions{
		Mode:  ModeVector,
		Decay: TemporalDecayOptions{Enabled: true, HalfLifeDays: 30},
	})
	if err != nil {
		t.Fatalf("decayed search: %v", err)
	}
	if len(decayed) != 3 {
		t.Fatalf("got %d results, want 3", len(decayed))
	}
	// The equally old fact does not decay and outranks both events; the
	// quarter-old event falls to the bottom.
	if decayed[0].ID != ids["deploy policy codex"] {
		t.Errorf("decayed top = #%d, want the durable fact", decayed[0].ID)
	}
	if decayed[2].ID != ids["deploy batch alpha"] {
		t.Errorf("decayed last = #%d, want the stale event", decayed[2].ID)
	}
}

func TestSearchMMRSelectsDiversePool(t *testing.T) {
	t.Parallel()
	vec := []float32{1, 0, 0, 0}
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"incident summary":                          vec,
		"kafka consumer lag rising on broker three": vec,
		"kafka consumer lag rising on broker seven": vec,
		"kafka consumer lag rising on broker nine":  vec,
		"postgres replica promoted after failover":  vec,
	}}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	var firstID, diverseID int64
	for i, content := range []string{
		"kafka consumer lag rising on broker three",
		"kafka consumer lag rising on broker seven",
		"kafka consumer lag rising on broker nine",
		"postgres replica promoted after failover",
	} {
		res, err := store.Add(ctx, content, AddOptions{})
		if err != nil {
			t.Fatalf("add %q: %v", content, err)
		}
		if i == 0 {
			firstID = res.ID
		}
		if i == 3 {
			diverseID = res.ID
		}
	}

	results, err := store.Search(ctx, "incident summary", SearchOptions{
		Mode:  ModeVector,
		Limit: 2,
		MMR:   MMROptions{Enabled: true},
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != firstID || results[1].ID != diverseID {
		t.Errorf("picks = #%d, #%d; want top #%d then diverse #%d",
			results[0].ID, results[1].ID, firstID, diverseID)
	}
}
