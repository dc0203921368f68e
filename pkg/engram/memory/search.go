package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// SearchMode selects which sub-indexes a search consults.
type SearchMode string

const (
	ModeHybrid  SearchMode = "hybrid"
	ModeVector  SearchMode = "vector"
	ModeKeyword SearchMode = "keyword"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100

	// poolFactor over-fetches candidates per sub-index so post-filters have
	// room to discard without starving the final result set.
	poolFactor = 3
)

// SearchOptions configures a search. Zero values mean defaults: hybrid mode,
// limit 10, no filters, store-level fusion weights.
type SearchOptions struct {
	Mode  SearchMode
	Limit int

	// Filters are applied after candidate retrieval, over the combined pool.
	EntryTypes    []EntryType
	MinImportance int
	MinConfidence float64
	Tags          []string

	// VectorWeight and KeywordWeight override the store's fusion weights for
	// this search when both are set above zero.
	VectorWeight  float64
	KeywordWeight float64

	// ExpandQuery rewrites the keyword query with stop-word removal and
	// prefix matching before it reaches the token index. Ignored on the
	// LIKE fallback, which already matches substrings.
	ExpandQuery bool

	// Decay and MMR re-rank the fused pool before the limit is applied.
	// Both are off by default and leave the plain ranking untouched.
	Decay TemporalDecayOptions
	MMR   MMROptions
}

// candidate is a scored id from one sub-index, pre-fusion.
type candidate struct {
	id    int64
	score float64
}

// fusedHit accumulates per-index scores for one entry during fusion.
type fusedHit struct {
	vector   float64
	keyword  float64
	matched  []MatchedBy
	combined float64
}

// Search runs a ranked query over the live corpus. A query that sanitizes to
// nothing yields an empty result without error. Vector-dependent modes
// (vector, hybrid) return ErrEmbeddingUnavailable when no provider is usable;
// keyword mode never depends on the embedder.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SearchResult{}, nil
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeHybrid
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	pool := limit * poolFactor

	vw, kw := s.vectorWeight, s.keywordWeight
	if opts.VectorWeight > 0 && opts.KeywordWeight > 0 {
		vw, kw = opts.VectorWeight, opts.KeywordWeight
	}

	hits := make(map[int64]*fusedHit)

	switch mode {
	case ModeVector:
		vec, err := s.vectorCandidates(ctx, query, pool)
		if err != nil {
			return nil, err
		}
		for _, c := range vec {
			hits[c.id] = &fusedHit{vector: c.score, matched: []MatchedBy{MatchedVector}, combined: c.score}
		}

	case ModeKeyword:
		kwHits, err := s.keywordCandidates(ctx, query, pool, opts.ExpandQuery)
		if err != nil && !errors.Is(err, ErrInvalidQuery) {
			return nil, err
		}
		for _, c := range kwHits {
			hits[c.id] = &fusedHit{keyword: c.score, matched: []MatchedBy{MatchedKeyword}, combined: c.score}
		}

	case ModeHybrid:
		vec, err := s.vectorCandidates(ctx, query, pool)
		if err != nil {
			return nil, err
		}
		kwHits, err := s.keywordCandidates(ctx, query, pool, opts.ExpandQuery)
		if err != nil && !errors.Is(err, ErrInvalidQuery) {
			return nil, err
		}
		for _, c := range vec {
			hits[c.id] = &fusedHit{vector: c.score, matched: []MatchedBy{MatchedVector}}
		}
		for _, c := range kwHits {
			if h, ok := hits[c.id]; ok {
				h.keyword = c.score
				h.matched = append(h.matched, MatchedKeyword)
			} else {
				hits[c.id] = &fusedHit{keyword: c.score, matched: []MatchedBy{MatchedKeyword}}
			}
		}
		for _, h := range hits {
			h.combined = h.vector*vw + h.keyword*kw
		}

	default:
		return nil, fmt.Errorf("memory: unknown search mode %q", mode)
	}

	if len(hits) == 0 {
		return []SearchResult{}, nil
	}

	ids := make([]int64, 0, len(hits))
	for id := range hits {
		ids = append(ids, id)
	}
	entries, err := s.getEntriesByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for id, h := range hits {
		entry, ok := entries[id]
		if !ok {
			// Deleted between candidate retrieval and load.
			continue
		}
		if !matchesFilters(entry, opts) {
			continue
		}
		results = append(results, SearchResult{
			Entry:     entry,
			Score:     h.combined,
			MatchedBy: h.matched,
		})
	}

	// Deterministic ordering: score descending, id ascending on ties.
	byScore := func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.ID < results[j].Entry.ID
	}
	sort.Slice(results, byScore)

	if opts.Decay.Enabled {
		applyTemporalDecay(results, opts.Decay)
		sort.Slice(results, byScore)
	}
	if opts.MMR.Enabled {
		results = applyMMR(results, opts.MMR, limit)
	} else if len(results) > limit {
		results = results[:limit]
	}

	if err := s.recordSearchAccess(ctx, query, results); err != nil {
		return nil, fmt.Errorf("record search access: %w", err)
	}

	s.logger.Debug("search completed",
		"mode", mode, "query_len", len(query), "results", len(results))
	return results, nil
}

// recordSearchAccess logs every returned hit and updates the returned copies
// so callers see the post-access counters.
func (s *Store) recordSearchAccess(ctx context.Context, query string, results []SearchResult) error {
	if len(results) == 0 {
		return nil
	}
	records := make([]accessRecord, len(results))
	for i, r := range results {
		score := r.Score
		records[i] = accessRecord{
			memoryID:   r.Entry.ID,
			accessType: AccessSearch,
			score:      &score,
			queryText:  query,
		}
	}
	if err := s.recordAccess(ctx, records); err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range results {
		results[i].AccessCount++
		results[i].LastAccessedAt = &now
	}
	return nil
}

// vectorCandidates embeds the query and ranks the vector cache by cosine
// distance. Scores are normalized into [0,1] against the pool's worst
// distance so they fuse cleanly with keyword scores.
func (s *Store) vectorCandidates(ctx context.Context, query string, pool int) ([]candidate, error) {
	embeddings, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		if !errors.Is(err, ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}
		return nil, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, ErrEmbeddingUnavailable
	}
	queryVec := embeddings[0]

	type scored struct {
		id       int64
		distance float64
	}

	s.mu.RLock()
	distances := make([]scored, 0, len(s.vectors))
	for id, vec := range s.vectors {
		sim := cosineSimilarity(queryVec, vec)
		distances = append(distances, scored{id: id, distance: 1 - sim})
	}
	s.mu.RUnlock()

	sort.Slice(distances, func(i, j int) bool {
		if distances[i].distance != distances[j].distance {
			return distances[i].distance < distances[j].distance
		}
		return distances[i].id < distances[j].id
	})
	if len(distances) > pool {
		distances = distances[:pool]
	}
	if len(distances) == 0 {
		return nil, nil
	}

	maxDistance := 0.0
	for _, d := range distances {
		if d.distance > maxDistance {
			maxDistance = d.distance
		}
	}
	denom := math.Max(2*maxDistance, 2)

	out := make([]candidate, len(distances))
	for i, d := range distances {
		out[i] = candidate{id: d.id, score: clamp01(1 - d.distance/denom)}
	}
	return out, nil
}

// keywordCandidates runs the sanitized query against the FTS5 index (BM25
// ranking) and normalizes ranks into [0,1] relative to the pool. Falls back
// to LIKE matching when FTS5 is unavailable.
func (s *Store) keywordCandidates(ctx context.Context, query string, pool int, expand bool) ([]candidate, error) {
	sanitized := sanitizeQuery(query)
	if sanitized == "" {
		return nil, ErrInvalidQuery
	}
	if !s.ftsAvailable {
		return s.keywordCandidatesLike(ctx, sanitized, pool)
	}

	matchExpr := buildMatchExpr(sanitized)
	if expand {
		// A query of nothing but stop words expands to "", in which case
		// the exact-term expression stands.
		if e := expandMatchExpr(query); e != "" {
			matchExpr = e
		}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, rank FROM entries_fts
		WHERE entries_fts MATCH ?
		ORDER BY rank LIMIT ?
	`, matchExpr, pool)
	if err != nil {
		// FTS5 rejects some token streams even after sanitization; treat a
		// parse failure as no keyword matches rather than a hard error.
		s.logger.Debug("fts query rejected", "error", err.Error())
		return nil, nil
	}
	defer rows.Close()

	type ranked struct {
		id   int64
		rank float64
	}
	var poolRows []ranked
	for rows.Next() {
		var r ranked
		if err := rows.Scan(&r.id, &r.rank); err != nil {
			return nil, fmt.Errorf("keyword scan: %w", err)
		}
		poolRows = append(poolRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	if len(poolRows) == 0 {
		return nil, nil
	}

	// FTS5 rank is ascending-better; normalize so the best row approaches 1.
	minRank, maxRank := poolRows[0].rank, poolRows[0].rank
	for _, r := range poolRows[1:] {
		minRank = math.Min(minRank, r.rank)
		maxRank = math.Max(maxRank, r.rank)
	}
	denom := math.Max(maxRank-minRank, 1)

	out := make([]candidate, len(poolRows))
	for i, r := range poolRows {
		out[i] = candidate{id: r.id, score: clamp01((maxRank - r.rank) / denom)}
	}
	return out, nil
}

// keywordCandidatesLike is the degraded keyword path for SQLite builds
// without FTS5: score is the fraction of query words present in the content.
func (s *Store) keywordCandidatesLike(ctx context.Context, query string, pool int) ([]candidate, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil, nil
	}

	conditions := make([]string, len(words))
	args := make([]any, len(words))
	for i, w := range words {
		conditions[i] = "lower(content) LIKE ?"
		args[i] = "%" + w + "%"
	}
	args = append(args, pool)

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, lower(content) FROM entries WHERE "+strings.Join(conditions, " OR ")+" LIMIT ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("like search: %w", err)
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("like scan: %w", err)
		}
		matched := 0
		for _, w := range words {
			if strings.Contains(content, w) {
				matched++
			}
		}
		out = append(out, candidate{id: id, score: float64(matched) / float64(len(words))})
	}
	return out, rows.Err()
}

// matchesFilters applies the post-retrieval filters to one entry.
func matchesFilters(e Entry, opts SearchOptions) bool {
	if len(opts.EntryTypes) > 0 {
		found := false
		for _, t := range opts.EntryTypes {
			if e.EntryType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if opts.MinImportance > 0 && e.Importance < opts.MinImportance {
		return false
	}
	if opts.MinConfidence > 0 && e.Confidence < opts.MinConfidence {
		return false
	}
	if len(opts.Tags) > 0 {
		found := false
		for _, want := range opts.Tags {
			for _, have := range e.Tags {
				if have == want {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sanitizeQuery strips FTS5 operator characters so user text cannot inject
// match syntax. Quotes, parentheses, brackets, braces, colon, caret, tilde
// and asterisk are removed.
func sanitizeQuery(query string) string {
	replacer := strings.NewReplacer(
		`"`, " ", "(", " ", ")", " ", "[", " ", "]", " ",
		"{", " ", "}", " ", ":", " ", "^", " ", "~", " ", "*", " ",
	)
	return strings.TrimSpace(replacer.Replace(query))
}

// buildMatchExpr joins sanitized query tokens with OR so any term can match.
func buildMatchExpr(sanitized string) string {
	words := strings.Fields(sanitized)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = `"` + w + `"`
	}
	return strings.Join(quoted, " OR ")
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched dimensions or zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
