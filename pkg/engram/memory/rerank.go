// Package memory – rerank.go implements the optional post-fusion search
// stages: query expansion for the keyword index, temporal decay of
// time-bound entries, and Maximal Marginal Relevance diversification.
// All three are off by default and leave the plain ranking untouched.
package memory

import (
	"math"
	"strings"
	"time"
	"unicode"
)

// TemporalDecayOptions configures exponential score decay by entry age.
type TemporalDecayOptions struct {
	Enabled bool

	// HalfLifeDays is the age at which a decaying entry's score halves.
	// Zero means the default of 30 days.
	HalfLifeDays float64
}

const defaultHalfLifeDays = 30

// MMROptions configures Maximal Marginal Relevance diversification.
type MMROptions struct {
	Enabled bool

	// Lambda balances relevance against diversity: 1 keeps the plain
	// ranking, 0 maximizes diversity. Zero means the default of 0.7.
	Lambda float64
}

const defaultMMRLambda = 0.7

// applyTemporalDecay multiplies each time-bound result's score by
// exp(-ln2/halfLife * ageDays). Durable entry types keep their scores;
// only events and tasks lose relevance with age.
func applyTemporalDecay(results []SearchResult, opts TemporalDecayOptions) {
	halfLife := opts.HalfLifeDays
	if halfLife <= 0 {
		halfLife = defaultHalfLifeDays
	}
	lambda := math.Log(2) / halfLife
	now := time.Now().UTC()

	for i := range results {
		if !decaysWithAge(results[i].EntryType) {
			continue
		}
		ageDays := now.Sub(results[i].CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		results[i].Score *= math.Exp(-lambda * ageDays)
	}
}

// decaysWithAge reports whether an entry type loses relevance over time.
func decaysWithAge(t EntryType) bool {
	return t == TypeEvent || t == TypeTask
}

// applyMMR selects up to limit results balancing relevance against
// similarity to what is already selected. The first pick is always the
// top-ranked result; each following pick maximizes
// lambda*score - (1-lambda)*maxSimilarityToSelected.
func applyMMR(results []SearchResult, opts MMROptions, limit int) []SearchResult {
	if len(results) <= limit {
		return results
	}
	lambda := opts.Lambda
	if lambda <= 0 {
		lambda = defaultMMRLambda
	}
	if lambda > 1 {
		lambda = 1
	}

	selected := make([]SearchResult, 0, limit)
	remaining := make([]SearchResult, len(results))
	copy(remaining, results)

	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	tokens := make(map[int64]map[string]bool, len(results))
	tokensFor := func(r SearchResult) map[string]bool {
		if t, ok := tokens[r.ID]; ok {
			return t
		}
		t := contentTokens(r.Content)
		tokens[r.ID] = t
		return t
	}

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			maxSim := 0.0
			for _, sel := range selected {
				if sim := jaccardSimilarity(tokensFor(cand), tokensFor(sel)); sim > maxSim {
					maxSim = sim
				}
			}
			if score := lambda*cand.Score - (1-lambda)*maxSim; score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// contentTokens lowercases and splits content, keeping words longer than
// two characters.
func contentTokens(content string) map[string]bool {
	tokens := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(content)) {
		if len(w) > 2 {
			tokens[w] = true
		}
	}
	return tokens
}

// jaccardSimilarity computes |a∩b| / |a∪b| over two token sets.
func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// queryKeywords extracts content-bearing tokens from a conversational
// query: lowercased, punctuation and match operators stripped, with stop
// words, bare numbers and one-character tokens dropped.
func queryKeywords(query string) []string {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}*`~@#$%&_-+=<>/\\|")
		w = strings.Map(func(r rune) rune {
			switch r {
			case '"', '(', ')', '[', ']', '{', '}', ':', '^', '~', '*':
				return -1
			}
			return r
		}, w)
		if !validKeyword(w) {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

// validKeyword rejects stop words, bare numbers, punctuation-only tokens
// and tokens shorter than two characters.
func validKeyword(w string) bool {
	if len(w) < 2 || stopWords[w] {
		return false
	}
	allDigits := true
	allPunct := true
	for _, r := range w {
		if !unicode.IsDigit(r) {
			allDigits = false
		}
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			allPunct = false
		}
	}
	return !allDigits && !allPunct
}

// expandMatchExpr builds a prefix-matching FTS5 expression from the
// query's keywords, so "deploy" also hits "deployments". Returns ""
// when no keyword survives extraction.
func expandMatchExpr(query string) string {
	seen := make(map[string]bool)
	var parts []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			parts = append(parts, p)
		}
	}
	for _, kw := range queryKeywords(query) {
		add(`"` + kw + `"`)
		if len(kw) >= 3 {
			add(kw + "*")
		}
	}
	return strings.Join(parts, " OR ")
}

// stopWords are dropped during keyword extraction. Content words only;
// anything that could be a domain term stays.
var stopWords = map[string]bool{
	"to": true, "of": true, "in": true, "is": true, "it": true,
	"an": true, "as": true, "at": true, "be": true, "by": true,
	"do": true, "he": true, "if": true, "me": true, "my": true,
	"no": true, "on": true, "or": true, "so": true, "up": true,
	"we": true, "am": true,
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"was": true, "has": true, "its": true, "who": true, "did": true,
	"get": true, "got": true, "his": true, "her": true, "how": true,
	"now": true, "see": true, "way": true, "too": true, "use": true,
	"that": true, "with": true, "have": true, "this": true, "will": true,
	"your": true, "from": true, "they": true, "been": true, "said": true,
	"each": true, "which": true, "their": true, "what": true, "about": true,
	"would": true, "there": true, "when": true, "make": true, "like": true,
	"just": true, "know": true, "could": true, "than": true, "only": true,
	"into": true, "over": true, "such": true, "also": true, "some": true,
	"them": true, "then": true, "these": true, "where": true, "much": true,
	"should": true, "well": true, "after": true, "very": true, "does": true,
	"here": true, "were": true, "more": true, "most": true, "many": true,
	"other": true, "those": true, "still": true, "even": true, "both": true,
	"same": true, "every": true,
}
