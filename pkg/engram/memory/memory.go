// Package memory implements the knowledge-persistence engine: a SQLite-backed
// entry store with FTS5 (BM25 ranking) keyword search, in-process vector
// search over cached embeddings, and hybrid score fusion. Entries are
// deduplicated by content hash and immutable after creation except for
// access bookkeeping.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// EntryType categorizes what kind of knowledge an entry holds.
type EntryType string

const (
	TypeFact         EntryType = "fact"
	TypePreference   EntryType = "preference"
	TypeEvent        EntryType = "event"
	TypeInsight      EntryType = "insight"
	TypeTask         EntryType = "task"
	TypeRelationship EntryType = "relationship"
)

// ValidEntryType reports whether t is one of the known entry types.
func ValidEntryType(t EntryType) bool {
	switch t {
	case TypeFact, TypePreference, TypeEvent, TypeInsight, TypeTask, TypeRelationship:
		return true
	}
	return false
}

// SourceFileIndex marks entries created by the background file re-indexer.
// Collaborators must not echo these entries into watched files or
// human-readable logs, or the indexer would feed on its own output.
const SourceFileIndex = "file-index"

// Sentinel errors for the engine's failure taxonomy.
var (
	// ErrNotFound is returned by Get/Delete for an id that does not exist.
	ErrNotFound = errors.New("memory: entry not found")

	// ErrEmbeddingUnavailable is returned when the embedding provider failed
	// to load or is not configured. Distinct from a per-text embed failure so
	// callers can tell "feature unavailable" from "bad input".
	ErrEmbeddingUnavailable = errors.New("memory: embedding provider unavailable")

	// ErrEmptyContent is returned by Add for empty or whitespace-only content.
	ErrEmptyContent = errors.New("memory: content must not be empty")

	// ErrInvalidQuery marks a query that sanitizes to nothing. Soft: Search
	// maps it to an empty result set rather than returning it to callers.
	ErrInvalidQuery = errors.New("memory: query is empty after sanitization")
)

// Entry is one persisted unit of memory.
type Entry struct {
	ID             int64      `json:"id"`
	Content        string     `json:"content"`
	ContentHash    string     `json:"content_hash"`
	EntryType      EntryType  `json:"entry_type"`
	Source         string     `json:"source"`
	Context        string     `json:"context,omitempty"`
	Confidence     float64    `json:"confidence"`
	Importance     int        `json:"importance"`
	Tags           []string   `json:"tags,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// AddOptions holds the optional fields of an add operation. Zero values mean
// "apply defaults" (fact / manual / confidence 1.0 / importance 5 / no tags).
type AddOptions struct {
	EntryType  EntryType
	Source     string
	Context    string
	Confidence *float64
	Importance *int
	Tags       []string
	ExpiresAt  *time.Time
}

// AddResult reports the outcome of an add: either a fresh entry or the id of
// the live duplicate that already held the same content.
type AddResult struct {
	ID        int64 `json:"id"`
	Created   bool  `json:"created"`
	Duplicate bool  `json:"duplicate"`
}

// AccessType distinguishes direct fetches from search hits in the access log.
type AccessType string

const (
	AccessGet    AccessType = "get"
	AccessSearch AccessType = "search"
)

// AccessLogRecord is one row of the append-only access audit trail.
type AccessLogRecord struct {
	ID             string     `json:"id"`
	MemoryID       int64      `json:"memory_id"`
	AccessedAt     time.Time  `json:"accessed_at"`
	AccessType     AccessType `json:"access_type"`
	RelevanceScore *float64   `json:"relevance_score,omitempty"`
	QueryText      string     `json:"query_text,omitempty"`
}

// MatchedBy identifies which sub-index produced a search hit.
type MatchedBy string

const (
	MatchedVector  MatchedBy = "vector"
	MatchedKeyword MatchedBy = "keyword"
)

// SearchResult is an ephemeral ranked hit returned by Search.
type SearchResult struct {
	Entry
	Score     float64     `json:"score"`
	MatchedBy []MatchedBy `json:"matched_by"`
}

// Stats aggregates the live corpus. All fields are zero on an empty store.
type Stats struct {
	TotalEntries  int               `json:"total_entries"`
	ByType        map[EntryType]int `json:"by_type"`
	AvgImportance float64           `json:"avg_importance"`
	AvgConfidence float64           `json:"avg_confidence"`
	TotalAccesses int               `json:"total_accesses"`
	OldestEntry   *time.Time        `json:"oldest_entry,omitempty"`
	NewestEntry   *time.Time        `json:"newest_entry,omitempty"`
}

// HashContent computes the deterministic dedup hash for entry content.
func HashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// parseTimeFlexible parses the timestamp formats SQLite and Go emit.
// Returns a zero time if nothing matches.
func parseTimeFlexible(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	formats := []string{
		"2006-01-02 15:04:05",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05.999999999-07:00",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
