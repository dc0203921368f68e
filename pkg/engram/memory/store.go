// Package memory – store.go implements the SQLite-backed entry store.
// Entries, the FTS5 keyword index and the access log live in one database;
// embeddings are stored as JSON-encoded float32 arrays on the entry row and
// mirrored into an in-memory cache for vector search. Row, FTS record and
// vector record become visible together: the FTS index is synced by triggers
// inside the insert transaction, and the vector cache is updated under the
// same write lock that readers take to search it.
//
// FTS5 is only compiled into go-sqlite3 under the sqlite_fts5 build tag
// (the Makefile sets it). Untagged builds fall back to LIKE matching for
// keyword search.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

const (
	defaultConfidence = 1.0
	defaultImportance = 5

	timeFormat = time.RFC3339Nano
)

// Store provides persistent memory storage with hybrid search.
type Store struct {
	db       *sql.DB
	embedder EmbeddingProvider
	logger   *slog.Logger

	vectorWeight  float64
	keywordWeight float64

	// ftsAvailable indicates whether FTS5 is available for keyword search.
	// When false, keyword search falls back to LIKE queries.
	ftsAvailable bool

	// mu guards vectors. Writers hold it across commit + cache update so a
	// vector search never observes a committed row without its vector.
	mu      sync.RWMutex
	vectors map[int64][]float32
}

// Options configures a Store.
type Options struct {
	// Path is the SQLite database file path.
	Path string

	// Embedder generates entry and query embeddings. Required; use a
	// LazyEmbedder so the underlying provider loads on first use.
	Embedder EmbeddingProvider

	// VectorWeight and KeywordWeight are the hybrid fusion weights.
	// Zero values mean the defaults (0.7 / 0.3).
	VectorWeight  float64
	KeywordWeight float64

	Logger *slog.Logger
}

// Open opens or creates the memory database and loads the vector cache.
func Open(opts Options) (*Store, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("memory: embedder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", opts.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	vw := opts.VectorWeight
	if vw <= 0 {
		vw = 0.7
	}
	kw := opts.KeywordWeight
	if kw <= 0 {
		kw = 0.3
	}

	s := &Store{
		db:            db,
		embedder:      opts.Embedder,
		logger:        logger.With("component", "memory"),
		vectorWeight:  vw,
		keywordWeight: kw,
		vectors:       make(map[int64][]float32),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if err := s.loadVectorCache(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load vector cache: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// initSchema creates the required tables, indices and triggers.
func (s *Store) initSchema() error {
	coreSchema := `
		CREATE TABLE IF NOT EXISTS entries (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			content      TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			entry_type   TEXT NOT NULL DEFAULT 'fact',
			source       TEXT NOT NULL DEFAULT 'manual',
			context      TEXT NOT NULL DEFAULT '',
			confidence   REAL NOT NULL DEFAULT 1.0,
			importance   INTEGER NOT NULL DEFAULT 5,
			tags         TEXT NOT NULL DEFAULT '[]',
			embedding    TEXT,
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			expires_at   TEXT,
			access_count INTEGER NOT NULL DEFAULT 0,
			last_accessed_at TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(entry_type);
		CREATE INDEX IF NOT EXISTS idx_entries_expires ON entries(expires_at)
			WHERE expires_at IS NOT NULL;

		CREATE TABLE IF NOT EXISTS access_log (
			id          TEXT PRIMARY KEY,
			memory_id   INTEGER NOT NULL,
			accessed_at TEXT NOT NULL,
			access_type TEXT NOT NULL,
			relevance_score REAL,
			query_text  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_access_log_memory ON access_log(memory_id);
		CREATE INDEX IF NOT EXISTS idx_access_log_time ON access_log(accessed_at);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			text_hash  TEXT NOT NULL,
			provider   TEXT NOT NULL,
			model      TEXT NOT NULL,
			embedding  TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (text_hash, provider, model)
		);
	`
	if _, err := s.db.Exec(coreSchema); err != nil {
		return err
	}

	// FTS5 keyword index over content, context and tags — optional. Some
	// SQLite builds lack FTS5; keyword search then uses a LIKE fallback.
	ftsSchema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			content,
			context,
			tags,
			content='entries',
			content_rowid='id',
			tokenize='porter unicode61'
		);

		CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
			INSERT INTO entries_fts(rowid, content, context, tags)
			VALUES (new.id, new.content, new.context, new.tags);
		END;

		CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
			INSERT INTO entries_fts(entries_fts, rowid, content, context, tags)
			VALUES('delete', old.id, old.content, old.context, old.tags);
		END;
	`
	if _, err := s.db.Exec(ftsSchema); err != nil {
		s.ftsAvailable = false
		s.logger.Warn("FTS5 not available, falling back to LIKE search", "error", err.Error())
	} else {
		s.ftsAvailable = true
	}

	return nil
}

// Add stores new content, deduplicating by content hash. If a live entry
// already holds the same content, the existing id is returned and nothing
// else happens. Otherwise the entry row, its FTS record and its vector
// record are written as one unit. The embedding is generated before any
// lock is taken, so concurrent reads of committed entries are never blocked
// by model inference.
func (s *Store) Add(ctx context.Context, content string, opts AddOptions) (AddResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return AddResult{}, ErrEmptyContent
	}
	if err := validateAddOptions(&opts); err != nil {
		return AddResult{}, err
	}

	hash := HashContent(content)

	// Dedup check — idempotent fast path.
	if id, ok, err := s.lookupByHash(ctx, hash); err != nil {
		return AddResult{}, fmt.Errorf("dedup lookup: %w", err)
	} else if ok {
		return AddResult{ID: id, Created: false, Duplicate: true}, nil
	}

	embedding, err := s.embedContent(ctx, content)
	if err != nil {
		return AddResult{}, err
	}
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return AddResult{}, fmt.Errorf("encode embedding: %w", err)
	}

	tagsJSON, err := json.Marshal(normalizeTags(opts.Tags))
	if err != nil {
		return AddResult{}, fmt.Errorf("encode tags: %w", err)
	}

	now := time.Now().UTC()
	var expiresAt any
	if opts.ExpiresAt != nil {
		expiresAt = opts.ExpiresAt.UTC().Format(timeFormat)
	}

	// Hold the write lock across commit + cache update so the entry row and
	// its vector record become visible to searches at the same moment.
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AddResult{}, fmt.Errorf("begin add: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entries
			(content, content_hash, entry_type, source, context,
			 confidence, importance, tags, embedding, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, content, hash, string(opts.EntryType), opts.Source, opts.Context,
		*opts.Confidence, *opts.Importance, string(tagsJSON), string(embJSON),
		now.Format(timeFormat), now.Format(timeFormat), expiresAt)
	if err != nil {
		// A concurrent writer may have inserted the same content between the
		// dedup check and this insert; the unique constraint resolves the race.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			if id, ok, lookupErr := s.lookupByHash(ctx, hash); lookupErr == nil && ok {
				return AddResult{ID: id, Created: false, Duplicate: true}, nil
			}
		}
		return AddResult{}, fmt.Errorf("insert entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return AddResult{}, fmt.Errorf("entry id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return AddResult{}, fmt.Errorf("commit add: %w", err)
	}

	s.vectors[id] = embedding

	// File-index writes stay out of human-readable logs so collaborators
	// that mirror logs into watched files cannot feed the indexer.
	level := slog.LevelInfo
	if opts.Source == SourceFileIndex {
		level = slog.LevelDebug
	}
	s.logger.Log(ctx, level, "memory entry added",
		"id", id, "type", opts.EntryType, "source", opts.Source)

	return AddResult{ID: id, Created: true, Duplicate: false}, nil
}

// Get fetches an entry by id and records the access.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	entry, err := s.getEntry(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if err := s.recordAccess(ctx, []accessRecord{{memoryID: id, accessType: AccessGet}}); err != nil {
		return Entry{}, fmt.Errorf("record access: %w", err)
	}
	now := time.Now().UTC()
	entry.AccessCount++
	entry.LastAccessedAt = &now
	return entry, nil
}

// Delete removes the entry row, its FTS record and its vector record as one
// unit. Returns whether a row existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	delete(s.vectors, id)
	s.logger.Info("memory entry deleted", "id", id)
	return true, nil
}

// Stats aggregates the live corpus. An empty store yields zeroed stats.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByType: make(map[EntryType]int)}

	var (
		avgImportance sql.NullFloat64
		avgConfidence sql.NullFloat64
		totalAccesses sql.NullInt64
		oldest        sql.NullString
		newest        sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(importance), AVG(confidence), SUM(access_count),
		       MIN(created_at), MAX(created_at)
		FROM entries
	`).Scan(&stats.TotalEntries, &avgImportance, &avgConfidence, &totalAccesses, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate stats: %w", err)
	}

	stats.AvgImportance = avgImportance.Float64
	stats.AvgConfidence = avgConfidence.Float64
	stats.TotalAccesses = int(totalAccesses.Int64)
	if oldest.Valid {
		t := parseTimeFlexible(oldest.String)
		stats.OldestEntry = &t
	}
	if newest.Valid {
		t := parseTimeFlexible(newest.String)
		stats.NewestEntry = &t
	}

	rows, err := s.db.QueryContext(ctx, "SELECT entry_type, COUNT(*) FROM entries GROUP BY entry_type")
	if err != nil {
		return Stats{}, fmt.Errorf("stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return Stats{}, fmt.Errorf("stats by type: %w", err)
		}
		stats.ByType[EntryType(t)] = n
	}
	return stats, rows.Err()
}

// ListRecent returns the most recently created entries, newest first.
// Listing is not a retrieval of a specific entry, so it does not touch
// access metadata.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		entrySelect+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list recent: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListBySource returns all entries with the given source, optionally
// narrowed to one context (e.g. a single indexed file path).
func (s *Store) ListBySource(ctx context.Context, source, context string) ([]Entry, error) {
	query := entrySelect + " WHERE source = ?"
	args := []any{source}
	if context != "" {
		query += " AND context = ?"
		args = append(args, context)
	}
	rows, err := s.db.QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list by source: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// DeleteExpired removes every entry whose expires_at has passed. Each entry
// goes through the normal delete path so indexes stay consistent. Returns
// the number of entries removed.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Format(timeFormat)
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM entries WHERE expires_at IS NOT NULL AND expires_at <= ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("expired lookup: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("expired lookup: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("expired lookup: %w", err)
	}

	removed := 0
	for _, id := range ids {
		ok, err := s.Delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// PruneAccessLog removes access-log rows older than the retention window.
func (s *Store) PruneAccessLog(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(timeFormat)
	res, err := s.db.ExecContext(ctx, "DELETE FROM access_log WHERE accessed_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune access log: %w", err)
	}
	return res.RowsAffected()
}

// AccessLog returns the most recent access records for an entry.
func (s *Store) AccessLog(ctx context.Context, memoryID int64, limit int) ([]AccessLogRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, accessed_at, access_type, relevance_score, query_text
		FROM access_log WHERE memory_id = ?
		ORDER BY accessed_at DESC LIMIT ?
	`, memoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("access log: %w", err)
	}
	defer rows.Close()

	var records []AccessLogRecord
	for rows.Next() {
		var (
			rec       AccessLogRecord
			accessed  string
			score     sql.NullFloat64
			queryText sql.NullString
		)
		var accessType string
		if err := rows.Scan(&rec.ID, &rec.MemoryID, &accessed, &accessType, &score, &queryText); err != nil {
			return nil, fmt.Errorf("access log: %w", err)
		}
		rec.AccessedAt = parseTimeFlexible(accessed)
		rec.AccessType = AccessType(accessType)
		if score.Valid {
			v := score.Float64
			rec.RelevanceScore = &v
		}
		rec.QueryText = queryText.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// EntryCount returns the number of live entries.
func (s *Store) EntryCount() int {
	var n int
	_ = s.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&n)
	return n
}

// ---------- Internal ----------

// validateAddOptions applies defaults and range-checks the optional fields.
func validateAddOptions(opts *AddOptions) error {
	if opts.EntryType == "" {
		opts.EntryType = TypeFact
	}
	if !ValidEntryType(opts.EntryType) {
		return fmt.Errorf("memory: invalid entry type %q", opts.EntryType)
	}
	if opts.Source == "" {
		opts.Source = "manual"
	}
	if opts.Confidence == nil {
		c := defaultConfidence
		opts.Confidence = &c
	} else if *opts.Confidence < 0 || *opts.Confidence > 1 {
		return fmt.Errorf("memory: confidence %v out of range [0,1]", *opts.Confidence)
	}
	if opts.Importance == nil {
		i := defaultImportance
		opts.Importance = &i
	} else if *opts.Importance < 1 || *opts.Importance > 10 {
		return fmt.Errorf("memory: importance %d out of range [1,10]", *opts.Importance)
	}
	return nil
}

// normalizeTags deduplicates tags preserving first-seen order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (s *Store) lookupByHash(ctx context.Context, hash string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM entries WHERE content_hash = ?", hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// embedContent produces the embedding for new content, consulting the
// embedding cache first. Any provider failure maps to
// ErrEmbeddingUnavailable: an entry without a usable vector would break the
// hybrid index invariant, so the add must fail rather than store it.
func (s *Store) embedContent(ctx context.Context, content string) ([]float32, error) {
	if cached := s.getCachedEmbedding(content); cached != nil {
		return cached, nil
	}

	embeddings, err := s.embedder.Embed(ctx, []string{content})
	if err != nil {
		if errors.Is(err, ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, ErrEmbeddingUnavailable
	}

	s.setCachedEmbedding(content, embeddings[0])
	return embeddings[0], nil
}

// getCachedEmbedding looks up a cached embedding by text hash.
func (s *Store) getCachedEmbedding(text string) []float32 {
	var embJSON string
	err := s.db.QueryRow(`
		SELECT embedding FROM embedding_cache
		WHERE text_hash = ? AND provider = ? AND model = ?
	`, HashContent(text), s.embedder.Name(), s.embedder.Model()).Scan(&embJSON)
	if err != nil {
		return nil
	}
	var emb []float32
	if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
		return nil
	}
	return emb
}

// setCachedEmbedding stores an embedding in the cache.
func (s *Store) setCachedEmbedding(text string, embedding []float32) {
	data, err := json.Marshal(embedding)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(`
		INSERT INTO embedding_cache (text_hash, provider, model, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(text_hash, provider, model) DO UPDATE SET
			embedding = excluded.embedding, updated_at = excluded.updated_at
	`, HashContent(text), s.embedder.Name(), s.embedder.Model(),
		string(data), time.Now().UTC().Format(timeFormat))
}

// loadVectorCache loads all entry embeddings into memory.
func (s *Store) loadVectorCache() error {
	rows, err := s.db.Query("SELECT id, embedding FROM entries WHERE embedding IS NOT NULL")
	if err != nil {
		return err
	}
	defer rows.Close()

	vectors := make(map[int64][]float32)
	for rows.Next() {
		var id int64
		var embJSON string
		if err := rows.Scan(&id, &embJSON); err != nil {
			continue
		}
		var emb []float32
		if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
			continue
		}
		vectors[id] = emb
	}

	s.mu.Lock()
	s.vectors = vectors
	s.mu.Unlock()

	s.logger.Debug("vector cache loaded", "entries", len(vectors))
	return rows.Err()
}

// accessRecord is one pending access-log write.
type accessRecord struct {
	memoryID   int64
	accessType AccessType
	score      *float64
	queryText  string
}

// recordAccess appends access-log rows and bumps access counters in one
// transaction — identical bookkeeping for get and search.
func (s *Store) recordAccess(ctx context.Context, records []accessRecord) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(timeFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	logStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO access_log (id, memory_id, accessed_at, access_type, relevance_score, query_text)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer logStmt.Close()

	bumpStmt, err := tx.PrepareContext(ctx, `
		UPDATE entries SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?
	`)
	if err != nil {
		return err
	}
	defer bumpStmt.Close()

	for _, rec := range records {
		var score any
		if rec.score != nil {
			score = *rec.score
		}
		if _, err := logStmt.ExecContext(ctx, uuid.New().String(), rec.memoryID, now,
			string(rec.accessType), score, rec.queryText); err != nil {
			return err
		}
		if _, err := bumpStmt.ExecContext(ctx, now, rec.memoryID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const entrySelect = `
	SELECT id, content, content_hash, entry_type, source, context,
	       confidence, importance, tags, created_at, updated_at, expires_at,
	       access_count, last_accessed_at
	FROM entries`

// getEntry fetches a single entry without touching access metadata.
func (s *Store) getEntry(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, entrySelect+" WHERE id = ?", id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// getEntriesByID fetches entries for a candidate id set in one query.
func (s *Store) getEntriesByID(ctx context.Context, ids []int64) (map[int64]Entry, error) {
	if len(ids) == 0 {
		return map[int64]Entry{}, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		entrySelect+" WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	return byID, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e            Entry
		entryType    string
		tagsJSON     string
		createdAt    string
		updatedAt    string
		expiresAt    sql.NullString
		lastAccessed sql.NullString
	)
	err := row.Scan(&e.ID, &e.Content, &e.ContentHash, &entryType, &e.Source,
		&e.Context, &e.Confidence, &e.Importance, &tagsJSON, &createdAt,
		&updatedAt, &expiresAt, &e.AccessCount, &lastAccessed)
	if err != nil {
		return Entry{}, err
	}

	e.EntryType = EntryType(entryType)
	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		e.Tags = nil
	}
	e.CreatedAt = parseTimeFlexible(createdAt)
	e.UpdatedAt = parseTimeFlexible(updatedAt)
	if expiresAt.Valid {
		t := parseTimeFlexible(expiresAt.String)
		e.ExpiresAt = &t
	}
	if lastAccessed.Valid {
		t := parseTimeFlexible(lastAccessed.String)
		e.LastAccessedAt = &t
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
