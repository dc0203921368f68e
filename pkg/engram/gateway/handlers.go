package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/engramd/engram/pkg/engram/memory"
)

type addRequest struct {
	Content    string     `json:"content"`
	EntryType  string     `json:"entry_type"`
	Source     string     `json:"source"`
	Context    string     `json:"context"`
	Confidence *float64   `json:"confidence"`
	Importance *int       `json:"importance"`
	Tags       []string   `json:"tags"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeEngineError maps the engine's failure taxonomy onto HTTP statuses.
func (g *Gateway) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrNotFound):
		g.writeError(w, "entry not found", http.StatusNotFound)
	case errors.Is(err, memory.ErrEmbeddingUnavailable):
		g.writeError(w, "embedding provider unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, memory.ErrEmptyContent):
		g.writeError(w, "content must not be empty", http.StatusBadRequest)
	default:
		g.logger.Error("request failed", "error", err.Error())
		g.writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// handleHealth implements GET /health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	vectorReady := g.embedder != nil && g.embedder.Ready()
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"entries":       g.store.EntryCount(),
		"vector_search": vectorReady,
		"uptime":        time.Since(g.startedAt).Round(time.Second).String(),
	})
}

// handleMemories implements POST /api/memories (add) and GET /api/memories
// (recent entries).
func (g *Gateway) handleMemories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleAdd(w, r)
	case http.MethodGet:
		g.handleListRecent(w, r)
	default:
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	res, err := g.store.Add(r.Context(), req.Content, memory.AddOptions{
		EntryType:  memory.EntryType(req.EntryType),
		Source:     req.Source,
		Context:    req.Context,
		Confidence: req.Confidence,
		Importance: req.Importance,
		Tags:       req.Tags,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) || errors.Is(err, memory.ErrEmbeddingUnavailable) ||
			errors.Is(err, memory.ErrEmptyContent) {
			g.writeEngineError(w, err)
			return
		}
		// Validation errors (bad type/range) are client mistakes.
		if strings.Contains(err.Error(), "out of range") || strings.Contains(err.Error(), "invalid entry type") {
			g.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.writeEngineError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	g.writeJSON(w, status, res)
}

func (g *Gateway) handleListRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := g.store.ListRecent(r.Context(), limit)
	if err != nil {
		g.writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []memory.Entry{}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// handleMemoryByID implements GET and DELETE /api/memories/{id}.
func (g *Gateway) handleMemoryByID(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/memories/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		g.writeError(w, "invalid memory id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, err := g.store.Get(r.Context(), id)
		if err != nil {
			g.writeEngineError(w, err)
			return
		}
		g.writeJSON(w, http.StatusOK, entry)

	case http.MethodDelete:
		existed, err := g.store.Delete(r.Context(), id)
		if err != nil {
			g.writeEngineError(w, err)
			return
		}
		if !existed {
			g.writeError(w, "entry not found", http.StatusNotFound)
			return
		}
		g.writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})

	default:
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSearch implements GET /api/search.
func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()

	opts := memory.SearchOptions{
		Mode: memory.SearchMode(q.Get("mode")),
	}
	if limit := q.Get("limit"); limit != "" {
		opts.Limit, _ = strconv.Atoi(limit)
	}
	if types := q.Get("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			opts.EntryTypes = append(opts.EntryTypes, memory.EntryType(strings.TrimSpace(t)))
		}
	}
	if mi := q.Get("min_importance"); mi != "" {
		opts.MinImportance, _ = strconv.Atoi(mi)
	}
	if mc := q.Get("min_confidence"); mc != "" {
		opts.MinConfidence, _ = strconv.ParseFloat(mc, 64)
	}
	if tags := q.Get("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			opts.Tags = append(opts.Tags, strings.TrimSpace(t))
		}
	}
	if q.Get("expand") == "true" {
		opts.ExpandQuery = true
	}
	if q.Get("decay") == "true" {
		opts.Decay.Enabled = true
		if hl := q.Get("half_life_days"); hl != "" {
			opts.Decay.HalfLifeDays, _ = strconv.ParseFloat(hl, 64)
		}
	}
	if q.Get("diversify") == "true" {
		opts.MMR.Enabled = true
	}

	results, err := g.store.Search(r.Context(), q.Get("q"), opts)
	if err != nil {
		if strings.Contains(err.Error(), "unknown search mode") {
			g.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		g.writeEngineError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"query":   q.Get("q"),
		"results": results,
	})
}

// handleStats implements GET /api/stats.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		g.writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := g.store.Stats(r.Context())
	if err != nil {
		g.writeEngineError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, stats)
}
