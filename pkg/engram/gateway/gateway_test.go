package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/engramd/engram/pkg/engram/config"
	"github.com/engramd/engram/pkg/engram/memory"
)

type testEmbedder struct{}

func (testEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
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
func (testEmbedder) Dimensions() int { return 4 }
func (testEmbedder) Name() string    { return "test" }
func (testEmbedder) Model() string   { return "test-1" }

func newTestGateway(t *testing.T, cfg config.GatewayConfig) (*Gateway, *httptest.Server) {
	t.Helper()
	store, err := memory.Open(memory.Options{
		Path:     filepath.Join(t.TempDir(), "memory.db"),
		Embedder: testEmbedder{},
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	g := New(store, nil, cfg, nil)
	server := httptest.NewServer(g.Handler())
	t.Cleanup(server.Close)
	return g, server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestMemoryLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	_, server := newTestGateway(t, config.GatewayConfig{})

	// Add.
	resp := postJSON(t, server.URL+"/api/memories", map[string]any{
		"content":    "gateway remembers this",
		"entry_type": "fact",
		"tags":       []string{"http"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add status = %d, want 201", resp.StatusCode)
	}
	var added memory.AddResult
	decodeBody(t, resp, &added)
	if !added.Created {
		t.Fatalf("add result = %+v", added)
	}

	// Duplicate add returns 200 with the original id.
	resp = postJSON(t, server.URL+"/api/memories", map[string]any{
		"content": "gateway remembers this",
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("duplicate add status = %d, want 200", resp.StatusCode)
	}
	var dup memory.AddResult
	decodeBody(t, resp, &dup)
	if !dup.Duplicate || dup.ID != added.ID {
		t.Errorf("duplicate result = %+v", dup)
	}

	// Get.
	resp, err := http.Get(fmt.Sprintf("%s/api/memories/%d", server.URL, added.ID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var entry memory.Entry
	decodeBody(t, resp, &entry)
	if entry.Content != "gateway remembers this" || entry.AccessCount != 1 {
		t.Errorf("entry = %+v", entry)
	}

	// Search.
	resp, err = http.Get(server.URL + "/api/search?q=gateway&mode=keyword")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var searchBody struct {
		Results []memory.SearchResult `json:"results"`
	}
	decodeBody(t, resp, &searchBody)
	if len(searchBody.Results) != 1 {
		t.Errorf("search results = %d, want 1", len(searchBody.Results))
	}

	// Stats.
	resp, err = http.Get(server.URL + "/api/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats memory.Stats
	decodeBody(t, resp, &stats)
	if stats.TotalEntries != 1 {
		t.Errorf("stats total = %d, want 1", stats.TotalEntries)
	}

	// Delete, then 404 on re-read.
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/memories/%d", server.URL, added.ID), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/memories/%d", server.URL, added.ID))
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()
	_, server := newTestGateway(t, config.GatewayConfig{AuthToken: "sekret"})

	// Health stays public.
	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	// No token.
	resp, err = http.Get(server.URL + "/api/stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no-token status = %d, want 401", resp.StatusCode)
	}

	// Wrong token.
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong-token status = %d, want 401", resp.StatusCode)
	}

	// Right token.
	req, _ = http.NewRequest(http.MethodGet, server.URL+"/api/stats", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid-token status = %d, want 200", resp.StatusCode)
	}
}

func TestBadRequests(t *testing.T) {
	t.Parallel()
	_, server := newTestGateway(t, config.GatewayConfig{})

	// Empty content.
	resp := postJSON(t, server.URL+"/api/memories", map[string]any{"content": "  "})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty content status = %d, want 400", resp.StatusCode)
	}

	// Invalid entry type.
	resp = postJSON(t, server.URL+"/api/memories", map[string]any{
		"content": "x", "entry_type": "opinion",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid type status = %d, want 400", resp.StatusCode)
	}

	// Non-numeric id.
	r, err := http.Get(server.URL + "/api/memories/abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", r.StatusCode)
	}

	// Unknown search mode.
	r, err = http.Get(server.URL + "/api/search?q=x&mode=psychic")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusBadRequest {
		t.Errorf("bad mode status = %d, want 400", r.StatusCode)
	}
}

func TestSearchRerankParams(t *testing.T) {
	t.Parallel()
	_, server := newTestGateway(t, config.GatewayConfig{})

	resp := postJSON(t, server.URL+"/api/memories", map[string]any{
		"content": "release went out overnight", "entry_type": "event",
	})
	resp.Body.Close()

	url := server.URL + "/api/search?q=release&mode=keyword" +
		"&expand=true&decay=true&half_life_days=15&diversify=true"
	r, err := http.Get(url)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if r.StatusCode != http.StatusOK {
		t.Fatalf("rerank search status = %d, want 200", r.StatusCode)
	}
	var body struct {
		Results []memory.SearchResult `json:"results"`
	}
	decodeBody(t, r, &body)
	if len(body.Results) != 1 {
		t.Errorf("rerank search results = %d, want 1", len(body.Results))
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()
	_, server := newTestGateway(t, config.GatewayConfig{})

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
