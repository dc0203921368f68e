// Package memory – embeddings_gemini.go implements the Google Gemini
// embedding provider. Gemini's REST API is not OpenAI-compatible; it has
// distinct single and batch endpoints and wraps text in content parts.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-embedding-001"
	defaultGeminiDims    = 768
)

// GeminiEmbedder generates embeddings using the Google Gemini API.
type GeminiEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	client     *http.Client
}

// NewGeminiEmbedder creates a Gemini embedding provider.
func NewGeminiEmbedder(cfg EmbeddingConfig) *GeminiEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = defaultGeminiDims
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiEmbedder{
		apiKey:     resolveAPIKey(cfg.APIKey, "GOOGLE_API_KEY"),
		model:      model,
		dimensions: dims,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     newEmbedHTTPClient(),
	}
}

type geminiEmbedRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	TaskType             string        `json:"taskType,omitempty"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbeddingValues struct {
	Values []float32 `json:"values"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Embed generates embeddings, using the batch endpoint for multiple texts.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) == 1 {
		return e.embedSingle(ctx, texts[0])
	}
	return e.embedBatch(ctx, texts)
}

func (e *GeminiEmbedder) newRequest(text string) geminiEmbedRequest {
	req := geminiEmbedRequest{
		Model:    "models/" + e.model,
		Content:  geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType: "RETRIEVAL_DOCUMENT",
	}
	if e.dimensions > 0 {
		req.OutputDimensionality = e.dimensions
	}
	return req
}

// post marshals body, posts it to the given model method and returns the
// response bytes after status checking.
func (e *GeminiEmbedder) post(ctx context.Context, method string, body any) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/models/%s:%s?key=%s", e.baseURL, e.model, method, e.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("gemini: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: %s API call: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gemini: read %s response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: %s API error (status %d): %s", method, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (e *GeminiEmbedder) embedSingle(ctx context.Context, text string) ([][]float32, error) {
	respBody, err := e.post(ctx, "embedContent", e.newRequest(text))
	if err != nil {
		return nil, err
	}

	var result struct {
		Embedding *geminiEmbeddingValues `json:"embedding"`
		Error     *geminiError           `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("gemini: unmarshal embed response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("gemini: embed API error: %s", result.Error.Message)
	}
	if result.Embedding == nil {
		return nil, fmt.Errorf("gemini: empty embedding response")
	}
	return [][]float32{result.Embedding.Values}, nil
}

func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	requests := make([]geminiEmbedRequest, len(texts))
	for i, text := range texts {
		requests[i] = e.newRequest(text)
	}

	respBody, err := e.post(ctx, "batchEmbedContents", map[string]any{"requests": requests})
	if err != nil {
		return nil, err
	}

	var result struct {
		Embeddings []geminiEmbeddingValues `json:"embeddings"`
		Error      *geminiError            `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("gemini: unmarshal batch embed response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("gemini: batch embed API error: %s", result.Error.Message)
	}

	embeddings := make([][]float32, len(texts))
	for i := range texts {
		if i < len(result.Embeddings) {
			embeddings[i] = result.Embeddings[i].Values
		}
	}
	return embeddings, nil
}

func (e *GeminiEmbedder) Dimensions() int { return e.dimensions }
func (e *GeminiEmbedder) Name() string    { return "gemini" }
func (e *GeminiEmbedder) Model() string   { return e.model }
