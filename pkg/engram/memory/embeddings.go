// Package memory – embeddings.go implements the embedding generators behind
// vector search. OpenAI, Voyage and Mistral share one OpenAI-compatible
// client parameterized by a provider preset; Gemini has its own REST client
// (embeddings_gemini.go). "auto" picks a provider from available API keys and
// "none" disables vector search entirely.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"strings"
	"time"
)

// EmbeddingProvider generates vector embeddings from text.
type EmbeddingProvider interface {
	// Embed generates one float32 vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of the output vectors.
	Dimensions() int

	// Name returns the provider name, used for cache key derivation.
	Name() string

	// Model returns the model name, used for cache key derivation.
	Model() string
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the generator: "openai", "gemini", "voyage",
	// "mistral", "auto" or "none".
	Provider string `yaml:"provider"`

	// Model is the embedding model name. Empty means the provider default.
	Model string `yaml:"model"`

	// Dimensions is the output vector size. Zero means the provider default.
	Dimensions int `yaml:"dimensions"`

	// APIKey overrides env-var key resolution for the provider.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's API endpoint.
	BaseURL string `yaml:"base_url"`

	// Fallback names a secondary provider tried when the primary fails.
	Fallback        string `yaml:"fallback"`
	FallbackAPIKey  string `yaml:"fallback_api_key"`
	FallbackBaseURL string `yaml:"fallback_base_url"`
	FallbackModel   string `yaml:"fallback_model"`
}

// DefaultEmbeddingConfig returns the defaults: auto-detect a provider from
// the environment, OpenAI-sized vectors.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider: "auto",
	}
}

// compatPreset describes one OpenAI-compatible embeddings endpoint.
type compatPreset struct {
	name       string
	baseURL    string
	model      string
	dimensions int
	envVar     string
	// extraBody carries provider-specific request fields.
	extraBody map[string]any
}

var compatPresets = map[string]compatPreset{
	"openai": {
		name:       "openai",
		baseURL:    "https://api.openai.com/v1",
		model:      "text-embedding-3-small",
		dimensions: 1536,
		envVar:     "OPENAI_API_KEY",
	},
	"voyage": {
		name:       "voyage",
		baseURL:    "https://api.voyageai.com/v1",
		model:      "voyage-3-lite",
		dimensions: 1024,
		envVar:     "VOYAGE_API_KEY",
	},
	"mistral": {
		name:       "mistral",
		baseURL:    "https://api.mistral.ai/v1",
		model:      "mistral-embed",
		dimensions: 1024,
		envVar:     "MISTRAL_API_KEY",
	},
}

// CompatEmbedder talks to any OpenAI-compatible /embeddings endpoint.
type CompatEmbedder struct {
	preset compatPreset
	apiKey string
	client *http.Client
}

// NewCompatEmbedder creates a provider for a known preset, applying config
// overrides for model, dimensions, base URL and API key.
func NewCompatEmbedder(preset compatPreset, cfg EmbeddingConfig) *CompatEmbedder {
	if cfg.BaseURL != "" {
		preset.baseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		preset.model = cfg.Model
	}
	if cfg.Dimensions > 0 {
		preset.dimensions = cfg.Dimensions
	}
	return &CompatEmbedder{
		preset: preset,
		apiKey: resolveAPIKey(cfg.APIKey, preset.envVar),
		client: newEmbedHTTPClient(),
	}
}

// compatEmbedResponse is the OpenAI-compatible embeddings API response.
type compatEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed calls the /embeddings endpoint for a batch of texts.
func (e *CompatEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body := map[string]any{
		"model": e.preset.model,
		"input": texts,
	}
	if e.preset.dimensions > 0 {
		body["dimensions"] = e.preset.dimensions
	}
	maps.Copy(body, e.preset.extraBody)

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal embed request: %w", e.preset.name, err)
	}

	endpoint := strings.TrimRight(e.preset.baseURL, "/") + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: create embed request: %w", e.preset.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: embed API call: %w", e.preset.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read embed response: %w", e.preset.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: embed API error (status %d): %s",
			e.preset.name, resp.StatusCode, string(respBody))
	}

	var result compatEmbedResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%s: unmarshal embed response: %w", e.preset.name, err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("%s: embed API error: %s", e.preset.name, result.Error.Message)
	}

	// Responses carry an index field; order by it to match input order.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	return embeddings, nil
}

func (e *CompatEmbedder) Dimensions() int { return e.preset.dimensions }
func (e *CompatEmbedder) Name() string    { return e.preset.name }
func (e *CompatEmbedder) Model() string   { return e.preset.model }

// ---------- Null Provider ----------

// NullEmbedder disables vector search: it produces no vectors and no error.
type NullEmbedder struct{}

func (e *NullEmbedder) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, nil
}
func (e *NullEmbedder) Dimensions() int { return 0 }
func (e *NullEmbedder) Name() string    { return "none" }
func (e *NullEmbedder) Model() string   { return "none" }

// ---------- Factory ----------

// NewEmbeddingProvider creates a provider from config, wrapping it with a
// FallbackEmbedder when a usable fallback is configured.
func NewEmbeddingProvider(cfg EmbeddingConfig, logger *slog.Logger) EmbeddingProvider {
	primary := newEmbeddingProviderByName(cfg.Provider, cfg)

	if cfg.Fallback != "" && cfg.Fallback != "none" {
		fallbackCfg := EmbeddingConfig{
			Provider:   cfg.Fallback,
			APIKey:     cfg.FallbackAPIKey,
			BaseURL:    cfg.FallbackBaseURL,
			Model:      cfg.FallbackModel,
			Dimensions: cfg.Dimensions,
		}
		fallback := newEmbeddingProviderByName(cfg.Fallback, fallbackCfg)
		if _, isNull := fallback.(*NullEmbedder); !isNull {
			return NewFallbackEmbedder(primary, fallback, logger)
		}
	}
	return primary
}

func newEmbeddingProviderByName(name string, cfg EmbeddingConfig) EmbeddingProvider {
	switch strings.ToLower(name) {
	case "openai", "voyage", "mistral":
		return NewCompatEmbedder(compatPresets[strings.ToLower(name)], cfg)
	case "gemini", "google":
		return NewGeminiEmbedder(cfg)
	case "auto":
		return newAutoEmbedder(cfg)
	default:
		return &NullEmbedder{}
	}
}

// autoProviderOrder is the priority for auto-detecting a provider from env keys.
var autoProviderOrder = []struct {
	name   string
	envVar string
}{
	{"openai", "OPENAI_API_KEY"},
	{"gemini", "GOOGLE_API_KEY"},
	{"voyage", "VOYAGE_API_KEY"},
	{"mistral", "MISTRAL_API_KEY"},
}

// newAutoEmbedder resolves "auto" to a concrete provider. An explicit API key
// plus base URL selects by URL; an explicit key alone assumes OpenAI;
// otherwise the env keys decide. With no key anywhere the result is the null
// provider and only keyword search works.
func newAutoEmbedder(cfg EmbeddingConfig) EmbeddingProvider {
	if cfg.APIKey != "" {
		if cfg.BaseURL != "" {
			lower := strings.ToLower(cfg.BaseURL)
			switch {
			case strings.Contains(lower, "googleapis") || strings.Contains(lower, "gemini"):
				return NewGeminiEmbedder(cfg)
			case strings.Contains(lower, "voyageai"):
				return NewCompatEmbedder(compatPresets["voyage"], cfg)
			case strings.Contains(lower, "mistral"):
				return NewCompatEmbedder(compatPresets["mistral"], cfg)
			default:
				return NewCompatEmbedder(compatPresets["openai"], cfg)
			}
		}
		return NewCompatEmbedder(compatPresets["openai"], cfg)
	}

	for _, p := range autoProviderOrder {
		if key := os.Getenv(p.envVar); key != "" {
			autoCfg := cfg
			autoCfg.APIKey = key
			return newEmbeddingProviderByName(p.name, autoCfg)
		}
	}
	return &NullEmbedder{}
}

// resolveAPIKey returns the configured key, falling back to the env var.
func resolveAPIKey(configured, envVar string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv(envVar)
}

func newEmbedHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// ---------- Fallback ----------

// FallbackEmbedder retries a secondary provider when the primary fails.
// Cache keys use the primary only; vectors from different models do not mix,
// so a fallback-produced vector is cached under the primary's key space and
// replaced on the next successful primary embed of the same text.
type FallbackEmbedder struct {
	primary  EmbeddingProvider
	fallback EmbeddingProvider
	logger   *slog.Logger
}

// NewFallbackEmbedder creates a fallback-enabled embedder.
func NewFallbackEmbedder(primary, fallback EmbeddingProvider, logger *slog.Logger) *FallbackEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackEmbedder{primary: primary, fallback: fallback, logger: logger}
}

// Embed tries the primary provider, then the fallback.
func (f *FallbackEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := f.primary.Embed(ctx, texts)
	if err == nil {
		return result, nil
	}

	f.logger.Warn("embedding primary failed, trying fallback",
		"primary", f.primary.Name(), "fallback", f.fallback.Name(), "error", err)

	result, fallbackErr := f.fallback.Embed(ctx, texts)
	if fallbackErr == nil {
		return result, nil
	}
	return nil, fmt.Errorf("embedding: primary (%s) failed: %w; fallback (%s) failed: %v",
		f.primary.Name(), err, f.fallback.Name(), fallbackErr)
}

func (f *FallbackEmbedder) Dimensions() int { return f.primary.Dimensions() }

// Name reports the primary's name so cache rows keyed with and without a
// fallback configured stay interchangeable.
func (f *FallbackEmbedder) Name() string  { return f.primary.Name() }
func (f *FallbackEmbedder) Model() string { return f.primary.Model() }
