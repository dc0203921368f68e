package memory

import (
	"context"
	"fmt"
	"sync"
)

// LazyEmbedder defers provider construction to the first embed call, so
// opening the store never blocks on model or key resolution and keyword-only
// use never pays for it. Construction runs once; a load failure is remembered
// and every subsequent call reports it as ErrEmbeddingUnavailable, which
// keeps "provider never loaded" distinct from a transient per-call failure.
type LazyEmbedder struct {
	construct func() (EmbeddingProvider, error)

	mu       sync.Mutex
	provider EmbeddingProvider
	loadErr  error
	loaded   bool
}

// NewLazyEmbedder wraps a provider constructor.
func NewLazyEmbedder(construct func() (EmbeddingProvider, error)) *LazyEmbedder {
	return &LazyEmbedder{construct: construct}
}

// load runs the constructor exactly once under the lock.
func (l *LazyEmbedder) load() (EmbeddingProvider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		l.provider, l.loadErr = l.construct()
		if l.loadErr != nil {
			l.loadErr = fmt.Errorf("%w: load provider: %v", ErrEmbeddingUnavailable, l.loadErr)
		}
		l.loaded = true
	}
	return l.provider, l.loadErr
}

// Ready reports whether a working provider is loaded. It never triggers a
// load: before the first embed call it returns false.
func (l *LazyEmbedder) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded || l.loadErr != nil || l.provider == nil {
		return false
	}
	_, isNull := l.provider.(*NullEmbedder)
	return !isNull
}

// Embed loads the provider on first use and delegates to it.
func (l *LazyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p, err := l.load()
	if err != nil {
		return nil, err
	}
	return p.Embed(ctx, texts)
}

// Dimensions reports the loaded provider's vector size, or 0 before load.
func (l *LazyEmbedder) Dimensions() int {
	p, err := l.load()
	if err != nil {
		return 0
	}
	return p.Dimensions()
}

// Name returns the loaded provider's name, or "unloaded" on load failure.
func (l *LazyEmbedder) Name() string {
	p, err := l.load()
	if err != nil {
		return "unloaded"
	}
	return p.Name()
}

// Model returns the loaded provider's model, or "unloaded" on load failure.
func (l *LazyEmbedder) Model() string {
	p, err := l.load()
	if err != nil {
		return "unloaded"
	}
	return p.Model()
}
