// Package gateway exposes the memory engine over HTTP. It is a thin
// collaborator: every route maps onto one engine operation and holds no
// state of its own beyond the server lifecycle.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/engramd/engram/pkg/engram/config"
	"github.com/engramd/engram/pkg/engram/memory"
)

// Gateway is the HTTP API server.
type Gateway struct {
	store     *memory.Store
	embedder  *memory.LazyEmbedder
	config    config.GatewayConfig
	server    *http.Server
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a gateway over the given store. The embedder may be nil; it is
// only used to report vector-search readiness in /health.
func New(store *memory.Store, embedder *memory.LazyEmbedder, cfg config.GatewayConfig, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8787
	}
	return &Gateway{
		store:    store,
		embedder: embedder,
		config:   cfg,
		logger:   logger.With("component", "gateway"),
	}
}

// Addr returns the listen address.
func (g *Gateway) Addr() string {
	return fmt.Sprintf("%s:%d", g.config.Host, g.config.Port)
}

// Handler builds the full middleware-wrapped route tree.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health is always public.
	mux.HandleFunc("/health", g.handleHealth)

	mux.HandleFunc("/api/memories", g.handleMemories)
	mux.HandleFunc("/api/memories/", g.handleMemoryByID)
	mux.HandleFunc("/api/search", g.handleSearch)
	mux.HandleFunc("/api/stats", g.handleStats)

	return g.securityHeadersMiddleware(g.corsMiddleware(g.authMiddleware(mux)))
}

// Start begins serving in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:    g.Addr(),
		Handler: g.Handler(),
	}

	if g.config.AuthToken == "" {
		ip := net.ParseIP(g.config.Host)
		isLoopback := ip != nil && ip.IsLoopback()
		if !isLoopback && g.config.Host != "localhost" {
			g.logger.Warn("gateway has no auth token and is bound to a non-loopback address, anyone on the network can read and write memories",
				"address", g.Addr())
		}
	}

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway server error", "error", err.Error())
		}
	}()
	g.logger.Info("gateway started", "address", g.Addr())
	return nil
}

// Stop gracefully shuts down the server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping")
	return g.server.Shutdown(ctx)
}
