// Package gateway is the local HTTP surface: health, metrics, the script
// execution API with live output streaming, and (in proxy mode) the
// streamable tool-protocol endpoint.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/mcphub/internal/history"
	"github.com/flemzord/mcphub/internal/proxy"
	"github.com/flemzord/mcphub/internal/sandbox"
)

// Gateway serves the local HTTP API.
type Gateway struct {
	listen  string
	proxy   *proxy.Proxy
	sandbox *sandbox.Manager
	history *history.Store
	metrics *Metrics
	mcp     http.Handler
	logger  *slog.Logger
	srv     *http.Server
}

// Config wires the gateway's collaborators. Sandbox, history, metrics, and
// MCP are optional; absent pieces drop their routes.
type Config struct {
	Listen  string
	Proxy   *proxy.Proxy
	Sandbox *sandbox.Manager
	History *history.Store
	Metrics *Metrics

	// MCP, when set, is mounted at /mcp (the in-container proxy surface).
	MCP http.Handler

	Logger *slog.Logger
}

// New creates a gateway. Call Start to begin serving.
func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		listen:  cfg.Listen,
		proxy:   cfg.Proxy,
		sandbox: cfg.Sandbox,
		history: cfg.History,
		metrics: cfg.Metrics,
		mcp:     cfg.MCP,
		logger:  logger,
	}
}

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	if g.metrics != nil {
		r.Use(g.countRequests)
	}

	r.Get("/health", g.handleHealth())

	if g.metrics != nil {
		r.Handle("/metrics", g.metrics.Handler())
	}

	if g.history != nil {
		r.Route("/api", func(r chi.Router) {
			r.Get("/executions", g.handleListExecutions())
			r.Get("/executions/{id}", g.handleGetExecution())
			if g.sandbox != nil {
				r.Get("/executions/{id}/stream", g.handleStreamExecution())
			}
		})
	}

	if g.mcp != nil {
		r.Handle("/mcp", g.mcp)
		r.Handle("/mcp/*", g.mcp)
	}

	return r
}

// Start binds the listener and serves in the background.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.listen)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", g.listen, err)
	}

	g.srv = &http.Server{
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway stopped", "error", err)
		}
	}()
	g.logger.Info("gateway listening", "addr", ln.Addr().String())
	return nil
}

// Serve blocks serving on the configured address (proxy mode).
func (g *Gateway) Serve() error {
	g.srv = &http.Server{
		Addr:              g.listen,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := g.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains the server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.srv == nil {
		return nil
	}
	return g.srv.Shutdown(ctx)
}

// countRequests tallies requests by path pattern and status. Upgraded
// connections (websockets) bypass the recorder so hijacking keeps working.
func (g *Gateway) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		g.metrics.httpRequests.WithLabelValues(r.URL.Path, strconv.Itoa(rec.status)).Inc()
	})
}
