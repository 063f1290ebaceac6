// Package proxy aggregates every configured backend into one tool catalog,
// namespaces tool names as server__tool, and routes calls to the owning
// session. The proxy itself speaks the tool protocol, so hosted clients
// (the sandbox) see it as just another backend.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/flemzord/mcphub/internal/backend"
	"github.com/flemzord/mcphub/internal/config"
)

// Record is one catalog entry, keyed by qualified name.
type Record struct {
	// Name is the qualified name: server + "__" + raw tool name.
	Name string `json:"name"`

	// Server is the owning backend.
	Server string `json:"server"`

	// Raw is the tool name as advertised by the backend.
	Raw string `json:"-"`

	// Description is the backend description prefixed with "[server] ".
	Description string `json:"description"`

	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// Proxy holds the catalog and the backend sessions. Reads dominate; writes
// happen only during discovery and eviction.
type Proxy struct {
	mu       sync.RWMutex
	sessions map[string]*backend.Session
	catalog  map[string]Record
	logger   *slog.Logger
}

// New creates an empty proxy.
func New(logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		sessions: make(map[string]*backend.Session),
		catalog:  make(map[string]Record),
		logger:   logger,
	}
}

// Qualify joins a server name and raw tool name into a qualified name.
func Qualify(server, raw string) string {
	return server + config.Separator + raw
}

// SplitQualified recovers (server, raw) from a qualified name. The split is
// on the FIRST separator occurrence: server names cannot contain it, raw
// tool names can.
func SplitQualified(name string) (server, raw string, err error) {
	server, raw, ok := strings.Cut(name, config.Separator)
	if !ok || server == "" || raw == "" {
		return "", "", fmt.Errorf("malformed qualified tool name %q", name)
	}
	return server, raw, nil
}

// Discover opens a session per descriptor in parallel and merges every
// ready backend's tools into the catalog. An unreachable backend is logged
// and skipped; the rest of the federation continues.
func (p *Proxy) Discover(ctx context.Context, servers []config.ServerConfig, auth backend.Authorizer) error {
	g, ctx := errgroup.WithContext(ctx)

	sessions := make([]*backend.Session, len(servers))
	for i, desc := range servers {
		sessions[i] = backend.NewSession(desc, p.logger)
		sess := sessions[i]
		g.Go(func() error {
			if err := sess.Open(ctx, auth); err != nil {
				p.logger.Warn("backend discovery failed", "server", sess.Name(), "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, sess := range sessions {
		if sess.State() != backend.StateReady {
			continue
		}
		p.mu.Lock()
		p.sessions[sess.Name()] = sess
		p.mu.Unlock()
		for _, t := range sess.Tools() {
			rec := Record{
				Name:         Qualify(sess.Name(), t.Name),
				Server:       sess.Name(),
				Raw:          t.Name,
				Description:  "[" + sess.Name() + "] " + t.Description,
				InputSchema:  t.InputSchema,
				OutputSchema: t.OutputSchema,
			}
			if err := p.Add(rec); err != nil {
				p.logger.Warn("skipping tool", "tool", rec.Name, "error", err)
			}
		}
	}
	p.logger.Info("discovery complete", "tools", p.Len())
	return nil
}

// Add registers one catalog entry. Qualified names are unique: a second
// entry under the same name is rejected.
func (p *Proxy) Add(rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.catalog[rec.Name]; exists {
		return fmt.Errorf("duplicate qualified name %q", rec.Name)
	}
	p.catalog[rec.Name] = rec
	return nil
}

// Records returns the catalog sorted by qualified name.
func (p *Proxy) Records() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Record, 0, len(p.catalog))
	for _, rec := range p.catalog {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Record looks up one catalog entry by qualified name.
func (p *Proxy) Record(name string) (Record, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.catalog[name]
	return rec, ok
}

// Len returns the catalog size.
func (p *Proxy) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.catalog)
}

// CallTool routes a qualified call to the owning backend and surfaces the
// result unchanged. Missing backend or tool yields an in-band error result
// (is_error=true), not a transport fault, so the calling model can react.
// The proxy never retries.
func (p *Proxy) CallTool(ctx context.Context, qualified string, args map[string]any) *mcp.CallToolResult {
	server, raw, err := SplitQualified(qualified)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}

	p.mu.RLock()
	sess, ok := p.sessions[server]
	_, known := p.catalog[qualified]
	p.mu.RUnlock()

	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("backend %q unavailable", server))
	}
	if !known {
		return mcp.NewToolResultError(fmt.Sprintf("tool %q not found", qualified))
	}

	res, err := sess.Call(ctx, raw, args)
	if err != nil {
		if sess.State() == backend.StateFailed {
			p.Evict(server)
		}
		return mcp.NewToolResultError(fmt.Sprintf("calling %s: %v", qualified, err))
	}
	return res
}

// Evict removes a failed backend's tools from the catalog. The session is
// not revived within this process run; future calls to its tools report
// the backend unavailable.
func (p *Proxy) Evict(server string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sess, ok := p.sessions[server]
	delete(p.sessions, server)
	for name, rec := range p.catalog {
		if rec.Server == server {
			delete(p.catalog, name)
		}
	}
	if ok {
		_ = sess.Close()
	}
	p.logger.Warn("backend evicted", "server", server)
}

// Close releases every session. Best effort.
func (p *Proxy) Close() {
	p.mu.Lock()
	sessions := make([]*backend.Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.sessions = make(map[string]*backend.Session)
	p.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
