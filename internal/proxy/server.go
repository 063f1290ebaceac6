package proxy

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer builds a protocol server exposing the full namespaced catalog.
// This is the surface the in-container proxy serves to sandboxed scripts;
// the host-side façade exposes only the four meta-operations instead.
func (p *Proxy) MCPServer(name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))
	for _, rec := range p.Records() {
		tool := mcp.NewToolWithRawSchema(rec.Name, rec.Description, rec.InputSchema)
		s.AddTool(tool, p.handleCall)
	}
	return s
}

// handleCall dispatches one hosted-client call into the federation.
func (p *Proxy) handleCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return p.CallTool(ctx, req.Params.Name, req.GetArguments()), nil
}

// ServeStdio runs the catalog server over line-delimited JSON on
// stdin/stdout, blocking until the stream closes.
func (p *Proxy) ServeStdio(name, version string) error {
	return server.ServeStdio(p.MCPServer(name, version))
}

// HTTPHandler returns the streamable-HTTP framing of the catalog server,
// mountable on any mux.
func (p *Proxy) HTTPHandler(name, version string) http.Handler {
	return server.NewStreamableHTTPServer(p.MCPServer(name, version))
}
