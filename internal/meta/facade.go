// Package meta reduces the federated catalog to four surfaced operations:
// list_tool_names, search_tools, get_tool_definition, and execute_script.
// The chat loop sees nothing else; all real tool use happens through
// scripts and the generated bindings inside the sandbox.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/mcphub/internal/proxy"
)

// DefaultListLimit caps list_tool_names when the caller gives no limit.
const DefaultListLimit = 100

// DefaultScriptTimeout is the execute_script budget when none is given.
const DefaultScriptTimeout = 30 * time.Second

// RunResult is the outcome of one sandboxed script execution.
type RunResult struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMS int64  `json:"duration_ms"`
}

// Runner executes a script inside the sandbox. Implemented by the sandbox
// manager.
type Runner interface {
	Execute(ctx context.Context, code string, timeout time.Duration) (RunResult, error)
}

// Facade is the four-operation surface handed to the chat loop.
type Facade struct {
	proxy    *proxy.Proxy
	runner   Runner
	selector Selector
	logger   *slog.Logger
}

// New creates a façade over the given proxy. The runner and selector may be
// nil: execute_script then reports the sandbox unavailable, and
// search_tools falls back to the deterministic candidate list.
func New(p *proxy.Proxy, runner Runner, selector Selector, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{proxy: p, runner: runner, selector: selector, logger: logger}
}

// Meta-operation names.
const (
	OpListToolNames     = "list_tool_names"
	OpSearchTools       = "search_tools"
	OpGetToolDefinition = "get_tool_definition"
	OpExecuteScript     = "execute_script"
)

// Tools returns exactly the four surfaced tool definitions.
func (f *Facade) Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewToolWithRawSchema(
			OpListToolNames,
			"List qualified tool names across all connected servers, optionally filtered by server or keywords. Returns names plus total/returned/truncated counts.",
			json.RawMessage(`{
				"type": "object",
				"properties": {
					"server": {"type": "string", "description": "Restrict to tools of this server"},
					"keywords": {"type": "array", "items": {"type": "string"}, "description": "Keep tools matching ANY keyword (case-insensitive, matched against name, description, and schema)"},
					"limit": {"type": "integer", "description": "Max names to return (default: 100)", "default": 100}
				}
			}`),
		),
		mcp.NewToolWithRawSchema(
			OpSearchTools,
			"Find tools relevant to a natural-language query. Uses a small model to rank relevance; falls back to the full candidate list when the selector is unavailable. Returns full tool definitions.",
			json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "What you are trying to do (e.g., 'create a calendar event')"},
					"server": {"type": "string", "description": "Restrict to tools of this server"},
					"limit": {"type": "integer", "description": "Max tools to return"}
				}
			}`),
		),
		mcp.NewToolWithRawSchema(
			OpGetToolDefinition,
			"Get the full definition of one tool by qualified name, including its input and output schemas. Use before writing a script that calls it.",
			json.RawMessage(`{
				"type": "object",
				"properties": {
					"tool_name": {"type": "string", "description": "Qualified tool name (server__tool)"}
				},
				"required": ["tool_name"]
			}`),
		),
		mcp.NewToolWithRawSchema(
			OpExecuteScript,
			"Execute a Python script inside the sandbox. Generated bindings for every connected tool are in scope; call them as <server>.<tool>(args). Results come back via stdout.",
			json.RawMessage(`{
				"type": "object",
				"properties": {
					"code": {"type": "string", "description": "Python source to execute"},
					"timeout_ms": {"type": "integer", "description": "Wall-clock budget in milliseconds (default: 30000)", "default": 30000}
				},
				"required": ["code"]
			}`),
		),
	}
}

// CallTool routes one façade invocation. Any name outside the four
// meta-operations is refused with an instructive in-band error: direct tool
// dispatch is not permitted, all tool use goes through execute_script.
func (f *Facade) CallTool(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	switch name {
	case OpListToolNames:
		return f.listToolNames(args)
	case OpGetToolDefinition:
		return f.getToolDefinition(args)
	case OpSearchTools:
		return f.searchTools(ctx, args)
	case OpExecuteScript:
		return f.executeScript(ctx, args)
	default:
		return mcp.NewToolResultError(fmt.Sprintf(
			"%q is not callable directly; write a script that calls it through the generated bindings and run it with %s", name, OpExecuteScript))
	}
}

// MCPServer exposes the façade over the tool protocol.
func (f *Facade) MCPServer(version string) *server.MCPServer {
	s := server.NewMCPServer("mcphub", version, server.WithToolCapabilities(false))
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return f.CallTool(ctx, req.Params.Name, req.GetArguments()), nil
	}
	for _, t := range f.Tools() {
		s.AddTool(t, handler)
	}
	return s
}

// ServeStdio blocks serving the façade on stdin/stdout.
func (f *Facade) ServeStdio(version string) error {
	return server.ServeStdio(f.MCPServer(version))
}

// listNamesResponse is the list_tool_names payload.
type listNamesResponse struct {
	ToolNames []string `json:"tool_names"`
	Total     int      `json:"total"`
	Returned  int      `json:"returned"`
	Truncated bool     `json:"truncated"`
}

func (f *Facade) listToolNames(args map[string]any) *mcp.CallToolResult {
	server := stringArg(args, "server")
	keywords := stringSliceArg(args, "keywords")
	limit := intArg(args, "limit", DefaultListLimit)
	if limit < 0 {
		return mcp.NewToolResultError("limit must be non-negative")
	}

	records := filterServer(f.proxy.Records(), server)
	records = filterKeywords(records, keywords)

	names := make([]string, 0, len(records))
	for _, rec := range records {
		names = append(names, rec.Name)
	}

	resp := listNamesResponse{Total: len(names)}
	if len(names) > limit {
		names = names[:limit]
		resp.Truncated = true
	}
	resp.ToolNames = names
	resp.Returned = len(names)
	return jsonResult(resp)
}

func (f *Facade) getToolDefinition(args map[string]any) *mcp.CallToolResult {
	name := stringArg(args, "tool_name")
	if name == "" {
		return mcp.NewToolResultError("tool_name is required")
	}
	rec, ok := f.proxy.Record(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("tool %q not found; use %s to discover available names", name, OpListToolNames))
	}
	return jsonResult(rec)
}

func (f *Facade) searchTools(ctx context.Context, args map[string]any) *mcp.CallToolResult {
	query := stringArg(args, "query")
	server := stringArg(args, "server")
	limit := intArg(args, "limit", 0)

	candidates := filterServer(f.proxy.Records(), server)

	selected := candidates
	if query != "" && f.selector != nil {
		names, err := f.selector.Select(ctx, query, candidates)
		if err != nil {
			f.logger.Warn("selector failed, returning all candidates", "error", err)
		} else {
			selected = intersect(candidates, names)
		}
	}

	if limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}
	return jsonResult(map[string]any{
		"tools": selected,
		"total": len(selected),
	})
}

func (f *Facade) executeScript(ctx context.Context, args map[string]any) *mcp.CallToolResult {
	code := stringArg(args, "code")
	if code == "" {
		return mcp.NewToolResultError("code is required")
	}
	if f.runner == nil {
		return mcp.NewToolResultError("sandbox unavailable")
	}

	timeout := DefaultScriptTimeout
	if ms := intArg(args, "timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	res, err := f.runner.Execute(ctx, code, timeout)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("script execution failed: %v", err))
	}
	return jsonResult(res)
}

// intersect keeps catalog order and drops selector output that is not in
// the candidate set, so results are always a subset of the candidates.
func intersect(candidates []proxy.Record, names []string) []proxy.Record {
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	var out []proxy.Record
	for _, rec := range candidates {
		if _, ok := wanted[rec.Name]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func jsonResult(v any) *mcp.CallToolResult {
	raw, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding response: %v", err))
	}
	return mcp.NewToolResultText(string(raw))
}

// Argument helpers tolerate the loose typing of decoded JSON.

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
