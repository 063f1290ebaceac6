// Package backend manages one protocol session per configured tool server.
// A session owns its transport exclusively; once failed it is not revived
// within the same process run.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/mcphub/internal/config"
)

// State is the lifecycle state of a backend session.
type State string

// Session states.
const (
	StateConnecting     State = "connecting"
	StateReady          State = "ready"
	StateAuthenticating State = "authenticating"
	StateFailed         State = "failed"
)

// ToolInfo is one tool advertised by a backend, with its schemas captured
// as raw JSON so the proxy stays agnostic to schema structure.
type ToolInfo struct {
	Name         string
	Description  string
	InputSchema  json.RawMessage
	OutputSchema json.RawMessage
}

// Authorizer obtains a bearer token for a remote backend that rejected an
// unauthenticated connection. Implemented by the OAuth broker.
type Authorizer interface {
	Authorize(ctx context.Context, server, serverURL string) (string, error)
}

// Session is one open connection to a backend tool server.
type Session struct {
	mu     sync.Mutex
	desc   config.ServerConfig
	client *client.Client
	state  State
	tools  []ToolInfo
	logger *slog.Logger
}

// NewSession creates an unopened session for the given descriptor.
func NewSession(desc config.ServerConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		desc:   desc,
		state:  StateConnecting,
		logger: logger.With("server", desc.Name),
	}
}

// Name returns the backend name from the descriptor.
func (s *Session) Name() string { return s.desc.Name }

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tools returns the snapshot captured by Open.
func (s *Session) Tools() []ToolInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolInfo, len(s.tools))
	copy(out, s.tools)
	return out
}

// Open dials the backend, completes the protocol handshake, and captures the
// tool snapshot. For remote backends that reject the first connection as
// unauthorized, the authorizer is consulted and the connection is retried
// exactly once with a fresh transport carrying the new credential.
func (s *Session) Open(ctx context.Context, auth Authorizer) error {
	c, err := s.dial("")
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, s.desc.Name, err)
	}

	err = s.handshake(ctx, c)
	if err != nil && !s.desc.Local() && isUnauthorized(err) && auth != nil {
		_ = c.Close()
		s.setState(StateAuthenticating)
		s.logger.Info("backend requires authorization, starting flow")

		token, authErr := auth.Authorize(ctx, s.desc.Name, s.desc.URL)
		if authErr != nil {
			s.setState(StateFailed)
			return fmt.Errorf("%w: %s: %v", ErrUnreachable, s.desc.Name, authErr)
		}

		// Exactly one retry with a fresh transport carrying the token.
		c, err = s.dial(token)
		if err != nil {
			s.setState(StateFailed)
			return fmt.Errorf("%w: %s: %v", ErrUnreachable, s.desc.Name, err)
		}
		err = s.handshake(ctx, c)
	}
	if err != nil {
		_ = c.Close()
		s.setState(StateFailed)
		// Authorization that fails even after the single retry is treated
		// like any other unreachable backend.
		if isUnauthorized(err) {
			return fmt.Errorf("%w: %s: %v", ErrUnauthorized, s.desc.Name, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrHandshake, s.desc.Name, err)
	}

	tools, err := s.listAll(ctx, c)
	if err != nil {
		_ = c.Close()
		s.setState(StateFailed)
		return fmt.Errorf("%w: %s: %v", ErrHandshake, s.desc.Name, err)
	}

	s.mu.Lock()
	s.client = c
	s.tools = tools
	s.state = StateReady
	s.mu.Unlock()

	s.logger.Info("backend ready", "tools", len(tools))
	return nil
}

// dial builds a client for the descriptor. A non-empty bearer token is
// attached as an Authorization header on remote transports.
func (s *Session) dial(bearer string) (*client.Client, error) {
	if s.desc.Local() {
		env := append(os.Environ(), s.desc.Env...)
		return client.NewStdioMCPClient(s.desc.Command, env, s.desc.Args...)
	}

	headers := map[string]string{}
	if bearer != "" {
		headers["Authorization"] = "Bearer " + bearer
	}

	switch s.desc.Transport {
	case config.TransportSSE:
		return client.NewSSEMCPClient(s.desc.URL, transport.WithHeaders(headers))
	case config.TransportStreamableHTTP:
		return client.NewStreamableHttpClient(s.desc.URL, transport.WithHTTPHeaders(headers))
	default:
		return nil, fmt.Errorf("unknown transport %q", s.desc.Transport)
	}
}

// handshake starts the transport (remote clients only; stdio starts on
// construction) and runs the initialize exchange.
func (s *Session) handshake(ctx context.Context, c *client.Client) error {
	if !s.desc.Local() {
		if err := c.Start(ctx); err != nil {
			return err
		}
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "mcphub",
		Version: "1.0",
	}
	_, err := c.Initialize(ctx, initReq)
	return err
}

// listAll drains the paginated tool list.
func (s *Session) listAll(ctx context.Context, c *client.Client) ([]ToolInfo, error) {
	var out []ToolInfo
	req := mcp.ListToolsRequest{}
	for {
		res, err := c.ListTools(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, t := range res.Tools {
			info, err := toToolInfo(t)
			if err != nil {
				return nil, err
			}
			out = append(out, info)
		}
		if res.NextCursor == "" {
			break
		}
		req.Params.Cursor = res.NextCursor
	}
	return out, nil
}

// toToolInfo captures a wire tool's schemas as raw JSON by round-tripping
// through the tool's own wire encoding.
func toToolInfo(t mcp.Tool) (ToolInfo, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return ToolInfo{}, err
	}
	var wire struct {
		InputSchema  json.RawMessage `json:"inputSchema"`
		OutputSchema json.RawMessage `json:"outputSchema"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ToolInfo{}, err
	}
	return ToolInfo{
		Name:         t.Name,
		Description:  t.Description,
		InputSchema:  wire.InputSchema,
		OutputSchema: wire.OutputSchema,
	}, nil
}

// Call forwards a tool invocation to the backend. The result is a
// transparent envelope: in-band tool errors come back with IsError set and
// are not treated as session faults. A transport fault demotes the session
// to failed.
func (s *Session) Call(ctx context.Context, rawName string, args map[string]any) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	c := s.client
	state := s.state
	s.mu.Unlock()

	if state == StateFailed {
		return nil, fmt.Errorf("%w: %s", ErrSessionFailed, s.desc.Name)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotOpen, s.desc.Name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = rawName
	req.Params.Arguments = args

	res, err := c.CallTool(ctx, req)
	if err != nil {
		if isTransportFault(err) {
			s.setState(StateFailed)
			return nil, fmt.Errorf("%w: %s: %v", ErrSessionFailed, s.desc.Name, err)
		}
		return nil, err
	}
	return res, nil
}

// Close releases the transport and any child process. Best effort.
func (s *Session) Close() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// isUnauthorized classifies an initialize/start error as a credential
// rejection. The SDK surfaces HTTP status codes in error text.
func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, http.StatusText(http.StatusUnauthorized)) ||
		strings.Contains(strings.ToLower(msg), "unauthorized")
}

// isTransportFault distinguishes a broken transport from an in-band
// protocol error. Context cancellation is the caller's deadline, not a
// session fault.
func isTransportFault(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"broken pipe", "connection refused", "connection reset", "eof", "closed"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
