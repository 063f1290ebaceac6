package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/flemzord/mcphub/internal/config"
)

func TestIsUnauthorized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("request failed: 401 Unauthorized"), true},
		{errors.New("unexpected status 401"), true},
		{errors.New("unauthorized: missing bearer token"), true},
		{errors.New("request failed: 500 Internal Server Error"), false},
		{errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := isUnauthorized(tt.err); got != tt.want {
			t.Errorf("isUnauthorized(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsTransportFault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("write: broken pipe"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("transport is closed"), true},
		{context.Canceled, false},
		{context.DeadlineExceeded, false},
		{fmt.Errorf("wrapping: %w", context.DeadlineExceeded), false},
		{errors.New("invalid params"), false},
	}
	for _, tt := range tests {
		if got := isTransportFault(tt.err); got != tt.want {
			t.Errorf("isTransportFault(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestSession_CallBeforeOpen(t *testing.T) {
	t.Parallel()

	sess := NewSession(config.ServerConfig{Name: "bash", Command: "mcp-bash"}, nil)
	if _, err := sess.Call(context.Background(), "read_file", nil); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("got %v, want ErrNotOpen", err)
	}
}

func TestSession_OpenUnreachableLocal(t *testing.T) {
	t.Parallel()

	sess := NewSession(config.ServerConfig{
		Name:    "ghost",
		Command: "mcphub-test-no-such-binary",
	}, nil)

	err := sess.Open(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for unreachable backend")
	}
	if sess.State() != StateFailed && sess.State() != StateConnecting {
		t.Errorf("State = %s", sess.State())
	}
}

func TestSession_CloseWithoutOpen(t *testing.T) {
	t.Parallel()

	sess := NewSession(config.ServerConfig{Name: "bash", Command: "mcp-bash"}, nil)
	if err := sess.Close(); err != nil {
		t.Errorf("Close on unopened session: %v", err)
	}
}
