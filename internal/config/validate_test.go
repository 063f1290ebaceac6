package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Version: "1",
		Paths:   Paths{Root: "/tmp/hub"},
		Servers: []ServerConfig{
			{Name: "bash", Command: "mcp-bash"},
			{Name: "linear", URL: "https://mcp.linear.app/sse", Transport: TransportSSE},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()

	if err := Validate(validConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingVersion(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Version = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing version")
	}
	if !strings.Contains(err.Error(), "version") {
		t.Errorf("error should mention version: %v", err)
	}
}

func TestValidate_MissingRoot(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Paths.Root = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for missing paths.root")
	}
}

func TestValidate_ServerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		server  ServerConfig
		wantSub string
	}{
		{
			name:    "empty name",
			server:  ServerConfig{Command: "tool"},
			wantSub: "name is required",
		},
		{
			name:    "separator in name",
			server:  ServerConfig{Name: "has__double", Command: "tool"},
			wantSub: "must not contain",
		},
		{
			name:    "both command and url",
			server:  ServerConfig{Name: "x", Command: "tool", URL: "https://example.com"},
			wantSub: "mutually exclusive",
		},
		{
			name:    "neither command nor url",
			server:  ServerConfig{Name: "x"},
			wantSub: "one of command or url",
		},
		{
			name:    "remote without transport",
			server:  ServerConfig{Name: "x", URL: "https://example.com"},
			wantSub: "transport is required",
		},
		{
			name:    "unknown transport",
			server:  ServerConfig{Name: "x", URL: "https://example.com", Transport: "websocket"},
			wantSub: "unknown transport",
		},
		{
			name:    "args without command",
			server:  ServerConfig{Name: "x", URL: "https://example.com", Transport: TransportSSE, Args: []string{"-v"}},
			wantSub: "only valid with command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{
				Version: "1",
				Paths:   Paths{Root: "/tmp/hub"},
				Servers: []ServerConfig{tt.server},
			}
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_DuplicateNames(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Servers = append(cfg.Servers, ServerConfig{Name: "bash", Command: "other"})
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for duplicate server name")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate: %v", err)
	}
}
