package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/flemzord/mcphub/internal/config"
	"github.com/flemzord/mcphub/internal/gateway"
	"github.com/flemzord/mcphub/internal/oauth"
	"github.com/flemzord/mcphub/internal/proxy"
)

// ProxyParams configures the catalog proxy entry point.
type ProxyParams struct {
	// ConfigPath is the YAML configuration file.
	ConfigPath string

	// Root overrides the config's paths.root. The sandbox manager sets it
	// to the bind-mount target so the in-container broker reads the same
	// credential store the host broker writes; empty keeps the config
	// value.
	Root string

	// Listen is the HTTP address for the streamable endpoint. Ignored
	// when Stdio is set.
	Listen string

	// Stdio serves the catalog over stdin/stdout instead of HTTP.
	Stdio bool

	// Version is injected at build time via ldflags.
	Version string

	// LogLevel sets the minimum log level.
	LogLevel slog.Level
}

// RunProxy federates the configured backends and serves the full
// namespaced catalog — the surface sandboxed scripts call back through.
// This proxy holds its own sessions to the backends; it never talks to the
// host-side proxy.
func RunProxy(params ProxyParams) error {
	cfg, err := config.Load(params.ConfigPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if params.Root != "" {
		cfg.Paths.Root = params.Root
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: params.LogLevel,
	}))

	broker := oauth.NewBroker(cfg.Paths.Root, cfg.Sandbox.OAuthPort, logger)

	p := proxy.New(logger)
	if err := p.Discover(context.Background(), cfg.Servers, broker); err != nil {
		return err
	}
	defer p.Close()

	if params.Stdio {
		return p.ServeStdio("mcphub-proxy", params.Version)
	}

	gw := gateway.New(gateway.Config{
		Listen: params.Listen,
		Proxy:  p,
		MCP:    p.HTTPHandler("mcphub-proxy", params.Version),
		Logger: logger,
	})
	logger.Info("proxy serving", "addr", params.Listen, "tools", p.Len())
	return gw.Serve()
}
