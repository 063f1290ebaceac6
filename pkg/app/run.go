// Package app provides the shared entry points for the mcphub binary: the
// full host hub (Run) and the catalog proxy served inside the sandbox
// (RunProxy).
package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/flemzord/mcphub/internal/bindings"
	"github.com/flemzord/mcphub/internal/config"
	"github.com/flemzord/mcphub/internal/cron"
	"github.com/flemzord/mcphub/internal/gateway"
	"github.com/flemzord/mcphub/internal/history"
	"github.com/flemzord/mcphub/internal/meta"
	"github.com/flemzord/mcphub/internal/oauth"
	"github.com/flemzord/mcphub/internal/proxy"
	"github.com/flemzord/mcphub/internal/sandbox"
	"github.com/flemzord/mcphub/internal/workspace"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, config.ResolvePath is called automatically.
	ConfigPath string

	// Version is injected at build time via ldflags.
	Version string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level
}

// Run loads configuration, federates the backends, generates bindings,
// prepares the sandbox, and serves the four-operation façade on stdio
// until the stream closes or a shutdown signal arrives. Cleanup runs
// exactly once on every exit path.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := config.ResolvePath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: params.LogLevel,
	}))

	ws := workspace.New(cfg.Paths.Root)
	if err := ws.EnsureStructure(); err != nil {
		return err
	}

	broker := oauth.NewBroker(cfg.Paths.Root, cfg.Sandbox.OAuthPort, logger)

	ctx := context.Background()
	p := proxy.New(logger)
	if err := p.Discover(ctx, cfg.Servers, broker); err != nil {
		return err
	}

	gen := &bindings.Generator{Dir: ws.GeneratedDir(), ProxyPort: cfg.Sandbox.ProxyPort}
	if err := gen.Generate(p.Records()); err != nil {
		return err
	}

	hist, err := history.Open(filepath.Join(ws.DataDir(), "history.db"))
	if err != nil {
		return err
	}

	metrics := gateway.NewMetrics()
	metrics.SetCatalogSize(p.Len())

	mgr, err := sandbox.NewManager(cfg.Sandbox, ws, cfgPath, multiRecorder{hist, metrics}, logger)
	if err != nil {
		return err
	}
	if err := mgr.Ensure(ctx); err != nil {
		// The façade still serves; execute_script retries a fresh sandbox.
		logger.Warn("sandbox not ready at startup", "error", err)
	}

	facade := meta.New(p, runnerAdapter{mgr}, buildSelector(cfg, logger), logger)

	var gw *gateway.Gateway
	if cfg.Gateway.Listen != "" {
		gw = gateway.New(gateway.Config{
			Listen:  cfg.Gateway.Listen,
			Proxy:   p,
			Sandbox: mgr,
			History: hist,
			Metrics: metrics,
			Logger:  logger,
		})
		if err := gw.Start(); err != nil {
			return err
		}
	}

	scheduler := cron.NewScheduler(logger)
	_ = scheduler.RegisterJob(&cron.PruneHistoryJob{Store: hist, Logger: logger})
	_ = scheduler.RegisterJob(&cron.SweepRunsJob{RunsDir: ws.RunsDir(), Logger: logger})
	if err := scheduler.Start(); err != nil {
		return err
	}

	// Exactly-once cleanup, shared by the signal path, the stdio-EOF path,
	// and the defer.
	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			mgr.Shutdown()
			_ = scheduler.Stop(ctx)
			if gw != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = gw.Shutdown(shutdownCtx)
			}
			p.Close()
			_ = hist.Close()
			logger.Info("shutdown complete")
		})
	}
	defer cleanup()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- facade.ServeStdio(params.Version)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
		cleanup()
		return nil
	case err := <-serveErr:
		cleanup()
		return err
	}
}

// buildSelector returns the Anthropic selector when a key is available,
// nil otherwise (search_tools then returns all candidates).
func buildSelector(cfg *config.Config, logger *slog.Logger) meta.Selector {
	key := cfg.Selector.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		logger.Info("no selector API key, search_tools runs without relevance filtering")
		return nil
	}
	return meta.NewAnthropicSelector(cfg.Selector.Model, key)
}

// runnerAdapter bridges the sandbox manager into the façade's Runner.
type runnerAdapter struct {
	mgr *sandbox.Manager
}

// Execute implements meta.Runner.
func (r runnerAdapter) Execute(ctx context.Context, code string, timeout time.Duration) (meta.RunResult, error) {
	ex, err := r.mgr.Execute(ctx, code, timeout)
	if err != nil {
		return meta.RunResult{}, err
	}
	return meta.RunResult{
		ID:         ex.ID,
		State:      ex.State,
		ExitCode:   ex.ExitCode,
		Stdout:     ex.Stdout,
		Stderr:     ex.Stderr,
		DurationMS: ex.Duration.Milliseconds(),
	}, nil
}

// multiRecorder fans one execution record out to several recorders.
type multiRecorder []sandbox.Recorder

// Record implements sandbox.Recorder.
func (m multiRecorder) Record(ctx context.Context, ex sandbox.Execution) error {
	for _, r := range m {
		if err := r.Record(ctx, ex); err != nil {
			return err
		}
	}
	return nil
}
