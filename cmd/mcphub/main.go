// Package main is the entry point for the mcphub CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/mcphub/internal/bindings"
	"github.com/flemzord/mcphub/internal/config"
	"github.com/flemzord/mcphub/internal/oauth"
	"github.com/flemzord/mcphub/internal/proxy"
	"github.com/flemzord/mcphub/internal/workspace"
	"github.com/flemzord/mcphub/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mcphub",
		Short:         "A federated tool hub with sandboxed script execution",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), proxyCmd(), generateCmd(), skillsCmd(), configCmd(), authCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("mcphub %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the hub and serve the meta-tool façade on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			verbose, _ := cmd.Flags().GetBool("verbose")
			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				LogLevel:   logLevel(verbose),
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	return cmd
}

func proxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Serve the full namespaced catalog (runs inside the sandbox)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				resolved, err := config.ResolvePath()
				if err != nil {
					return err
				}
				cfgPath = resolved
			}
			root, _ := cmd.Flags().GetString("root")
			listen, _ := cmd.Flags().GetString("listen")
			stdio, _ := cmd.Flags().GetBool("stdio")
			verbose, _ := cmd.Flags().GetBool("verbose")
			return app.RunProxy(app.ProxyParams{
				ConfigPath: cfgPath,
				Root:       root,
				Listen:     listen,
				Stdio:      stdio,
				Version:    version,
				LogLevel:   logLevel(verbose),
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("root", "", "Override paths.root (set inside the sandbox to the bind-mount target)")
	cmd.Flags().String("listen", fmt.Sprintf(":%d", config.DefaultProxyPort), "HTTP listen address")
	cmd.Flags().Bool("stdio", false, "Serve over stdio instead of HTTP")
	cmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	return cmd
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Regenerate tool bindings from the live catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logger := newLogger(cmd)
			broker := oauth.NewBroker(cfg.Paths.Root, cfg.Sandbox.OAuthPort, logger)

			p := proxy.New(logger)
			if err := p.Discover(context.Background(), cfg.Servers, broker); err != nil {
				return err
			}
			defer p.Close()

			ws := workspace.New(cfg.Paths.Root)
			if err := ws.EnsureStructure(); err != nil {
				return err
			}
			gen := &bindings.Generator{Dir: ws.GeneratedDir(), ProxyPort: cfg.Sandbox.ProxyPort}
			if err := gen.Generate(p.Records()); err != nil {
				return err
			}
			fmt.Printf("Generated bindings for %d tools under %s\n", p.Len(), ws.GeneratedDir())
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	return cmd
}

func skillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Skill module management",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List skill modules in the workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ws := workspace.New(cfg.Paths.Root)
			skills, err := ws.ListSkills()
			if err != nil {
				return err
			}
			if len(skills) == 0 {
				fmt.Println("No skills found.")
				return nil
			}
			for _, s := range skills {
				fmt.Printf("  %s — %s\n", s.Meta.Name, s.Meta.Description)
			}
			return nil
		},
	}
	list.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.AddCommand(list)
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			fmt.Printf("Configuration OK (%d servers)\n", len(cfg.Servers))
			for _, s := range cfg.Servers {
				kind := "remote"
				if s.Local() {
					kind = "local"
				}
				fmt.Printf("  %s (%s)\n", s.Name, kind)
			}
			return nil
		},
	})
	return cmd
}

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Credential management for remote backends",
	}
	invalidate := &cobra.Command{
		Use:   "invalidate <server> [all|client|tokens|verifier]",
		Short: "Clear persisted OAuth state for a backend",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			scope := oauth.ScopeAll
			if len(args) == 2 {
				scope = oauth.Scope(args[1])
			}
			store := oauth.NewStore(cfg.Paths.Root)
			if err := store.Invalidate(args[0], scope); err != nil {
				return err
			}
			fmt.Printf("Cleared %s credentials for %s\n", scope, args[0])
			return nil
		},
	}
	invalidate.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.AddCommand(invalidate)
	return cmd
}

// loadConfig resolves, loads, and validates the config for a subcommand.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		resolved, err := config.ResolvePath()
		if err != nil {
			return nil, "", err
		}
		cfgPath = resolved
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, cfgPath, nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(verbose),
	}))
}

func logLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
