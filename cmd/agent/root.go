package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Bechma/backup-sync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
)

// CLIContext bundles the resolved, reloadable config and the logger
// every command handler needs. Populated once in PersistentPreRunE,
// mirroring the teacher's CLIContext/cliContextFrom pattern.
type CLIContext struct {
	Holder *config.Holder[config.AgentConfig]
	Logger *slog.Logger
}

type cliContextKey struct{}

func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics — every command in
// this tree loads config in PersistentPreRunE, so a missing CLIContext
// is always a programmer error in how the command was wired.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — ensure PersistentPreRunE ran")
	}

	return cc
}

// newRootCmd builds the fully-assembled agent command tree.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "backup-sync-agent",
		Short:         "Backup-sync agent",
		Long:          "Watches configured folders and keeps their backups in sync through the broker.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit structured JSON logs instead of text")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newReloadCmd())

	return cmd
}

// loadConfig resolves the effective config path (CLI flag, then env, then
// XDG default), loads it, and stashes a Holder plus logger on the
// command's context.
func loadConfig(cmd *cobra.Command) error {
	path := flagConfigPath
	if path == "" {
		path = config.ReadEnvOverrides().AgentConfigPath
	}

	if path == "" {
		path = config.DefaultAgentConfigPath()
	}

	logger := buildLogger(config.DefaultAgentConfig())

	cfg, err := config.LoadAgentConfig(path, logger)
	if err != nil {
		return fmt.Errorf("loading agent config: %w", err)
	}

	finalLogger := buildLogger(cfg)
	cc := &CLIContext{
		Holder: config.NewHolder(cfg, path),
		Logger: finalLogger,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger picks a handler (text or JSON) and level from cfg's
// Logging section, then lets --verbose override the level. "auto"
// format resolves to text when stderr is a terminal, JSON otherwise —
// the same heuristic CLI tools in the ecosystem use go-isatty for.
func buildLogger(cfg *config.AgentConfig) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	format := cfg.Logging.Format
	if format == "auto" || format == "" {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		} else {
			format = "json"
		}
	}

	if flagJSON {
		format = "json"
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
