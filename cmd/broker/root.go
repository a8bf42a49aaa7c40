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

var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
)

// CLIContext bundles the resolved, reloadable config and the logger
// every command handler needs, mirroring cmd/agent's CLIContext.
type CLIContext struct {
	Holder *config.Holder[config.BrokerConfig]
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

func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — ensure PersistentPreRunE ran")
	}

	return cc
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "backup-sync-broker",
		Short:         "Backup-sync broker",
		Long:          "Authenticates agents, arbitrates folder origin, and fans out folder operations to backups.",
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

	cmd.AddCommand(newServeCmd())

	return cmd
}

func loadConfig(cmd *cobra.Command) error {
	path := flagConfigPath
	if path == "" {
		path = config.ReadEnvOverrides().BrokerConfigPath
	}

	if path == "" {
		path = config.DefaultBrokerConfigPath()
	}

	logger := buildLogger(config.DefaultBrokerConfig())

	cfg, err := config.LoadBrokerConfig(path, logger)
	if err != nil {
		return fmt.Errorf("loading broker config: %w", err)
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

// buildLogger mirrors cmd/agent's: config-file level with a --verbose
// override, "auto" format resolved via go-isatty.
func buildLogger(cfg *config.BrokerConfig) *slog.Logger {
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

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
