package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. This gives folder watchers time to drain
// in-flight reconciliation on first signal, while allowing the user to
// force-quit if something hangs.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", slog.String("signal", sig.String()))
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

// reloadOnSIGHUP calls reload every time SIGHUP arrives, until ctx is
// canceled. Used by the run command to pick up edited config without a
// restart (mirrors the teacher's sync --watch SIGHUP handling, adapted
// from its ad hoc watchLoop check to a dedicated signal channel since
// this daemon has no single long-lived loop to re-enter).
func reloadOnSIGHUP(ctx context.Context, logger *slog.Logger, reload func() error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			logger.Info("received SIGHUP, reloading configuration")

			if err := reload(); err != nil {
				logger.Error("reloading configuration failed", "error", err)
			}
		}
	}
}
