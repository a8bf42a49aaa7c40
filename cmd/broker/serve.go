package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Bechma/backup-sync/internal/broker"
	"github.com/Bechma/backup-sync/internal/store"
	"github.com/Bechma/backup-sync/internal/transport"
)

// pidFileName is the daemon lock file's basename within the broker's data
// directory.
const pidFileName = "broker.pid"

// shutdownGrace bounds how long serve waits for http.Server.Shutdown to
// drain in-flight connections before giving up.
const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	var pidPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker: accept agent connections and dispatch folder operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if pidPath == "" {
				pidPath = filepath.Join(filepath.Dir(cc.Holder.Path()), pidFileName)
			}

			cleanup, err := writePIDFile(pidPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := shutdownContext(cmd.Context(), cc.Logger)

			return serve(ctx, cc)
		},
	}

	cmd.Flags().StringVar(&pidPath, "pid-file", "", "override the daemon PID file path")

	return cmd
}

// serve opens the metadata Store (running migrations), builds the
// in-memory broker State, and accepts WebSocket connections until ctx is
// canceled. The account-creation flow (§1 Non-goal) isn't implemented,
// so one demo user/computer is seeded on every start via State.SeedUser
// — the same bootstrap seam internal/broker documents for a future
// Store-backed signup flow.
func serve(ctx context.Context, cc *CLIContext) error {
	cfg := cc.Holder.Config()
	logger := cc.Logger

	db, err := store.Open(ctx, cfg.Store.DSN, logger)
	if err != nil {
		return fmt.Errorf("serve: opening store: %w", err)
	}
	defer db.Close()

	state := broker.New(logger)
	registry := broker.NewRegistry()

	userID, computerID := state.SeedUser("demo", "primary")
	logger.Info("seeded demo account", "user_id", userID, "computer_id", computerID)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		acceptConnection(r.Context(), w, r, state, registry, logger)
	})

	server := &http.Server{
		Addr:    cfg.Listen.Address,
		Handler: mux,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("broker listening", "address", cfg.Listen.Address)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err

			return
		}

		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("broker shutdown did not complete cleanly", "error", err)
		}

		return <-serveErr

	case err := <-serveErr:
		return err
	}
}

// acceptConnection upgrades one HTTP request to a WebSocket and drives
// it through broker.HandleConnection until it closes. Accepting the
// underlying connection is the one piece of the accept loop cmd/broker
// owns directly — internal/transport and internal/broker stop short of
// it by design (see their package docs).
func acceptConnection(ctx context.Context, w http.ResponseWriter, r *http.Request, state *broker.State, registry *broker.Registry, logger *slog.Logger) {
	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn("websocket accept failed", "error", err)

		return
	}

	conn := transport.NewConn(wsConn)
	id := broker.ConnID(uuid.NewString())

	broker.HandleConnection(ctx, id, conn, state, registry, logger)
}
