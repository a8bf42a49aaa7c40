package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Bechma/backup-sync/internal/config"
	"github.com/Bechma/backup-sync/internal/folder"
	"github.com/Bechma/backup-sync/internal/localsync"
	"github.com/Bechma/backup-sync/internal/registry"
)

// pidFileName is the daemon lock file's basename within the agent's data
// directory, following the teacher's single-instance-per-machine pidfile
// convention.
const pidFileName = "agent.pid"

func newRunCmd() *cobra.Command {
	var pidPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent daemon: reconcile every configured folder, then watch it",
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

			return runAgent(ctx, cc)
		},
	}

	cmd.Flags().StringVar(&pidPath, "pid-file", "", "override the daemon PID file path")

	return cmd
}

// runAgent reconciles every configured folder once and then watches each
// for further changes until ctx is canceled. Each folder's reconcile and
// watch loop runs in its own goroutine, but they share one
// errgroup.WithContext: the first folder to return an error cancels the
// shared context, which stops every other folder too, and that error is
// what runAgent returns.
func runAgent(ctx context.Context, cc *CLIContext) error {
	cfg := cc.Holder.Config()
	logger := cc.Logger

	reg := registry.New(logger)

	go reloadOnSIGHUP(ctx, logger, func() error {
		reloaded, err := config.LoadAgentConfig(cc.Holder.Path(), logger)
		if err != nil {
			return err
		}

		cc.Holder.Update(reloaded)

		return nil
	})

	group, gctx := errgroup.WithContext(ctx)

	for _, fc := range cfg.Folders {
		fc := fc

		id := uuid.New()

		f := folder.New(id, fc.Name, fc.OriginPath, logger)
		f.SetScanWorkers(cfg.Transfers.ScanWorkers)
		f.SetChunkWorkers(cfg.Transfers.ChunkWorkers)

		if err := reg.Register(f); err != nil {
			return fmt.Errorf("run: registering folder %q: %w", fc.Name, err)
		}

		syncer := localsync.New(fc.OriginPath, fc.BackupPath, localsync.SyncOptions{
			WhenMissingPreserveBackup:  fc.WhenMissingPreserveBackup,
			WhenConflictPreserveBackup: fc.WhenConflictPreserveBackup,
			WhenDeleteKeepBackup:       fc.WhenDeleteKeepBackup,
		}, logger.With("folder", fc.Name))

		syncer.SetScanWorkers(cfg.Transfers.ScanWorkers)

		if chunkBytes, err := config.ParseSize(cfg.Transfers.ChunkSize); err == nil && chunkBytes > 0 {
			syncer.SetChunkSize(uint64(chunkBytes))
		}

		group.Go(func() error {
			return watchFolder(gctx, fc.Name, syncer, logger)
		})
	}

	return group.Wait()
}

// watchFolder runs one folder's initial reconciliation pass followed by
// its fsnotify-driven event loop, following localsync's documented usage
// contract ("call Reconcile once before relying on event handlers").
func watchFolder(ctx context.Context, name string, syncer *localsync.Syncer, logger *slog.Logger) error {
	report, err := syncer.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("watch %s: initial reconcile: %w", name, err)
	}

	logger.Info("folder reconciled", "folder", name,
		"created", report.Created,
		"deleted", report.Deleted,
		"conflicts", report.Conflicts,
	)

	watcher, err := localsync.NewFsnotifyWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: creating filesystem watcher: %w", name, err)
	}
	defer watcher.Close()

	if err := watcher.Add(syncer.OriginRoot); err != nil {
		return fmt.Errorf("watch %s: watching %s: %w", name, syncer.OriginRoot, err)
	}

	events := make(chan localsync.Event)

	go translateEvents(ctx, watcher, syncer.OriginRoot, events, logger)

	return syncer.Run(ctx, events)
}

// translateEvents bridges raw fsnotify events into localsync.Event, per
// localsync.TranslateRaw's documented contract (no rename coalescing —
// a plain delete+create is an acceptable, if less efficient, substitute).
// Each raw name is made relative to root, and IsDir is set from
// localsync.IsDirHint, before the event is passed on.
func translateEvents(ctx context.Context, watcher localsync.FsWatcher, root string, out chan<- localsync.Event, logger *slog.Logger) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events():
			if !ok {
				return
			}

			isDir := localsync.IsDirHint(ev.Name)

			rel, err := filepath.Rel(root, ev.Name)
			if err != nil {
				logger.Warn("filesystem event outside watched root", "path", ev.Name, "error", err)

				continue
			}

			ev.Name = filepath.ToSlash(rel)

			translated, ok := localsync.TranslateRaw(ev)
			if !ok {
				continue
			}

			translated.IsDir = isDir

			select {
			case out <- translated:
			case <-ctx.Done():
				return
			}

		case err, ok := <-watcher.Errors():
			if !ok {
				return
			}

			logger.Warn("filesystem watcher error", "error", err)
		}
	}
}
