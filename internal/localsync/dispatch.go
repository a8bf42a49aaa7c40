package localsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Bechma/backup-sync/internal/relpath"
)

// Run consumes events from ch until it is closed or ctx is canceled,
// applying each to the backup tree via the matching Handle* method. Each
// event is handled atomically — the next one is not read until the
// current one's handler returns (spec §4.5, "each atomic under a single
// writer lock on the syncer's state").
func (s *Syncer) Run(ctx context.Context, ch <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-ch:
			if !ok {
				return nil
			}

			if err := s.handleEvent(ev); err != nil {
				s.logger.Error("localsync: event handler failed", "kind", ev.Kind, "path", ev.Path, "error", err)
			}
		}
	}
}

func (s *Syncer) handleEvent(ev Event) error {
	switch ev.Kind {
	case EventCreate:
		rp, err := relpath.New(ev.Path)
		if err != nil {
			return fmt.Errorf("localsync: create event: %w", err)
		}

		return s.HandleCreate(rp, ev.IsDir)

	case EventDelete:
		rp, err := relpath.New(ev.Path)
		if err != nil {
			return fmt.Errorf("localsync: delete event: %w", err)
		}

		return s.HandleDelete(rp)

	case EventRenameBoth:
		from, err := relpath.New(ev.From)
		if err != nil {
			return fmt.Errorf("localsync: rename event: from: %w", err)
		}

		to, err := relpath.New(ev.Path)
		if err != nil {
			return fmt.Errorf("localsync: rename event: to: %w", err)
		}

		return s.HandleRename(from, to)

	case EventModify:
		rp, err := relpath.New(ev.Path)
		if err != nil {
			return fmt.Errorf("localsync: modify event: %w", err)
		}

		return s.HandleModify(rp)

	default:
		return fmt.Errorf("localsync: unknown event kind %d", ev.Kind)
	}
}

// relativize turns an absolute filesystem path under root into the
// slash-separated relative form Event.Path/From expect.
func relativize(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("localsync: relativizing %s: %w", abs, err)
	}

	return filepath.ToSlash(rel), nil
}

// IsDirHint stats path to determine whether a raw Create event names a
// directory — fsnotify itself does not carry that information.
func IsDirHint(path string) bool {
	info, err := os.Stat(path)

	return err == nil && info.IsDir()
}
