package localsync

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// EventKind is the coalesced event shape the syncer's handlers expect —
// the shape an (externally supplied, debounced) filesystem-event
// producer is expected to emit. Coalescing raw OS notifications into
// these four kinds, including pairing a deletion with a creation into a
// single RenameBoth, is explicitly out of scope for this package (spec
// §1): it is the producer's job, not the syncer's.
type EventKind int

const (
	EventCreate EventKind = iota
	EventDelete
	EventRenameBoth
	EventModify
)

// Event is one coalesced filesystem change, already resolved to a
// relative-path pair where relevant.
type Event struct {
	Kind  EventKind
	Path  string // relative, slash-separated, not yet validated as a RelativePath
	From  string // only meaningful for EventRenameBoth
	IsDir bool
}

// FsWatcher abstracts raw filesystem notification delivery. Satisfied by
// *fsnotify.Watcher; tests inject a fake.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWrapper struct{ w *fsnotify.Watcher }

func (f *fsnotifyWrapper) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWrapper) Remove(name string) error      { return f.w.Remove(name) }
func (f *fsnotifyWrapper) Close() error                  { return f.w.Close() }
func (f *fsnotifyWrapper) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWrapper) Errors() <-chan error          { return f.w.Errors }

// NewFsnotifyWatcher opens a real fsnotify.Watcher wrapped as FsWatcher.
func NewFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("localsync: creating filesystem watcher: %w", err)
	}

	return &fsnotifyWrapper{w: w}, nil
}

// TranslateRaw maps one raw fsnotify event directly to an Event, with no
// coalescing: Create/Remove/Write map 1:1, and a raw Rename maps to
// EventDelete (its "to" counterpart arrives as a separate raw Create).
// A debouncing producer in front of this package is expected to fold
// those two raw events into a single EventRenameBoth before they reach
// the syncer's handlers; absent one, renames degrade to delete+create,
// which still converges the backup tree to the same end state at the
// cost of an unnecessary recopy instead of a cheap rename.
//
// TranslateRaw does not itself resolve IsDir — ev.Name's meaning
// (absolute vs. already-relativized) is the caller's business, and
// stat-ing it here would silently do the wrong thing for whichever
// convention the caller didn't intend. Callers that need IsDir should
// set it from IsDirHint on the path they actually have in hand.
func TranslateRaw(ev fsnotify.Event) (Event, bool) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		return Event{Kind: EventCreate, Path: ev.Name}, true
	case ev.Op&fsnotify.Remove != 0:
		return Event{Kind: EventDelete, Path: ev.Name}, true
	case ev.Op&fsnotify.Rename != 0:
		return Event{Kind: EventDelete, Path: ev.Name}, true
	case ev.Op&fsnotify.Write != 0:
		return Event{Kind: EventModify, Path: ev.Name}, true
	default:
		return Event{}, false
	}
}

// WatchRaw adds a recursive watch on root and forwards every translated
// raw event (relative to root) to ch until ctx is canceled. This is the
// no-debounce fallback path — see TranslateRaw's documentation on what
// it gives up relative to a real coalescing producer.
func WatchRaw(ctx context.Context, watcher FsWatcher, root string, ch chan<- Event) error {
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		return watcher.Add(path)
	})
	if walkErr != nil {
		return fmt.Errorf("localsync: adding initial watches under %s: %w", root, walkErr)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			isDir := IsDirHint(raw.Name)

			rel, err := relativize(root, raw.Name)
			if err != nil {
				continue
			}

			raw.Name = rel

			if ev, ok := TranslateRaw(raw); ok {
				ev.IsDir = isDir
				select {
				case ch <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

		case err, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			return fmt.Errorf("localsync: watcher error: %w", err)
		}
	}
}
