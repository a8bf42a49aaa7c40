// Package registry implements the folder registry (spec component C4): the
// per-agent index of Folder objects, keyed by folder id, and the single
// entry point that routes incoming folder-addressed requests into the
// right Folder. The registry is the sole owner of the Folders it holds —
// nothing outside this package reaches into a Folder's transfer state
// directly, which is what avoids the cyclic-ownership trap between the
// registry and per-folder transfer state.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Bechma/backup-sync/internal/folder"
)

// ErrNotFound is returned when a request names a folder id the registry
// does not hold.
var ErrNotFound = errors.New("registry: folder not found")

// ErrAlreadyRegistered is returned by Register when the folder id is
// already present.
var ErrAlreadyRegistered = errors.New("registry: folder already registered")

// Registry indexes the Folders active on one agent.
type Registry struct {
	mu      sync.RWMutex
	folders map[uuid.UUID]*folder.Folder
	logger  *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		folders: make(map[uuid.UUID]*folder.Folder),
		logger:  logger,
	}
}

// Register adds f to the registry. Returns ErrAlreadyRegistered if a
// folder with the same id is already present.
func (r *Registry) Register(f *folder.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.folders[f.ID]; exists {
		return fmt.Errorf("registry: register %s: %w", f.ID, ErrAlreadyRegistered)
	}

	r.folders[f.ID] = f
	r.logger.Info("folder registered", "folder_id", f.ID, "name", f.Name, "root", f.RootPath)

	return nil
}

// Unregister removes a folder from the registry and releases its
// temporary transfer state (the registry's half of the ownership
// contract in spec §9).
func (r *Registry) Unregister(id uuid.UUID) error {
	r.mu.Lock()
	f, ok := r.folders[id]
	delete(r.folders, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("registry: unregister %s: %w", id, ErrNotFound)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("registry: unregister %s: closing folder: %w", id, err)
	}

	r.logger.Info("folder unregistered", "folder_id", id)

	return nil
}

// Get looks up a folder by id.
func (r *Registry) Get(id uuid.UUID) (*folder.Folder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.folders[id]
	if !ok {
		return nil, fmt.Errorf("registry: get %s: %w", id, ErrNotFound)
	}

	return f, nil
}

// IDs returns the ids of every folder currently registered, useful for
// startup reconciliation sweeps.
func (r *Registry) IDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.folders))
	for id := range r.folders {
		ids = append(ids, id)
	}

	return ids
}
