// Package folder implements the replicated-folder model (spec component
// C3): applying a stream of FileOperations to a folder's root, the
// chunked-transfer receive state machine, and on-demand manifest
// generation. The package is the sole owner of its temp transfer files —
// internal/registry looks folders up by id and never reaches into a
// Folder's private state (spec §9, "cyclic ownership").
package folder

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// tempDirName is the subdirectory of os.TempDir() holding in-flight
// chunked-transfer temp files, per spec §6.
const tempDirName = "backup_sync_temp_dir"

// DefaultChunkSize is used for manifest signature generation when the
// caller doesn't specify one.
const DefaultChunkSize = 4 * 1024 * 1024

// DefaultScanWorkers bounds how many files buildManifest processes
// concurrently when the caller doesn't override it.
const DefaultScanWorkers = 4

// DefaultChunkWorkers bounds how many chunks of one file are hashed
// concurrently when building its signature, when the caller doesn't
// override it.
const DefaultChunkWorkers = 4

// Folder is one replicated directory on one agent.
type Folder struct {
	ID       uuid.UUID
	Name     string
	RootPath string // absolute, canonical

	chunkSize    uint64
	scanWorkers  int
	chunkWorkers int
	logger       *slog.Logger

	mu        sync.Mutex
	transfers map[uint64]*transferState

	manifestMu     sync.Mutex
	manifestDirty  bool
	cachedManifest *SyncManifest
}

// New creates a Folder rooted at rootPath. rootPath must already be an
// absolute, canonical path (the caller — internal/registry — resolves it).
func New(id uuid.UUID, name, rootPath string, logger *slog.Logger) *Folder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Folder{
		ID:            id,
		Name:          name,
		RootPath:      rootPath,
		chunkSize:     DefaultChunkSize,
		scanWorkers:   DefaultScanWorkers,
		chunkWorkers:  DefaultChunkWorkers,
		logger:        logger,
		transfers:     make(map[uint64]*transferState),
		manifestDirty: true,
	}
}

// SetChunkSize overrides the manifest/transfer chunk size. Must be called
// before any operation is applied.
func (f *Folder) SetChunkSize(size uint64) {
	if size == 0 {
		return
	}

	f.chunkSize = size
}

// SetScanWorkers overrides how many files Manifest's walk hashes
// concurrently (config's transfers.scan_workers).
func (f *Folder) SetScanWorkers(n int) {
	if n <= 0 {
		return
	}

	f.scanWorkers = n
}

// SetChunkWorkers overrides how many chunks of one file are hashed
// concurrently when building its signature (config's
// transfers.chunk_workers).
func (f *Folder) SetChunkWorkers(n int) {
	if n <= 0 {
		return
	}

	f.chunkWorkers = n
}

// TempRoot returns this folder's temp-transfer directory:
// <os-temp>/backup_sync_temp_dir/<folder-id>/.
func (f *Folder) TempRoot() string {
	return filepath.Join(os.TempDir(), tempDirName, f.ID.String())
}

// Close removes this folder's entire temp subtree, per the ownership rule
// that a Folder exclusively owns its temporary transfer files.
func (f *Folder) Close() error {
	return os.RemoveAll(f.TempRoot())
}

// markDirty invalidates the cached manifest; called after every mutating
// operation so the next RequestSync recomputes it (spec-supplemented
// behavior C.2 — avoids a full re-walk when nothing changed between two
// RequestSync calls).
func (f *Folder) markDirty() {
	f.manifestMu.Lock()
	defer f.manifestMu.Unlock()

	f.manifestDirty = true
}
