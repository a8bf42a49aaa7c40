// Package localsync implements the local syncer (spec component C5): it
// keeps a backup directory tree byte-identical to an origin directory
// tree on the same host, first via a locked initial reconciliation pass
// and then incrementally via filesystem-event-driven handlers that use
// rsync-style deltas instead of recopying whole files.
package localsync

import (
	"log/slog"
	"sync"

	"github.com/Bechma/backup-sync/pkg/contenthash"
)

// DefaultChunkSize is the rsyncdelta signature chunk size used when the
// caller doesn't override it.
const DefaultChunkSize = 4 * 1024 * 1024

// DefaultScanWorkers bounds the per-file hashing pool scanTree uses during
// Reconcile's initial scan when the caller doesn't override it.
const DefaultScanWorkers = 4

// entryKind distinguishes files from directories in the syncer's
// in-memory path map; directories carry no content signature.
type entryKind int

const (
	kindFile entryKind = iota
	kindDir
)

// pathSnapshot is what the syncer remembers about one relative path on
// both sides of the tree, used to detect modifications without
// rereading the origin file's full signature from scratch.
type pathSnapshot struct {
	Kind       entryKind
	OriginHash contenthash.Digest
	BackupHash contenthash.Digest
}

// Syncer holds the origin/backup tree roots, the sync options, and the
// in-memory path-state map event handlers mutate.
type Syncer struct {
	OriginRoot string
	BackupRoot string

	options     SyncOptions
	chunkSize   uint64
	scanWorkers int
	logger      *slog.Logger

	mu    sync.RWMutex
	paths map[string]*pathSnapshot // keyed by RelativePath canonical string
}

// New creates a Syncer. Call Reconcile once before relying on event
// handlers — they assume the path map reflects reality.
func New(originRoot, backupRoot string, opts SyncOptions, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Syncer{
		OriginRoot:  originRoot,
		BackupRoot:  backupRoot,
		options:     opts,
		chunkSize:   DefaultChunkSize,
		scanWorkers: DefaultScanWorkers,
		logger:      logger,
		paths:       make(map[string]*pathSnapshot),
	}
}

// SetChunkSize overrides the delta chunk size. Call before Reconcile.
func (s *Syncer) SetChunkSize(size uint64) {
	if size == 0 {
		return
	}

	s.chunkSize = size
}

// SetScanWorkers overrides how many files Reconcile's initial scan hashes
// concurrently (spec.md's "pooled and bounded" per-file scan threads,
// config's transfers.scan_workers). Call before Reconcile.
func (s *Syncer) SetScanWorkers(n int) {
	if n <= 0 {
		return
	}

	s.scanWorkers = n
}
