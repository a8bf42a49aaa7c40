package localsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Bechma/backup-sync/internal/relpath"
)

const nosyncFileName = ".nosync"

// ReconcileReport summarizes one initial-reconciliation pass.
type ReconcileReport struct {
	Created   int // paths copied or mkdir'd into the backup tree
	Deleted   int // backup-only paths removed
	Conflicts int // paths present on both sides with differing content
}

// Reconcile performs the initial reconciliation pass (spec §4.5): it
// locks every file in both trees for the duration of the pass, then
// brings the backup tree in line with the origin tree according to the
// syncer's SyncOptions.
func (s *Syncer) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	if _, err := os.Stat(filepath.Join(s.OriginRoot, nosyncFileName)); err == nil {
		return nil, ErrNosyncGuard
	}

	origin, err := scanTree(ctx, s.OriginRoot, s.scanWorkers)
	if err != nil {
		return nil, fmt.Errorf("localsync: scanning origin: %w", err)
	}

	backup, err := scanTree(ctx, s.BackupRoot, s.scanWorkers)
	if err != nil {
		return nil, fmt.Errorf("localsync: scanning backup: %w", err)
	}

	locks, err := s.acquireReconcileLocks(origin, backup)
	if err != nil {
		return nil, err
	}
	defer locks.releaseAll() //nolint:errcheck // locks are released on scope exit regardless of outcome (spec §5)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	report := &ReconcileReport{}

	if err := s.reconcileMissing(origin, backup, report); err != nil {
		return report, err
	}

	if !s.options.WhenMissingPreserveBackup {
		if err := s.reconcileExtra(origin, backup, report); err != nil {
			return report, err
		}
	}

	if err := s.reconcileConflicts(origin, backup, report); err != nil {
		return report, err
	}

	s.rebuildPathState(ctx, origin, backup)

	return report, nil
}

// acquireReconcileLocks takes a shared lock on every origin file and an
// exclusive lock on every backup file that currently exists.
func (s *Syncer) acquireReconcileLocks(origin, backup map[string]treeEntry) (*lockSet, error) {
	locks := &lockSet{}

	for _, e := range origin {
		if e.Kind != kindFile {
			continue
		}

		if err := locks.add(filepath.Join(s.OriginRoot, filepath.FromSlash(e.Path.String())), lockShared); err != nil {
			locks.releaseAll() //nolint:errcheck

			return nil, err
		}
	}

	for _, e := range backup {
		if e.Kind != kindFile {
			continue
		}

		if err := locks.add(filepath.Join(s.BackupRoot, filepath.FromSlash(e.Path.String())), lockExclusive); err != nil {
			locks.releaseAll() //nolint:errcheck

			return nil, err
		}
	}

	return locks, nil
}

func (s *Syncer) reconcileMissing(origin, backup map[string]treeEntry, report *ReconcileReport) error {
	for key, e := range origin {
		if _, ok := backup[key]; ok {
			continue
		}

		dst := filepath.Join(s.BackupRoot, filepath.FromSlash(e.Path.String()))

		if e.Kind == kindDir {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return fmt.Errorf("localsync: reconcile mkdir %s: %w", e.Path, err)
			}
		} else {
			src := filepath.Join(s.OriginRoot, filepath.FromSlash(e.Path.String()))
			if err := copyFile(src, dst); err != nil {
				return fmt.Errorf("localsync: reconcile copy %s: %w", e.Path, err)
			}
		}

		report.Created++
	}

	return nil
}

func (s *Syncer) reconcileExtra(origin, backup map[string]treeEntry, report *ReconcileReport) error {
	for key, e := range backup {
		if _, ok := origin[key]; ok {
			continue
		}

		full := filepath.Join(s.BackupRoot, filepath.FromSlash(e.Path.String()))
		if err := os.RemoveAll(full); err != nil {
			return fmt.Errorf("localsync: reconcile delete %s: %w", e.Path, err)
		}

		report.Deleted++
	}

	return nil
}

func (s *Syncer) reconcileConflicts(origin, backup map[string]treeEntry, report *ReconcileReport) error {
	for key, o := range origin {
		b, ok := backup[key]
		if !ok || o.Kind != kindFile || b.Kind != kindFile {
			continue
		}

		if o.Hash == b.Hash {
			continue
		}

		originPath := filepath.Join(s.OriginRoot, filepath.FromSlash(o.Path.String()))
		backupPath := filepath.Join(s.BackupRoot, filepath.FromSlash(b.Path.String()))

		if s.options.WhenConflictPreserveBackup {
			if err := copyFile(backupPath, originPath); err != nil {
				return fmt.Errorf("localsync: reconcile conflict (keep backup) %s: %w", o.Path, err)
			}
		} else {
			if err := copyFile(originPath, backupPath); err != nil {
				return fmt.Errorf("localsync: reconcile conflict (keep origin) %s: %w", o.Path, err)
			}
		}

		report.Conflicts++
	}

	return nil
}

// rebuildPathState replaces the in-memory path map with the
// post-reconciliation view of both trees.
func (s *Syncer) rebuildPathState(ctx context.Context, origin, _ map[string]treeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paths = make(map[string]*pathSnapshot, len(origin))

	// Re-derive from the final backup tree rather than the pre-pass scan,
	// since reconciliation may have just written it.
	final, err := scanTree(ctx, s.BackupRoot, s.scanWorkers)
	if err != nil {
		s.logger.Warn("localsync: rebuilding path state failed, continuing with origin-only view", "error", err)

		final = map[string]treeEntry{}
	}

	for key, o := range origin {
		snap := &pathSnapshot{Kind: o.Kind, OriginHash: o.Hash}

		if b, ok := final[key]; ok {
			snap.BackupHash = b.Hash
		}

		s.paths[key] = snap
	}
}

// lookupSnapshot is a small helper event handlers use to fetch a path's
// current snapshot under the read lock.
func (s *Syncer) lookupSnapshot(rp relpath.Path) (*pathSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.paths[rp.String()]

	return snap, ok
}
