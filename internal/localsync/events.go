package localsync

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Bechma/backup-sync/internal/relpath"
	"github.com/Bechma/backup-sync/internal/rsyncdelta"
	"github.com/Bechma/backup-sync/pkg/contenthash"
)

// HandleCreate mirrors a newly created origin path into the backup tree
// and records both sides' signatures.
func (s *Syncer) HandleCreate(rp relpath.Path, isDir bool) error {
	originPath := filepath.Join(s.OriginRoot, filepath.FromSlash(rp.String()))
	backupPath := filepath.Join(s.BackupRoot, filepath.FromSlash(rp.String()))

	snap := &pathSnapshot{Kind: kindFile}

	if isDir {
		if err := os.MkdirAll(backupPath, 0o755); err != nil {
			return fmt.Errorf("localsync: create %s: mkdir backup: %w", rp, err)
		}

		snap.Kind = kindDir
	} else {
		if err := copyFile(originPath, backupPath); err != nil {
			return fmt.Errorf("localsync: create %s: %w", rp, err)
		}

		digest, err := hashFile(originPath)
		if err != nil {
			return fmt.Errorf("localsync: create %s: hashing: %w", rp, err)
		}

		snap.OriginHash = digest
		snap.BackupHash = digest
	}

	s.mu.Lock()
	s.paths[rp.String()] = snap
	s.mu.Unlock()

	return nil
}

// HandleDelete removes the backup entry for rp (unless
// WhenDeleteKeepBackup is set) and drops the path mapping.
func (s *Syncer) HandleDelete(rp relpath.Path) error {
	if !s.options.WhenDeleteKeepBackup {
		backupPath := filepath.Join(s.BackupRoot, filepath.FromSlash(rp.String()))
		if err := os.RemoveAll(backupPath); err != nil {
			return fmt.Errorf("localsync: delete %s: %w", rp, err)
		}
	}

	s.mu.Lock()
	delete(s.paths, rp.String())
	s.mu.Unlock()

	return nil
}

// HandleRename renames the backup entry correspondingly. Fails with
// ErrBackupSourceMissing if the backup tree has no entry at from.
func (s *Syncer) HandleRename(from, to relpath.Path) error {
	s.mu.RLock()
	snap, ok := s.paths[from.String()]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("localsync: rename %s -> %s: %w", from, to, ErrBackupSourceMissing)
	}

	fromPath := filepath.Join(s.BackupRoot, filepath.FromSlash(from.String()))
	toPath := filepath.Join(s.BackupRoot, filepath.FromSlash(to.String()))

	if err := os.MkdirAll(filepath.Dir(toPath), 0o755); err != nil {
		return fmt.Errorf("localsync: rename %s -> %s: mkdir parent: %w", from, to, err)
	}

	if err := os.Rename(fromPath, toPath); err != nil {
		return fmt.Errorf("localsync: rename %s -> %s: %w", from, to, err)
	}

	s.mu.Lock()
	delete(s.paths, from.String())
	s.paths[to.String()] = snap
	s.mu.Unlock()

	return nil
}

// HandleModify computes a new origin signature; if it is unchanged,
// this is a no-op. Otherwise it computes an rsync-style delta against
// the backup file's current content (the base), applies it, verifies
// the reconstructed content's hash, and writes it back.
//
// Per spec §5 this is two-phase: the delta is computed without holding
// the syncer's write lock (only a brief read lock to snapshot prior
// state), and the write lock is re-acquired only to update the map once
// the file write has already succeeded.
func (s *Syncer) HandleModify(rp relpath.Path) error {
	snap, existed := s.lookupSnapshot(rp)

	originPath := filepath.Join(s.OriginRoot, filepath.FromSlash(rp.String()))
	backupPath := filepath.Join(s.BackupRoot, filepath.FromSlash(rp.String()))

	newData, err := os.ReadFile(originPath) //nolint:gosec // path derives from a validated relpath joined to a controlled root
	if err != nil {
		return fmt.Errorf("localsync: modify %s: reading origin: %w", rp, err)
	}

	newHash := contenthash.Sum(newData)

	if existed && snap.OriginHash == newHash {
		return nil
	}

	base, err := os.Open(backupPath) //nolint:gosec // path derives from a validated relpath joined to a controlled root
	if err != nil {
		return fmt.Errorf("localsync: modify %s: opening backup base: %w", rp, err)
	}
	defer base.Close()

	sig, err := rsyncdelta.BuildSignature(base, s.chunkSize)
	if err != nil {
		return fmt.Errorf("localsync: modify %s: building base signature: %w", rp, err)
	}

	instructions := rsyncdelta.ComputeDelta(sig, newData)

	var reconstructed bytes.Buffer
	if err := rsyncdelta.ApplyDelta(base, instructions, &reconstructed); err != nil {
		return fmt.Errorf("localsync: modify %s: applying delta: %w", rp, err)
	}

	if verifyErr := contenthash.Verify(newHash, contenthash.Sum(reconstructed.Bytes())); verifyErr != nil {
		return fmt.Errorf("localsync: modify %s: reconstructed content does not match origin: %w", rp, verifyErr)
	}

	if err := writeFileAtomic(backupPath, reconstructed.Bytes()); err != nil {
		return fmt.Errorf("localsync: modify %s: writing backup: %w", rp, err)
	}

	s.mu.Lock()
	s.paths[rp.String()] = &pathSnapshot{Kind: kindFile, OriginHash: newHash, BackupHash: newHash}
	s.mu.Unlock()

	return nil
}
