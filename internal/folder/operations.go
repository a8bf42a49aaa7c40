package folder

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Bechma/backup-sync/internal/filemeta"
	"github.com/Bechma/backup-sync/internal/relpath"
	"github.com/Bechma/backup-sync/internal/rsyncdelta"
	"github.com/Bechma/backup-sync/pkg/contenthash"
)

// Operation is a mutation applied to a Folder's root. Concrete variants
// are the non-chunked FileOperation kinds from spec §4.3; chunked
// transfers go through Start/Chunk/End/Abort directly since they are a
// multi-message sub-protocol, not a single Operation.
type Operation interface {
	apply(f *Folder) error
}

// DeleteOp recursively removes a directory or unlinks a file. A no-op if
// the path is already absent.
type DeleteOp struct {
	Path relpath.Path
}

// CreateDirOp creates a single directory (the parent must already exist).
type CreateDirOp struct {
	Path relpath.Path
}

// RenameOp renames From to To. If To already exists, the incoming item is
// kept under a timestamped conflict name instead of overwriting it.
type RenameOp struct {
	From, To relpath.Path
}

// WriteFileOp verifies Content against Hash, then writes it atomically and
// applies Metadata.
type WriteFileOp struct {
	Path     relpath.Path
	Content  []byte
	Metadata filemeta.Metadata
	Hash     contenthash.Digest
}

// DeltaSyncOp applies an rsync-style patch against the file's current
// content. NewHash must match the reconstructed content or the operation
// fails and the destination is left unmodified.
type DeltaSyncOp struct {
	Path         relpath.Path
	Instructions []rsyncdelta.Instruction
	NewHash      contenthash.Digest
	Metadata     filemeta.Metadata
}

// Apply dispatches op to its handler and marks the manifest cache dirty on
// success. A failed operation leaves the cache flag as it was.
func (f *Folder) Apply(op Operation) error {
	if err := op.apply(f); err != nil {
		return err
	}

	f.markDirty()

	return nil
}

func (op DeleteOp) apply(f *Folder) error {
	full := filepath.Join(f.RootPath, filepath.FromSlash(op.Path.String()))

	err := os.RemoveAll(full)
	if err != nil {
		return fmt.Errorf("folder: delete %s: %w", op.Path, err)
	}

	return nil
}

func (op CreateDirOp) apply(f *Folder) error {
	full := filepath.Join(f.RootPath, filepath.FromSlash(op.Path.String()))

	if err := os.Mkdir(full, 0o755); err != nil {
		return fmt.Errorf("folder: create_dir %s: %w", op.Path, err)
	}

	return nil
}

func (op RenameOp) apply(f *Folder) error {
	from := filepath.Join(f.RootPath, filepath.FromSlash(op.From.String()))
	to := filepath.Join(f.RootPath, filepath.FromSlash(op.To.String()))

	if _, err := os.Lstat(from); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("folder: rename %s: %w", op.From, ErrNotFound)
		}

		return fmt.Errorf("folder: rename stat %s: %w", op.From, err)
	}

	target := to

	if _, err := os.Lstat(to); err == nil {
		target = conflictPath(to, time.Now().UTC())
	}

	if err := os.Rename(from, target); err != nil {
		return fmt.Errorf("folder: rename %s -> %s: %w", op.From, op.To, err)
	}

	return nil
}

// conflictPath inserts "_<utc-timestamp>_conflict" into base just before its
// extension ("b.txt" becomes "b_<ts>_conflict.txt"), disambiguating
// with a trailing counter if that name is itself already taken (e.g. two
// renames landing in the same second) — spec-supplemented behavior C.1.
func conflictPath(base string, at time.Time) string {
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	candidate := fmt.Sprintf("%s_%d_conflict%s", stem, at.Unix(), ext)
	for i := 2; ; i++ {
		if _, err := os.Lstat(candidate); err != nil {
			return candidate
		}

		candidate = fmt.Sprintf("%s_%d_conflict_%d%s", stem, at.Unix(), i, ext)
	}
}

func (op WriteFileOp) apply(f *Folder) error {
	digest := contenthash.Sum(op.Content)
	if err := contenthash.Verify(op.Hash, digest); err != nil {
		return fmt.Errorf("folder: write_file %s: %w: %w", op.Path, ErrHashMismatch, err)
	}

	full := filepath.Join(f.RootPath, filepath.FromSlash(op.Path.String()))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("folder: write_file %s: mkdir parent: %w", op.Path, err)
	}

	if err := writeFileAtomic(full, op.Content); err != nil {
		return fmt.Errorf("folder: write_file %s: %w", op.Path, err)
	}

	if err := op.Metadata.ApplyTo(full); err != nil {
		return fmt.Errorf("folder: write_file %s: apply metadata: %w", op.Path, err)
	}

	return nil
}

func (op DeltaSyncOp) apply(f *Folder) error {
	full := filepath.Join(f.RootPath, filepath.FromSlash(op.Path.String()))

	base, err := os.Open(full) //nolint:gosec // path derives from a validated relpath joined to the folder root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("folder: delta_sync %s: %w", op.Path, ErrNotFound)
		}

		return fmt.Errorf("folder: delta_sync %s: open base: %w", op.Path, err)
	}
	defer base.Close()

	var out bytes.Buffer

	if err := rsyncdelta.ApplyDelta(base, op.Instructions, &out); err != nil {
		return fmt.Errorf("folder: delta_sync %s: apply delta: %w", op.Path, err)
	}

	buf := out.Bytes()
	digest := contenthash.Sum(buf)
	if err := contenthash.Verify(op.NewHash, digest); err != nil {
		return fmt.Errorf("folder: delta_sync %s: %w: %w", op.Path, ErrHashMismatch, err)
	}

	if err := writeFileAtomic(full, buf); err != nil {
		return fmt.Errorf("folder: delta_sync %s: %w", op.Path, err)
	}

	if err := op.Metadata.ApplyTo(full); err != nil {
		return fmt.Errorf("folder: delta_sync %s: apply metadata: %w", op.Path, err)
	}

	return nil
}

// writeFileAtomic writes data to a temp file in dest's directory, then
// renames it onto dest — the same write-temp-then-rename pattern the
// chunked-transfer commit procedure uses, kept consistent across the
// package.
func writeFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)

	tmp, err := os.CreateTemp(dir, ".folder-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("write temp: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("sync temp: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)

		return fmt.Errorf("rename temp onto dest: %w", err)
	}

	return nil
}
