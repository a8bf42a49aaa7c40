package folder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Bechma/backup-sync/internal/filemeta"
	"github.com/Bechma/backup-sync/internal/relpath"
	"github.com/Bechma/backup-sync/pkg/contenthash"
)

// endInfo is what End supplies when it arrives before the final chunk;
// stashed on transferState.pendingEnd until the last Chunk arrives.
type endInfo struct {
	Path     relpath.Path
	Hash     contenthash.Digest
	Metadata filemeta.Metadata
}

// transferState tracks one in-flight chunked transfer. Exclusively owned
// by its parent Folder (spec §3) — never referenced outside this package.
type transferState struct {
	id          uint64
	totalChunks uint64
	chunkSize   uint64
	totalSize   uint64
	received    map[uint64]struct{}
	pendingEnd  *endInfo
	tmpPath     string
}

func chunkCount(totalSize, chunkSize uint64) uint64 {
	if chunkSize == 0 {
		return 0
	}

	n := totalSize / chunkSize
	if totalSize%chunkSize != 0 {
		n++
	}

	return n
}

// Start creates (or recreates, discarding any prior state) the temp file
// for transfer id and records its expected shape.
func (f *Folder) Start(id, totalSize, chunkSize uint64) error {
	if chunkSize == 0 {
		return fmt.Errorf("folder: start transfer %d: chunk size must be > 0", id)
	}

	tmpDir := f.TempRoot()
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("folder: start transfer %d: mkdir temp root: %w", id, err)
	}

	tmpPath := filepath.Join(tmpDir, fmt.Sprintf("%d.tmp", id))

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o600) //nolint:gosec // fixed temp-dir layout
	if err != nil {
		return fmt.Errorf("folder: start transfer %d: create temp file: %w", id, err)
	}

	if totalSize > 0 {
		if err := file.Truncate(int64(totalSize)); err != nil { //nolint:gosec // sizes fit int64 on supported platforms
			file.Close()

			return fmt.Errorf("folder: start transfer %d: preallocate: %w", id, err)
		}
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("folder: start transfer %d: close temp file: %w", id, err)
	}

	state := &transferState{
		id:          id,
		totalChunks: chunkCount(totalSize, chunkSize),
		chunkSize:   chunkSize,
		totalSize:   totalSize,
		received:    make(map[uint64]struct{}),
		tmpPath:     tmpPath,
	}

	f.mu.Lock()
	f.transfers[id] = state
	f.mu.Unlock()

	return nil
}

// Chunk writes data at its chunk-aligned offset. If Start had not already
// been processed for id, this is an error. When the chunk completes the
// set and an End is already pending, the transfer commits immediately —
// this is what makes End-before-last-Chunk race-safe (spec §4.3).
func (f *Folder) Chunk(id, index uint64, data []byte) error {
	f.mu.Lock()

	state, ok := f.transfers[id]
	if !ok {
		f.mu.Unlock()

		return fmt.Errorf("folder: chunk %d/%d: %w", id, index, ErrUnknownTransfer)
	}

	file, err := os.OpenFile(state.tmpPath, os.O_WRONLY, 0o600) //nolint:gosec // fixed temp-dir layout
	if err != nil {
		f.mu.Unlock()

		return fmt.Errorf("folder: chunk %d/%d: open temp file: %w", id, index, err)
	}

	offset := int64(index * state.chunkSize) //nolint:gosec // bounded by configured chunk size

	_, writeErr := file.WriteAt(data, offset)
	if writeErr == nil {
		writeErr = file.Sync()
	}

	closeErr := file.Close()

	if writeErr != nil {
		f.mu.Unlock()

		return fmt.Errorf("folder: chunk %d/%d: write: %w", id, index, writeErr)
	}

	if closeErr != nil {
		f.mu.Unlock()

		return fmt.Errorf("folder: chunk %d/%d: close: %w", id, index, closeErr)
	}

	state.received[index] = struct{}{}

	readyToCommit := state.pendingEnd != nil && uint64(len(state.received)) == state.totalChunks

	var pending endInfo
	if readyToCommit {
		pending = *state.pendingEnd
	}

	f.mu.Unlock()

	if readyToCommit {
		return f.commit(id, pending)
	}

	return nil
}

// End commits the transfer immediately if every chunk has already arrived;
// otherwise it stashes the destination/hash/metadata as pendingEnd and
// returns success — the transfer commits later when Chunk delivers the
// final piece.
func (f *Folder) End(id uint64, path relpath.Path, hash contenthash.Digest, metadata filemeta.Metadata) error {
	f.mu.Lock()

	state, ok := f.transfers[id]
	if !ok {
		f.mu.Unlock()

		return fmt.Errorf("folder: end %d: %w", id, ErrUnknownTransfer)
	}

	info := endInfo{Path: path, Hash: hash, Metadata: metadata}

	if uint64(len(state.received)) == state.totalChunks {
		f.mu.Unlock()

		return f.commit(id, info)
	}

	state.pendingEnd = &info
	f.mu.Unlock()

	return nil
}

// Abort discards the temp file and transfer state. An unknown id is a
// no-op that succeeds (idempotent per spec §8); the only error is a
// failure to remove an existing temp file.
func (f *Folder) Abort(id uint64, reason string) error {
	f.mu.Lock()
	state, ok := f.transfers[id]
	delete(f.transfers, id)
	f.mu.Unlock()

	if !ok {
		return nil
	}

	f.logger.Debug("transfer aborted", "transfer_id", id, "reason", reason)

	if err := os.Remove(state.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("folder: abort %d: remove temp file: %w", id, err)
	}

	return nil
}

// commit recomputes the whole-file hash, verifies it, and renames the temp
// file onto the destination. It is invoked with the folder's transfer-map
// lock already released (spec §5, "deferred commit under the lock") so
// concurrent chunks for unrelated transfers are never serialized behind
// one file rehash.
func (f *Folder) commit(id uint64, info endInfo) error {
	f.mu.Lock()
	state, ok := f.transfers[id]
	f.mu.Unlock()

	if !ok {
		return fmt.Errorf("folder: commit %d: %w", id, ErrUnknownTransfer)
	}

	digest, err := sumFile(state.tmpPath)
	if err != nil {
		return fmt.Errorf("folder: commit %d: hashing temp file: %w", id, err)
	}

	if verifyErr := contenthash.Verify(info.Hash, digest); verifyErr != nil {
		os.Remove(state.tmpPath)

		f.mu.Lock()
		delete(f.transfers, id)
		f.mu.Unlock()

		return fmt.Errorf("folder: commit %d: %w: %w", id, ErrHashMismatch, verifyErr)
	}

	dest := filepath.Join(f.RootPath, filepath.FromSlash(info.Path.String()))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("folder: commit %d: mkdir parent: %w", id, err)
	}

	if err := os.Rename(state.tmpPath, dest); err != nil {
		return fmt.Errorf("folder: commit %d: rename onto destination: %w", id, err)
	}

	if err := info.Metadata.ApplyTo(dest); err != nil {
		return fmt.Errorf("folder: commit %d: apply metadata: %w", id, err)
	}

	f.mu.Lock()
	delete(f.transfers, id)
	f.mu.Unlock()

	f.markDirty()

	return nil
}

func sumFile(path string) (contenthash.Digest, error) {
	file, err := os.Open(path) //nolint:gosec // fixed temp-dir layout
	if err != nil {
		return contenthash.Digest{}, err
	}
	defer file.Close()

	return contenthash.SumReader(file)
}
