package folder

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Bechma/backup-sync/internal/filemeta"
	"github.com/Bechma/backup-sync/internal/relpath"
	"github.com/Bechma/backup-sync/pkg/contenthash"
)

// FileEntry is one manifest record: content digest, captured metadata, and
// the chunk signature used for corruption detection on chunked transfers.
type FileEntry struct {
	Hash     contenthash.Digest
	Metadata filemeta.Metadata
	Chunks   contenthash.Signature
}

// SyncManifest is a complete hash-indexed snapshot of a folder's files. It
// is a pure function of the folder's current contents and chosen chunk
// size — Version and Timestamp are advisory only, never used for
// comparison.
type SyncManifest struct {
	FolderID  string
	Version   uint64
	Timestamp int64
	Files     map[string]FileEntry // keyed by RelativePath canonical string
	TotalSize uint64
	FileCount uint64
}

// Manifest returns the current manifest, recomputing it by walking
// RootPath only if a mutation happened since the last call (spec-
// supplemented dirty-flag cache, see folder.go markDirty).
func (f *Folder) Manifest() (*SyncManifest, error) {
	f.manifestMu.Lock()
	defer f.manifestMu.Unlock()

	if !f.manifestDirty && f.cachedManifest != nil {
		return f.cachedManifest, nil
	}

	m, err := f.buildManifest()
	if err != nil {
		return nil, err
	}

	f.cachedManifest = m
	f.manifestDirty = false

	return m, nil
}

// manifestPending is one file discovered by buildManifest's directory
// walk, awaiting its FileEntry.
type manifestPending struct {
	key  string
	path string
	d    fs.DirEntry
}

func (f *Folder) buildManifest() (*SyncManifest, error) {
	m := &SyncManifest{
		FolderID:  f.ID.String(),
		Version:   1,
		Timestamp: time.Now().Unix(),
		Files:     make(map[string]FileEntry),
	}

	var pending []manifestPending

	walkErr := filepath.WalkDir(f.RootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("folder: walking %s: %w", path, err)
		}

		if path == f.RootPath {
			return nil
		}

		rel, relErr := filepath.Rel(f.RootPath, path)
		if relErr != nil {
			return fmt.Errorf("folder: relativizing %s: %w", path, relErr)
		}

		rp, rpErr := relpath.New(filepath.ToSlash(rel))
		if rpErr != nil {
			// Skip paths that can't be represented portably rather than
			// failing the whole walk.
			f.logger.Warn("manifest: skipping unrepresentable path", "path", rel, "error", rpErr)

			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			return nil // structure only, via ancestry of file entries
		}

		pending = append(pending, manifestPending{key: rp.String(), path: path, d: d})

		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	entries := make([]FileEntry, len(pending))

	group := new(errgroup.Group)
	group.SetLimit(f.scanWorkers)

	for i, p := range pending {
		i, p := i, p

		group.Go(func() error {
			entry, entryErr := f.buildFileEntry(p.path, p.d)
			if entryErr != nil {
				return fmt.Errorf("folder: capturing %s: %w", p.path, entryErr)
			}

			entries[i] = entry

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	for i, p := range pending {
		entry := entries[i]
		m.Files[p.key] = entry

		if entry.Metadata.FileType == filemeta.TypeFile {
			m.TotalSize += entry.Metadata.Size
			m.FileCount++
		}
	}

	return m, nil
}

func (f *Folder) buildFileEntry(path string, d fs.DirEntry) (FileEntry, error) {
	info, err := d.Info()
	if err != nil {
		return FileEntry{}, fmt.Errorf("stat: %w", err)
	}

	meta, err := filemeta.FromPath(path)
	if err != nil {
		return FileEntry{}, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target := ""
		if meta.SymlinkTarget != nil {
			target = *meta.SymlinkTarget
		}

		digest := contenthash.Sum([]byte(target))

		return FileEntry{
			Hash:     digest,
			Metadata: meta,
			Chunks:   contenthash.Signature{ChunkSize: f.chunkSize, Chunks: []contenthash.ChunkSignature{{Index: 0, Hash: digest}}},
		}, nil
	}

	file, err := os.Open(path) //nolint:gosec // path derives from a controlled folder root walk
	if err != nil {
		return FileEntry{}, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	digest, err := contenthash.SumReader(file)
	if err != nil {
		return FileEntry{}, err
	}

	sig, err := contenthash.BuildSignatureParallel(file, info.Size(), f.chunkSize, f.chunkWorkers)
	if err != nil {
		return FileEntry{}, err
	}

	return FileEntry{Hash: digest, Metadata: meta, Chunks: sig}, nil
}
