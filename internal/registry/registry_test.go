package registry

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bechma/backup-sync/internal/filemeta"
	"github.com/Bechma/backup-sync/internal/folder"
	"github.com/Bechma/backup-sync/internal/relpath"
	"github.com/Bechma/backup-sync/pkg/contenthash"
)

func newTestFolder(t *testing.T) *folder.Folder {
	t.Helper()

	root := t.TempDir()
	f := folder.New(uuid.New(), "test", root, nil)
	t.Cleanup(func() { _ = f.Close() })

	return f
}

func TestRegister_DuplicateRejected(t *testing.T) {
	t.Parallel()

	r := New(nil)
	f := newTestFolder(t)

	require.NoError(t, r.Register(f))

	err := r.Register(f)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestGet_UnknownFolder(t *testing.T) {
	t.Parallel()

	r := New(nil)

	_, err := r.Get(uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnregister_RemovesAndClosesTempDir(t *testing.T) {
	t.Parallel()

	r := New(nil)
	f := newTestFolder(t)
	require.NoError(t, r.Register(f))
	require.NoError(t, f.Start(1, 4, 4))

	require.NoError(t, r.Unregister(f.ID))

	_, statErr := os.Stat(f.TempRoot())
	assert.True(t, os.IsNotExist(statErr), "Unregister must remove the folder's temp directory")

	_, err := r.Get(f.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = r.Unregister(f.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatch_UnknownFolderIsNotFound(t *testing.T) {
	t.Parallel()

	r := New(nil)

	_, err := r.Dispatch(RequestSyncRequest{FolderID: uuid.New()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatch_Init_Reserved(t *testing.T) {
	t.Parallel()

	r := New(nil)
	f := newTestFolder(t)
	require.NoError(t, r.Register(f))

	_, err := r.Dispatch(InitRequest{FolderID: f.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReserved)
}

func TestDispatch_Operation_CreatesDirectory(t *testing.T) {
	t.Parallel()

	r := New(nil)
	f := newTestFolder(t)
	require.NoError(t, r.Register(f))

	resp, err := r.Dispatch(OperationRequest{
		FolderID:    f.ID,
		Operation:   folder.CreateDirOp{Path: relpath.MustNew("newdir")},
		OperationID: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), resp.OperationID)
}

func TestDispatch_RequestSync_ReturnsManifest(t *testing.T) {
	t.Parallel()

	r := New(nil)
	f := newTestFolder(t)
	require.NoError(t, r.Register(f))

	resp, err := r.Dispatch(OperationRequest{
		FolderID: f.ID,
		Operation: folder.WriteFileOp{
			Path:     relpath.MustNew("a.txt"),
			Content:  []byte("hi"),
			Hash:     contenthash.Sum([]byte("hi")),
			Metadata: filemeta.Metadata{FileType: filemeta.TypeFile},
		},
		OperationID: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resp.OperationID)

	syncResp, err := r.Dispatch(RequestSyncRequest{FolderID: f.ID})
	require.NoError(t, err)
	require.NotNil(t, syncResp.Manifest)
	assert.Equal(t, uint64(1), syncResp.Manifest.FileCount)
	assert.Contains(t, syncResp.Manifest.Files, "a.txt")
}

func TestIDs(t *testing.T) {
	t.Parallel()

	r := New(nil)
	f1 := newTestFolder(t)
	f2 := newTestFolder(t)
	require.NoError(t, r.Register(f1))
	require.NoError(t, r.Register(f2))

	ids := r.IDs()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, f1.ID)
	assert.Contains(t, ids, f2.ID)
}
