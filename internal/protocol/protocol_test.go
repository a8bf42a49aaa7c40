package protocol

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bechma/backup-sync/internal/filemeta"
	"github.com/Bechma/backup-sync/internal/folder"
	"github.com/Bechma/backup-sync/internal/rsyncdelta"
	"github.com/Bechma/backup-sync/pkg/contenthash"
)

func testMeta() filemeta.Metadata {
	return filemeta.Metadata{FileType: filemeta.TypeFile, ModTime: time.Now().UTC()}
}

func TestClientMessage_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []ClientMessage{
		Authenticate{UserID: "u1", ComputerID: "c1"},
		RegisterComputer{Name: "laptop"},
		CreateSyncFolder{Name: "docs"},
		JoinSyncFolder{FolderID: "f1"},
		LeaveSyncFolder{FolderID: "f1"},
		RequestOriginSwitch{FolderID: "f1"},
		Ack{OperationID: 42},
		RequestFullSync{FolderID: "f1"},
		GetUserState{},
		Pause{Reason: "disk low"},
		Resume{},
		FolderOperation{FolderID: "f1", Operation: DeleteOp{Path: "a/b.txt"}},
	}

	for _, original := range cases {
		encoded, err := EncodeClientMessage(original)
		require.NoError(t, err)

		decoded, err := DecodeClientMessage(encoded)
		require.NoError(t, err)

		assert.Equal(t, original, decoded)
	}
}

func TestServerMessage_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []ServerMessage{
		Welcome{},
		Authenticated{User: User{ID: "u1", Name: "alice"}},
		ComputerRegistered{Computer: Computer{ID: "c1", Name: "laptop"}},
		SyncFolderCreated{Folder: SyncFolder{ID: "f1", Name: "docs", OriginComputer: "c1"}},
		JoinedSyncFolder{Folder: SyncFolder{ID: "f1", Name: "docs"}},
		LeftSyncFolder{FolderID: "f1"},
		OriginSwitched{FolderID: "f1", NewOrigin: "c2"},
		OriginSwitchDenied{FolderID: "f1", Reason: OriginSwitchDeniedNotSynced},
		OperationComplete{OperationID: 7},
		SyncStatusChanged{FolderID: "f1", IsSynced: true, PendingOperations: 0},
		UserState{User: User{ID: "u1", Name: "alice"}},
		Error{Message: "boom"},
		FolderOperationBroadcast{FolderID: "f1", OperationID: 3, Operation: CreateDirOp{Path: "sub"}},
		FullSyncRequested{FolderID: "f1", RequestingComputer: "c2"},
	}

	for _, original := range cases {
		encoded, err := EncodeServerMessage(original)
		require.NoError(t, err)

		decoded, err := DecodeServerMessage(encoded)
		require.NoError(t, err)

		assert.Equal(t, original, decoded)
	}
}

func TestDecodeClientMessage_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := DecodeClientMessage([]byte(`{"type":"nonsense"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestFileOperation_RoundTrip(t *testing.T) {
	t.Parallel()

	meta := testMeta()

	cases := []FileOperation{
		DeleteOp{Path: "a.txt"},
		CreateDirOp{Path: "sub"},
		RenameOp{From: "a.txt", To: "b.txt"},
		WriteFileOp{Path: "a.txt", Content: []byte("hi"), Metadata: meta, Hash: contenthash.Sum([]byte("hi"))},
		NewDeltaSyncOp("a.txt", []rsyncdelta.Instruction{
			{Kind: rsyncdelta.KindCopy, Offset: 0, Length: 4},
			{Kind: rsyncdelta.KindLiteral, Literal: []byte("xyz")},
		}, contenthash.Sum([]byte("patched")), meta),
		ChunkedTransferOp{Phase: ChunkedTransferStart{TransferID: 1, TotalSize: 100, ChunkSize: 10}},
		ChunkedTransferOp{Phase: ChunkedTransferChunk{TransferID: 1, Index: 0, Data: []byte("chunk0")}},
		ChunkedTransferOp{Phase: ChunkedTransferEnd{TransferID: 1, Path: "a.txt", Hash: contenthash.Sum([]byte("done")), Metadata: meta}},
		ChunkedTransferOp{Phase: ChunkedTransferAbort{TransferID: 1, Reason: "peer disconnected"}},
	}

	for _, original := range cases {
		encoded, err := EncodeFileOperation(original)
		require.NoError(t, err)

		decoded, err := DecodeFileOperation(encoded)
		require.NoError(t, err)

		assert.Equal(t, original, decoded)
	}
}

func TestDecodeFileOperation_UnknownType(t *testing.T) {
	t.Parallel()

	_, err := DecodeFileOperation([]byte(`{"type":"nonsense"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestWriteFileOp_ApplyToWritesFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	f := folder.New(uuid.New(), "test", root, nil)
	t.Cleanup(func() { _ = f.Close() })

	content := []byte("hello from the wire")
	op := WriteFileOp{Path: "a.txt", Content: content, Metadata: testMeta(), Hash: contenthash.Sum(content)}

	require.NoError(t, op.ApplyTo(f))

	got, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestChunkedTransferOp_ApplyToDrivesFullLifecycle(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	f := folder.New(uuid.New(), "test", root, nil)
	t.Cleanup(func() { _ = f.Close() })

	content := []byte("Hello")

	start := ChunkedTransferOp{Phase: ChunkedTransferStart{TransferID: 1, TotalSize: uint64(len(content)), ChunkSize: 5}}
	require.NoError(t, start.ApplyTo(f))

	chunk := ChunkedTransferOp{Phase: ChunkedTransferChunk{TransferID: 1, Index: 0, Data: content}}
	require.NoError(t, chunk.ApplyTo(f))

	end := ChunkedTransferOp{Phase: ChunkedTransferEnd{
		TransferID: 1,
		Path:       "b.txt",
		Hash:       contenthash.Sum(content),
		Metadata:   testMeta(),
	}}
	require.NoError(t, end.ApplyTo(f))

	got, err := os.ReadFile(filepath.Join(root, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}
