package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "store.db")

	s, err := Open(context.Background(), dsn, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestUser_CreateAndGet(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	u := User{ID: "u1", Name: "alice", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestGetUser_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	_, err := s.GetUser(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListUsers(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Name: "alice"}))
	require.NoError(t, s.CreateUser(ctx, User{ID: "u2", Name: "bob"}))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestComputer_CreateGetAndSetOnline(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Name: "alice"}))
	require.NoError(t, s.CreateComputer(ctx, Computer{ID: "c1", UserID: "u1", Name: "laptop"}))

	got, err := s.GetComputer(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, got.Online)

	require.NoError(t, s.SetComputerOnline(ctx, "c1", true))

	got, err = s.GetComputer(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.Online)
}

func TestSetComputerOnline_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	err := s.SetComputerOnline(context.Background(), "missing", true)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestComputer_CascadeDeletedWithUser(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Name: "alice"}))
	require.NoError(t, s.CreateComputer(ctx, Computer{ID: "c1", UserID: "u1", Name: "laptop"}))

	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, "u1")
	require.NoError(t, err)

	_, err = s.GetComputer(ctx, "c1")
	require.ErrorIs(t, err, ErrNotFound, "computer row should cascade-delete with its owning user")
}

func TestFolder_CreateWithBackupsAndGet(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Name: "alice"}))
	require.NoError(t, s.CreateComputer(ctx, Computer{ID: "origin", UserID: "u1", Name: "laptop"}))
	require.NoError(t, s.CreateComputer(ctx, Computer{ID: "backup1", UserID: "u1", Name: "desktop"}))

	f := Folder{
		ID:                "f1",
		Name:              "docs",
		OwnerUserID:       "u1",
		OriginComputerID:  "origin",
		IsSynced:          true,
		PendingOperations: 0,
		BackupComputerIDs: []string{"backup1"},
	}
	require.NoError(t, s.CreateFolder(ctx, f))

	got, err := s.GetFolder(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, []string{"backup1"}, got.BackupComputerIDs)
	assert.True(t, got.IsSynced)
}

func TestFolder_AddAndRemoveBackup(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Name: "alice"}))
	require.NoError(t, s.CreateComputer(ctx, Computer{ID: "origin", UserID: "u1", Name: "laptop"}))
	require.NoError(t, s.CreateComputer(ctx, Computer{ID: "backup1", UserID: "u1", Name: "desktop"}))
	require.NoError(t, s.CreateFolder(ctx, Folder{ID: "f1", Name: "docs", OwnerUserID: "u1", OriginComputerID: "origin"}))

	require.NoError(t, s.AddFolderBackup(ctx, "f1", "backup1"))

	got, err := s.GetFolder(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, []string{"backup1"}, got.BackupComputerIDs)

	// Adding the same backup twice is idempotent (INSERT OR IGNORE).
	require.NoError(t, s.AddFolderBackup(ctx, "f1", "backup1"))

	got, err = s.GetFolder(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, got.BackupComputerIDs, 1)

	require.NoError(t, s.RemoveFolderBackup(ctx, "f1", "backup1"))

	got, err = s.GetFolder(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, got.BackupComputerIDs)
}

func TestFolder_SetOriginAndSyncState(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Name: "alice"}))
	require.NoError(t, s.CreateComputer(ctx, Computer{ID: "origin", UserID: "u1", Name: "laptop"}))
	require.NoError(t, s.CreateComputer(ctx, Computer{ID: "backup1", UserID: "u1", Name: "desktop"}))
	require.NoError(t, s.CreateFolder(ctx, Folder{ID: "f1", Name: "docs", OwnerUserID: "u1", OriginComputerID: "origin", IsSynced: true}))

	require.NoError(t, s.SetFolderOrigin(ctx, "f1", "backup1"))
	require.NoError(t, s.SetFolderSyncState(ctx, "f1", false, 3))

	got, err := s.GetFolder(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "backup1", got.OriginComputerID)
	assert.False(t, got.IsSynced)
	assert.Equal(t, uint64(3), got.PendingOperations)
}

func TestListFoldersByUser(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, User{ID: "u1", Name: "alice"}))
	require.NoError(t, s.CreateComputer(ctx, Computer{ID: "origin", UserID: "u1", Name: "laptop"}))
	require.NoError(t, s.CreateFolder(ctx, Folder{ID: "f1", Name: "docs", OwnerUserID: "u1", OriginComputerID: "origin"}))
	require.NoError(t, s.CreateFolder(ctx, Folder{ID: "f2", Name: "photos", OwnerUserID: "u1", OriginComputerID: "origin"}))

	folders, err := s.ListFoldersByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, folders, 2)
}

func TestCheckpoint(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	require.NoError(t, s.Checkpoint(context.Background()))
}
