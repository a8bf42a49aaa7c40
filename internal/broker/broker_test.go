package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bechma/backup-sync/internal/protocol"
)

func authenticated(t *testing.T, s *State, conn ConnID, userID protocol.UserID, computerID protocol.ComputerID) {
	t.Helper()

	_, err := s.Dispatch(conn, protocol.Authenticate{UserID: userID, ComputerID: computerID})
	require.NoError(t, err)
}

func TestAuthenticate_UnknownUserFails(t *testing.T) {
	t.Parallel()

	s := New(nil)

	_, err := s.Dispatch("conn-1", protocol.Authenticate{UserID: "nope", ComputerID: "nope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthenticate_Success(t *testing.T) {
	t.Parallel()

	s := New(nil)
	userID, computerID := s.SeedUser("alice", "laptop")

	result, err := s.Dispatch("conn-1", protocol.Authenticate{UserID: userID, ComputerID: computerID})
	require.NoError(t, err)

	authed, ok := result.Reply.(protocol.Authenticated)
	require.True(t, ok)
	assert.Equal(t, userID, authed.User.ID)
}

func TestRegisterComputer_RequiresAuthentication(t *testing.T) {
	t.Parallel()

	s := New(nil)

	_, err := s.Dispatch("conn-1", protocol.RegisterComputer{Name: "phone"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestCreateAndJoinSyncFolder(t *testing.T) {
	t.Parallel()

	s := New(nil)
	userID, originComputer := s.SeedUser("alice", "laptop")
	authenticated(t, s, "origin-conn", userID, originComputer)

	result, err := s.Dispatch("origin-conn", protocol.CreateSyncFolder{Name: "docs"})
	require.NoError(t, err)
	created := result.Reply.(protocol.SyncFolderCreated)
	assert.True(t, created.Folder.IsSynced)

	// Register a second computer for the same user, to join as a backup.
	regResult, err := s.Dispatch("origin-conn", protocol.RegisterComputer{Name: "desktop"})
	require.NoError(t, err)
	backupComputer := regResult.Reply.(protocol.ComputerRegistered).Computer.ID

	authenticated(t, s, "backup-conn", userID, backupComputer)

	joinResult, err := s.Dispatch("backup-conn", protocol.JoinSyncFolder{FolderID: created.Folder.ID})
	require.NoError(t, err)
	joined := joinResult.Reply.(protocol.JoinedSyncFolder)
	assert.False(t, joined.Folder.IsSynced)
	assert.Contains(t, joined.Folder.BackupComputers, backupComputer)
}

func TestJoinSyncFolder_AlreadyParticipating(t *testing.T) {
	t.Parallel()

	s := New(nil)
	userID, originComputer := s.SeedUser("alice", "laptop")
	authenticated(t, s, "origin-conn", userID, originComputer)

	result, err := s.Dispatch("origin-conn", protocol.CreateSyncFolder{Name: "docs"})
	require.NoError(t, err)
	folderID := result.Reply.(protocol.SyncFolderCreated).Folder.ID

	_, err = s.Dispatch("origin-conn", protocol.JoinSyncFolder{FolderID: folderID})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyBackup)
}

func setupFolderWithOneBackup(t *testing.T, s *State) (folderID protocol.FolderID, originConn, backupConn ConnID, backupComputer protocol.ComputerID) {
	t.Helper()

	userID, originComputer := s.SeedUser("alice", "laptop")
	originConn = "origin-conn"
	authenticated(t, s, originConn, userID, originComputer)

	result, err := s.Dispatch(originConn, protocol.CreateSyncFolder{Name: "docs"})
	require.NoError(t, err)
	folderID = result.Reply.(protocol.SyncFolderCreated).Folder.ID

	regResult, err := s.Dispatch(originConn, protocol.RegisterComputer{Name: "desktop"})
	require.NoError(t, err)
	backupComputer = regResult.Reply.(protocol.ComputerRegistered).Computer.ID

	backupConn = "backup-conn"
	authenticated(t, s, backupConn, userID, backupComputer)

	_, err = s.Dispatch(backupConn, protocol.JoinSyncFolder{FolderID: folderID})
	require.NoError(t, err)

	return folderID, originConn, backupConn, backupComputer
}

func TestFolderOperation_RejectsNonOrigin(t *testing.T) {
	t.Parallel()

	s := New(nil)
	folderID, _, backupConn, _ := setupFolderWithOneBackup(t, s)

	_, err := s.Dispatch(backupConn, protocol.FolderOperation{
		FolderID:  folderID,
		Operation: protocol.DeleteOp{Path: "a.txt"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotOrigin)
}

func TestFolderOperation_BroadcastsAndTracksPending(t *testing.T) {
	t.Parallel()

	s := New(nil)
	folderID, originConn, _, _ := setupFolderWithOneBackup(t, s)

	result, err := s.Dispatch(originConn, protocol.FolderOperation{
		FolderID:  folderID,
		Operation: protocol.DeleteOp{Path: "a.txt"},
	})
	require.NoError(t, err)

	complete, ok := result.Reply.(protocol.OperationComplete)
	require.True(t, ok)
	assert.NotZero(t, complete.OperationID)

	require.NotNil(t, result.Broadcast)
	assert.Equal(t, folderID, result.Broadcast.FolderID)

	broadcastMsg, ok := result.Broadcast.Message.(protocol.FolderOperationBroadcast)
	require.True(t, ok)
	assert.Equal(t, complete.OperationID, broadcastMsg.OperationID)

	// Ack from the one backup should clear pending_operations and flip
	// is_synced, with a SyncStatusChanged broadcast.
	ackResult, err := s.Dispatch("backup-conn", protocol.Ack{OperationID: complete.OperationID})
	require.NoError(t, err)
	require.NotNil(t, ackResult.Broadcast)

	statusChanged, ok := ackResult.Broadcast.Message.(protocol.SyncStatusChanged)
	require.True(t, ok)
	assert.True(t, statusChanged.IsSynced)
}

func TestAck_DuplicateIsNoOp(t *testing.T) {
	t.Parallel()

	s := New(nil)
	folderID, originConn, backupConn, _ := setupFolderWithOneBackup(t, s)

	result, err := s.Dispatch(originConn, protocol.FolderOperation{
		FolderID:  folderID,
		Operation: protocol.CreateDirOp{Path: "sub"},
	})
	require.NoError(t, err)
	opID := result.Reply.(protocol.OperationComplete).OperationID

	_, err = s.Dispatch(backupConn, protocol.Ack{OperationID: opID})
	require.NoError(t, err)

	// Second ack for the same op id must not error or double-decrement.
	secondResult, err := s.Dispatch(backupConn, protocol.Ack{OperationID: opID})
	require.NoError(t, err)
	assert.Nil(t, secondResult.Broadcast)
}

func TestRequestOriginSwitch_DeniedWhenNotBackup(t *testing.T) {
	t.Parallel()

	s := New(nil)
	userID, originComputer := s.SeedUser("alice", "laptop")
	authenticated(t, s, "origin-conn", userID, originComputer)

	result, err := s.Dispatch("origin-conn", protocol.CreateSyncFolder{Name: "docs"})
	require.NoError(t, err)
	folderID := result.Reply.(protocol.SyncFolderCreated).Folder.ID

	regResult, err := s.Dispatch("origin-conn", protocol.RegisterComputer{Name: "phone"})
	require.NoError(t, err)
	otherComputer := regResult.Reply.(protocol.ComputerRegistered).Computer.ID
	authenticated(t, s, "other-conn", userID, otherComputer)

	switchResult, err := s.Dispatch("other-conn", protocol.RequestOriginSwitch{FolderID: folderID})
	require.NoError(t, err)

	denied, ok := switchResult.Reply.(protocol.OriginSwitchDenied)
	require.True(t, ok)
	assert.Equal(t, protocol.OriginSwitchDeniedNotBackup, denied.Reason)
}

func TestRequestOriginSwitch_DeniedWhenNotSynced(t *testing.T) {
	t.Parallel()

	s := New(nil)
	folderID, originConn, backupConn, _ := setupFolderWithOneBackup(t, s)

	_, err := s.Dispatch(originConn, protocol.FolderOperation{
		FolderID:  folderID,
		Operation: protocol.DeleteOp{Path: "a.txt"},
	})
	require.NoError(t, err)

	switchResult, err := s.Dispatch(backupConn, protocol.RequestOriginSwitch{FolderID: folderID})
	require.NoError(t, err)

	denied, ok := switchResult.Reply.(protocol.OriginSwitchDenied)
	require.True(t, ok)
	assert.Equal(t, protocol.OriginSwitchDeniedNotSynced, denied.Reason)
}

func TestRequestOriginSwitch_Succeeds(t *testing.T) {
	t.Parallel()

	s := New(nil)
	folderID, originConn, backupConn, backupComputer := setupFolderWithOneBackup(t, s)

	// Joining leaves the folder not-synced; one operation fully acked by
	// the backup brings pending_operations to zero and flips it back.
	opResult, err := s.Dispatch(originConn, protocol.FolderOperation{
		FolderID:  folderID,
		Operation: protocol.CreateDirOp{Path: "sub"},
	})
	require.NoError(t, err)

	_, err = s.Dispatch(backupConn, protocol.Ack{OperationID: opResult.Reply.(protocol.OperationComplete).OperationID})
	require.NoError(t, err)

	switchResult, err := s.Dispatch(backupConn, protocol.RequestOriginSwitch{FolderID: folderID})
	require.NoError(t, err)

	switched, ok := switchResult.Reply.(protocol.OriginSwitched)
	require.True(t, ok)
	assert.Equal(t, backupComputer, switched.NewOrigin)
}

func TestLeaveSyncFolder_NoOpWhenAbsent(t *testing.T) {
	t.Parallel()

	s := New(nil)
	userID, computerID := s.SeedUser("alice", "laptop")
	authenticated(t, s, "conn-1", userID, computerID)

	result, err := s.Dispatch("conn-1", protocol.LeaveSyncFolder{FolderID: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, protocol.FolderID("unknown"), result.Reply.(protocol.LeftSyncFolder).FolderID)
}

func TestDisconnect_FlipsComputerOffline(t *testing.T) {
	t.Parallel()

	s := New(nil)
	userID, computerID := s.SeedUser("alice", "laptop")
	authenticated(t, s, "conn-1", userID, computerID)

	folders := s.Disconnect("conn-1")
	assert.Empty(t, folders)

	// conn-1 is no longer authenticated after Disconnect.
	_, err := s.Dispatch("conn-1", protocol.RegisterComputer{Name: "should-fail"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	// Observe the now-disconnected computer's Online flag through a
	// second, independently-authenticated computer for the same user,
	// instead of re-authenticating conn-1's own computer (which would
	// flip it back online itself).
	observerID := protocol.ComputerID("observer-id")
	s.mu.Lock()
	s.users[userID].Computers[observerID] = &computerRecord{ID: observerID, Name: "observer"}
	s.mu.Unlock()

	authenticated(t, s, "conn-2", userID, observerID)

	result, err := s.Dispatch("conn-2", protocol.GetUserState{})
	require.NoError(t, err)

	var self protocol.Computer
	for _, c := range result.Reply.(protocol.UserState).User.Computers {
		if c.ID == computerID {
			self = c
		}
	}
	assert.False(t, self.Online, "computer should remain offline after Disconnect")
}

func TestRequestFullSync_TriggersWhenOriginOnline(t *testing.T) {
	t.Parallel()

	s := New(nil)
	folderID, originConn, backupConn, _ := setupFolderWithOneBackup(t, s)

	result, err := s.Dispatch(backupConn, protocol.RequestFullSync{FolderID: folderID})
	require.NoError(t, err)
	require.NotNil(t, result.FullSyncTrigger)
	assert.Equal(t, originConn, result.FullSyncTrigger.OriginConn)
}
