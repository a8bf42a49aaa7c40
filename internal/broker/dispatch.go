package broker

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Bechma/backup-sync/internal/protocol"
)

// Broadcast is a message State.Dispatch wants fanned out to every
// connection currently backing up FolderID, excluding ExcludeComputer
// (the origin never receives its own broadcast, spec §4.8).
type Broadcast struct {
	FolderID        protocol.FolderID
	Message         protocol.ServerMessage
	ExcludeComputer protocol.ComputerID
}

// FullSyncTrigger asks the caller (the connection-handling loop, which
// owns actual transport I/O) to prod a folder's origin into regenerating
// and pushing its manifest to one joining backup — the supplemented
// RequestFullSync behavior (SPEC_FULL.md C.4). State itself never touches
// a connection's transport; it only describes what should happen once the
// lock is released (spec §5: "release locks before transport I/O").
type FullSyncTrigger struct {
	FolderID           protocol.FolderID
	OriginConn         ConnID
	RequestingComputer protocol.ComputerID
}

// Result is what one Dispatch call produces: an optional direct reply to
// the caller, an optional fan-out, and an optional full-sync trigger.
type Result struct {
	Reply           protocol.ServerMessage
	Broadcast       *Broadcast
	FullSyncTrigger *FullSyncTrigger
}

type pendingOp struct {
	remaining int
	acked     map[protocol.ComputerID]bool
}

// Dispatch handles one ClientMessage from conn under the state's lock
// end-to-end (spec §8's "one logical handler per ClientMessage
// variant... all handlers execute under mutual exclusion") — the read
// lock for the read-only GetUserState, the write lock for everything
// else — computing its full Result before returning so the caller can
// perform transport I/O only after the lock is released.
func (s *State) Dispatch(conn ConnID, msg protocol.ClientMessage) (Result, error) {
	if _, ok := msg.(protocol.GetUserState); ok {
		s.mu.RLock()
		defer s.mu.RUnlock()

		return s.handleGetUserState(conn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case protocol.Authenticate:
		return s.handleAuthenticate(conn, m)
	case protocol.RegisterComputer:
		return s.handleRegisterComputer(conn, m)
	case protocol.CreateSyncFolder:
		return s.handleCreateSyncFolder(conn, m)
	case protocol.JoinSyncFolder:
		return s.handleJoinSyncFolder(conn, m)
	case protocol.LeaveSyncFolder:
		return s.handleLeaveSyncFolder(conn, m)
	case protocol.RequestOriginSwitch:
		return s.handleRequestOriginSwitch(conn, m)
	case protocol.FolderOperation:
		return s.handleFolderOperation(conn, m)
	case protocol.Ack:
		return s.handleAck(conn, m)
	case protocol.GetUserState:
		return s.handleGetUserState(conn)
	case protocol.RequestFullSync:
		return s.handleRequestFullSync(conn, m)
	case protocol.Pause, protocol.Resume:
		// Advisory hints only; the broker takes no action beyond logging
		// (spec §5 backpressure note, SPEC_FULL.md C.5).
		s.logger.Debug("broker: advisory control message", "conn", conn, "message", msg.Kind())

		return Result{}, nil
	default:
		return Result{}, fmt.Errorf("broker: unhandled client message %q", msg.Kind())
	}
}

func (s *State) conn(id ConnID) (*connRecord, error) {
	c, ok := s.connections[id]
	if !ok || !c.authed {
		return nil, ErrNotAuthenticated
	}

	return c, nil
}

func (s *State) handleAuthenticate(conn ConnID, m protocol.Authenticate) (Result, error) {
	user, ok := s.users[m.UserID]
	if !ok {
		return Result{Reply: protocol.Error{Message: "unknown user"}}, ErrUserNotFound
	}

	computer, ok := user.Computers[m.ComputerID]
	if !ok {
		return Result{Reply: protocol.Error{Message: "unknown computer"}}, ErrComputerNotFound
	}

	computer.Online = true

	s.connections[conn] = &connRecord{ID: conn, UserID: m.UserID, ComputerID: m.ComputerID, authed: true}
	s.computerConnections[computerKey{user: m.UserID, computer: m.ComputerID}] = conn

	return Result{Reply: protocol.Authenticated{User: projectUser(user)}}, nil
}

func (s *State) handleRegisterComputer(conn ConnID, m protocol.RegisterComputer) (Result, error) {
	c, err := s.conn(conn)
	if err != nil {
		return Result{}, err
	}

	user := s.users[c.UserID]

	computer := &computerRecord{ID: protocol.ComputerID(uuid.NewString()), Name: m.Name}
	user.Computers[computer.ID] = computer

	return Result{Reply: protocol.ComputerRegistered{Computer: projectComputer(computer)}}, nil
}

func (s *State) handleCreateSyncFolder(conn ConnID, m protocol.CreateSyncFolder) (Result, error) {
	c, err := s.conn(conn)
	if err != nil {
		return Result{}, err
	}

	user := s.users[c.UserID]

	folder := &syncFolderRecord{
		ID:             protocol.FolderID(uuid.NewString()),
		Name:           m.Name,
		OwnerUserID:    c.UserID,
		OriginComputer: c.ComputerID,
		IsSynced:       true,
	}

	user.Folders[folder.ID] = folder
	s.folderIndex[folder.ID] = folder

	return Result{Reply: protocol.SyncFolderCreated{Folder: projectFolder(folder)}}, nil
}

func (s *State) handleJoinSyncFolder(conn ConnID, m protocol.JoinSyncFolder) (Result, error) {
	c, err := s.conn(conn)
	if err != nil {
		return Result{}, err
	}

	folder, ok := s.folderIndex[m.FolderID]
	if !ok {
		return Result{Reply: protocol.Error{Message: "folder not found"}}, ErrFolderNotFound
	}

	if folder.OriginComputer == c.ComputerID || folder.isBackup(c.ComputerID) {
		return Result{Reply: protocol.Error{Message: "already participating in folder"}}, ErrAlreadyBackup
	}

	folder.BackupComputers = append(folder.BackupComputers, c.ComputerID)
	// Per spec §3: a freshly joined backup is not caught up yet, so the
	// folder is marked not-synced regardless of pending_operations. The
	// flag only flips back when an Ack brings pending_operations to zero
	// (handleAck); RequestFullSync itself does not change it.
	folder.IsSynced = false

	return Result{Reply: protocol.JoinedSyncFolder{Folder: projectFolder(folder)}}, nil
}

func (s *State) handleLeaveSyncFolder(conn ConnID, m protocol.LeaveSyncFolder) (Result, error) {
	c, err := s.conn(conn)
	if err != nil {
		return Result{}, err
	}

	if folder, ok := s.folderIndex[m.FolderID]; ok {
		folder.removeBackup(c.ComputerID)
	}

	return Result{Reply: protocol.LeftSyncFolder{FolderID: m.FolderID}}, nil
}

func (s *State) handleRequestOriginSwitch(conn ConnID, m protocol.RequestOriginSwitch) (Result, error) {
	c, err := s.conn(conn)
	if err != nil {
		return Result{}, err
	}

	folder, ok := s.folderIndex[m.FolderID]
	if !ok {
		return Result{Reply: protocol.Error{Message: "folder not found"}}, ErrFolderNotFound
	}

	if !folder.isBackup(c.ComputerID) {
		return Result{Reply: protocol.OriginSwitchDenied{
			FolderID: m.FolderID,
			Reason:   protocol.OriginSwitchDeniedNotBackup,
		}}, nil
	}

	if !folder.IsSynced || folder.PendingOperations != 0 {
		return Result{Reply: protocol.OriginSwitchDenied{
			FolderID: m.FolderID,
			Reason:   protocol.OriginSwitchDeniedNotSynced,
		}}, nil
	}

	oldOrigin := folder.OriginComputer
	folder.removeBackup(c.ComputerID)
	folder.BackupComputers = append(folder.BackupComputers, oldOrigin)
	folder.OriginComputer = c.ComputerID

	return Result{Reply: protocol.OriginSwitched{FolderID: m.FolderID, NewOrigin: c.ComputerID}}, nil
}

func (s *State) handleFolderOperation(conn ConnID, m protocol.FolderOperation) (Result, error) {
	c, err := s.conn(conn)
	if err != nil {
		return Result{}, err
	}

	folder, ok := s.folderIndex[m.FolderID]
	if !ok {
		return Result{Reply: protocol.Error{Message: "folder not found"}}, ErrFolderNotFound
	}

	if folder.OriginComputer != c.ComputerID {
		return Result{Reply: protocol.Error{Message: "caller is not the current origin"}}, ErrNotOrigin
	}

	s.operationCounter++
	opID := s.operationCounter

	folder.PendingOperations++
	folder.IsSynced = false

	backupCount := len(folder.BackupComputers)

	if backupCount > 0 {
		s.ensureAckState(m.FolderID)[opID] = &pendingOp{
			remaining: backupCount,
			acked:     make(map[protocol.ComputerID]bool, backupCount),
		}
		s.opFolder[opID] = m.FolderID
	} else {
		// No backups to acknowledge: this operation is trivially complete.
		folder.PendingOperations--
		if folder.PendingOperations == 0 {
			folder.IsSynced = true
		}
	}

	return Result{
		Reply: protocol.OperationComplete{OperationID: opID},
		Broadcast: &Broadcast{
			FolderID:        m.FolderID,
			ExcludeComputer: c.ComputerID,
			Message: protocol.FolderOperationBroadcast{
				FolderID:    m.FolderID,
				OperationID: opID,
				Operation:   m.Operation,
			},
		},
	}, nil
}

func (s *State) ensureAckState(folderID protocol.FolderID) map[uint64]*pendingOp {
	m, ok := s.ackState[folderID]
	if !ok {
		m = make(map[uint64]*pendingOp)
		s.ackState[folderID] = m
	}

	return m
}

func (s *State) handleAck(conn ConnID, m protocol.Ack) (Result, error) {
	c, err := s.conn(conn)
	if err != nil {
		return Result{}, err
	}

	folderID, ok := s.opFolder[m.OperationID]
	if !ok {
		// Unknown or already-fully-acknowledged operation id: per spec
		// §5 backups deduplicate by operation_id, so a late/duplicate Ack
		// is silently ignored rather than treated as an error.
		return Result{}, nil
	}

	ops := s.ackState[folderID]

	op, ok := ops[m.OperationID]
	if !ok || op.acked[c.ComputerID] {
		return Result{}, nil
	}

	op.acked[c.ComputerID] = true
	op.remaining--

	if op.remaining > 0 {
		return Result{}, nil
	}

	delete(ops, m.OperationID)
	delete(s.opFolder, m.OperationID)

	folder := s.folderIndex[folderID]
	if folder == nil {
		return Result{}, nil
	}

	if folder.PendingOperations > 0 {
		folder.PendingOperations--
	}

	var result Result

	if folder.PendingOperations == 0 {
		folder.IsSynced = true
		result.Broadcast = &Broadcast{
			FolderID: folderID,
			Message: protocol.SyncStatusChanged{
				FolderID:          folderID,
				IsSynced:          true,
				PendingOperations: 0,
			},
		}
	}

	return result, nil
}

func (s *State) handleGetUserState(conn ConnID) (Result, error) {
	c, err := s.conn(conn)
	if err != nil {
		return Result{}, err
	}

	return Result{Reply: protocol.UserState{User: projectUser(s.users[c.UserID])}}, nil
}

func (s *State) handleRequestFullSync(conn ConnID, m protocol.RequestFullSync) (Result, error) {
	c, err := s.conn(conn)
	if err != nil {
		return Result{}, err
	}

	folder, ok := s.folderIndex[m.FolderID]
	if !ok {
		return Result{Reply: protocol.Error{Message: "folder not found"}}, ErrFolderNotFound
	}

	originConn, ok := s.computerConnections[computerKey{user: folder.OwnerUserID, computer: folder.OriginComputer}]
	if !ok {
		return Result{Reply: protocol.Error{Message: "origin is offline"}}, nil
	}

	return Result{
		FullSyncTrigger: &FullSyncTrigger{
			FolderID:           m.FolderID,
			OriginConn:         originConn,
			RequestingComputer: c.ComputerID,
		},
	}, nil
}

// Disconnect removes conn's connection record, flips its computer
// offline, and returns the folders it was backing up so the caller can
// cancel their broadcast subscriptions (spec §5 cancellation policy).
func (s *State) Disconnect(conn ConnID) []protocol.FolderID {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.connections[conn]
	if !ok {
		return nil
	}

	delete(s.connections, conn)
	delete(s.computerConnections, computerKey{user: c.UserID, computer: c.ComputerID})

	if user, ok := s.users[c.UserID]; ok {
		if computer, ok := user.Computers[c.ComputerID]; ok {
			computer.Online = false
		}

		var folders []protocol.FolderID

		for _, f := range user.Folders {
			if f.OriginComputer == c.ComputerID || f.isBackup(c.ComputerID) {
				folders = append(folders, f.ID)
			}
		}

		return folders
	}

	return nil
}
