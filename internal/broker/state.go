// Package broker implements the broker's authoritative in-memory state
// (spec component C7) and per-message dispatch (spec component C8): the
// single structure every connected agent's handler reads and mutates
// under one writer lock, following the teacher's internal/config.Holder
// pattern of a mutex-guarded struct with explicit accessor methods —
// generalized here from a single immutable snapshot to several
// independently-keyed maps, since the broker's state is mutated
// incrementally rather than replaced wholesale.
package broker

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Bechma/backup-sync/internal/protocol"
)

// ConnID identifies one accepted connection, opaque to this package (the
// transport layer mints it — an address, a generated token, whatever it
// has in hand). Corresponds to spec's BrokerState.connections key "Addr".
type ConnID string

type computerRecord struct {
	ID     protocol.ComputerID
	Name   string
	Online bool
}

type syncFolderRecord struct {
	ID                protocol.FolderID
	Name              string
	OwnerUserID       protocol.UserID
	OriginComputer    protocol.ComputerID
	BackupComputers   []protocol.ComputerID // ordered; origin never present in this list
	IsSynced          bool
	PendingOperations uint64
}

func (f *syncFolderRecord) isBackup(id protocol.ComputerID) bool {
	for _, c := range f.BackupComputers {
		if c == id {
			return true
		}
	}

	return false
}

func (f *syncFolderRecord) removeBackup(id protocol.ComputerID) {
	out := f.BackupComputers[:0]

	for _, c := range f.BackupComputers {
		if c != id {
			out = append(out, c)
		}
	}

	f.BackupComputers = out
}

type userRecord struct {
	ID        protocol.UserID
	Name      string
	Computers map[protocol.ComputerID]*computerRecord
	Folders   map[protocol.FolderID]*syncFolderRecord
}

type connRecord struct {
	ID         ConnID
	UserID     protocol.UserID
	ComputerID protocol.ComputerID
	authed     bool
}

// State is the broker's single authoritative structure (spec §3's
// BrokerState). One sync.RWMutex guards everything in it; read-only
// handlers (GetUserState, ConnectionsForFolder) take the read lock,
// mutating handlers take the write lock, and
// every handler computes its response while still holding the lock, then
// releases it before the caller performs any transport I/O (spec §5).
type State struct {
	mu     sync.RWMutex
	logger *slog.Logger

	users map[protocol.UserID]*userRecord

	// folderIndex lets FolderOperation/Ack/RequestOriginSwitch etc. look a
	// folder up by folder_id alone, without a reverse scan over every
	// user — mirrors internal/registry's id-keyed index built for the same
	// reason (spec §9, "cyclic ownership" avoided via secondary index
	// rather than back-pointers).
	folderIndex map[protocol.FolderID]*syncFolderRecord

	connections         map[ConnID]*connRecord
	computerConnections map[computerKey]ConnID

	// ackState is the broker's working representation of spec's
	// pending_operations: map<FolderId, map<OpId, remaining_ack_count>>,
	// enriched with a per-computer acked set so a duplicate Ack for an
	// already-acknowledged operation is a no-op rather than an
	// over-decrement (spec §5, "backups deduplicate by operation_id").
	ackState map[protocol.FolderID]map[uint64]*pendingOp

	// opFolder lets Ack{operation_id} find its folder without a reverse
	// scan, since operation_id is assigned from one global counter shared
	// across all folders.
	opFolder map[uint64]protocol.FolderID

	operationCounter uint64
}

type computerKey struct {
	user     protocol.UserID
	computer protocol.ComputerID
}

// New creates an empty State.
func New(logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}

	return &State{
		logger:              logger,
		users:               make(map[protocol.UserID]*userRecord),
		folderIndex:         make(map[protocol.FolderID]*syncFolderRecord),
		connections:         make(map[ConnID]*connRecord),
		computerConnections: make(map[computerKey]ConnID),
		ackState:            make(map[protocol.FolderID]map[uint64]*pendingOp),
		opFolder:            make(map[uint64]protocol.FolderID),
	}
}

// SeedUser preloads a user record with one already-known computer, the
// minimal bootstrap a real deployment needs before any Authenticate can
// succeed (spec's Authenticate precondition is "computer exists for
// user" — provisioning that pair is an authentication/account-creation
// concern this system declares out of scope, per spec §1; SeedUser is the
// seam a Store-backed account-creation flow would call into). Returns the
// minted protocol.UserID/ComputerID pair.
func (s *State) SeedUser(userName, computerName string) (protocol.UserID, protocol.ComputerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := protocol.UserID(uuid.NewString())
	cid := protocol.ComputerID(uuid.NewString())

	s.users[uid] = &userRecord{
		ID:   uid,
		Name: userName,
		Computers: map[protocol.ComputerID]*computerRecord{
			cid: {ID: cid, Name: computerName},
		},
		Folders: make(map[protocol.FolderID]*syncFolderRecord),
	}

	return uid, cid
}

// ConnectionsForFolder returns the live ConnID of every computer backing
// up folderID (plus its origin), excluding exclude. The connection
// handling loop uses this to fan a Broadcast out after releasing the
// state lock (spec §5), since Dispatch itself never touches transport.
func (s *State) ConnectionsForFolder(folderID protocol.FolderID, exclude protocol.ComputerID) []ConnID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folder, ok := s.folderIndex[folderID]
	if !ok {
		return nil
	}

	computers := make([]protocol.ComputerID, 0, len(folder.BackupComputers)+1)
	if folder.OriginComputer != exclude {
		computers = append(computers, folder.OriginComputer)
	}

	for _, c := range folder.BackupComputers {
		if c != exclude {
			computers = append(computers, c)
		}
	}

	conns := make([]ConnID, 0, len(computers))

	for _, c := range computers {
		if id, ok := s.computerConnections[computerKey{user: folder.OwnerUserID, computer: c}]; ok {
			conns = append(conns, id)
		}
	}

	return conns
}
