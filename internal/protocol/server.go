package protocol

import (
	"encoding/json"
	"fmt"
)

// ServerMessage is the sealed union of every message the broker may send
// to a connected agent (spec §6's ServerMessage).
type ServerMessage interface {
	Kind() string
}

// Welcome is emitted immediately on connection, before authentication.
type Welcome struct{}

func (Welcome) Kind() string { return "welcome" }

type Authenticated struct {
	User User `json:"user"`
}

func (Authenticated) Kind() string { return "authenticated" }

type ComputerRegistered struct {
	Computer Computer `json:"computer"`
}

func (ComputerRegistered) Kind() string { return "computer_registered" }

type SyncFolderCreated struct {
	Folder SyncFolder `json:"folder"`
}

func (SyncFolderCreated) Kind() string { return "sync_folder_created" }

type JoinedSyncFolder struct {
	Folder SyncFolder `json:"folder"`
}

func (JoinedSyncFolder) Kind() string { return "joined_sync_folder" }

type LeftSyncFolder struct {
	FolderID FolderID `json:"folder_id"`
}

func (LeftSyncFolder) Kind() string { return "left_sync_folder" }

type OriginSwitched struct {
	FolderID  FolderID   `json:"folder_id"`
	NewOrigin ComputerID `json:"new_origin"`
}

func (OriginSwitched) Kind() string { return "origin_switched" }

// OriginSwitchDeniedReason distinguishes the two rejection causes spec
// §4.7 names explicitly.
type OriginSwitchDeniedReason string

const (
	OriginSwitchDeniedNotSynced OriginSwitchDeniedReason = "not_synced"
	OriginSwitchDeniedNotBackup OriginSwitchDeniedReason = "not_backup"
)

type OriginSwitchDenied struct {
	FolderID FolderID                 `json:"folder_id"`
	Reason   OriginSwitchDeniedReason `json:"reason"`
}

func (OriginSwitchDenied) Kind() string { return "origin_switch_denied" }

// FolderOperationBroadcast is the server→backups fan-out of a
// client-submitted FolderOperation, stamped with the operation_id the
// broker assigned it (spec §6's ServerMessage.FolderOperation — renamed
// here since Go doesn't allow reusing the client-side FolderOperation
// name for a structurally different message in the same package).
type FolderOperationBroadcast struct {
	FolderID    FolderID      `json:"folder_id"`
	OperationID uint64        `json:"operation_id"`
	Operation   FileOperation `json:"operation"`
}

func (FolderOperationBroadcast) Kind() string { return "folder_operation" }

type wireFolderOperationBroadcast struct {
	FolderID    FolderID        `json:"folder_id"`
	OperationID uint64          `json:"operation_id"`
	Operation   json.RawMessage `json:"operation"`
}

func (m FolderOperationBroadcast) MarshalJSON() ([]byte, error) {
	opData, err := EncodeFileOperation(m.Operation)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal folder operation broadcast: %w", err)
	}

	return json.Marshal(wireFolderOperationBroadcast{
		FolderID:    m.FolderID,
		OperationID: m.OperationID,
		Operation:   opData,
	})
}

func (m *FolderOperationBroadcast) UnmarshalJSON(raw []byte) error {
	var w wireFolderOperationBroadcast
	if err := json.Unmarshal(raw, &w); err != nil {
		return fmt.Errorf("protocol: unmarshal folder operation broadcast: %w", err)
	}

	op, err := DecodeFileOperation(w.Operation)
	if err != nil {
		return fmt.Errorf("protocol: unmarshal folder operation broadcast: %w", err)
	}

	m.FolderID = w.FolderID
	m.OperationID = w.OperationID
	m.Operation = op

	return nil
}

type OperationComplete struct {
	OperationID uint64 `json:"operation_id"`
}

func (OperationComplete) Kind() string { return "operation_complete" }

type SyncStatusChanged struct {
	FolderID          FolderID `json:"folder_id"`
	IsSynced          bool     `json:"is_synced"`
	PendingOperations uint64   `json:"pending_operations"`
}

func (SyncStatusChanged) Kind() string { return "sync_status_changed" }

type UserState struct {
	User User `json:"user"`
}

func (UserState) Kind() string { return "user_state" }

type Error struct {
	Message string `json:"message"`
}

func (Error) Kind() string { return "error" }

// FullSyncRequested is delivered to a folder's origin connection when a
// backup issues RequestFullSync, asking the origin to regenerate and push
// its manifest to RequestingComputer (spec-supplemented feature C.4).
type FullSyncRequested struct {
	FolderID           FolderID   `json:"folder_id"`
	RequestingComputer ComputerID `json:"requesting_computer"`
}

func (FullSyncRequested) Kind() string { return "full_sync_requested" }

type wireServerMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeServerMessage flattens msg into its tagged wire shape.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal server message: %w", err)
	}

	return json.Marshal(wireServerMessage{Type: msg.Kind(), Data: data})
}

// DecodeServerMessage reconstructs the concrete ServerMessage named by the
// envelope's type tag.
func DecodeServerMessage(raw []byte) (ServerMessage, error) {
	var w wireServerMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal server message envelope: %w", err)
	}

	switch w.Type {
	case "welcome":
		return Welcome{}, nil

	case "authenticated":
		var m Authenticated

		return m, unmarshalOrZero(w.Data, &m)

	case "computer_registered":
		var m ComputerRegistered

		return m, unmarshalOrZero(w.Data, &m)

	case "sync_folder_created":
		var m SyncFolderCreated

		return m, unmarshalOrZero(w.Data, &m)

	case "joined_sync_folder":
		var m JoinedSyncFolder

		return m, unmarshalOrZero(w.Data, &m)

	case "left_sync_folder":
		var m LeftSyncFolder

		return m, unmarshalOrZero(w.Data, &m)

	case "origin_switched":
		var m OriginSwitched

		return m, unmarshalOrZero(w.Data, &m)

	case "origin_switch_denied":
		var m OriginSwitchDenied

		return m, unmarshalOrZero(w.Data, &m)

	case "folder_operation":
		var m FolderOperationBroadcast

		return m, unmarshalOrZero(w.Data, &m)

	case "operation_complete":
		var m OperationComplete

		return m, unmarshalOrZero(w.Data, &m)

	case "sync_status_changed":
		var m SyncStatusChanged

		return m, unmarshalOrZero(w.Data, &m)

	case "user_state":
		var m UserState

		return m, unmarshalOrZero(w.Data, &m)

	case "error":
		var m Error

		return m, unmarshalOrZero(w.Data, &m)

	case "full_sync_requested":
		var m FullSyncRequested

		return m, unmarshalOrZero(w.Data, &m)

	default:
		return nil, fmt.Errorf("%w: server message %q", ErrUnknownType, w.Type)
	}
}
