// Package store implements the broker's opaque metadata persistence (spec
// §6: "users(id, name, password_hash), computers(id, user_id, name,
// online), folders(id, name, origin_computer_id, is_synced,
// pending_operations), folder_backups(folder_id, computer_id)"). The
// schema is treated as opaque by the rest of the broker — every other
// package talks to it only through the Store interface, following
// internal/sync.Store's split between an interface every component
// depends on and one concrete SQLite-backed implementation.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: not found")

// User is one row of the users table.
type User struct {
	ID           string
	Name         string
	PasswordHash string
}

// Computer is one row of the computers table.
type Computer struct {
	ID     string
	UserID string
	Name   string
	Online bool
}

// Folder is one row of the folders table. BackupComputerIDs is populated
// from the folder_backups join table, not stored as a folders column.
type Folder struct {
	ID                string
	Name              string
	OwnerUserID       string
	OriginComputerID  string
	IsSynced          bool
	PendingOperations uint64
	BackupComputerIDs []string
}

// Store is the broker's durable metadata interface (spec §6 names the
// schema). cmd/broker opens it at startup, which applies the migrations;
// broker.State is built in memory and is neither loaded from nor written
// to the Store, so State does not survive a restart.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)

	CreateComputer(ctx context.Context, c Computer) error
	GetComputer(ctx context.Context, id string) (Computer, error)
	ListComputersByUser(ctx context.Context, userID string) ([]Computer, error)
	SetComputerOnline(ctx context.Context, id string, online bool) error

	CreateFolder(ctx context.Context, f Folder) error
	GetFolder(ctx context.Context, id string) (Folder, error)
	ListFoldersByUser(ctx context.Context, userID string) ([]Folder, error)
	SetFolderOrigin(ctx context.Context, id, originComputerID string) error
	SetFolderSyncState(ctx context.Context, id string, isSynced bool, pendingOperations uint64) error

	AddFolderBackup(ctx context.Context, folderID, computerID string) error
	RemoveFolderBackup(ctx context.Context, folderID, computerID string) error

	// Checkpoint flushes any buffered state to disk (WAL checkpoint).
	Checkpoint(ctx context.Context) error
	Close() error
}
