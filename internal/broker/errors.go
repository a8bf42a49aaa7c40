package broker

import "errors"

// Sentinel errors for conditions internal/broker's handlers check with
// errors.Is (spec §7's Validation/NotFound/Conflict taxonomy).
var (
	ErrUserNotFound         = errors.New("broker: user not found")
	ErrComputerNotFound     = errors.New("broker: computer not found")
	ErrFolderNotFound       = errors.New("broker: folder not found")
	ErrNotAuthenticated     = errors.New("broker: connection is not authenticated")
	ErrAlreadyAuthenticated = errors.New("broker: connection is already authenticated")
	ErrNotOrigin            = errors.New("broker: caller is not the folder's current origin")
	ErrNotBackup            = errors.New("broker: computer is not a backup of this folder")
	ErrAlreadyBackup        = errors.New("broker: computer is already a backup of this folder")
	ErrNotSynced            = errors.New("broker: folder is not fully synced")
	ErrConnectionNotFound   = errors.New("broker: connection not found")
	ErrPoisonedState        = errors.New("broker: state lock left in an unrecoverable condition")
)
