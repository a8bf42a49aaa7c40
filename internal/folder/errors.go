package folder

import "errors"

// Sentinel errors for the folder model's operation taxonomy (spec §7).
// Wrap with fmt.Errorf("...: %w", ...) to attach the offending path/id.
var (
	// ErrNotFound is returned when an operation references a path or
	// transfer id that does not exist where one is required.
	ErrNotFound = errors.New("folder: not found")
	// ErrHashMismatch is returned when committed content does not match
	// its announced digest. The destination is left unmodified and the
	// transfer's temp state is dropped.
	ErrHashMismatch = errors.New("folder: hash mismatch")
	// ErrTransferExists is informational — Start on an existing id discards
	// and recreates rather than erroring, but callers may want to log it.
	ErrTransferExists = errors.New("folder: transfer already exists, recreating")
	// ErrUnknownTransfer is returned by Chunk/End when Start was never
	// processed for the given id.
	ErrUnknownTransfer = errors.New("folder: unknown transfer id")
)
