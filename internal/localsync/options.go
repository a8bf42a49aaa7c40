package localsync

// SyncOptions toggles the three independent behavioral variations the
// local syncer supports (spec §4.5). All default false — the base
// behavior is "make backup match origin exactly".
type SyncOptions struct {
	// WhenMissingPreserveBackup skips deleting backup-only files during
	// initial reconciliation.
	WhenMissingPreserveBackup bool
	// WhenConflictPreserveBackup copies backup → origin instead of
	// origin → backup when the initial scan finds differing content on
	// both sides.
	WhenConflictPreserveBackup bool
	// WhenDeleteKeepBackup leaves the backup file in place when origin
	// deletes it via an event.
	WhenDeleteKeepBackup bool
}
