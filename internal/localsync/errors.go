package localsync

import "errors"

// ErrBackupSourceMissing is returned by HandleRename when the backup tree
// has no entry at the rename's source path.
var ErrBackupSourceMissing = errors.New("localsync: rename source missing from backup tree")

// ErrNosyncGuard mirrors the upstream guard-file convention: a .nosync
// marker in the origin root means the tree may be unmounted, and
// reconciliation must not run against it.
var ErrNosyncGuard = errors.New("localsync: .nosync guard file present in origin root")
