//go:build !windows

package filemeta

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// permissionsFromInfo derives Permissions on Unix: the mode bits straight
// from the filesystem, readonly synthesized from the owner-write bit, and
// hidden from a leading dot in the base name.
func permissionsFromInfo(info fs.FileInfo, path string) Permissions {
	mode := uint32(info.Mode().Perm()) & modeMask

	return Permissions{
		Mode:     mode,
		ReadOnly: mode&0o200 == 0,
		Hidden:   IsHiddenName(filepath.Base(path), "linux"),
	}
}

// applyPermissions sets the mode bits. ReadOnly/Hidden have no independent
// Unix representation beyond the mode bits and the filename, so only Mode
// is applied here.
func applyPermissions(path string, p Permissions) error {
	return os.Chmod(path, os.FileMode(p.Mode&modeMask))
}

// changeTime always reports "unknown" (nil): many filesystems don't expose
// an inode change time uniformly across the unix build family, so it is
// not read at all, matching the spec's "creation time is optional"
// allowance.
func changeTime(_ fs.FileInfo) *time.Time {
	return nil
}
