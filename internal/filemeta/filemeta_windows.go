//go:build windows

package filemeta

import (
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// permissionsFromInfo derives Permissions on Windows: ReadOnly and Hidden
// come from windows.GetFileAttributes, not from info.Sys() (whose concrete
// type, *syscall.Win32FileAttributeData, exposes FileAttributes as a
// struct field, not a method — duck-typing it as an interface never
// matches). Mode is synthesized (0o666 for files and 0o777 for
// directories, masked to readonly where applicable) since Windows has no
// POSIX mode bits of its own.
func permissionsFromInfo(info fs.FileInfo, path string) Permissions {
	attrs := uint32(0)
	if a, err := windows.GetFileAttributes(windows.StringToUTF16Ptr(path)); err == nil {
		attrs = a
	}

	readOnly := info.Mode()&0o200 == 0

	mode := uint32(0o666)
	if info.IsDir() {
		mode = 0o777
	}

	if readOnly {
		mode &^= 0o222
	}

	return Permissions{
		Mode:     mode & modeMask,
		ReadOnly: readOnly,
		Hidden:   attrs&windows.FILE_ATTRIBUTE_HIDDEN != 0,
	}
}

// applyPermissions sets the readonly and hidden attribute bits; Windows
// has no other mode bits to restore.
func applyPermissions(path string, p Permissions) error {
	mode := os.FileMode(0o666)
	if p.ReadOnly {
		mode = 0o444
	}

	if err := os.Chmod(path, mode); err != nil {
		return err
	}

	pathPtr := windows.StringToUTF16Ptr(path)

	attrs, err := windows.GetFileAttributes(pathPtr)
	if err != nil {
		return err
	}

	if p.Hidden {
		attrs |= windows.FILE_ATTRIBUTE_HIDDEN
	} else {
		attrs &^= windows.FILE_ATTRIBUTE_HIDDEN
	}

	return windows.SetFileAttributes(pathPtr, attrs)
}

// changeTime is unavailable in a portable way via os.FileInfo on Windows
// without syscall-specific field access; report unknown.
func changeTime(_ fs.FileInfo) *time.Time {
	return nil
}
