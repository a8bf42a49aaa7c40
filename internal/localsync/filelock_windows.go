//go:build windows

package localsync

import (
	"os"

	"golang.org/x/sys/windows"
)

// platformLock mirrors the unix flock semantics on top of LockFileEx: a
// whole-file range lock, exclusive for lockExclusive and shared otherwise,
// that blocks until it is granted.
func platformLock(f *os.File, kind lockKind) error {
	var flags uint32
	if kind == lockExclusive {
		flags = windows.LOCKFILE_EXCLUSIVE_LOCK
	}

	overlapped := new(windows.Overlapped)

	return windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, ^uint32(0), ^uint32(0), overlapped)
}

func platformUnlock(f *os.File) error {
	overlapped := new(windows.Overlapped)

	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, ^uint32(0), ^uint32(0), overlapped)
}
