//go:build !windows

package localsync

import (
	"os"
	"syscall"
)

// platformLock takes a blocking advisory flock on f, matching the
// non-blocking exclusive pattern the agent's own pidfile locking uses
// (here blocking, since reconciliation is expected to wait its turn).
func platformLock(f *os.File, kind lockKind) error {
	how := syscall.LOCK_SH
	if kind == lockExclusive {
		how = syscall.LOCK_EX
	}

	return syscall.Flock(int(f.Fd()), how)
}

func platformUnlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
