package localsync

import (
	"fmt"
	"os"
)

// lockKind distinguishes the two advisory lock modes used during
// reconciliation: shared locks on origin files (readers may coexist),
// exclusive locks on backup files (only this process mutates them).
type lockKind int

const (
	lockShared lockKind = iota
	lockExclusive
)

// fileLock holds an open file descriptor with an advisory OS-level lock
// taken out on it. Released by unlock, which also closes the descriptor.
type fileLock struct {
	path string
	file *os.File
}

// lockFile opens path and takes out an advisory lock of the given kind,
// blocking until it is available. The lock (and the open file) is
// released by calling unlock.
func lockFile(path string, kind lockKind) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("localsync: opening %s for locking: %w", path, err)
	}

	if err := platformLock(f, kind); err != nil {
		f.Close()

		return nil, fmt.Errorf("localsync: locking %s: %w", path, err)
	}

	return &fileLock{path: path, file: f}, nil
}

func (l *fileLock) unlock() error {
	if err := platformUnlock(l.file); err != nil {
		l.file.Close()

		return fmt.Errorf("localsync: unlocking %s: %w", l.path, err)
	}

	return l.file.Close()
}

// lockSet acquires and releases a batch of locks together, so a
// reconciliation pass can hold every origin/backup lock for its whole
// duration and release them all on scope exit regardless of outcome.
type lockSet struct {
	locks []*fileLock
}

func (s *lockSet) add(path string, kind lockKind) error {
	l, err := lockFile(path, kind)
	if err != nil {
		return err
	}

	s.locks = append(s.locks, l)

	return nil
}

// releaseAll unlocks every held lock, collecting (but not stopping on)
// individual errors, and returns the first one encountered, if any.
func (s *lockSet) releaseAll() error {
	var firstErr error

	for i := len(s.locks) - 1; i >= 0; i-- {
		if err := s.locks[i].unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.locks = nil

	return firstErr
}
