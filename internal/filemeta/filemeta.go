// Package filemeta captures and applies cross-platform file metadata:
// type, size, permissions, timestamps, and symlink targets. It is the
// stable, language-neutral serialization unit shared between the manifest
// (internal/folder) and the wire protocol (internal/protocol).
package filemeta

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// FileType enumerates the kinds of filesystem entries this system
// replicates.
type FileType string

// FileType values. Serialized as a small enum string, never as an
// integer, to stay language-neutral on the wire.
const (
	TypeFile      FileType = "file"
	TypeDirectory FileType = "directory"
	TypeSymlink   FileType = "symlink"
)

// modeMask keeps only the low 12 bits of a permission mode (setuid, setgid,
// sticky, and the nine rwx bits).
const modeMask = 0o7777

// Permissions carries the POSIX mode bits plus the two platform-specific
// boolean attributes (readonly, hidden) that both Unix and Windows expose
// in some form.
type Permissions struct {
	Mode     uint32 // masked to the low 12 bits
	ReadOnly bool
	Hidden   bool
}

// Metadata is the full captured state of one filesystem entry.
type Metadata struct {
	FileType      FileType
	Size          uint64
	Permissions   Permissions
	ModTime       time.Time // always UTC
	ChangeTime    *time.Time // optional; UTC when present
	SymlinkTarget *string
}

// ErrInvalid is returned when the captured state violates an invariant
// (e.g. a non-symlink with a symlink target).
var ErrInvalid = errors.New("filemeta: invalid metadata")

// FromPath captures metadata from the filesystem using lstat semantics — a
// terminal symlink is reported as a symlink, never followed.
func FromPath(path string) (Metadata, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("filemeta: lstat %s: %w", path, err)
	}

	m := Metadata{
		ModTime: toUTC(info.ModTime()),
	}

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		m.FileType = TypeSymlink

		target, err := os.Readlink(path)
		if err != nil {
			return Metadata{}, fmt.Errorf("filemeta: readlink %s: %w", path, err)
		}

		m.SymlinkTarget = &target
	case info.IsDir():
		m.FileType = TypeDirectory
	default:
		m.FileType = TypeFile
		m.Size = uint64(info.Size()) //nolint:gosec // file sizes are non-negative
	}

	m.Permissions = permissionsFromInfo(info, path)

	if ct := changeTime(info); ct != nil {
		utc := toUTC(*ct)
		m.ChangeTime = &utc
	}

	if m.ModTime.IsZero() {
		m.ModTime = time.Now().UTC()
	}

	return m, nil
}

// toUTC normalizes t to UTC, falling back to the current wall clock if t is
// the zero value (mirrors the "mtime unreadable" fallback in the spec).
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}

	return t.UTC()
}

// Validate checks the cross-field invariants: symlink_target is set if and
// only if file_type is Symlink, and size is zero for symlinks and
// directories.
func (m Metadata) Validate() error {
	switch m.FileType {
	case TypeSymlink:
		if m.SymlinkTarget == nil {
			return fmt.Errorf("%w: symlink without target", ErrInvalid)
		}

		if m.Size != 0 {
			return fmt.Errorf("%w: symlink with non-zero size", ErrInvalid)
		}
	case TypeDirectory:
		if m.Size != 0 {
			return fmt.Errorf("%w: directory with non-zero size", ErrInvalid)
		}

		if m.SymlinkTarget != nil {
			return fmt.Errorf("%w: directory with symlink target", ErrInvalid)
		}
	case TypeFile:
		if m.SymlinkTarget != nil {
			return fmt.Errorf("%w: file with symlink target", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown file type %q", ErrInvalid, m.FileType)
	}

	return nil
}

// ApplyTo writes this metadata's mode bits (Unix) or readonly/hidden
// attributes (Windows), and the modification time, onto path. It does not
// create the file — the caller must have already written content.
func (m Metadata) ApplyTo(path string) error {
	if err := m.Validate(); err != nil {
		return err
	}

	if m.FileType == TypeSymlink {
		// Symlinks carry no independent mode/mtime worth preserving across
		// platforms; the link itself was already created with the right target.
		return nil
	}

	if err := applyPermissions(path, m.Permissions); err != nil {
		return fmt.Errorf("filemeta: apply permissions %s: %w", path, err)
	}

	if err := os.Chtimes(path, m.ModTime, m.ModTime); err != nil {
		return fmt.Errorf("filemeta: chtimes %s: %w", path, err)
	}

	return nil
}

// DiffersFrom compares m to other by type, size, mode, mtime, and symlink
// target — the fields that indicate the destination needs rewriting.
func (m Metadata) DiffersFrom(other Metadata) bool {
	if m.FileType != other.FileType || m.Size != other.Size {
		return true
	}

	if (m.Permissions.Mode & modeMask) != (other.Permissions.Mode & modeMask) {
		return true
	}

	if !m.ModTime.Equal(other.ModTime) {
		return true
	}

	return !symlinkTargetsEqual(m.SymlinkTarget, other.SymlinkTarget)
}

// OnlyTimesDiffer reports whether m and other differ in mtime alone — all
// other comparable fields are equal. Useful to distinguish a touch from a
// real content/metadata change.
func (m Metadata) OnlyTimesDiffer(other Metadata) bool {
	if m.FileType != other.FileType || m.Size != other.Size {
		return false
	}

	if (m.Permissions.Mode & modeMask) != (other.Permissions.Mode & modeMask) {
		return false
	}

	if !symlinkTargetsEqual(m.SymlinkTarget, other.SymlinkTarget) {
		return false
	}

	return !m.ModTime.Equal(other.ModTime)
}

func symlinkTargetsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

// IsHiddenName reports whether base (a single path component, not a full
// path) indicates a hidden file on the current convention for goos: a
// leading dot on Unix-likes, nothing derivable from the name alone on
// Windows (the FILE_ATTRIBUTE_HIDDEN bit is the only source there).
func IsHiddenName(base, goos string) bool {
	if goos == "windows" {
		return false
	}

	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

