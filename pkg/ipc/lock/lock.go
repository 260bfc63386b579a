// Package lock implements a named cross-process mutual-exclusion
// primitive keyed by a short stable name. It backs its locks with flock(2)
// on a token file under a configured directory, so abnormal process exit
// while holding the lock releases it automatically — the kernel drops an
// flock when the owning file description is closed, including on process
// death, with no separate crash-recovery path required.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/gostats/pkg/xerrors"
)

// MaxNameLen is the longest name accepted for a lock or shared-memory token.
const MaxNameLen = 31

// OpenMode selects how Open treats an existing (or missing) token file.
type OpenMode int

const (
	// CreateNew fails with xerrors.ErrAlreadyExists if the token already exists.
	CreateNew OpenMode = iota
	// OpenOrCreate creates the token if missing, opens it otherwise.
	OpenOrCreate
	// OpenExisting fails with xerrors.ErrDoesNotExist if the token is missing.
	OpenExisting
)

// Lock is a named, cross-process mutual-exclusion handle.
type Lock struct {
	name string
	path string
	fd   int
}

// Open opens or creates the named lock token under dir, named "<name>.sem".
func Open(dir, name string, mode OpenMode) (*Lock, error) {
	if len(name) == 0 || len(name) > MaxNameLen {
		return nil, fmt.Errorf("lock: name %q: %w", name, xerrors.ErrNameTooLong)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock: mkdir %s: %w", dir, xerrors.ErrCannotCreateDirectory)
	}

	path := filepath.Join(dir, name+".sem")

	flags := unix.O_RDWR
	switch mode {
	case CreateNew:
		flags |= unix.O_CREAT | unix.O_EXCL
	case OpenOrCreate:
		flags |= unix.O_CREAT
	case OpenExisting:
		// no O_CREAT
	default:
		return nil, fmt.Errorf("lock: unknown open mode %d: %w", mode, xerrors.ErrInvalidParameters)
	}

	fd, err := unix.Open(path, flags, 0o644)
	if err != nil {
		switch {
		case err == unix.EEXIST:
			return nil, fmt.Errorf("lock: %s: %w", path, xerrors.ErrAlreadyExists)
		case err == unix.ENOENT:
			return nil, fmt.Errorf("lock: %s: %w", path, xerrors.ErrDoesNotExist)
		default:
			return nil, fmt.Errorf("lock: open %s: %w: %v", path, xerrors.ErrCannotCreateIPCToken, err)
		}
	}

	return &Lock{name: name, path: path, fd: fd}, nil
}

// Name returns the lock's stable name.
func (l *Lock) Name() string { return l.name }

// Acquire blocks until the lock is held exclusively by this handle.
func (l *Lock) Acquire() error {
	if err := unix.Flock(l.fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock: acquire %s: %w", l.path, err)
	}
	return nil
}

// TryAcquire attempts a non-blocking acquire, returning false (no error) if
// another process currently holds the lock.
func (l *Lock) TryAcquire() (bool, error) {
	err := unix.Flock(l.fd, unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if err == unix.EWOULDBLOCK {
		return false, nil
	}
	return false, fmt.Errorf("lock: try-acquire %s: %w", l.path, err)
}

// Release drops the lock. It never fails if previously acquired by this
// handle.
func (l *Lock) Release() error {
	if err := unix.Flock(l.fd, unix.LOCK_UN); err != nil {
		return fmt.Errorf("lock: release %s: %w", l.path, err)
	}
	return nil
}

// ReadCounter reads a little-endian uint32 stored at byte offset 0 of the
// token file. It is used by pkg/ipc/shm to keep a shared segment's attacher
// refcount inside the paired lock token rather than in a third file. The
// caller must hold the lock.
func (l *Lock) ReadCounter() (uint32, error) {
	var buf [4]byte
	n, err := unix.Pread(l.fd, buf[:], 0)
	if err != nil {
		return 0, fmt.Errorf("lock: read counter %s: %w", l.path, err)
	}
	if n < 4 {
		return 0, nil // freshly created, zero-filled
	}
	return le32(buf[:]), nil
}

// WriteCounter writes a little-endian uint32 at byte offset 0 of the token
// file. The caller must hold the lock.
func (l *Lock) WriteCounter(v uint32) error {
	var buf [4]byte
	putLe32(buf[:], v)
	if _, err := unix.Pwrite(l.fd, buf[:], 0); err != nil {
		return fmt.Errorf("lock: write counter %s: %w", l.path, err)
	}
	return nil
}

// Close closes the lock's file descriptor, releasing any held lock.
func (l *Lock) Close() error {
	return unix.Close(l.fd)
}

// Remove closes and removes the lock's token file from disk. Callers must
// ensure no other process still needs the token.
func (l *Lock) Remove() error {
	_ = l.Close()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: remove %s: %w", l.path, err)
	}
	return nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
