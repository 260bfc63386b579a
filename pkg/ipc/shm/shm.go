// Package shm implements a named, fixed-size host-shared memory segment
// backed by a regular file and mmap(MAP_SHARED). Attach/detach is tracked
// with a refcount kept inside the segment's paired lock token, and a
// destroy mode decides whether the last detacher removes the segment from
// the host.
package shm

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ja7ad/gostats/pkg/ipc/lock"
	"github.com/ja7ad/gostats/pkg/xerrors"
)

// DestroyMode controls what Close does to the backing file on detach.
type DestroyMode int

const (
	// DestroyOnClose removes the segment's backing file on every Close,
	// regardless of other attachers.
	DestroyOnClose DestroyMode = iota
	// DestroyOnCloseIfLast removes the backing file and its paired lock
	// token only when the refcount reaches zero.
	DestroyOnCloseIfLast
	// NeverDestroy never removes the backing file.
	NeverDestroy
)

// Segment is a named, fixed-size, host-shared memory mapping.
type Segment struct {
	name    string
	path    string
	fd      int
	data    []byte
	destroy DestroyMode
	tok     *lock.Lock
}

// Open creates or attaches a named shared-memory segment of exactly size
// bytes under dir, named "<name>.mem". wasCreated reports whether this call
// is responsible for first-time initialization of the segment's contents.
func Open(dir, name string, size int, mode lock.OpenMode, destroy DestroyMode) (seg *Segment, wasCreated bool, err error) {
	if len(name) == 0 || len(name) > lock.MaxNameLen {
		return nil, false, fmt.Errorf("shm: name %q: %w", name, xerrors.ErrNameTooLong)
	}
	if size <= 0 {
		return nil, false, fmt.Errorf("shm: size %d: %w", size, xerrors.ErrInvalidParameters)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("shm: mkdir %s: %w", dir, xerrors.ErrCannotCreateDirectory)
	}

	tok, err := lock.Open(dir, name, lock.OpenOrCreate)
	if err != nil {
		return nil, false, fmt.Errorf("shm: paired lock: %w", err)
	}
	if err := tok.Acquire(); err != nil {
		_ = tok.Close()
		return nil, false, fmt.Errorf("shm: acquire paired lock: %w", err)
	}

	path := filepath.Join(dir, name+".mem")

	flags := unix.O_RDWR
	switch mode {
	case lock.CreateNew:
		flags |= unix.O_CREAT | unix.O_EXCL
	case lock.OpenOrCreate:
		flags |= unix.O_CREAT
	case lock.OpenExisting:
		// no O_CREAT
	default:
		_ = tok.Release()
		_ = tok.Close()
		return nil, false, fmt.Errorf("shm: unknown open mode %d: %w", mode, xerrors.ErrInvalidParameters)
	}

	fd, err := unix.Open(path, flags, 0o644)
	if err != nil {
		_ = tok.Release()
		_ = tok.Close()
		switch {
		case err == unix.EEXIST:
			return nil, false, fmt.Errorf("shm: %s: %w", path, xerrors.ErrAlreadyExists)
		case err == unix.ENOENT:
			return nil, false, fmt.Errorf("shm: %s: %w", path, xerrors.ErrDoesNotExist)
		default:
			return nil, false, fmt.Errorf("shm: open %s: %w: %v", path, xerrors.ErrCannotOpen, err)
		}
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		_ = tok.Release()
		_ = tok.Close()
		return nil, false, fmt.Errorf("shm: fstat %s: %w", path, xerrors.ErrCannotStat)
	}

	if st.Size == 0 {
		wasCreated = true
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			_ = unix.Close(fd)
			_ = tok.Release()
			_ = tok.Close()
			return nil, false, fmt.Errorf("shm: truncate %s: %w", path, xerrors.ErrMemory)
		}
	} else if int(st.Size) != size {
		_ = unix.Close(fd)
		_ = tok.Release()
		_ = tok.Close()
		return nil, false, fmt.Errorf("shm: %s has size %d, want %d: %w", path, st.Size, size, xerrors.ErrInvalidSize)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		_ = tok.Release()
		_ = tok.Close()
		return nil, false, fmt.Errorf("shm: mmap %s: %w: %v", path, xerrors.ErrCannotAttach, err)
	}

	count, err := tok.ReadCounter()
	if err != nil {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		_ = tok.Release()
		_ = tok.Close()
		return nil, false, fmt.Errorf("shm: read refcount: %w", err)
	}
	if err := tok.WriteCounter(count + 1); err != nil {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		_ = tok.Release()
		_ = tok.Close()
		return nil, false, fmt.Errorf("shm: write refcount: %w", err)
	}

	if err := tok.Release(); err != nil {
		_ = unix.Munmap(data)
		_ = unix.Close(fd)
		_ = tok.Close()
		return nil, false, fmt.Errorf("shm: release paired lock: %w", err)
	}

	return &Segment{
		name:    name,
		path:    path,
		fd:      fd,
		data:    data,
		destroy: destroy,
		tok:     tok,
	}, wasCreated, nil
}

// Name returns the segment's stable name.
func (s *Segment) Name() string { return s.name }

// Data returns the mapped memory. Callers overlay their own record types on
// this slice with unsafe.Pointer/unsafe.Slice; the slice itself must not be
// reallocated or resliced past its original bounds.
func (s *Segment) Data() []byte { return s.data }

// Close detaches from the segment. Segment-then-lock ordering matters: the
// last attacher must still hold the paired lock while deciding whether to
// destroy the segment, so the lock is only released/closed after that
// decision is made and acted on.
func (s *Segment) Close() error {
	if err := s.tok.Acquire(); err != nil {
		return fmt.Errorf("shm: close: acquire paired lock: %w", err)
	}

	count, err := s.tok.ReadCounter()
	if err != nil {
		_ = s.tok.Release()
		return fmt.Errorf("shm: close: read refcount: %w", err)
	}
	if count > 0 {
		count--
	}

	destroyNow := s.destroy == DestroyOnClose || (s.destroy == DestroyOnCloseIfLast && count == 0)

	if err := unix.Munmap(s.data); err != nil {
		_ = s.tok.Release()
		return fmt.Errorf("shm: munmap %s: %w", s.path, err)
	}
	s.data = nil

	if err := unix.Close(s.fd); err != nil {
		_ = s.tok.Release()
		return fmt.Errorf("shm: close fd %s: %w", s.path, err)
	}

	if destroyNow {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			_ = s.tok.Release()
			return fmt.Errorf("shm: remove %s: %w", s.path, err)
		}
		if err := s.tok.Release(); err != nil {
			_ = s.tok.Close()
			return fmt.Errorf("shm: release paired lock: %w", err)
		}
		return s.tok.Remove()
	}

	if err := s.tok.WriteCounter(count); err != nil {
		_ = s.tok.Release()
		return fmt.Errorf("shm: write refcount: %w", err)
	}
	if err := s.tok.Release(); err != nil {
		_ = s.tok.Close()
		return fmt.Errorf("shm: release paired lock: %w", err)
	}
	return s.tok.Close()
}
