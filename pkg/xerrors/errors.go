// Package xerrors defines the typed error kinds shared by every layer of
// gostats: the IPC primitives, the counter table, and the history file.
// Each kind is a package-level sentinel so callers can test for it with
// errors.Is.
package xerrors

import "errors"

var (
	// ErrInvalidParameters indicates a caller passed an invalid argument
	// (bad size, nil pointer, out-of-range value, malformed datagram).
	ErrInvalidParameters = errors.New("xerrors: invalid parameters")

	// ErrMemory indicates an allocation or mapping failure not otherwise
	// classified below.
	ErrMemory = errors.New("xerrors: memory error")

	// ErrNameTooLong indicates a name exceeded the 31-byte IPC token limit.
	ErrNameTooLong = errors.New("xerrors: name too long")

	// ErrFail is a generic, otherwise-unclassified failure.
	ErrFail = errors.New("xerrors: failure")

	// ErrAlreadyExists indicates CreateNew was requested but the token/file
	// already exists.
	ErrAlreadyExists = errors.New("xerrors: already exists")

	// ErrDoesNotExist indicates OpenExisting was requested but the
	// token/file does not exist.
	ErrDoesNotExist = errors.New("xerrors: does not exist")

	// ErrInvalidSize indicates an attach to an existing shared segment or
	// history file whose on-disk size does not match what was requested.
	ErrInvalidSize = errors.New("xerrors: invalid size")

	// ErrCannotOpen indicates the backing file could not be opened.
	ErrCannotOpen = errors.New("xerrors: cannot open")

	// ErrCannotAttach indicates mmap of an opened file failed.
	ErrCannotAttach = errors.New("xerrors: cannot attach")

	// ErrCannotStat indicates fstat of an opened file failed.
	ErrCannotStat = errors.New("xerrors: cannot stat")

	// ErrCannotCreateDirectory indicates the configured token/segment
	// directory could not be created.
	ErrCannotCreateDirectory = errors.New("xerrors: cannot create directory")

	// ErrCannotCreatePath indicates a path under the token directory could
	// not be constructed or created.
	ErrCannotCreatePath = errors.New("xerrors: cannot create path")

	// ErrCannotCreateIPCToken indicates the lock or segment token file
	// itself could not be created.
	ErrCannotCreateIPCToken = errors.New("xerrors: cannot create ipc token")

	// ErrPathNotDirectory indicates a configured directory path exists but
	// is not a directory.
	ErrPathNotDirectory = errors.New("xerrors: path is not a directory")

	// ErrStatsKeyTooLong indicates a counter name exceeded stats.MaxKeyLen.
	ErrStatsKeyTooLong = errors.New("xerrors: stats key too long")

	// ErrCannotAllocateCounter indicates every probe in the allocation
	// sequence hit an allocated, non-matching slot.
	ErrCannotAllocateCounter = errors.New("xerrors: cannot allocate counter")

	// ErrInvalidHeader indicates a history file's magic did not match.
	ErrInvalidHeader = errors.New("xerrors: invalid header")

	// ErrInvalidVersion indicates a history file's version field is
	// unsupported.
	ErrInvalidVersion = errors.New("xerrors: invalid version")

	// ErrCannotMap indicates mmap of a history file or counter table
	// segment failed.
	ErrCannotMap = errors.New("xerrors: cannot map")
)
