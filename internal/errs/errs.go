// Package errs classifies the filesystem errors a traversal can observe at
// its boundary (openat, statx, getdents64) into a small closed set, the way
// a record's errored(kind) state needs a packable integer rather than a Go
// error value.
package errs

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrTooManyResults is returned by a directory listing that overflows the
// 31-bit remaining-children counter.
var ErrTooManyResults = errors.New("duz: directory listing exceeds the remaining-children counter")

// Kind is an integer-encoded error classification, narrow enough to be
// packed into a record's state word alongside its tag bits.
type Kind uint32

const (
	Unexpected Kind = iota
	AccessDenied
	FileNotFound
	NotDir
	NameTooLong
	SymLinkLoop
	DeviceBusy
	NoDevice
	ProcessFdQuotaExceeded
	SystemFdQuotaExceeded
	SystemResources
	BadPathName
	TooManyResults
)

// maxKind is the largest Kind value; record.PackErrored stores a Kind in the
// bits between its two tag bits and its not-a-directory bit, which must be
// wide enough to hold it.
const maxKind = TooManyResults

func (k Kind) String() string {
	switch k {
	case AccessDenied:
		return "AccessDenied"
	case FileNotFound:
		return "FileNotFound"
	case NotDir:
		return "NotDir"
	case NameTooLong:
		return "NameTooLong"
	case SymLinkLoop:
		return "SymLinkLoop"
	case DeviceBusy:
		return "DeviceBusy"
	case NoDevice:
		return "NoDevice"
	case ProcessFdQuotaExceeded:
		return "ProcessFdQuotaExceeded"
	case SystemFdQuotaExceeded:
		return "SystemFdQuotaExceeded"
	case SystemResources:
		return "SystemResources"
	case BadPathName:
		return "BadPathName"
	case TooManyResults:
		return "TooManyResults"
	default:
		return "Unexpected"
	}
}

// FromErrno classifies a raw syscall errno from openat/statx/getdents64.
// Codes that the flags we pass can never actually produce (e.g. EISDIR on
// an O_DIRECTORY open) are folded into Unexpected rather than given their
// own branch — surfacing them as a bug report, not a silent misclassification.
func FromErrno(errno unix.Errno) Kind {
	switch errno {
	case unix.EACCES, unix.EPERM:
		return AccessDenied
	case unix.ENOENT:
		return FileNotFound
	case unix.ENOTDIR:
		return NotDir
	case unix.ENAMETOOLONG:
		return NameTooLong
	case unix.ELOOP:
		return SymLinkLoop
	case unix.EBUSY:
		return DeviceBusy
	case unix.ENODEV, unix.ENXIO:
		return NoDevice
	case unix.EMFILE:
		return ProcessFdQuotaExceeded
	case unix.ENFILE:
		return SystemFdQuotaExceeded
	case unix.ENOMEM, unix.ENOSPC:
		return SystemResources
	case unix.EINVAL:
		return BadPathName
	default:
		return Unexpected
	}
}

// FromError classifies a generic error returned by the os package,
// unwrapping to the underlying errno where possible.
func FromError(err error) Kind {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return FromErrno(errno)
	}
	return Unexpected
}
