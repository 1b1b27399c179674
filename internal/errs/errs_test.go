package errs

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestFromErrnoKnownCodes(t *testing.T) {
	cases := []struct {
		errno unix.Errno
		want  Kind
	}{
		{unix.EACCES, AccessDenied},
		{unix.ENOENT, FileNotFound},
		{unix.ENOTDIR, NotDir},
		{unix.ELOOP, SymLinkLoop},
		{unix.EMFILE, ProcessFdQuotaExceeded},
	}
	for _, c := range cases {
		if got := FromErrno(c.errno); got != c.want {
			t.Fatalf("FromErrno(%v) = %v, want %v", c.errno, got, c.want)
		}
	}
}

func TestFromErrnoUnknownFallsBackToUnexpected(t *testing.T) {
	if got := FromErrno(unix.Errno(0xdead)); got != Unexpected {
		t.Fatalf("FromErrno(unknown) = %v, want Unexpected", got)
	}
}

func TestKindStringCoversAllValues(t *testing.T) {
	for k := Unexpected; k <= maxKind; k++ {
		if k.String() == "" {
			t.Fatalf("Kind(%d).String() is empty", k)
		}
	}
}
