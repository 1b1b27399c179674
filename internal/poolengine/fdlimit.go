package poolengine

import "golang.org/x/sys/unix"

// doRaiseFDLimit raises RLIMIT_NOFILE's soft limit to its hard limit, since
// a wide traversal can hold many directory file descriptors open across its
// worker threads at once.
func doRaiseFDLimit() error {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return err
	}
	if rlim.Cur >= rlim.Max {
		return nil
	}
	rlim.Cur = rlim.Max
	return unix.Setrlimit(unix.RLIMIT_NOFILE, &rlim)
}
