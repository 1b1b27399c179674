// Package ringengine implements the submit/complete traversal backend
//: a single thread driving a kernel io_uring queue, dispatching
// openat/statx/close completions back into the shared traversal protocol.
package ringengine

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"

	"github.com/duzproj/duz/internal/errs"
	"github.com/duzproj/duz/internal/slab"
	"github.com/duzproj/duz/internal/walk"
)

// queueDepth is the fixed submission ring size.
const queueDepth = 4096

// cqeBatch is the maximum CQEs reaped per loop iteration.
const cqeBatch = 64

// statxSlot is the completion-side scratch a pending stat_file request
// needs: the node it belongs to, the directory fd and relative name it was
// statted against, and the statx buffer the kernel fills in.
type statxSlot struct {
	node  uint32
	dirFD int
	name  string
	buf   giouring.Statx
}

// dirOpenSlot tracks a pending open_dir request's node and the path used to
// report errors if the open itself fails.
type dirOpenSlot struct {
	node  uint32
	path  string
	dirFD int // the fd the opened directory will be relative to (AT_FDCWD for roots)
	name  string
	depth uint32
}

// pendingTask is an engine-internal request that could not be submitted
// immediately and sits in the LIFO overflow buffer until retried.
type pendingTask struct {
	kind kind
	ud   userData
	// statx
	sxDirFD int
	sxName  string
	// openat
	opDirFD int
	opName  string
}

// Engine drives one traversal's submit/complete loop.
type Engine struct {
	tree    *walk.Tree
	opts    *walk.Options
	rootDev uint64

	ring *giouring.Ring

	statxSlots *slab.Slab[statxSlot]
	dirSlots   *slab.Slab[dirOpenSlot]

	overflow    []pendingTask
	outstanding int
}

// New creates a submit/complete engine backed by a fresh io_uring instance.
func New(tree *walk.Tree, opts *walk.Options, rootDev uint64) (*Engine, error) {
	ring, err := giouring.CreateRing(queueDepth)
	if err != nil {
		return nil, fmt.Errorf("ringengine: creating io_uring: %w", err)
	}
	return &Engine{
		tree:       tree,
		opts:       opts,
		rootDev:    rootDev,
		ring:       ring,
		statxSlots: slab.New[statxSlot](),
		dirSlots:   slab.New[dirOpenSlot](),
	}, nil
}

// Close tears down the ring.
func (e *Engine) Close() {
	e.ring.QueueExit()
}

// Run seeds the root directory and drives the loop until every
// outstanding operation drains and the overflow buffer is empty.
func (e *Engine) Run(rootIdx uint32, rootPath string) error {
	e.submitOpenDir(rootIdx, rootPath, unix.AT_FDCWD, rootPath, 0)

	for e.outstanding > 0 || len(e.overflow) > 0 {
		e.drainOverflow()

		if _, err := e.ring.SubmitAndWait(1); err != nil && err != unix.EINTR {
			return fmt.Errorf("ringengine: submit: %w", err)
		}

		var cqes [cqeBatch]*giouring.CompletionQueueEvent
		n := e.ring.PeekBatchCQE(cqes[:])
		for i := uint32(0); i < n; i++ {
			cqe := cqes[i]
			e.dispatch(userData(cqe.UserData), cqe.Res)
			e.ring.CQESeen(1)
		}
	}

	return nil
}

func (e *Engine) dispatch(ud userData, res int32) {
	e.outstanding--
	switch ud.kind() {
	case kindStatFile:
		e.completeStatFile(ud, res)
	case kindOpenDir:
		e.completeOpenDir(ud, res)
	case kindCloseFD:
		// no handling needed
	}
}

// submitStatFile queues a statx for name relative to dirFD, or parks it in
// the overflow buffer if no SQE is free.
func (e *Engine) submitStatFile(node uint32, dirFD int, name string) {
	slot := e.statxSlots.Add()
	s := e.statxSlots.Get(slot)
	s.node, s.dirFD, s.name = node, dirFD, name

	sqe := e.ring.GetSQE()
	if sqe == nil {
		// The slot stays allocated: it already holds the statx buffer this
		// request will eventually write into, and drainOverflow's retry
		// references it by index. completeStatFile frees it exactly once,
		// whichever submission attempt actually lands.
		e.overflow = append(e.overflow, pendingTask{kind: kindStatFile, sxDirFD: dirFD, sxName: name, ud: packUserData(node, kindStatFile, slot)})
		return
	}
	e.prepStatFile(sqe, dirFD, name, node, slot)
	e.outstanding++
}

func (e *Engine) prepStatFile(sqe *giouring.SubmissionQueueEntry, dirFD int, name string, node uint32, slot uint32) {
	sqe.PrepareStatx(
		int32(dirFD), name,
		unix.AT_SYMLINK_NOFOLLOW|unix.AT_STATX_DONT_SYNC,
		unix.STATX_SIZE,
		&e.statxSlots.Get(slot).buf,
	)
	sqe.UserData = uint64(packUserData(node, kindStatFile, slot))
}

func (e *Engine) submitOpenDir(node uint32, path string, dirFD int, name string, depth uint32) {
	slot := e.dirSlots.Add()
	s := e.dirSlots.Get(slot)
	s.node, s.path, s.dirFD, s.name, s.depth = node, path, dirFD, name, depth

	sqe := e.ring.GetSQE()
	if sqe == nil {
		// Same reasoning as submitStatFile: keep the slot allocated rather
		// than freeing it here, so completeOpenDir is the only place that
		// ever frees it.
		e.overflow = append(e.overflow, pendingTask{kind: kindOpenDir, opDirFD: dirFD, opName: name, ud: packUserData(node, kindOpenDir, slot)})
		return
	}
	sqe.PrepareOpenat(int32(dirFD), name, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	sqe.UserData = uint64(packUserData(node, kindOpenDir, slot))
	e.outstanding++
}

func (e *Engine) submitClose(fd int) {
	sqe := e.ring.GetSQE()
	if sqe == nil {
		e.overflow = append(e.overflow, pendingTask{kind: kindCloseFD, ud: packUserData(0, kindCloseFD, 0), sxDirFD: fd})
		return
	}
	sqe.PrepareClose(int32(fd))
	sqe.UserData = uint64(packUserData(0, kindCloseFD, 0))
	e.outstanding++
}

// drainOverflow retries tasks that couldn't be submitted, LIFO, stopping
// as soon as the ring has no free SQEs again.
func (e *Engine) drainOverflow() {
	for len(e.overflow) > 0 {
		t := e.overflow[len(e.overflow)-1]
		sqe := e.ring.GetSQE()
		if sqe == nil {
			return
		}
		switch t.kind {
		case kindStatFile:
			sqe.PrepareStatx(int32(t.sxDirFD), t.sxName, unix.AT_SYMLINK_NOFOLLOW|unix.AT_STATX_DONT_SYNC, unix.STATX_SIZE, &e.statxSlots.Get(t.ud.slot()).buf)
		case kindOpenDir:
			sqe.PrepareOpenat(int32(t.opDirFD), t.opName, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
		case kindCloseFD:
			sqe.PrepareClose(int32(t.sxDirFD))
		}
		sqe.UserData = uint64(t.ud)
		e.outstanding++
		e.overflow = e.overflow[:len(e.overflow)-1]
	}
}

func (e *Engine) completeStatFile(ud userData, res int32) {
	slot := ud.slot()
	s := e.statxSlots.Get(slot)
	node := s.node
	defer e.statxSlots.Del(slot)

	if res < 0 {
		e.tree.ErrorNode(node, errs.FromErrno(unix.Errno(-res)))
		return
	}
	e.tree.CompleteFile(node, uint64(s.buf.Size))
}

func (e *Engine) completeOpenDir(ud userData, res int32) {
	slot := ud.slot()
	s := e.dirSlots.Get(slot)
	node, path, depth := s.node, s.path, s.depth
	defer e.dirSlots.Del(slot)

	if res < 0 {
		e.tree.ErrorNode(node, errs.FromErrno(unix.Errno(-res)))
		return
	}
	dirFD := int(res)

	entries, err := readDirEntries(dirFD)
	if err != nil {
		e.tree.ErrorNode(node, errs.FromError(err))
		e.submitClose(dirFD)
		return
	}

	var actualCount uint32
	for _, ent := range entries {
		if e.opts.ShouldExclude(filepath.Join(path, ent.name)) {
			continue
		}
		childPath := filepath.Join(path, ent.name)
		childIdx, _ := e.tree.AppendChild(node, ent.name, ent.isDir)
		actualCount++

		if !ent.isDir {
			e.submitStatFile(childIdx, dirFD, ent.name)
			continue
		}

		if e.opts.Xdev && !e.sameDevice(dirFD, ent.name) {
			e.tree.FinishListing(childIdx, 0)
			continue
		}
		// --max-depth only gates what the printer shows; totals still need
		// every directory beneath the cutoff fully traversed, so descent
		// continues regardless of depth here.
		e.submitOpenDir(childIdx, childPath, dirFD, ent.name, depth+1)
	}

	e.tree.FinishListing(node, actualCount)
	e.submitClose(dirFD)
}

// sameDevice reports whether name (relative to dirFD) lives on the
// traversal's root device, the same comparison the pool backend makes via
// os.Lstat's Sys() — here via a direct fstatat since there's no os.FileInfo
// in this backend's path.
func (e *Engine) sameDevice(dirFD int, name string) bool {
	var st unix.Stat_t
	if err := unix.Fstatat(dirFD, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return true
	}
	return uint64(st.Dev) == e.rootDev
}

type dirEntry struct {
	name  string
	isDir bool
}

// readDirEntries reads dirFD's immediate children synchronously via
// getdents64, skipping "." and "..". This syscall loop, like the child
// record appends that follow it, runs inside the completion callback; only
// the children's own statx/openat requests go back through the ring.
func readDirEntries(dirFD int) ([]dirEntry, error) {
	names, types, err := getdentsAll(dirFD)
	if err != nil {
		return nil, err
	}

	out := make([]dirEntry, 0, len(names))
	for i, name := range names {
		if name == "." || name == ".." {
			continue
		}
		isDir := types[i] == unix.DT_DIR
		if types[i] == unix.DT_UNKNOWN {
			var st unix.Stat_t
			if statErr := unix.Fstatat(dirFD, name, &st, unix.AT_SYMLINK_NOFOLLOW); statErr == nil {
				isDir = st.Mode&unix.S_IFMT == unix.S_IFDIR
			}
		}
		out = append(out, dirEntry{name: name, isDir: isDir})
	}
	return out, nil
}

// getdentsAll reads every raw linux_dirent64 record from dirFD, looping
// until the kernel reports nothing left to return.
func getdentsAll(dirFD int) (names []string, types []byte, err error) {
	buf := make([]byte, 64*1024)
	for {
		n, readErr := unix.Getdents(dirFD, buf)
		if readErr != nil {
			if readErr == unix.EINTR {
				continue
			}
			return nil, nil, readErr
		}
		if n <= 0 {
			return names, types, nil
		}
		ns, ts := parseDirents(buf[:n])
		names = append(names, ns...)
		types = append(types, ts...)
	}
}

// parseDirents walks a buffer of raw linux_dirent64 records:
//
//	uint64 d_ino; int64 d_off; uint16 d_reclen; uint8 d_type; char d_name[]
func parseDirents(buf []byte) (names []string, types []byte) {
	const (
		recLenOff = 16
		typeOff   = 18
		nameOff   = 19
	)
	off := 0
	for off+nameOff <= len(buf) {
		reclen := int(binary.LittleEndian.Uint16(buf[off+recLenOff : off+recLenOff+2]))
		if reclen <= 0 || off+reclen > len(buf) {
			break
		}
		dtype := buf[off+typeOff]
		nameBytes := buf[off+nameOff : off+reclen]
		if nul := bytesIndexZero(nameBytes); nul >= 0 {
			nameBytes = nameBytes[:nul]
		}
		names = append(names, string(nameBytes))
		types = append(types, dtype)
		off += reclen
	}
	return names, types
}

func bytesIndexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
