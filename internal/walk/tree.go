// Package walk implements the traversal protocol shared by both backends
//: node lifecycle, the sentinel-counted child-listing
// correction, and the upward propagation cascade. Neither backend
// duplicates this logic; each only supplies how a directory gets listed
// and how a file gets stat'd.
package walk

import (
	"sync"
	"sync/atomic"

	"github.com/duzproj/duz/internal/errs"
	"github.com/duzproj/duz/internal/record"
	"github.com/duzproj/duz/internal/store"
)

// RootIndex is the index of the root record; it is self-parenting.
const RootIndex uint32 = 0

// Tree owns the append list and string arena for one traversal. It is safe
// for concurrent use by multiple goroutines (the pool backend) or a single
// cooperative loop (the submit/complete backend) — every mutation goes
// through a record's own atomics or the append list's internal lock.
type Tree struct {
	Records *store.List[record.Record]
	Arena   *Arena

	// done is closed exactly once, when the root reaches completed_directory.
	done     chan struct{}
	finished bool // only ever set from inside the cascade that closes done

	// completed backs the polling interface: every record that
	// reaches a terminal state (completed_file, completed_directory,
	// errored) bumps this counter. pollCond wakes anyone blocked in Poll.
	completed atomic.Uint32
	pollMu    sync.Mutex
	pollCond  *sync.Cond
}

// NewTree creates an empty tree and appends the root record under rootPath.
// The root is self-parenting (parent == its own index, always 0) and
// starts as an incomplete_directory with the sentinel count.
func NewTree(rootPath string) *Tree {
	t := &Tree{
		Records: store.New[record.Record](1024),
		Arena:   NewArena(),
		done:    make(chan struct{}),
	}
	t.pollCond = sync.NewCond(&t.pollMu)
	var root record.Record
	root.Parent = RootIndex
	root.Path = rootPath
	root.Depth = 0
	root.Init(record.PackIncompleteDirectory(record.MaxDirCount))
	idx := t.Records.Append(root)
	if idx != RootIndex {
		panic("walk: root must be the first record appended")
	}
	return t
}

// AppendChild appends a new record for a directory entry, parented at
// dirIdx, with the given name joined onto the parent's path. A child's
// record is appended *before* its own task is scheduled, so a child's
// index is always strictly greater than its
// parent's — the invariant the cascade's parent-walk depends on never
// cycling.
func (t *Tree) AppendChild(dirIdx uint32, name string, isDir bool) (childIdx uint32, childPath string) {
	parent := t.Records.GetPtr(dirIdx)
	childPath = t.Arena.Join(parent.Path, name)

	var r record.Record
	r.Parent = dirIdx
	r.Path = childPath
	r.Depth = parent.Depth + 1
	if isDir {
		r.Init(record.PackIncompleteDirectory(record.MaxDirCount))
	} else {
		r.Init(record.PackIncompleteFile())
	}
	return t.Records.Append(r), childPath
}

// CompleteFile marks a file record as successfully stat'd and runs the
// propagation cascade. size is the file's statx-reported byte length.
func (t *Tree) CompleteFile(idx uint32, size uint64) {
	r := t.Records.GetPtr(idx)
	r.AddSize(size) // must precede SetState so a concurrent cascade reader sees the full size
	r.SetState(record.PackCompletedFile())
	t.bumpCompleted()
	t.cascadeFrom(idx)
}

// ErrorNode marks any record (file or directory) as errored. An errored
// node still counts as one completed child of its parent, contributing
// zero size — this is what keeps the cascade live under partial failure
//.
func (t *Tree) ErrorNode(idx uint32, kind errs.Kind) {
	r := t.Records.GetPtr(idx)
	r.SetState(record.PackErrored(kind))
	t.bumpCompleted()
	t.cascadeFrom(idx)
}

// FinishListing applies the sentinel correction once a directory's
// children have all been appended and scheduled: it
// subtracts (sentinel - actualCount) from the parent's remaining count in
// one atomic operation, publishing the true count with acquire-release
// semantics. If every child had already raced ahead and completed before
// this correction lands, the correction itself drives the count to zero
// and the cascade fires from here.
//
// actualCount may be zero (an empty directory), in which case the
// directory completes immediately without ever having any children
// finish against it.
func (t *Tree) FinishListing(dirIdx uint32, actualCount uint32) {
	delta := record.MaxDirCount - actualCount
	r := t.Records.GetPtr(dirIdx)
	if delta == 0 {
		// actualCount == MaxDirCount only in pathological oversized
		// directories; FinishListing with delta 0 would never transition
		// a directory that still has real children outstanding, so the
		// caller (the directory-listing code) must never reach here with
		// more than MaxDirCount-1 children — see errs.TooManyResults.
		return
	}
	newVal, ok := r.FinishChildren(delta)
	if !ok {
		panic("walk: FinishListing on a non-directory record")
	}
	if newVal == 0 {
		t.bumpCompleted() // dirIdx itself just transitioned to completed_directory
		t.cascadeUp(dirIdx)
	}
}

// cascadeFrom runs the propagation cascade starting at a just-completed
// leaf (file or errored) node.
func (t *Tree) cascadeFrom(idx uint32) {
	t.cascadeUp(idx)
}

// cascadeUp walks parents by index, adding the finished node's size to
// its parent and decrementing the
// parent's remaining-children count by one. The decrement that lands on
// zero is the one that continues the walk; every other decrement stops.
func (t *Tree) cascadeUp(node uint32) {
	for {
		if node == RootIndex {
			t.markFinished()
			return
		}
		child := t.Records.GetPtr(node)
		parentIdx := child.Parent
		parent := t.Records.GetPtr(parentIdx)

		parent.AddSize(child.Size()) // must precede the decrement below
		newVal, ok := parent.FinishChildren(1)
		if !ok {
			panic("walk: cascade decrement on a non-directory parent")
		}
		if newVal != 0 {
			return
		}
		t.bumpCompleted() // parentIdx just transitioned to completed_directory
		node = parentIdx
	}
}

func (t *Tree) bumpCompleted() {
	t.completed.Add(1)
	t.pollMu.Lock()
	t.pollCond.Broadcast()
	t.pollMu.Unlock()
}

func (t *Tree) markFinished() {
	if t.finished {
		return
	}
	t.finished = true
	close(t.done)
	t.pollMu.Lock()
	t.pollCond.Broadcast()
	t.pollMu.Unlock()
}

// Poll implements the polling interface: it returns the new
// completed-record count once it has advanced past prev, or false if the
// traversal has finished with nothing further to report. It blocks (via a
// condition variable, playing the role a futex-keyed wait does for the
// pool backend's internal wake-ups) until one of those becomes true.
func (t *Tree) Poll(prev uint32) (uint32, bool) {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()
	for {
		cur := t.completed.Load()
		if cur != prev {
			return cur, true
		}
		if t.finished {
			return cur, false
		}
		t.pollCond.Wait()
	}
}

// Done returns a channel closed exactly once, when the root's subtree is
// fully accounted for.
func (t *Tree) Done() <-chan struct{} {
	return t.done
}

// Finished reports whether the root has reached completed_directory.
func (t *Tree) Finished() bool {
	return t.finished
}
