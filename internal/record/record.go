// Package record defines the node record shared by both
// traversal backends: a parent index, an owned path, an accumulated size,
// and a packed state word whose numeric value IS the directory's
// remaining-children count — chosen so that a single atomic fetch_sub both
// decrements the count and, on reaching zero, completes the directory.
package record

import (
	"sync/atomic"

	"github.com/duzproj/duz/internal/errs"
)

// notADirBit is the poison marker: clear for every directory state (whose
// raw numeric value is its remaining-children count), set for every file or
// errored state. A fetch_sub that lands on a value with this bit set means
// finish_children was called on something that was never a directory — a
// programming error, which callers in internal/walk panic on.
const notADirBit = uint32(1) << 31

// Non-directory states are tagged in the low two bits once notADirBit is set.
const (
	tagIncompleteFile = uint32(0)
	tagCompletedFile  = uint32(1)
	tagErrored        = uint32(2)
)

const errorKindShift = 2

// MaxDirCount is the sentinel written into a directory's state before its
// listing completes: large enough that no real directory's fan-out can
// collide with it, small enough to leave notADirBit untouched.
const MaxDirCount = notADirBit - 1

// Kind distinguishes the five logical state variants a record can be in.
type Kind int

const (
	KindIncompleteDirectory Kind = iota
	KindCompletedDirectory
	KindIncompleteFile
	KindCompletedFile
	KindErrored
)

// State is the unpacked view of a record's unpack-state word.
type State struct {
	Kind      Kind
	Remaining uint32   // valid when Kind == KindIncompleteDirectory
	Error     errs.Kind // valid when Kind == KindErrored
}

// PackIncompleteDirectory packs a directory awaiting n more children.
// n must be in [1, MaxDirCount]. PackIncompleteDirectory(0) would collide
// with the completed-directory encoding, so callers use PackCompletedDirectory
// for that case instead.
func PackIncompleteDirectory(n uint32) uint32 {
	return n
}

// PackCompletedDirectory is the zero word: reached either by a directory
// that was empty to begin with, or by the last finish_children decrement
// landing on zero. Both paths alias the same numeric state.
func PackCompletedDirectory() uint32 {
	return 0
}

// PackIncompleteFile packs a file whose statx is still outstanding.
func PackIncompleteFile() uint32 {
	return notADirBit | tagIncompleteFile
}

// PackCompletedFile packs a file whose size has been set.
func PackCompletedFile() uint32 {
	return notADirBit | tagCompletedFile
}

// PackErrored packs a terminal error state carrying an error kind.
func PackErrored(kind errs.Kind) uint32 {
	return notADirBit | tagErrored | (uint32(kind) << errorKindShift)
}

// Unpack decodes a raw packed word into its logical state.
func Unpack(w uint32) State {
	if w&notADirBit == 0 {
		if w == 0 {
			return State{Kind: KindCompletedDirectory}
		}
		return State{Kind: KindIncompleteDirectory, Remaining: w}
	}
	switch w & 0b11 {
	case tagIncompleteFile:
		return State{Kind: KindIncompleteFile}
	case tagCompletedFile:
		return State{Kind: KindCompletedFile}
	default:
		return State{Kind: KindErrored, Error: errs.Kind((w &^ notADirBit) >> errorKindShift)}
	}
}

// Record is one visited filesystem entry. No Record is ever destroyed or
// relocated once appended: the append list (internal/store) hands out
// stable pointers, and the Parent field back-references by index rather
// than by pointer so the cascade never has to chase relocatable memory.
//
// size and state are plain uint64/uint32 mutated exclusively through the
// package-level sync/atomic functions below, rather than the typed
// atomic.Uint32/Uint64 wrappers: a freshly-built Record is constructed by
// value and copied once into the append list's backing array before it is
// ever published to another goroutine, and the typed wrappers' embedded
// no-copy marker would flag that one sanctioned copy as a bug.
type Record struct {
	Parent uint32
	Path   string // nul-free; owned by the traversal's string arena, or a static literal for the root
	Depth  uint32 // 0 for the root, parent's Depth+1 for every other record

	size  uint64
	state uint32
}

// Init sets the record's initial packed state. Must be called exactly once,
// before the record is published to any other goroutine (i.e. before its
// index is handed out by the append list).
func (r *Record) Init(packed uint32) {
	r.state = packed
}

// AddSize atomically adds delta to the accumulated size. Used both for a
// file's one-time size write (delta = the file's byte length) and for a
// parent absorbing a completed child's size during the cascade.
func (r *Record) AddSize(delta uint64) {
	atomic.AddUint64(&r.size, delta)
}

// Size returns the accumulated size. Only meaningful to read once the
// record's state has reached a terminal value (the acquire-release pairing
// on FinishChildren/State is what makes that safe).
func (r *Record) Size() uint64 {
	return atomic.LoadUint64(&r.size)
}

// State loads the current packed state with acquire semantics.
func (r *Record) State() State {
	return Unpack(atomic.LoadUint32(&r.state))
}

// SetState overwrites the packed state directly. Used for the file/errored
// transitions, which are never subject to concurrent writers (a file record
// has exactly one writer: the completion that stats it).
func (r *Record) SetState(packed uint32) {
	atomic.StoreUint32(&r.state, packed)
}

// FinishChildren performs the atomic fetch_sub(delta) at the heart of the
// propagation cascade and returns the new value post-subtract, so the
// caller can detect the transition to zero (completed_directory) in the
// same instruction that performed the decrement.
//
// Calling this on a non-directory state is a programming error: the
// resulting word will have notADirBit set, which FinishChildren reports
// back via the ok return so callers can assert rather than silently
// corrupting the word.
func (r *Record) FinishChildren(delta uint32) (newValue uint32, ok bool) {
	v := atomic.AddUint32(&r.state, ^uint32(delta-1)) // two's-complement fetch_sub
	return v, v&notADirBit == 0
}
