package poolengine

import (
	"math"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// waitState packs the pool's global wake condition into the 32 bits a Linux
// futex operates on: a canceled flag in the top bit, a monotonic timeline
// counter in the rest. Any worker that finds all queues empty futex-waits
// on this word using its last-observed timeline as the comparison value;
// queueing new work or canceling bumps the word and wakes every waiter.
type waitState struct {
	word uint32
}

const canceledBit = uint32(1) << 31

// snapshot returns the current word, for a worker about to block.
func (w *waitState) snapshot() uint32 {
	return atomic.LoadUint32(&w.word)
}

// canceled reports whether the cancellation bit is set in word.
func canceled(word uint32) bool {
	return word&canceledBit != 0
}

// bumpTimeline advances the timeline counter and wakes every futex waiter,
// called whenever a worker's queue transitions empty->non-empty.
func (w *waitState) bumpTimeline() {
	atomic.AddUint32(&w.word, 1) // bit31 is untouched by a +1 on the low bits short of 2^31 wraps
	w.wakeAll()
}

// cancel idempotently sets the canceled bit via compare-and-swap and
// wakes every waiter.
func (w *waitState) cancel() {
	for {
		old := atomic.LoadUint32(&w.word)
		if canceled(old) {
			break
		}
		if atomic.CompareAndSwapUint32(&w.word, old, old|canceledBit) {
			break
		}
	}
	w.wakeAll()
}

func (w *waitState) wakeAll() {
	_ = unix.Futex(&w.word, unix.FUTEX_WAKE, math.MaxInt32, nil, nil, 0)
}

// wait blocks until the word changes from observed, i.e. until more work is
// queued somewhere or the pool is canceled. It tolerates spurious wakeups —
// callers re-check their own queues and the canceled bit on return.
func (w *waitState) wait(observed uint32) {
	_ = unix.Futex(&w.word, unix.FUTEX_WAIT, observed, nil, nil, 0)
}
