// Package poolengine implements the thread-pool traversal backend:
// N OS threads, each with its own growable task ring, stealing from each
// other's rings when idle, blocking on a shared futex-keyed wait state
// when there's nothing anywhere left to do.
package poolengine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/duzproj/duz/internal/errs"
	"github.com/duzproj/duz/internal/walk"
)

// runner is one worker's queue plus the bookkeeping the worker owns alone.
type runner struct {
	id   int
	ring *taskRing
}

// Pool drives a traversal with a fixed set of worker goroutines.
type Pool struct {
	tree    *walk.Tree
	opts    *walk.Options
	rootDev uint64

	runners []*runner
	next    uint32 // round-robin cursor for externally-submitted tasks
	ws      waitState

	wg sync.WaitGroup
}

// New creates a pool sized opts.Workers, capped at 64.
func New(tree *walk.Tree, opts *walk.Options, rootDev uint64) *Pool {
	n := opts.Workers
	if n < 1 {
		n = 1
	}
	if n > 64 {
		n = 64
	}

	p := &Pool{tree: tree, opts: opts, rootDev: rootDev}

	// Allocate all runner rings before any worker goroutine is spawned, so
	// nothing can race a worker that hasn't started yet.
	p.runners = make([]*runner, n)
	for i := range p.runners {
		p.runners[i] = &runner{id: i, ring: newTaskRing(256)}
	}

	return p
}

// Run seeds the pool with the root directory and blocks until the
// traversal finishes or ctx is canceled.
func (p *Pool) Run(ctx context.Context, rootIdx uint32, rootPath string) error {
	raiseFDLimit(p.opts.Verbose)

	for _, r := range p.runners {
		p.wg.Add(1)
		go p.workerLoop(r)
	}

	// The pool's own termination rule: once the root reaches
	// completed_directory, cancel so every worker goroutine returns.
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-p.tree.Done():
			p.cancel()
		case <-ctx.Done():
			p.cancel()
		case <-stopWatch:
		}
	}()

	p.schedule(task{dirIdx: rootIdx, path: rootPath, depth: 0}, nil)

	p.wg.Wait()
	close(stopWatch)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// schedule pushes to the calling worker's own ring when called from
// inside a worker, and round-robins across all rings when called from
// outside (the initial seed).
func (p *Pool) schedule(t task, from *runner) {
	var target *runner
	if from != nil {
		target = from
	} else {
		idx := atomic.AddUint32(&p.next, 1) % uint32(len(p.runners))
		target = p.runners[idx]
	}
	if target.ring.pushBack(t) {
		p.ws.bumpTimeline()
	}
}

func (p *Pool) workerLoop(r *runner) {
	defer p.wg.Done()

	if p.opts.Verbose {
		fmt.Fprintf(os.Stderr, "[W%d] started\n", r.id)
	}
	defer func() {
		if p.opts.Verbose {
			fmt.Fprintf(os.Stderr, "[W%d] exiting\n", r.id)
		}
	}()

	for {
		if r.ring.isCanceled() {
			return
		}

		if t, ok, _ := r.ring.popFrontTry(); ok {
			p.process(t, r)
			continue
		}

		if t, ok := p.steal(r); ok {
			if p.opts.Verbose {
				fmt.Fprintf(os.Stderr, "[W%d] stole dir=%s\n", r.id, t.path)
			}
			p.process(t, r)
			continue
		}

		observed := p.ws.snapshot()
		if canceled(observed) {
			return
		}
		p.ws.wait(observed)
	}
}

// steal walks every runner in order, LIFO-stealing from the back of the
// first non-empty one it finds that isn't itself.
func (p *Pool) steal(self *runner) (task, bool) {
	for _, other := range p.runners {
		if other == self {
			continue
		}
		if t, ok := other.ring.popBack(); ok {
			return t, true
		}
	}
	return task{}, false
}

func (p *Pool) process(t task, r *runner) {
	children, actualCount, err := walk.ListDirectorySync(p.tree, t.dirIdx, t.path, t.depth, p.opts, p.rootDev)
	if err != nil {
		// The directory itself was already marked errored by
		// ListDirectorySync (read failure or TooManyResults); no
		// FinishListing call is needed or safe.
		return
	}

	for _, c := range children {
		p.schedule(task{dirIdx: c.Index, path: c.Path, depth: c.Depth}, r)
	}

	p.tree.FinishListing(t.dirIdx, actualCount)
}

// cancel sets the global wait-state's canceled bit, then clears and
// cancels every runner's ring, then wakes every futex waiter — idempotent
// and safe to call from any goroutine.
func (p *Pool) cancel() {
	p.ws.cancel()
	for _, r := range p.runners {
		r.ring.cancel()
	}
	p.ws.wakeAll()
}

// raiseFDLimit bumps RLIMIT_NOFILE to its hard limit at startup: a
// failure is logged when verbose and otherwise ignored, never fatal.
func raiseFDLimit(verbose bool) {
	if err := doRaiseFDLimit(); err != nil && verbose {
		fmt.Fprintf(os.Stderr, "[POOL] failed to raise RLIMIT_NOFILE: %v\n", err)
	}
}

// Kind re-exported so callers constructing errors don't need the errs
// package directly for the common case.
type Kind = errs.Kind
