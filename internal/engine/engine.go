// Package engine selects and drives one of the two interchangeable
// traversal backends over a single root path, handing back the
// completed tree for the printer.
package engine

import (
	"context"
	"fmt"

	"github.com/duzproj/duz/internal/poolengine"
	"github.com/duzproj/duz/internal/ringengine"
	"github.com/duzproj/duz/internal/walk"
)

// Backend names accepted by --backend.
const (
	BackendThreaded = "threaded"
	BackendIOUring  = "io_uring"
)

// Start constructs the tree for path and launches the selected backend in a
// goroutine, returning the tree immediately (before traversal completes) so
// a caller can poll it — e.g. to drive a live status line — while waiting
// on the returned channel for the traversal's outcome. The channel receives
// exactly one error (nil on success) and is then closed.
func Start(ctx context.Context, path string, backend string, opts *walk.Options) (*walk.Tree, <-chan error, error) {
	rootDev, err := walk.RootDevice(path)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: stat root %q: %w", path, err)
	}
	switch backend {
	case BackendThreaded, BackendIOUring:
	default:
		return nil, nil, fmt.Errorf("engine: unknown backend %q", backend)
	}

	tree := walk.NewTree(path)
	done := make(chan error, 1)

	go func() {
		defer close(done)
		switch backend {
		case BackendThreaded:
			pool := poolengine.New(tree, opts, rootDev)
			done <- pool.Run(ctx, walk.RootIndex, path)
		case BackendIOUring:
			eng, err := ringengine.New(tree, opts, rootDev)
			if err != nil {
				done <- err
				return
			}
			defer eng.Close()
			done <- eng.Run(walk.RootIndex, path)
		}
	}()

	return tree, done, nil
}
