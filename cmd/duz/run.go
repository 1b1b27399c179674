package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/duzproj/duz/internal/engine"
	"github.com/duzproj/duz/internal/pathutil"
	"github.com/duzproj/duz/internal/printer"
	"github.com/duzproj/duz/internal/progress"
	"github.com/duzproj/duz/internal/walk"
)

func init() {
	// Container-aware GOMAXPROCS, the way the default thread count below is
	// derived from; errors are non-fatal, matching the rest of the startup
	// path's "warn, don't fail" posture.
	_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...interface{}) {}))
}

func defaultWorkers() int {
	return int(math.Round(float64(runtime.GOMAXPROCS(0)) * 2.5))
}

var (
	flagBackend  string
	flagThreads  int
	flagXdev     bool
	flagVerbose  bool
	flagExclude  []string
	flagMaxDepth int
)

var rootCmd = &cobra.Command{
	Use:          "duz [options] [paths...]",
	Short:        "concurrent recursive directory-size reporter",
	SilenceUsage: true,
	RunE:         runDuz,
}

func init() {
	rootCmd.Flags().StringVar(&flagBackend, "backend", engine.BackendThreaded, "traversal backend: io_uring|threaded")
	rootCmd.Flags().IntVarP(&flagThreads, "threads", "j", defaultWorkers(), "worker thread count for the threaded backend")
	rootCmd.Flags().BoolVar(&flagXdev, "xdev", false, "don't descend into directories on other filesystems")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose traversal logging and a per-root timing summary")
	rootCmd.Flags().StringSliceVarP(&flagExclude, "exclude", "e", nil, "regex pattern to exclude (can be repeated)")
	rootCmd.Flags().IntVar(&flagMaxDepth, "max-depth", 0, "only print entries up to this many levels below each root; totals still cover the full tree (0 = unlimited)")
}

// invalidArgError marks an error that should exit 1, distinct from a
// propagated fatal traversal error.
type invalidArgError struct{ err error }

func (e invalidArgError) Error() string { return e.err.Error() }
func (e invalidArgError) Unwrap() error { return e.err }

// exitCodeFor maps a returned error to an exit code: 1 for an invalid
// argument, 2 for a propagated fatal traversal error.
func exitCodeFor(err error) int {
	var inv invalidArgError
	if errors.As(err, &inv) {
		return 1
	}
	return 2
}

func runDuz(cmd *cobra.Command, args []string) error {
	switch flagBackend {
	case engine.BackendThreaded, engine.BackendIOUring:
	default:
		return invalidArgError{fmt.Errorf("invalid --backend %q (expected io_uring|threaded)", flagBackend)}
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for i, p := range paths {
		paths[i] = pathutil.Normalize(p)
	}

	opts := walk.DefaultOptions().
		WithWorkers(flagThreads).
		WithXdev(flagXdev).
		WithVerbose(flagVerbose)
	if flagMaxDepth > 0 {
		opts.MaxDepth = flagMaxDepth
	}
	for _, pattern := range flagExclude {
		if err := opts.AddExcludePattern(pattern); err != nil {
			return invalidArgError{fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)}
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Roots traverse concurrently (each gets its own tree and its own
	// backend instance), but output is only produced once a root's own
	// traversal completes: every root's lines print only after that root
	// has finished, and roots print in argument order regardless of
	// completion order.
	trees := make([]*walk.Tree, len(paths))
	elapsed := make([]time.Duration, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, root := range paths {
		i, root := i, root
		g.Go(func() error {
			start := time.Now()
			tree, done, err := engine.Start(gctx, root, flagBackend, opts)
			if err != nil {
				return invalidArgError{err}
			}
			// A live status line only makes sense for a single root at a
			// time; with several roots running concurrently, competing
			// writers to the same terminal line would just garble it.
			if len(paths) == 1 && progress.IsTTY() {
				go progress.Watch(root, tree)
			}
			if err := <-done; err != nil {
				return err
			}
			trees[i] = tree
			elapsed[i] = time.Since(start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, root := range paths {
		if err := printer.Print(os.Stdout, os.Stderr, trees[i], opts.MaxDepth); err != nil {
			return err
		}
		if opts.Verbose {
			fmt.Fprintf(os.Stderr, "[ENGINE] %s: completed in %s\n", root, elapsed[i].Round(time.Millisecond))
		}
	}
	return nil
}
