// Package printer renders a completed traversal's records du-style: one
// line per non-errored record in creation order, errored
// records logged to stderr and skipped, broken-pipe on stdout ending output
// for that root silently.
package printer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/duzproj/duz/internal/record"
	"github.com/duzproj/duz/internal/sizefmt"
	"github.com/duzproj/duz/internal/walk"
)

// Print writes every completed record of tree to out, in creation order,
// and logs errored records to errOut. It returns nil on a clean run, or the
// first non-broken-pipe write error encountered (a broken pipe ends output
// for this root silently).
//
// maxDepth is a pure display cutoff (0 means unlimited): directories deeper
// than maxDepth are still fully traversed and their sizes still cascade
// into every ancestor's total, they just aren't given their own line, the
// same way `du -d` summarizes without dropping coverage.
func Print(out io.Writer, errOut io.Writer, tree *walk.Tree, maxDepth int) error {
	w := bufio.NewWriter(out)
	defer w.Flush()

	n := tree.Records.Len()
	for i := uint32(0); i < n; i++ {
		r := tree.Records.GetPtr(i)
		st := r.State()

		switch st.Kind {
		case record.KindErrored:
			fmt.Fprintf(errOut, "%s: %s\n", r.Path, st.Error)
			continue
		case record.KindCompletedFile:
			if maxDepth > 0 && r.Depth > uint32(maxDepth) {
				continue
			}
			if err := writeLine(w, r.Path, r.Size(), false); err != nil {
				if isBrokenPipe(err) {
					return nil
				}
				return err
			}
		case record.KindCompletedDirectory:
			if maxDepth > 0 && r.Depth > uint32(maxDepth) {
				continue
			}
			if err := writeLine(w, r.Path, r.Size(), true); err != nil {
				if isBrokenPipe(err) {
					return nil
				}
				return err
			}
		}
	}
	return w.Flush()
}

func writeLine(w *bufio.Writer, path string, size uint64, isDir bool) error {
	suffix := ""
	if isDir {
		suffix = "/"
	}
	_, err := fmt.Fprintf(w, "%s  %s%s\n", sizefmt.Bytes(size), path, suffix)
	if err != nil {
		return err
	}
	return w.Flush() // surface a broken pipe immediately rather than buffering past it
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}
