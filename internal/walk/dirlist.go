package walk

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/duzproj/duz/internal/errs"
	"github.com/duzproj/duz/internal/record"
)

// ChildDir is a directory discovered during a synchronous listing that
// still needs its own subtree traversed.
type ChildDir struct {
	Index uint32
	Path  string
	Depth uint32
}

// ListDirectorySync performs one synchronous directory listing the way the
// pool backend does it: os.ReadDir for the (cheap, d_type-based) entries,
// then os.Lstat per entry for size/kind/device — never following symlinks.
// It appends a child record for every surviving
// entry, completes file-ish leaves inline, and returns the subdirectories
// left for the caller to schedule as further tasks. The directory's own
// FinishListing call is left to the caller, which knows when it has
// finished scheduling those subdirectories.
func ListDirectorySync(tree *Tree, dirIdx uint32, dirPath string, depth uint32, opts *Options, rootDev uint64) (children []ChildDir, actualCount uint32, err error) {
	entries, readErr := os.ReadDir(dirPath)
	if readErr != nil {
		tree.ErrorNode(dirIdx, errs.FromError(readErr))
		return nil, 0, readErr
	}

	if uint32(len(entries)) >= record.MaxDirCount {
		tree.ErrorNode(dirIdx, errs.TooManyResults)
		return nil, 0, errs.ErrTooManyResults
	}

	children = make([]ChildDir, 0, len(entries)/4+1)
	for _, d := range entries {
		childPath := filepath.Join(dirPath, d.Name())
		if opts.ShouldExclude(childPath) {
			continue
		}

		info, statErr := os.Lstat(childPath)
		if statErr != nil {
			childIdx, _ := tree.AppendChild(dirIdx, d.Name(), false)
			tree.ErrorNode(childIdx, errs.FromError(statErr))
			actualCount++
			continue
		}

		if info.IsDir() {
			childIdx, childFullPath := tree.AppendChild(dirIdx, d.Name(), true)
			actualCount++
			if opts.Xdev && !sameDevice(info, rootDev) {
				// Cross-device: count it, but never descend.
				tree.FinishListing(childIdx, 0)
				continue
			}
			// --max-depth only gates what the printer shows; totals still
			// need every directory beneath the cutoff fully traversed, so
			// descent continues regardless of depth here.
			children = append(children, ChildDir{Index: childIdx, Path: childFullPath, Depth: depth + 1})
			continue
		}

		childIdx, _ := tree.AppendChild(dirIdx, d.Name(), false)
		tree.CompleteFile(childIdx, uint64(info.Size()))
		actualCount++
	}

	return children, actualCount, nil
}

func sameDevice(info os.FileInfo, rootDev uint64) bool {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return true
	}
	return uint64(st.Dev) == rootDev
}

// RootDevice returns the device ID of path's own filesystem, used to seed
// the Xdev comparison.
func RootDevice(path string) (uint64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, nil
	}
	return uint64(st.Dev), nil
}
