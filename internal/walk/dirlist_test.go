package walk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/duzproj/duz/internal/record"
)

func TestListDirectorySyncFilesAndSubdir(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write a.txt: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}

	tree := NewTree(root)
	rootDev, err := RootDevice(root)
	if err != nil {
		t.Fatalf("RootDevice: %v", err)
	}
	opts := DefaultOptions()

	children, actualCount, err := ListDirectorySync(tree, RootIndex, root, 0, opts, rootDev)
	if err != nil {
		t.Fatalf("ListDirectorySync: %v", err)
	}
	if actualCount != 2 {
		t.Fatalf("actualCount = %d, want 2", actualCount)
	}
	if len(children) != 1 {
		t.Fatalf("len(children) = %d, want 1 (only the subdirectory)", len(children))
	}
	if children[0].Path != filepath.Join(root, "sub") {
		t.Fatalf("children[0].Path = %q, want %q", children[0].Path, filepath.Join(root, "sub"))
	}

	tree.FinishListing(RootIndex, actualCount)

	var fileIdx uint32
	for i := uint32(0); i < tree.Records.Len(); i++ {
		r := tree.Records.GetPtr(i)
		if r.Path == filepath.Join(root, "a.txt") {
			fileIdx = i
		}
	}
	if tree.Records.GetPtr(fileIdx).State().Kind != record.KindCompletedFile {
		t.Fatalf("a.txt state = %+v, want completed_file", tree.Records.GetPtr(fileIdx).State())
	}
}

func TestListDirectoryExcludePattern(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "keep.txt"), nil, 0o644); err != nil {
		t.Fatalf("write keep.txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "skip.log"), nil, 0o644); err != nil {
		t.Fatalf("write skip.log: %v", err)
	}

	tree := NewTree(root)
	rootDev, _ := RootDevice(root)
	opts := DefaultOptions()
	if err := opts.AddExcludePattern(`\.log$`); err != nil {
		t.Fatalf("AddExcludePattern: %v", err)
	}

	_, actualCount, err := ListDirectorySync(tree, RootIndex, root, 0, opts, rootDev)
	if err != nil {
		t.Fatalf("ListDirectorySync: %v", err)
	}
	if actualCount != 1 {
		t.Fatalf("actualCount = %d, want 1 (skip.log excluded)", actualCount)
	}
}

func TestListDirectoryMissingPathErrors(t *testing.T) {
	tree := NewTree(".")
	opts := DefaultOptions()
	_, _, err := ListDirectorySync(tree, RootIndex, "/nonexistent/duz/test/path", 0, opts, 0)
	if err == nil {
		t.Fatalf("ListDirectorySync on a missing path returned nil error")
	}
	if tree.Records.GetPtr(RootIndex).State().Kind != record.KindErrored {
		t.Fatalf("root state = %+v, want errored", tree.Records.GetPtr(RootIndex).State())
	}
}
