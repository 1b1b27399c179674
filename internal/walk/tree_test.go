package walk

import (
	"testing"

	"github.com/duzproj/duz/internal/errs"
	"github.com/duzproj/duz/internal/record"
)

func TestTwoFilesRoot(t *testing.T) {
	tree := NewTree(".")
	a, _ := tree.AppendChild(RootIndex, "a", false)
	b, _ := tree.AppendChild(RootIndex, "b", false)
	tree.FinishListing(RootIndex, 2)

	tree.CompleteFile(a, 5)
	tree.CompleteFile(b, 7)

	waitDone(t, tree)

	root := tree.Records.GetPtr(RootIndex)
	if root.Size() != 12 {
		t.Fatalf("root.Size() = %d, want 12", root.Size())
	}
	if root.State().Kind != record.KindCompletedDirectory {
		t.Fatalf("root state = %+v, want completed_directory", root.State())
	}
}

func TestNestedDirectory(t *testing.T) {
	tree := NewTree(".")
	d, _ := tree.AppendChild(RootIndex, "d", true)
	y, _ := tree.AppendChild(RootIndex, "y", false)
	tree.FinishListing(RootIndex, 2)

	x, _ := tree.AppendChild(d, "x", false)
	tree.FinishListing(d, 1)

	tree.CompleteFile(x, 3)
	tree.CompleteFile(y, 4)

	waitDone(t, tree)

	if tree.Records.Len() != 4 {
		t.Fatalf("record count = %d, want 4", tree.Records.Len())
	}
	root := tree.Records.GetPtr(RootIndex)
	if root.Size() != 7 {
		t.Fatalf("root.Size() = %d, want 7", root.Size())
	}
	dRec := tree.Records.GetPtr(d)
	if dRec.Size() != 3 {
		t.Fatalf("d.Size() = %d, want 3", dRec.Size())
	}
	if dRec.State().Kind != record.KindCompletedDirectory {
		t.Fatalf("d state = %+v, want completed_directory", dRec.State())
	}
}

func TestEmptyRoot(t *testing.T) {
	tree := NewTree(".")
	tree.FinishListing(RootIndex, 0)

	waitDone(t, tree)

	if tree.Records.Len() != 1 {
		t.Fatalf("record count = %d, want 1", tree.Records.Len())
	}
	root := tree.Records.GetPtr(RootIndex)
	if root.Size() != 0 || root.State().Kind != record.KindCompletedDirectory {
		t.Fatalf("root = size %d state %+v, want size 0 completed_directory", root.Size(), root.State())
	}
}

func TestSingleInaccessibleEntry(t *testing.T) {
	tree := NewTree(".")
	restricted, _ := tree.AppendChild(RootIndex, "restricted", true)
	tree.FinishListing(RootIndex, 1)

	tree.ErrorNode(restricted, errs.AccessDenied)

	waitDone(t, tree)

	root := tree.Records.GetPtr(RootIndex)
	if root.Size() != 0 {
		t.Fatalf("root.Size() = %d, want 0", root.Size())
	}
	if root.State().Kind != record.KindCompletedDirectory {
		t.Fatalf("root state = %+v, want completed_directory", root.State())
	}
	rRec := tree.Records.GetPtr(restricted)
	if rRec.State().Kind != record.KindErrored || rRec.State().Error != errs.AccessDenied {
		t.Fatalf("restricted state = %+v, want errored(AccessDenied)", rRec.State())
	}
}

func TestDirectoryOpenFailureStillDecrementsParent(t *testing.T) {
	tree := NewTree(".")
	broken, _ := tree.AppendChild(RootIndex, "broken", true)
	sibling, _ := tree.AppendChild(RootIndex, "sibling", false)
	tree.FinishListing(RootIndex, 2)

	tree.ErrorNode(broken, errs.AccessDenied)
	tree.CompleteFile(sibling, 1)

	waitDone(t, tree)

	root := tree.Records.GetPtr(RootIndex)
	if root.Size() != 1 {
		t.Fatalf("root.Size() = %d, want 1", root.Size())
	}
}

func TestLargeFileNoOverflow(t *testing.T) {
	tree := NewTree(".")
	big, _ := tree.AppendChild(RootIndex, "big", false)
	tree.FinishListing(RootIndex, 1)

	const size = uint64(1) << 40
	tree.CompleteFile(big, size)

	waitDone(t, tree)

	root := tree.Records.GetPtr(RootIndex)
	if root.Size() != size {
		t.Fatalf("root.Size() = %d, want %d", root.Size(), size)
	}
}

func TestTenLevelDeepChain(t *testing.T) {
	tree := NewTree(".")
	dirIdx := uint32(RootIndex)
	var dirIndices []uint32
	for i := 0; i < 10; i++ {
		child, _ := tree.AppendChild(dirIdx, "a", true)
		tree.FinishListing(dirIdx, 1)
		dirIndices = append(dirIndices, dirIdx)
		dirIdx = child
	}
	leaf, _ := tree.AppendChild(dirIdx, "leaf", false)
	tree.FinishListing(dirIdx, 1)
	tree.CompleteFile(leaf, 1)

	waitDone(t, tree)

	for _, idx := range append(dirIndices, dirIdx) {
		r := tree.Records.GetPtr(idx)
		if r.Size() != 1 {
			t.Fatalf("ancestor %d size = %d, want 1", idx, r.Size())
		}
		if r.State().Kind != record.KindCompletedDirectory {
			t.Fatalf("ancestor %d state = %+v, want completed_directory", idx, r.State())
		}
	}
}

func TestPollNeverGoesBackwards(t *testing.T) {
	tree := NewTree(".")
	a, _ := tree.AppendChild(RootIndex, "a", false)
	tree.FinishListing(RootIndex, 1)

	prev := uint32(0)
	go func() {
		tree.CompleteFile(a, 1)
	}()

	for {
		cur, more := tree.Poll(prev)
		if cur < prev {
			t.Fatalf("Poll returned %d after previously returning %d", cur, prev)
		}
		prev = cur
		if !more {
			break
		}
	}
}

func waitDone(t *testing.T, tree *Tree) {
	t.Helper()
	select {
	case <-tree.Done():
	default:
		if !tree.Finished() {
			t.Fatalf("traversal did not reach completed_directory synchronously")
		}
	}
}
