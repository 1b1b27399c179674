package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/duzproj/duz/internal/errs"
	"github.com/duzproj/duz/internal/walk"
)

func TestPrintSkipsErroredAndLogsToStderr(t *testing.T) {
	tree := walk.NewTree(".")
	ok, _ := tree.AppendChild(walk.RootIndex, "ok", false)
	bad, _ := tree.AppendChild(walk.RootIndex, "bad", false)
	tree.FinishListing(walk.RootIndex, 2)

	tree.CompleteFile(ok, 10)
	tree.ErrorNode(bad, errs.AccessDenied)

	var out, errOut bytes.Buffer
	if err := Print(&out, &errOut, tree, 0); err != nil {
		t.Fatalf("Print() error = %v", err)
	}

	if !strings.Contains(out.String(), "ok") {
		t.Fatalf("stdout missing successful entry: %q", out.String())
	}
	if strings.Contains(out.String(), "bad") {
		t.Fatalf("stdout unexpectedly contains errored entry: %q", out.String())
	}
	if !strings.Contains(errOut.String(), "bad: AccessDenied") {
		t.Fatalf("stderr missing error log line: %q", errOut.String())
	}
}

func TestPrintDirectoryGetsTrailingSlash(t *testing.T) {
	tree := walk.NewTree(".")
	d, _ := tree.AppendChild(walk.RootIndex, "d", true)
	tree.FinishListing(walk.RootIndex, 1)
	tree.FinishListing(d, 0)

	var out, errOut bytes.Buffer
	if err := Print(&out, &errOut, tree, 0); err != nil {
		t.Fatalf("Print() error = %v", err)
	}

	if !strings.Contains(out.String(), "d/") {
		t.Fatalf("stdout missing trailing slash on directory entry: %q", out.String())
	}
}

func TestPrintMaxDepthHidesDeepEntriesButKeepsTotals(t *testing.T) {
	tree := walk.NewTree(".")
	sub, _ := tree.AppendChild(walk.RootIndex, "sub", true)
	leaf, _ := tree.AppendChild(sub, "leaf.txt", false)
	tree.FinishListing(walk.RootIndex, 1)

	tree.CompleteFile(leaf, 100)
	tree.FinishListing(sub, 1)

	var out, errOut bytes.Buffer
	if err := Print(&out, &errOut, tree, 1); err != nil {
		t.Fatalf("Print() error = %v", err)
	}

	if !strings.Contains(out.String(), "sub/") {
		t.Fatalf("stdout missing depth-1 directory: %q", out.String())
	}
	if strings.Contains(out.String(), "leaf.txt") {
		t.Fatalf("stdout unexpectedly contains depth-2 entry past max-depth: %q", out.String())
	}
	if got := tree.Records.GetPtr(sub).Size(); got != 100 {
		t.Fatalf("sub directory size = %d, want 100 (max-depth must not affect totals)", got)
	}
}
