package fsroot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AlanQuatermain/SimpleHTTPServer/srverr"
)

func mustRoot(t *testing.T) (*Root, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("nested\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	root, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	return root, dir
}

func TestResolveWithinRoot(t *testing.T) {
	root, _ := mustRoot(t)
	item, err := root.Resolve("/a.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Size != 6 {
		t.Fatalf("size = %d, want 6", item.Size)
	}
	if item.ETag == "" {
		t.Fatalf("expected a non-empty etag")
	}
}

func TestResolveNested(t *testing.T) {
	root, _ := mustRoot(t)
	item, err := root.Resolve("/sub/b.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Size != 7 {
		t.Fatalf("size = %d, want 7", item.Size)
	}
}

func TestResolveMissing(t *testing.T) {
	root, _ := mustRoot(t)
	_, err := root.Resolve("/nope.txt")
	se, ok := err.(*srverr.Error)
	if !ok || se.Status != 404 {
		t.Fatalf("err = %v, want 404 ResolutionError", err)
	}
}

func TestResolveEscapeViaDotDot(t *testing.T) {
	// P4: for any request-target, the resolved path lies within the
	// document root or the response status is 403.
	root, _ := mustRoot(t)
	_, err := root.Resolve("/../../../../../../etc/passwd")
	se, ok := err.(*srverr.Error)
	if !ok || se.Status != 403 {
		t.Fatalf("err = %v, want 403 ResolutionError", err)
	}
}

func TestResolveEscapeViaSymlink(t *testing.T) {
	root, dir := mustRoot(t)
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "escape")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	_, err := root.Resolve("/escape")
	se, ok := err.(*srverr.Error)
	if !ok || se.Status != 403 {
		t.Fatalf("err = %v, want 403 ResolutionError", err)
	}
}

func TestResolveSymlinkStayingInside(t *testing.T) {
	root, dir := mustRoot(t)
	link := filepath.Join(dir, "alias.txt")
	if err := os.Symlink(filepath.Join(dir, "a.txt"), link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	item, err := root.Resolve("/alias.txt")
	if err != nil {
		t.Fatalf("unexpected error for symlink staying inside root: %v", err)
	}
	if item.Size != 6 {
		t.Fatalf("size = %d, want 6", item.Size)
	}
}
