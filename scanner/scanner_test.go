package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/djherbis/times"

	"tripline/fco"
	"tripline/hasher"
	"tripline/logger"
)

func init() {
	logger.Init("error")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func buildTree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "z"), "z")
	writeFile(t, filepath.Join(root, "a", "c", "d"), "d")
	writeFile(t, filepath.Join(root, "a", "b"), "b")
	writeFile(t, filepath.Join(root, "a-b"), "dash")
	return root
}

func collect(t *testing.T, src Source, req Request) ([]string, []error) {
	t.Helper()
	var names []string
	var errs []error
	err := src.Walk(context.Background(), req, func(obj *fco.Object, err error) error {
		if err != nil {
			errs = append(errs, err)
		}
		if obj != nil {
			names = append(names, obj.Name.String())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return names, errs
}

func TestWalkVisitsInNameOrder(t *testing.T) {
	root := buildTree(t)
	src := NewFS(root)
	names, errs := collect(t, src, Request{Start: fco.ParsePath("/"), Recurse: -1, Props: fco.NewVector(fco.PropFileType)})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := []string{"/", "/a", "/a/b", "/a/c", "/a/c/d", "/a-b", "/z"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, names[i], want[i])
		}
		if i > 0 && fco.ParsePath(names[i-1]).Compare(fco.ParsePath(names[i])) >= 0 {
			t.Fatalf("walk order disagrees with name order at %s", names[i])
		}
	}
}

func TestWalkRecursionDepth(t *testing.T) {
	root := buildTree(t)
	src := NewFS(root)
	props := fco.NewVector(fco.PropFileType)

	names, _ := collect(t, src, Request{Start: fco.ParsePath("/a"), Recurse: 0, Props: props})
	if len(names) != 1 || names[0] != "/a" {
		t.Fatalf("depth 0 visited %v", names)
	}
	names, _ = collect(t, src, Request{Start: fco.ParsePath("/a"), Recurse: 1, Props: props})
	if len(names) != 3 || names[2] != "/a/c" {
		t.Fatalf("depth 1 visited %v", names)
	}
}

func TestWalkSkipPrunesSubtree(t *testing.T) {
	root := buildTree(t)
	src := NewFS(root)
	stop := fco.ParsePath("/a/c")
	names, _ := collect(t, src, Request{
		Start:   fco.ParsePath("/a"),
		Recurse: -1,
		Props:   fco.NewVector(fco.PropFileType),
		Skip:    func(n fco.Name) bool { return n.HasPrefix(stop) },
	})
	if len(names) != 2 || names[1] != "/a/b" {
		t.Fatalf("skip not honored: %v", names)
	}
}

func TestWalkMissingStartIsNonFatal(t *testing.T) {
	src := NewFS(t.TempDir())
	names, errs := collect(t, src, Request{Start: fco.ParsePath("/missing"), Recurse: -1, Props: fco.AllProps})
	if len(names) != 0 || len(errs) != 1 {
		t.Fatalf("names=%v errs=%v", names, errs)
	}
	var oe *ObjectError
	if !errors.As(errs[0], &oe) || !errors.Is(errs[0], fs.ErrNotExist) {
		t.Fatalf("unexpected error %v", errs[0])
	}
}

func TestWalkDoesNotCrossMountPoints(t *testing.T) {
	root := buildTree(t)
	src := NewFS(root)
	src.loadMounts = func() ([]string, error) {
		return []string{filepath.Join(root, "a", "c")}, nil
	}
	req := Request{Start: fco.ParsePath("/"), Recurse: -1, Props: fco.NewVector(fco.PropFileType)}
	names, _ := collect(t, src, req)
	for _, n := range names {
		if n == "/a/c/d" {
			t.Fatal("walk descended into a mount point")
		}
	}
	if names[3] != "/a/c" {
		t.Fatalf("mount point itself must be reported, got %v", names)
	}

	req.CrossFileSystems = true
	names, _ = collect(t, NewFS(root), req)
	if len(names) != 7 {
		t.Fatalf("cross filesystem walk visited %v", names)
	}
}

func TestWalkCancellation(t *testing.T) {
	root := buildTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFS(root).Walk(ctx, Request{Start: fco.ParsePath("/"), Recurse: -1}, func(*fco.Object, error) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestCaptureProperties(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "f"), "hello world")
	if err := os.Symlink("f", filepath.Join(root, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	src := NewFS(root)
	want := fco.NewVector(fco.PropFileType, fco.PropSize, fco.PropSHA256, fco.PropInode, fco.PropLinkTarget, fco.PropMode)

	obj, err := src.Capture(context.Background(), fco.ParsePath("/f"), want, CaptureOptions{ReadMode: hasher.ModeStream})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if obj.Type() != fco.TypeFile {
		t.Fatalf("type = %s", obj.Type())
	}
	if v, _ := obj.Props.Get(fco.PropSize); v.(fco.IntValue) != 11 {
		t.Fatalf("size = %v", v)
	}
	v, _ := obj.Props.Get(fco.PropSHA256)
	if hasher.Hex(v.(fco.BytesValue)) != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Fatalf("sha256 = %s", v)
	}
	if obj.Props.Valid().Has(fco.PropLinkTarget) {
		t.Fatal("regular file has a link target")
	}
	if obj.Props.Valid().Has(fco.PropMTime) {
		t.Fatal("capture returned properties that were not requested")
	}

	link, err := src.Capture(context.Background(), fco.ParsePath("/link"), want, CaptureOptions{})
	if err != nil {
		t.Fatalf("capture link: %v", err)
	}
	if link.Type() != fco.TypeSymlink {
		t.Fatalf("symlink was followed: %s", link.Type())
	}
	if v, _ := link.Props.Get(fco.PropLinkTarget); v.(fco.StringValue) != "f" {
		t.Fatalf("link target = %v", v)
	}
	if link.Props.Valid().Has(fco.PropSHA256) {
		t.Fatal("symlink content was hashed")
	}
}

func TestCaptureContentType(t *testing.T) {
	root := t.TempDir()
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	if err := os.WriteFile(filepath.Join(root, "img"), png, 0o644); err != nil {
		t.Fatal(err)
	}
	obj, err := NewFS(root).Capture(context.Background(), fco.ParsePath("/img"), fco.NewVector(fco.PropContentType), CaptureOptions{})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if v, _ := obj.Props.Get(fco.PropContentType); v.(fco.StringValue) != "image/png" {
		t.Fatalf("content type = %v", v)
	}
}

func TestEraseFootprintsRestoresTimes(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f")
	writeFile(t, path, "content that will be hashed")
	old := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	_, err := NewFS(root).Capture(context.Background(), fco.ParsePath("/f"),
		fco.NewVector(fco.PropSHA256, fco.PropMD5), CaptureOptions{EraseFootprints: true})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	ts, err := times.Lstat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !ts.AccessTime().Equal(old) || !ts.ModTime().Equal(old) {
		t.Fatalf("times not restored: atime=%s mtime=%s", ts.AccessTime(), ts.ModTime())
	}
}

func TestUnreadableFileIsPartialCapture(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root := t.TempDir()
	path := filepath.Join(root, "secret")
	writeFile(t, path, "secret")
	if err := os.Chmod(path, 0); err != nil {
		t.Fatal(err)
	}
	obj, err := NewFS(root).Capture(context.Background(), fco.ParsePath("/secret"),
		fco.NewVector(fco.PropSize, fco.PropSHA256), CaptureOptions{})
	if err == nil || !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if !obj.Props.Valid().Has(fco.PropSize) || obj.Props.Valid().Has(fco.PropSHA256) {
		t.Fatalf("unexpected properties %s", obj.Props.Valid())
	}
}

func TestXattrDigestIsOrderIndependent(t *testing.T) {
	a := xattrDigest(map[string][]byte{"user.a": []byte("1"), "user.b": []byte("2")})
	b := xattrDigest(map[string][]byte{"user.b": []byte("2"), "user.a": []byte("1")})
	if a != b || a == "" {
		t.Fatalf("digests differ: %s %s", a, b)
	}
	if xattrDigest(nil) != "" {
		t.Fatal("no attributes must digest to empty")
	}
}
