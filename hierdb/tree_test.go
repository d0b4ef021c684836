package hierdb

import (
	"io/fs"
	"sort"
	"testing"

	"tripline/fco"
	"tripline/logger"
)

func init() {
	logger.Init("error")
}

func obj(path string, size int64) *fco.Object {
	o := fco.NewObject(fco.ParsePath(path))
	o.Props.Set(fco.PropSize, fco.IntValue(size))
	return o
}

func names(objs []*fco.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Name.String()
	}
	return out
}

func TestIterationFollowsNameOrder(t *testing.T) {
	paths := []string{"/etc/passwd", "/a", "/etc", "/etc-old", "/etc/hosts", "/a/b/c", "/", "/z"}
	tree := NewTree()
	for i, p := range paths {
		tree.Put(obj(p, int64(i)))
	}
	if tree.Len() != len(paths) {
		t.Fatalf("len = %d", tree.Len())
	}

	want := make([]fco.Name, len(paths))
	for i, p := range paths {
		want[i] = fco.ParsePath(p)
	}
	sort.Slice(want, func(i, j int) bool { return want[i].Compare(want[j]) < 0 })

	got := tree.Objects()
	if len(got) != len(want) {
		t.Fatalf("got %d objects", len(got))
	}
	for i := range want {
		if !got[i].Name.Equal(want[i]) {
			t.Fatalf("position %d: got %s want %s (%v)", i, got[i].Name, want[i], names(got))
		}
	}
}

func TestPutReplacesWithoutGrowing(t *testing.T) {
	tree := NewTree()
	tree.Put(obj("/f", 1))
	tree.Put(obj("/f", 2))
	if tree.Len() != 1 {
		t.Fatalf("len = %d", tree.Len())
	}
	o, ok := tree.Lookup(fco.ParsePath("/f"))
	if !ok {
		t.Fatal("missing /f")
	}
	if v, _ := o.Props.Get(fco.PropSize); v != fco.IntValue(2) {
		t.Fatalf("size = %v", v)
	}
}

func TestRemoveObjectPrunesEmptyAncestors(t *testing.T) {
	tree := NewTree()
	tree.Put(obj("/a/b/c/d", 1))
	tree.Put(obj("/a/x", 1))
	tree.MarkSpec(fco.ParsePath("/a/b"), "rule")

	if !tree.RemoveObject(fco.ParsePath("/a/b/c/d")) {
		t.Fatal("remove failed")
	}
	if _, ok := tree.Find(fco.ParsePath("/a/b/c")); ok {
		t.Fatal("empty /a/b/c should be pruned")
	}
	if n, ok := tree.Find(fco.ParsePath("/a/b")); !ok || n.Spec() != "rule" {
		t.Fatal("start point mark must keep /a/b")
	}
	if tree.RemoveObject(fco.ParsePath("/a/b/c/d")) {
		t.Fatal("second remove should report false")
	}
	tree.UnmarkSpec(fco.ParsePath("/a/b"))
	if _, ok := tree.Find(fco.ParsePath("/a/b")); ok {
		t.Fatal("/a/b should be pruned once unmarked")
	}
	if tree.Len() != 1 {
		t.Fatalf("len = %d", tree.Len())
	}
}

func TestRemoveSubtree(t *testing.T) {
	tree := NewTree()
	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/ab", "/b"} {
		tree.Put(obj(p, 0))
	}
	if !tree.RemoveSubtree(fco.ParsePath("/a")) {
		t.Fatal("remove subtree failed")
	}
	got := names(tree.Objects())
	if len(got) != 2 || got[0] != "/ab" || got[1] != "/b" {
		t.Fatalf("remaining = %v", got)
	}
	if tree.Len() != 2 {
		t.Fatalf("len = %d", tree.Len())
	}
	tree.RemoveSubtree(fco.Name{})
	if tree.Len() != 0 || len(tree.Objects()) != 0 {
		t.Fatal("root removal should empty the tree")
	}
}

func TestWalkSkipDir(t *testing.T) {
	tree := NewTree()
	for _, p := range []string{"/a", "/a/b", "/a/b/c", "/d"} {
		tree.Put(obj(p, 0))
	}
	var seen []string
	err := tree.Walk(func(n *Node) error {
		if n.Object() == nil {
			return nil
		}
		seen = append(seen, n.Name().String())
		if n.Name().String() == "/a/b" {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(seen) != 3 || seen[2] != "/d" {
		t.Fatalf("seen = %v", seen)
	}
	under := names(tree.ObjectsUnder(fco.ParsePath("/a/b")))
	if len(under) != 2 || under[1] != "/a/b/c" {
		t.Fatalf("under = %v", under)
	}
}

func TestCloneIsDeep(t *testing.T) {
	tree := NewTree()
	tree.Put(obj("/f", 1))
	c := tree.Clone()
	o, _ := c.Lookup(fco.ParsePath("/f"))
	o.Props.Set(fco.PropSize, fco.IntValue(9))
	c.Put(obj("/g", 1))

	orig, _ := tree.Lookup(fco.ParsePath("/f"))
	if v, _ := orig.Props.Get(fco.PropSize); v != fco.IntValue(1) {
		t.Fatal("clone shares objects")
	}
	if tree.Len() != 1 || c.Len() != 2 {
		t.Fatalf("lens %d %d", tree.Len(), c.Len())
	}
	if n, _ := c.Find(fco.ParsePath("/f")); n.Parent() != c.Root() {
		t.Fatal("clone parent links point at original")
	}
}
