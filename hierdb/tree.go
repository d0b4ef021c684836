// Package hierdb stores the expected state of every object as a tree keyed
// by name segment.
package hierdb

import (
	"errors"
	"io/fs"
	"sort"

	"tripline/fco"
)

// Node is one path segment. It may carry an object and may mark the start
// point of a rule.
type Node struct {
	segment  string
	parent   *Node
	children []*Node
	object   *fco.Object
	spec     string
}

func (n *Node) Segment() string { return n.segment }

func (n *Node) Parent() *Node { return n.parent }

// Name rebuilds the full name from the ancestors.
func (n *Node) Name() fco.Name {
	var segs []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segs = append(segs, cur.segment)
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return fco.NewName(segs...)
}

// Object returns the stored object, or nil.
func (n *Node) Object() *fco.Object { return n.object }

// Spec is the rule name when the node is a start point.
func (n *Node) Spec() string { return n.spec }

func (n *Node) Children() []*Node { return append([]*Node(nil), n.children...) }

func (n *Node) empty() bool {
	return n.object == nil && n.spec == "" && len(n.children) == 0
}

func (n *Node) childIndex(seg string) (int, bool) {
	i := sort.Search(len(n.children), func(i int) bool { return n.children[i].segment >= seg })
	return i, i < len(n.children) && n.children[i].segment == seg
}

func (n *Node) child(seg string) *Node {
	if i, ok := n.childIndex(seg); ok {
		return n.children[i]
	}
	return nil
}

// Tree is not safe for concurrent mutation.
type Tree struct {
	root  *Node
	count int
}

func NewTree() *Tree {
	return &Tree{root: &Node{}}
}

func (t *Tree) Root() *Node { return t.root }

// Len is the number of stored objects.
func (t *Tree) Len() int { return t.count }

// Insert returns the node for name, creating missing nodes.
func (t *Tree) Insert(name fco.Name) *Node {
	cur := t.root
	for i := 0; i < name.Len(); i++ {
		seg := name.Segment(i)
		idx, ok := cur.childIndex(seg)
		if !ok {
			n := &Node{segment: seg, parent: cur}
			cur.children = append(cur.children, nil)
			copy(cur.children[idx+1:], cur.children[idx:])
			cur.children[idx] = n
		}
		cur = cur.children[idx]
	}
	return cur
}

// Find returns the node for name.
func (t *Tree) Find(name fco.Name) (*Node, bool) {
	cur := t.root
	for i := 0; i < name.Len() && cur != nil; i++ {
		cur = cur.child(name.Segment(i))
	}
	return cur, cur != nil
}

// Lookup returns the object stored under name.
func (t *Tree) Lookup(name fco.Name) (*fco.Object, bool) {
	n, ok := t.Find(name)
	if !ok || n.object == nil {
		return nil, false
	}
	return n.object, true
}

// Put stores obj under its name, taking ownership and replacing any object
// already there.
func (t *Tree) Put(obj *fco.Object) *Node {
	n := t.Insert(obj.Name)
	if n.object == nil {
		t.count++
	}
	n.object = obj
	return n
}

// MarkSpec records that name is the start point of the rule spec.
func (t *Tree) MarkSpec(name fco.Name, spec string) {
	t.Insert(name).spec = spec
}

// UnmarkSpec clears a start point mark and prunes the node if it is now
// empty.
func (t *Tree) UnmarkSpec(name fco.Name) {
	if n, ok := t.Find(name); ok {
		n.spec = ""
		t.prune(n)
	}
}

// RemoveObject drops the object stored under name. Nodes left empty are
// pruned up to the first ancestor still in use.
func (t *Tree) RemoveObject(name fco.Name) bool {
	n, ok := t.Find(name)
	if !ok || n.object == nil {
		return false
	}
	n.object = nil
	t.count--
	t.prune(n)
	return true
}

func (t *Tree) prune(n *Node) {
	for n.parent != nil && n.empty() {
		p := n.parent
		if i, ok := p.childIndex(n.segment); ok {
			p.children = append(p.children[:i], p.children[i+1:]...)
		}
		n.parent = nil
		n = p
	}
}

// RemoveSubtree drops name and everything below it.
func (t *Tree) RemoveSubtree(name fco.Name) bool {
	n, ok := t.Find(name)
	if !ok {
		return false
	}
	removed := 0
	_ = walkNode(n, func(c *Node) error {
		if c.object != nil {
			removed++
		}
		return nil
	})
	t.count -= removed
	if n.parent == nil {
		t.root = &Node{}
		return true
	}
	n.object = nil
	n.spec = ""
	n.children = nil
	t.prune(n)
	return true
}

// Walk visits every node in name order. Returning fs.SkipDir skips the
// node's descendants.
func (t *Tree) Walk(fn func(*Node) error) error {
	return ignoreSkip(walkNode(t.root, fn))
}

// WalkFrom walks the subtree rooted at name. A missing name visits nothing.
func (t *Tree) WalkFrom(name fco.Name, fn func(*Node) error) error {
	n, ok := t.Find(name)
	if !ok {
		return nil
	}
	return ignoreSkip(walkNode(n, fn))
}

func ignoreSkip(err error) error {
	if errors.Is(err, fs.SkipDir) || errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

func walkNode(n *Node, fn func(*Node) error) error {
	if err := fn(n); err != nil {
		if errors.Is(err, fs.SkipDir) {
			return nil
		}
		return err
	}
	for _, c := range n.children {
		if err := walkNode(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// Objects returns every stored object in name order.
func (t *Tree) Objects() []*fco.Object {
	return t.ObjectsUnder(fco.Name{})
}

// ObjectsUnder returns the objects at or below name in name order.
func (t *Tree) ObjectsUnder(name fco.Name) []*fco.Object {
	var out []*fco.Object
	_ = t.WalkFrom(name, func(n *Node) error {
		if n.object != nil {
			out = append(out, n.object)
		}
		return nil
	})
	return out
}

// Clone deep copies the tree including objects.
func (t *Tree) Clone() *Tree {
	return &Tree{root: cloneNode(t.root, nil), count: t.count}
}

func cloneNode(n, parent *Node) *Node {
	c := &Node{segment: n.segment, parent: parent, spec: n.spec}
	if n.object != nil {
		c.object = n.object.Clone()
	}
	if len(n.children) > 0 {
		c.children = make([]*Node, len(n.children))
		for i, ch := range n.children {
			c.children[i] = cloneNode(ch, c)
		}
	}
	return c
}
