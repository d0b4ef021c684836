package fco

import (
	"path"
	"strings"
)

// Name is the canonical identity of an object inside a genre: an ordered list
// of path segments. The zero Name is the root.
type Name struct {
	segs []string
}

// NewName builds a name from already separated segments. Empty and "."
// segments are dropped and ".." removes the previous segment.
func NewName(segs ...string) Name {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, s)
		}
	}
	return Name{segs: out}
}

// ParsePath converts a slash separated path into a Name. Relative paths are
// interpreted from the root. Backslashes are ordinary name characters.
func ParsePath(p string) Name {
	p = path.Clean("/" + p)
	if p == "/" {
		return Name{}
	}
	return NewName(strings.Split(p[1:], "/")...)
}

func (n Name) String() string {
	if len(n.segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(n.segs, "/")
}

// Segments returns a copy of the name's segments.
func (n Name) Segments() []string {
	return append([]string(nil), n.segs...)
}

func (n Name) Len() int { return len(n.segs) }

func (n Name) IsRoot() bool { return len(n.segs) == 0 }

// Segment returns the i-th segment.
func (n Name) Segment(i int) string { return n.segs[i] }

// Base returns the last segment, or "/" for the root.
func (n Name) Base() string {
	if len(n.segs) == 0 {
		return "/"
	}
	return n.segs[len(n.segs)-1]
}

// Parent returns the containing name. The root is its own parent.
func (n Name) Parent() Name {
	if len(n.segs) == 0 {
		return n
	}
	return Name{segs: n.segs[:len(n.segs)-1:len(n.segs)-1]}
}

// Append returns a new name with seg added as the last segment.
func (n Name) Append(seg string) Name {
	segs := make([]string, len(n.segs), len(n.segs)+1)
	copy(segs, n.segs)
	return NewName(append(segs, seg)...)
}

// Compare orders names segment by segment. A name sorts before every name it
// is a prefix of, so parents always precede their children.
func (n Name) Compare(o Name) int {
	limit := len(n.segs)
	if len(o.segs) < limit {
		limit = len(o.segs)
	}
	for i := 0; i < limit; i++ {
		if c := strings.Compare(n.segs[i], o.segs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(n.segs) < len(o.segs):
		return -1
	case len(n.segs) > len(o.segs):
		return 1
	}
	return 0
}

func (n Name) Equal(o Name) bool { return n.Compare(o) == 0 }

// HasPrefix reports whether p equals n or is one of its ancestors.
func (n Name) HasPrefix(p Name) bool {
	if len(p.segs) > len(n.segs) {
		return false
	}
	for i := range p.segs {
		if n.segs[i] != p.segs[i] {
			return false
		}
	}
	return true
}

// IsAncestorOf reports whether n is a strict ancestor of o.
func (n Name) IsAncestorOf(o Name) bool {
	return len(n.segs) < len(o.segs) && o.HasPrefix(n)
}

// DepthBelow returns how many segments o extends n by, or -1 when n is not a
// prefix of o.
func (n Name) DepthBelow(o Name) int {
	if !o.HasPrefix(n) {
		return -1
	}
	return len(o.segs) - len(n.segs)
}
