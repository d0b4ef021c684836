package policy

import (
	"errors"
	"fmt"
	"sort"

	"tripline/fco"
	"tripline/utils"
)

var (
	ErrDuplicateName       = errors.New("duplicate rule name")
	ErrDuplicateStartPoint = errors.New("duplicate start point")
	ErrGenreMismatch       = errors.New("rule belongs to another genre")
)

// Spec is one rule: what to watch below a start point and how important a
// violation is.
type Spec struct {
	Name       string
	Genre      fco.Genre
	StartPoint fco.Name
	Props      fco.Vector
	Severity   int
	// Recurse is -1 for unlimited, 0 for the start point only, n for n
	// levels below it.
	Recurse    int
	StopPoints []fco.Name
	Exclude    []string
	EmailTo    []string

	matcher *utils.PatternMatcher
}

func (s *Spec) excluded(n fco.Name) bool {
	if len(s.Exclude) == 0 {
		return false
	}
	if s.matcher == nil {
		s.matcher = utils.NewPatternMatcher(nil, s.Exclude)
	}
	return !s.matcher.ShouldInclude(n.String())
}

// Clone returns a deep copy.
func (s *Spec) Clone() *Spec {
	c := *s
	c.StopPoints = append([]fco.Name(nil), s.StopPoints...)
	c.Exclude = append([]string(nil), s.Exclude...)
	c.EmailTo = append([]string(nil), s.EmailTo...)
	c.matcher = nil
	return &c
}

// sameScope reports whether two specs select the same objects and
// properties. Severity and mail routing do not matter.
func (s *Spec) sameScope(o *Spec) bool {
	if s.Name != o.Name || s.Genre != o.Genre || !s.StartPoint.Equal(o.StartPoint) ||
		s.Props != o.Props || s.Recurse != o.Recurse {
		return false
	}
	if !sameNames(s.StopPoints, o.StopPoints) {
		return false
	}
	return sameStrings(s.Exclude, o.Exclude)
}

func sameNames(a, b []fco.Name) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]fco.Name(nil), a...)
	y := append([]fco.Name(nil), b...)
	sort.Slice(x, func(i, j int) bool { return x[i].Compare(x[j]) < 0 })
	sort.Slice(y, func(i, j int) bool { return y[i].Compare(y[j]) < 0 })
	for i := range x {
		if !x[i].Equal(y[i]) {
			return false
		}
	}
	return true
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// SpecList is the insertion ordered rule set of one genre.
type SpecList struct {
	genre  fco.Genre
	specs  []*Spec
	byName map[string]*Spec
}

func NewSpecList(g fco.Genre) *SpecList {
	return &SpecList{genre: g, byName: map[string]*Spec{}}
}

func (l *SpecList) Genre() fco.Genre { return l.genre }

// Add appends s. Two rules may not share a name or a start point.
func (l *SpecList) Add(s *Spec) error {
	if s.Genre != l.genre {
		return fmt.Errorf("%w: %s is %s, list is %s", ErrGenreMismatch, s.Name, s.Genre, l.genre)
	}
	if _, ok := l.byName[s.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, s.Name)
	}
	if other := l.ByStartPoint(s.StartPoint); other != nil {
		return fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateStartPoint, s.StartPoint, other.Name, s.Name)
	}
	l.specs = append(l.specs, s)
	l.byName[s.Name] = s
	return nil
}

func (l *SpecList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.specs)
}

// Specs returns the rules in insertion order.
func (l *SpecList) Specs() []*Spec { return append([]*Spec(nil), l.specs...) }

func (l *SpecList) ByName(name string) *Spec { return l.byName[name] }

func (l *SpecList) ByStartPoint(n fco.Name) *Spec {
	for _, s := range l.specs {
		if s.StartPoint.Equal(n) {
			return s
		}
	}
	return nil
}

// Match returns the rule whose start point is the longest prefix of n.
func (l *SpecList) Match(n fco.Name) *Spec {
	var best *Spec
	for _, s := range l.specs {
		if !n.HasPrefix(s.StartPoint) {
			continue
		}
		if best == nil || s.StartPoint.Len() > best.StartPoint.Len() {
			best = s
		}
	}
	return best
}

// Covers reports whether n falls under s. A name is outside s when it is
// deeper than the recursion limit, at or below a stop point, below a more
// specific start point of another rule, or excluded by a pattern.
func (l *SpecList) Covers(s *Spec, n fco.Name) bool {
	depth := s.StartPoint.DepthBelow(n)
	if depth < 0 {
		return false
	}
	if depth == 0 {
		return true
	}
	if s.Recurse >= 0 && depth > s.Recurse {
		return false
	}
	for _, stop := range s.StopPoints {
		if n.HasPrefix(stop) {
			return false
		}
	}
	if m := l.Match(n); m != nil && m != s {
		return false
	}
	if len(s.Exclude) > 0 {
		segs := n.Segments()
		for i := s.StartPoint.Len() + 1; i <= len(segs); i++ {
			if s.excluded(fco.NewName(segs[:i]...)) {
				return false
			}
		}
	}
	return true
}

// SkipFunc returns the walk filter for s.
func (l *SpecList) SkipFunc(s *Spec) func(fco.Name) bool {
	return func(n fco.Name) bool { return !l.Covers(s, n) }
}

// Owner returns the rule covering n, or nil.
func (l *SpecList) Owner(n fco.Name) *Spec {
	if s := l.Match(n); s != nil && l.Covers(s, n) {
		return s
	}
	return nil
}

// Equivalent reports whether both lists select the same objects with the
// same properties. Order, severity and mail routing are ignored.
func (l *SpecList) Equivalent(o *SpecList) bool {
	if l == nil || o == nil {
		return l.Len() == o.Len()
	}
	if l.genre != o.genre || len(l.specs) != len(o.specs) {
		return false
	}
	for _, s := range l.specs {
		other := o.byName[s.Name]
		if other == nil || !s.sameScope(other) {
			return false
		}
	}
	return true
}

// Filter selects the rules to check: severity at least minSeverity and, when
// names is non-empty, only the named rules.
func (l *SpecList) Filter(minSeverity int, names []string) []*Spec {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	var out []*Spec
	for _, s := range l.specs {
		if s.Severity < minSeverity {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[s.Name]; !ok {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// Clone returns a deep copy.
func (l *SpecList) Clone() *SpecList {
	c := NewSpecList(l.genre)
	for _, s := range l.specs {
		cs := s.Clone()
		c.specs = append(c.specs, cs)
		c.byName[cs.Name] = cs
	}
	return c
}
