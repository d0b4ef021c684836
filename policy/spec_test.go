package policy

import (
	"testing"

	"tripline/fco"
)

func newSpec(name, start string, recurse int) *Spec {
	return &Spec{
		Name:       name,
		Genre:      fco.GenreFS,
		StartPoint: fco.ParsePath(start),
		Props:      fco.NewVector(fco.PropSize),
		Recurse:    recurse,
	}
}

func TestMatchLongestPrefix(t *testing.T) {
	l := NewSpecList(fco.GenreFS)
	etc := newSpec("etc", "/etc", -1)
	ssh := newSpec("ssh", "/etc/ssh", -1)
	if err := l.Add(etc); err != nil {
		t.Fatal(err)
	}
	if err := l.Add(ssh); err != nil {
		t.Fatal(err)
	}
	if l.Match(fco.ParsePath("/etc/ssh/sshd_config")) != ssh {
		t.Fatal("expected ssh rule")
	}
	if l.Match(fco.ParsePath("/etc/passwd")) != etc {
		t.Fatal("expected etc rule")
	}
	if l.Match(fco.ParsePath("/var")) != nil {
		t.Fatal("expected no rule")
	}
	if l.Covers(etc, fco.ParsePath("/etc/ssh/sshd_config")) {
		t.Fatal("nested start point must belong to the nested rule")
	}
	if l.Owner(fco.ParsePath("/etc/ssh")) != ssh {
		t.Fatal("start point owned by its own rule")
	}
}

func TestCoversLimits(t *testing.T) {
	l := NewSpecList(fco.GenreFS)
	s := newSpec("etc", "/etc", 1)
	s.StopPoints = []fco.Name{fco.ParsePath("/etc/mtab")}
	s.Exclude = []string{"*.swp", "cache"}
	if err := l.Add(s); err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		"/etc":           true,
		"/etc/passwd":    true,
		"/etc/ssh/x":     false,
		"/etc/mtab":      false,
		"/etc/.vi.swp":   false,
		"/etc/cache":     false,
		"/var/log":       false,
		"/etc-old/file":  false,
		"/etc/hosts.bak": true,
	}
	for path, want := range cases {
		if got := l.Covers(s, fco.ParsePath(path)); got != want {
			t.Errorf("Covers(%s) = %v, want %v", path, got, want)
		}
	}

	deep := newSpec("var", "/var", -1)
	deep.Exclude = []string{"cache"}
	l2 := NewSpecList(fco.GenreFS)
	_ = l2.Add(deep)
	if l2.Covers(deep, fco.ParsePath("/var/cache/apt/archives")) {
		t.Fatal("descendants of an excluded directory must not be covered")
	}
	if !l2.SkipFunc(deep)(fco.ParsePath("/var/cache")) {
		t.Fatal("skip func must skip excluded names")
	}
}

func TestEquivalent(t *testing.T) {
	a := NewSpecList(fco.GenreFS)
	b := NewSpecList(fco.GenreFS)
	_ = a.Add(newSpec("x", "/x", -1))
	_ = a.Add(newSpec("y", "/y", 2))
	_ = b.Add(newSpec("y", "/y", 2))
	_ = b.Add(newSpec("x", "/x", -1))
	if !a.Equivalent(b) {
		t.Fatal("order must not matter")
	}
	b.ByName("x").Severity = 500
	b.ByName("x").EmailTo = []string{"root"}
	if !a.Equivalent(b) {
		t.Fatal("severity and mail routing must not matter")
	}
	c := b.Clone()
	c.ByName("y").Props = fco.NewVector(fco.PropSize, fco.PropMD5)
	if a.Equivalent(c) || !a.Equivalent(b) {
		t.Fatal("property change must break equivalence, clone must not alias")
	}
	d := a.Clone()
	d.ByName("x").StopPoints = []fco.Name{fco.ParsePath("/x/tmp")}
	if a.Equivalent(d) {
		t.Fatal("stop point change must break equivalence")
	}
	var none *SpecList
	if none.Equivalent(a) || !none.Equivalent(nil) {
		t.Fatal("nil handling")
	}
}

func TestFilter(t *testing.T) {
	l := NewSpecList(fco.GenreFS)
	lo := newSpec("lo", "/lo", -1)
	lo.Severity = SeverityLow
	hi := newSpec("hi", "/hi", -1)
	hi.Severity = SeverityHigh
	_ = l.Add(lo)
	_ = l.Add(hi)
	if got := l.Filter(SeverityMedium, nil); len(got) != 1 || got[0] != hi {
		t.Fatalf("severity filter = %v", got)
	}
	if got := l.Filter(0, []string{"lo"}); len(got) != 1 || got[0] != lo {
		t.Fatalf("name filter = %v", got)
	}
	if err := l.Add(&Spec{Name: "nt", Genre: fco.GenreNTFS}); err == nil {
		t.Fatal("expected genre mismatch")
	}
}
