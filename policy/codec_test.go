package policy

import (
	"bytes"
	"testing"

	"tripline/archive"
	"tripline/fco"
)

func TestSpecListCodec(t *testing.T) {
	l := NewSpecList(fco.GenreFS)
	s := newSpec("etc", "/etc", 3)
	s.Severity = 77
	s.StopPoints = []fco.Name{fco.ParsePath("/etc/mtab")}
	s.Exclude = []string{"*.swp"}
	s.EmailTo = []string{"root@localhost"}
	_ = l.Add(s)
	_ = l.Add(newSpec("bin", "/bin", -1))

	var buf bytes.Buffer
	w := archive.NewWriter(&buf)
	EncodeSpecList(w, l)
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	r := archive.NewReader(&buf)
	got := DecodeSpecList(r)
	if r.Err() != nil {
		t.Fatalf("decode: %v", r.Err())
	}
	if !got.Equivalent(l) {
		t.Fatal("decoded list not equivalent")
	}
	e := got.ByName("etc")
	if e.Severity != 77 || e.EmailTo[0] != "root@localhost" || got.Specs()[1].Name != "bin" {
		t.Fatalf("decoded spec %+v", e)
	}
}
