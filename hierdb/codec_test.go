package hierdb

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tripline/archive"
	"tripline/fco"
	"tripline/policy"
)

type testSigner ed25519.PrivateKey

func (s testSigner) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(ed25519.PrivateKey(s), msg), nil
}

type testVerifier ed25519.PublicKey

func (v testVerifier) Verify(msg, sig []byte) error {
	if !ed25519.Verify(ed25519.PublicKey(v), msg, sig) {
		return archive.ErrBadSignature
	}
	return nil
}

func sampleDB(t *testing.T) *DatabaseFile {
	t.Helper()
	d := New(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	d.Header.Creator = "root"
	d.Header.SystemName = "host1"
	d.Header.PolicyFile = "/etc/tripline/policy.yaml"
	gdb, err := d.AddGenre(fco.GenreFS)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddGenre(fco.GenreFS); err == nil {
		t.Fatal("duplicate genre accepted")
	}
	err = gdb.Specs.Add(&policy.Spec{
		Name:       "etc",
		Genre:      fco.GenreFS,
		StartPoint: fco.ParsePath("/etc"),
		Props:      fco.NewVector(fco.PropSize, fco.PropSHA256),
		Severity:   policy.SeverityHigh,
		Recurse:    -1,
		StopPoints: []fco.Name{fco.ParsePath("/etc/ssl")},
		EmailTo:    []string{"ops@example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}
	gdb.Tree.MarkSpec(fco.ParsePath("/etc"), "etc")
	gdb.Tree.MarkSpec(fco.ParsePath("/var/empty"), "empty")
	f := obj("/etc/passwd", 120)
	f.Props.Set(fco.PropSHA256, fco.BytesValue{1, 2, 3})
	f.Props.Set(fco.PropMTime, fco.TimeValue{T: time.Unix(1700000000, 42).UTC()})
	gdb.Tree.Put(f)
	gdb.Tree.Put(obj("/etc", 4096))
	gdb.Displayer.Users[0] = "root"
	gdb.ObjectsScanned = 2
	return d
}

func assertSameDB(t *testing.T, want, got *DatabaseFile) {
	t.Helper()
	gh, wh := got.Header, want.Header
	if !gh.CreationTime.Equal(wh.CreationTime) || !gh.LastUpdateTime.Equal(wh.LastUpdateTime) {
		t.Fatalf("header times = %s %s", gh.CreationTime, gh.LastUpdateTime)
	}
	gh.CreationTime, gh.LastUpdateTime = wh.CreationTime, wh.LastUpdateTime
	if gh != wh {
		t.Fatalf("header = %+v, want %+v", gh, wh)
	}
	wg, _ := want.Genre(fco.GenreFS)
	gg, ok := got.Genre(fco.GenreFS)
	if !ok {
		t.Fatal("FS genre missing")
	}
	if !gg.Specs.Equivalent(wg.Specs) {
		t.Fatal("spec list changed")
	}
	if s := gg.Specs.ByName("etc"); s.Severity != policy.SeverityHigh || len(s.EmailTo) != 1 {
		t.Fatalf("spec = %+v", s)
	}
	if gg.ObjectsScanned != 2 || gg.Displayer.Users[0] != "root" {
		t.Fatal("section metadata lost")
	}
	wo, gotObjs := wg.Tree.Objects(), gg.Tree.Objects()
	if len(wo) != len(gotObjs) {
		t.Fatalf("objects %d != %d", len(gotObjs), len(wo))
	}
	for i := range wo {
		if !wo[i].Equal(gotObjs[i]) {
			t.Fatalf("object %s differs", wo[i].Name)
		}
	}
	if n, ok := gg.Tree.Find(fco.ParsePath("/var/empty")); !ok || n.Spec() != "empty" {
		t.Fatal("empty start point mark lost")
	}
}

func TestMarshalDeterministic(t *testing.T) {
	d := sampleDB(t)
	a, err := d.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Clone().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("equal databases encode differently")
	}
	back, err := Unmarshal(a)
	if err != nil {
		t.Fatal(err)
	}
	assertSameDB(t, d, back)
}

func TestSaveLoadSignedCompressed(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	d := sampleDB(t)
	path := filepath.Join(t.TempDir(), "tripline.db")
	if err := Save(path, d, SaveOptions{Compress: true, Signer: testSigner(priv)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path, LoadOptions{Verifier: testVerifier(pub), RequireSignature: true})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assertSameDB(t, d, got)

	otherPub, _, _ := ed25519.GenerateKey(nil)
	if _, err := Load(path, LoadOptions{Verifier: testVerifier(otherPub)}); !errors.Is(err, archive.ErrBadSignature) {
		t.Fatalf("expected bad signature, got %v", err)
	}
}

func TestSaveLoadUnsigned(t *testing.T) {
	d := sampleDB(t)
	path := filepath.Join(t.TempDir(), "tripline.db")
	if err := Save(path, d, SaveOptions{}); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	assertSameDB(t, d, got)
	if _, err := Load(path, LoadOptions{RequireSignature: true}); !errors.Is(err, archive.ErrUnsigned) {
		t.Fatalf("expected ErrUnsigned, got %v", err)
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	p, err := sampleDB(t).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(p[:len(p)/2]); !errors.Is(err, archive.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}
