package policy

import (
	"errors"
	"testing"

	"tripline/fco"
	"tripline/genre"
)

const samplePolicy = `
version: "1"
variables:
  SEC_CRIT: "$(IgnoreNone)-SHa"
  SEC_BIN: "$(ReadOnly)"
rules:
  - name: binaries
    start: /usr/bin
    properties: "$(SEC_BIN)+M"
    severity: high
  - name: config
    start: /etc
    properties: "$(SEC_CRIT)"
    severity: 66
    recurse: 2
    stop_points: [/etc/mtab]
    exclude: ["*.swp"]
    emailto: [ops@example.com]
  - name: ssh
    start: /etc/ssh
    properties: "$(ReadOnly)"
`

func mustParse(t *testing.T, text string) *Policy {
	t.Helper()
	p, err := Parse([]byte(text), genre.Default())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return p
}

func TestParsePolicy(t *testing.T) {
	p := mustParse(t, samplePolicy)
	if p.Digest == "" {
		t.Fatal("missing digest")
	}
	list := p.Specs(fco.GenreFS)
	if list == nil || list.Len() != 3 {
		t.Fatalf("unexpected spec list %+v", list)
	}
	bin := list.ByName("binaries")
	if bin.Severity != SeverityHigh || bin.Recurse != -1 {
		t.Fatalf("binaries = %+v", bin)
	}
	if !bin.Props.Has(fco.PropMD5) || !bin.Props.Has(fco.PropSHA256) || bin.Props.Has(fco.PropATime) {
		t.Fatalf("binaries props = %s", bin.Props)
	}
	cfg := list.ByName("config")
	if cfg.Recurse != 2 || len(cfg.StopPoints) != 1 || cfg.EmailTo[0] != "ops@example.com" {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.Props.Has(fco.PropSHA1) || cfg.Props.Has(fco.PropATime) || !cfg.Props.Has(fco.PropMD5) || cfg.Props.Has(fco.PropGrowing) {
		t.Fatalf("config props = %s", cfg.Props)
	}
	if list.ByStartPoint(fco.ParsePath("/etc/ssh")).Name != "ssh" {
		t.Fatal("lookup by start point failed")
	}
}

func TestParsePolicyErrors(t *testing.T) {
	cases := map[string]string{
		"duplicate name": `
rules:
  - {name: a, start: /a, properties: "s"}
  - {name: a, start: /b, properties: "s"}`,
		"duplicate start": `
rules:
  - {name: a, start: /a, properties: "s"}
  - {name: b, start: /a/, properties: "s"}`,
		"unknown letter": `
rules:
  - {name: a, start: /a, properties: "sQ"}`,
		"undefined variable": `
rules:
  - {name: a, start: /a, properties: "$(Nope)"}`,
		"relative start": `
rules:
  - {name: a, start: a, properties: "s"}`,
		"stop point outside": `
rules:
  - {name: a, start: /a, properties: "s", stop_points: [/b]}`,
		"bad severity": `
rules:
  - {name: a, start: /a, properties: "s", severity: 5000}`,
		"no universe": `
rules:
  - {name: a, start: /a, properties: "s", genre: NTFS}`,
		"empty": `rules: []`,
	}
	for name, text := range cases {
		if _, err := Parse([]byte(text), genre.Default()); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	_, err := Parse([]byte(cases["duplicate start"]), genre.Default())
	if !errors.Is(err, ErrDuplicateStartPoint) {
		t.Fatalf("expected ErrDuplicateStartPoint, got %v", err)
	}
}

func TestParseMask(t *testing.T) {
	v, err := ParseMask("+pinug-n+S", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != fco.NewVector(fco.PropMode, fco.PropInode, fco.PropUID, fco.PropGID, fco.PropSHA1) {
		t.Fatalf("mask = %s", v)
	}
	v, _ = ParseMask("$(IgnoreAll)", nil)
	if !v.IsEmpty() {
		t.Fatalf("IgnoreAll = %s", v)
	}
	vars := map[string]string{"A": "$(B)", "B": "$(A)"}
	if _, err := ParseMask("$(A)", vars); err == nil {
		t.Fatal("expected cycle error")
	}
	if _, err := ParseMask("$(Unclosed", nil); err == nil {
		t.Fatal("expected unterminated variable error")
	}
}

func TestSeverity(t *testing.T) {
	for in, want := range map[string]int{"": 0, "low": 33, "Medium": 66, "HIGH": 100, "250": 250} {
		got, err := ParseSeverity(in)
		if err != nil || got != want {
			t.Errorf("ParseSeverity(%q) = %d, %v", in, got, err)
		}
	}
	if SeverityName(70) != "medium" || SeverityName(0) != "none" || SeverityName(1000) != "high" {
		t.Fatal("unexpected bucket names")
	}
}
