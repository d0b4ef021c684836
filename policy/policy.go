// Package policy compiles the rule file into per-genre spec lists.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tripline/fco"
	"tripline/genre"
	"tripline/utils"
)

// File is the policy document as written.
type File struct {
	Version   string            `yaml:"version,omitempty"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Rules     []Rule            `yaml:"rules"`
}

// Rule is one rule entry of the policy file.
type Rule struct {
	Name       string   `yaml:"name"`
	Genre      string   `yaml:"genre,omitempty"`
	Start      string   `yaml:"start"`
	Properties string   `yaml:"properties"`
	Severity   string   `yaml:"severity,omitempty"`
	Recurse    *int     `yaml:"recurse,omitempty"`
	StopPoints []string `yaml:"stop_points,omitempty"`
	Exclude    []string `yaml:"exclude,omitempty"`
	EmailTo    []string `yaml:"emailto,omitempty"`
}

// Policy is a compiled policy: one spec list per genre.
type Policy struct {
	// Digest identifies the source document.
	Digest string
	lists  map[fco.Genre]*SpecList
	order  []fco.Genre
}

func newPolicy() *Policy {
	return &Policy{lists: map[fco.Genre]*SpecList{}}
}

// Genres lists the genres with at least one rule, in first-use order.
func (p *Policy) Genres() []fco.Genre { return append([]fco.Genre(nil), p.order...) }

// Specs returns the rules of g, or nil.
func (p *Policy) Specs(g fco.Genre) *SpecList { return p.lists[g] }

// SetSpecs installs a spec list, e.g. one read back from a database.
func (p *Policy) SetSpecs(l *SpecList) {
	if _, ok := p.lists[l.Genre()]; !ok {
		p.order = append(p.order, l.Genre())
	}
	p.lists[l.Genre()] = l
}

// Load reads and compiles a policy file.
func Load(path string, reg *genre.Registry) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(data, reg)
}

// Parse compiles policy text.
func Parse(data []byte, reg *genre.Registry) (*Policy, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	p, err := f.Compile(reg)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	p.Digest = hex.EncodeToString(sum[:])
	return p, nil
}

// Compile resolves names through the genre registry and checks every rule.
func (f *File) Compile(reg *genre.Registry) (*Policy, error) {
	p := newPolicy()
	for i, r := range f.Rules {
		spec, err := r.compile(reg, f.Variables)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, r.Name, err)
		}
		list := p.lists[spec.Genre]
		if list == nil {
			list = NewSpecList(spec.Genre)
			p.SetSpecs(list)
		}
		if err := list.Add(spec); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
	}
	if len(p.order) == 0 {
		return nil, fmt.Errorf("policy has no rules")
	}
	return p, nil
}

func (r Rule) compile(reg *genre.Registry, vars map[string]string) (*Spec, error) {
	g, err := fco.ParseGenre(r.Genre)
	if err != nil {
		return nil, err
	}
	u, err := reg.Lookup(g)
	if err != nil {
		return nil, err
	}
	start, err := u.ParseName(r.Start)
	if err != nil {
		return nil, fmt.Errorf("start point: %w", err)
	}
	props, err := ParseMask(r.Properties, vars)
	if err != nil {
		return nil, err
	}
	severity, err := ParseSeverity(r.Severity)
	if err != nil {
		return nil, err
	}
	recurse := -1
	if r.Recurse != nil {
		recurse = *r.Recurse
		if recurse < -1 {
			return nil, fmt.Errorf("recurse %d must be -1 or greater", recurse)
		}
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = start.String()
	}
	spec := &Spec{
		Name:       name,
		Genre:      g,
		StartPoint: start,
		Props:      props,
		Severity:   severity,
		Recurse:    recurse,
		Exclude:    append([]string(nil), r.Exclude...),
		EmailTo:    append([]string(nil), r.EmailTo...),
	}
	for _, sp := range r.StopPoints {
		stop, err := u.ParseName(sp)
		if err != nil {
			return nil, fmt.Errorf("stop point: %w", err)
		}
		if !start.IsAncestorOf(stop) {
			return nil, fmt.Errorf("stop point %s is not below %s", stop, start)
		}
		spec.StopPoints = append(spec.StopPoints, stop)
	}
	if err := utils.ValidatePatterns(spec.Exclude); err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return spec, nil
}
