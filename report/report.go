// Package report holds the result of an integrity check: per genre and per
// rule, the objects added, removed and changed since the database was
// written.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"tripline/errqueue"
	"tripline/fco"
)

type Header struct {
	ID string
	// DatabaseID is the id of the database the check ran against. Applying
	// the report to any other database is refused.
	DatabaseID   string
	Creator      string
	SystemName   string
	IPAddress    string
	HostID       string
	CreationTime time.Time
	PolicyFile   string
	ConfigFile   string
	DBFile       string
	Version      string
	// MinSeverity and RuleNames record the filter the check ran with.
	MinSeverity int
	RuleNames   []string
}

// Change is one object whose properties differ from the database.
type Change struct {
	Old  *fco.Object
	New  *fco.Object
	Diff fco.Vector
}

// SpecReport is the result for one rule.
type SpecReport struct {
	Name           string
	StartPoint     fco.Name
	Severity       int
	EmailTo        []string
	Props          fco.Vector
	Added          []*fco.Object
	Removed        []*fco.Object
	Changed        []Change
	ObjectsScanned int
	Errors         []*errqueue.Item
}

// Violations counts added, removed and changed objects.
func (s *SpecReport) Violations() int {
	return len(s.Added) + len(s.Removed) + len(s.Changed)
}

type GenreReport struct {
	Genre          fco.Genre
	Specs          []*SpecReport
	Errors         []*errqueue.Item
	ObjectsScanned int
	Displayer      *fco.PropDisplayer
}

func NewGenreReport(g fco.Genre) *GenreReport {
	return &GenreReport{Genre: g, Displayer: fco.NewPropDisplayer()}
}

// Spec returns the section of the named rule.
func (g *GenreReport) Spec(name string) *SpecReport {
	for _, s := range g.Specs {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Report is the result of one check across all genres.
type Report struct {
	Header Header
	Genres []*GenreReport
}

func New(now time.Time) *Report {
	return &Report{Header: Header{ID: uuid.NewString(), CreationTime: now.UTC()}}
}

// AddGenre appends a section for g, or returns the existing one.
func (r *Report) AddGenre(g fco.Genre) *GenreReport {
	if gr := r.Genre(g); gr != nil {
		return gr
	}
	gr := NewGenreReport(g)
	r.Genres = append(r.Genres, gr)
	return gr
}

func (r *Report) Genre(g fco.Genre) *GenreReport {
	for _, gr := range r.Genres {
		if gr.Genre == g {
			return gr
		}
	}
	return nil
}

// Summary totals a report.
type Summary struct {
	Added          int
	Removed        int
	Changed        int
	Errors         int
	ObjectsScanned int
	// MaxSeverity is the highest severity among rules with violations, 0
	// when nothing was violated.
	MaxSeverity int
	// Violated lists the rules with violations, by descending severity then
	// name.
	Violated []string
}

func (s Summary) Violations() int { return s.Added + s.Removed + s.Changed }

func (r *Report) Summary() Summary {
	var sum Summary
	type violated struct {
		name     string
		severity int
	}
	var vs []violated
	for _, g := range r.Genres {
		sum.ObjectsScanned += g.ObjectsScanned
		sum.Errors += len(g.Errors)
		for _, s := range g.Specs {
			sum.Added += len(s.Added)
			sum.Removed += len(s.Removed)
			sum.Changed += len(s.Changed)
			sum.Errors += len(s.Errors)
			if s.Violations() == 0 {
				continue
			}
			vs = append(vs, violated{s.Name, s.Severity})
			if s.Severity > sum.MaxSeverity {
				sum.MaxSeverity = s.Severity
			}
		}
	}
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].severity != vs[j].severity {
			return vs[i].severity > vs[j].severity
		}
		return vs[i].name < vs[j].name
	})
	for _, v := range vs {
		sum.Violated = append(sum.Violated, v.name)
	}
	return sum
}
