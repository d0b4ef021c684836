package engine

import (
	"context"
	"fmt"

	"tripline/fco"
	"tripline/hierdb"
	"tripline/logger"
	"tripline/policy"
	"tripline/report"
	"tripline/scanner"
	"tripline/tracing"
)

// CheckOptions select the rules to check and how.
type CheckOptions struct {
	Flags CheckFlags
	// MinSeverity skips rules below this severity.
	MinSeverity int
	// RuleNames restricts the check to the named rules when non-empty.
	RuleNames []string
}

// RunIntegrityCheck compares the live objects of genre g with the database
// section gdb and returns the differences per rule. specs must select the
// same objects as the specs the database was built from.
func RunIntegrityCheck(ctx context.Context, env *Env, g fco.Genre, specs *policy.SpecList, gdb *hierdb.GenreDB, opts CheckOptions) (*report.GenreReport, error) {
	u, err := env.universe(g)
	if err != nil {
		return nil, err
	}
	if specs.Genre() != g || gdb.Genre != g {
		return nil, mismatch("check of %s given %s specs and %s database", g, specs.Genre(), gdb.Genre)
	}
	if !specs.Equivalent(gdb.Specs) {
		return nil, mismatch("rules for %s differ from the database", g)
	}

	ctx, endTask := tracing.StartTask(ctx, "integrity_check")
	defer endTask()

	gr := report.NewGenreReport(g)
	gr.Displayer.HexDigests = gdb.Displayer.HexDigests
	gr.Displayer.Merge(gdb.Displayer)

	for _, name := range opts.RuleNames {
		if specs.ByName(name) == nil {
			item := specItem(g, name, fmt.Errorf("no rule named %q", name))
			env.report(item)
			gr.Errors = append(gr.Errors, item)
		}
	}

	c := &checker{env: env, src: u.Source(), list: specs, gdb: gdb, gr: gr, flags: opts.Flags}
	c.capture = env.captureOptions(opts.Flags.has(CheckEraseFootprints), opts.Flags.has(CheckDirectIO))
	for _, s := range specs.Filter(opts.MinSeverity, opts.RuleNames) {
		logger.Debugf("Checking %s from %s", s.Name, s.StartPoint)
		sr, err := c.checkSpec(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			item := specItem(g, s.Name, err)
			env.report(item)
			sr.Errors = append(sr.Errors, item)
		}
		gr.Specs = append(gr.Specs, sr)
		gr.ObjectsScanned += sr.ObjectsScanned
		logger.Debugf("Checked %s: %d objects, %d violations", s.Name, sr.ObjectsScanned, sr.Violations())
	}
	return gr, nil
}

type checker struct {
	env     *Env
	src     scanner.Source
	list    *policy.SpecList
	gdb     *hierdb.GenreDB
	gr      *report.GenreReport
	flags   CheckFlags
	capture scanner.CaptureOptions
}

// unknown is a name whose live state could not be read. Database objects
// at that name, or below it for a listing failure, are not reported
// removed.
type unknown struct {
	name    fco.Name
	subtree bool
}

// checkSpec merge joins the live walk with the stored objects of s. Both
// sides are in name order, so one pass classifies every name.
func (c *checker) checkSpec(ctx context.Context, s *policy.Spec) (*report.SpecReport, error) {
	sr := &report.SpecReport{
		Name:       s.Name,
		StartPoint: s.StartPoint,
		Severity:   s.Severity,
		EmailTo:    append([]string(nil), s.EmailTo...),
		Props:      s.Props,
	}
	mask := s.Props
	if stored := c.gdb.Specs.ByName(s.Name); stored != nil {
		mask = mask.Intersect(stored.Props)
	}

	var stored []*fco.Object
	_ = c.gdb.Tree.WalkFrom(s.StartPoint, func(n *hierdb.Node) error {
		if o := n.Object(); o != nil && c.list.Covers(s, o.Name) {
			stored = append(stored, o)
		}
		return nil
	})

	var unknowns []unknown
	next := 0
	flushBefore := func(name *fco.Name) {
		for next < len(stored) && (name == nil || stored[next].Name.Compare(*name) < 0) {
			o := stored[next]
			next++
			if !isUnknown(unknowns, o.Name) {
				sr.Removed = append(sr.Removed, o.Clone())
			}
		}
	}

	err := c.src.Walk(ctx, c.env.request(c.list, s, c.capture), func(obj *fco.Object, err error) error {
		if err != nil {
			name, subtree, ok := failedName(err)
			vanished := obj == nil && !subtree && isNotExist(err)
			if ok && !vanished {
				unknowns = append(unknowns, unknown{name: name, subtree: subtree})
			}
			if !vanished || (ok && name.Equal(s.StartPoint)) {
				item := objectItem(c.gr.Genre, s.Name, err)
				c.env.report(item)
				sr.Errors = append(sr.Errors, item)
			}
		}
		if obj == nil {
			return nil
		}
		c.env.progress(s.Name, obj.Name)
		sr.ObjectsScanned++
		c.gr.Displayer.Remember(obj)

		flushBefore(&obj.Name)
		if next < len(stored) && stored[next].Name.Equal(obj.Name) {
			old := stored[next]
			next++
			if diff := fco.Compare(old, obj, c.objectMask(mask, old, obj)); !diff.IsEmpty() {
				sr.Changed = append(sr.Changed, report.Change{Old: old.Clone(), New: obj, Diff: diff})
			}
			return nil
		}
		sr.Added = append(sr.Added, obj)
		return nil
	})
	if err != nil {
		return sr, fmt.Errorf("walk %s: %w", s.StartPoint, err)
	}
	flushBefore(nil)
	return sr, nil
}

func (c *checker) objectMask(mask fco.Vector, old, cur *fco.Object) fco.Vector {
	if c.flags.has(CheckLooseDir) && (old.IsDir() || cur.IsDir()) {
		return mask.Minus(fco.DirectoryVolatile)
	}
	return mask
}

func isUnknown(unknowns []unknown, name fco.Name) bool {
	for _, u := range unknowns {
		if u.name.Equal(name) {
			return true
		}
		if u.subtree && u.name.IsAncestorOf(name) {
			return true
		}
	}
	return false
}
