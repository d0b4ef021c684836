package engine

import (
	"context"
	"fmt"

	"tripline/errqueue"
	"tripline/fco"
	"tripline/hierdb"
	"tripline/logger"
	"tripline/report"
	"tripline/scanner"
)

// UpdateResult describes an applied report.
type UpdateResult struct {
	// Success is false when any conflict was found.
	Success   bool
	Conflicts []*errqueue.Item
	// Applied counts the report entries written to the database.
	Applied int
}

type entryKind uint8

const (
	entryAdd entryKind = iota
	entryRemove
	entryChange
)

type pendingEntry struct {
	spec  string
	props fco.Vector
	kind  entryKind
	obj   *fco.Object
	diff  fco.Vector
	// fill are rule properties the stored object lacks. A changed entry
	// writes them along with diff.
	fill fco.Vector
}

// UpdateDatabase applies the added, removed and changed objects of gr to
// gdb. All conflicts are found before anything is written; in secure mode
// any conflict aborts with ErrSecureModeAbort and gdb is left untouched.
func UpdateDatabase(ctx context.Context, env *Env, gdb *hierdb.GenreDB, gr *report.GenreReport, flags UpdateFlags) (UpdateResult, error) {
	var res UpdateResult
	if gr.Genre != gdb.Genre {
		return res, fmt.Errorf("%w: report section %s applied to database section %s", ErrReportMismatch, gr.Genre, gdb.Genre)
	}
	u, err := env.universe(gdb.Genre)
	if err != nil {
		return res, err
	}

	conflict := func(spec string, name fco.Name, format string, args ...interface{}) {
		res.Conflicts = append(res.Conflicts, &errqueue.Item{
			Kind:    errqueue.KindConflict,
			Genre:   gdb.Genre,
			Spec:    spec,
			Path:    name.String(),
			Message: fmt.Sprintf(format, args...),
		})
	}

	var entries []pendingEntry
	for _, sr := range gr.Specs {
		spec := gdb.Specs.ByName(sr.Name)
		if spec == nil {
			conflict(sr.Name, sr.StartPoint, "rule %s is not in the database", sr.Name)
			continue
		}
		for _, o := range sr.Added {
			if _, ok := gdb.Tree.Lookup(o.Name); ok {
				conflict(sr.Name, o.Name, "added object already in database")
				continue
			}
			entries = append(entries, pendingEntry{spec: sr.Name, props: spec.Props, kind: entryAdd, obj: o})
		}
		for _, o := range sr.Removed {
			if _, ok := gdb.Tree.Lookup(o.Name); !ok {
				conflict(sr.Name, o.Name, "removed object not in database")
				continue
			}
			entries = append(entries, pendingEntry{spec: sr.Name, kind: entryRemove, obj: o})
		}
		for _, c := range sr.Changed {
			if _, ok := gdb.Tree.Lookup(c.New.Name); !ok {
				conflict(sr.Name, c.New.Name, "changed object not in database")
				continue
			}
			entries = append(entries, pendingEntry{spec: sr.Name, props: spec.Props, kind: entryChange, obj: c.New, diff: c.Diff})
		}
	}
	for _, item := range res.Conflicts {
		env.report(item)
	}
	if len(res.Conflicts) > 0 && flags.has(UpdateSecureMode) {
		logger.Warnf("Update of %s aborted: %d conflicts", gdb.Genre, len(res.Conflicts))
		return res, ErrSecureModeAbort
	}

	// Objects that failed to capture some properties during the check are
	// completed from the live object before anything is stored.
	opts := env.captureOptions(flags.has(UpdateEraseFootprints), flags.has(UpdateDirectIO))
	for i := range entries {
		e := &entries[i]
		if e.kind == entryRemove {
			continue
		}
		if e.kind == entryChange && !flags.has(UpdateReplaceAll) {
			cur, _ := gdb.Tree.Lookup(e.obj.Name)
			e.fill = e.props.Minus(cur.Props.Valid())
			if e.fill.IsEmpty() {
				continue
			}
		}
		e.obj = e.obj.Clone()
		if err := recapture(ctx, env, u.Source(), gdb.Genre, e, opts); err != nil {
			return res, err
		}
	}

	for _, e := range entries {
		switch e.kind {
		case entryAdd:
			e.obj.Trim(e.props)
			gdb.Tree.Put(e.obj)
		case entryRemove:
			gdb.Tree.RemoveObject(e.obj.Name)
		case entryChange:
			if flags.has(UpdateReplaceAll) {
				e.obj.Trim(e.props)
				gdb.Tree.Put(e.obj)
				break
			}
			cur, _ := gdb.Tree.Lookup(e.obj.Name)
			cur.CopyProps(e.obj, e.diff)
			cur.CopyProps(e.obj, e.fill.Intersect(e.obj.Props.Valid()))
		}
		res.Applied++
	}
	gdb.Displayer.Merge(gr.Displayer)
	res.Success = len(res.Conflicts) == 0
	return res, nil
}

// recapture reads the properties of e.props missing from e.obj. Only
// context errors are returned; capture failures are reported and the object
// is stored as it is.
func recapture(ctx context.Context, env *Env, src scanner.Source, g fco.Genre, e *pendingEntry, opts scanner.CaptureOptions) error {
	missing := e.props.Minus(e.obj.Props.Valid())
	if missing.IsEmpty() {
		return nil
	}
	logger.Debugf("Recapturing %s for %s", missing, e.obj.Name)
	live, err := src.Capture(ctx, e.obj.Name, missing, opts)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		env.report(objectItem(g, e.spec, err))
	}
	if live != nil {
		e.obj.CopyProps(live, missing.Intersect(live.Props.Valid()))
	}
	return nil
}
