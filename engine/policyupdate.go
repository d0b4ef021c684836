package engine

import (
	"context"
	"fmt"

	"tripline/errqueue"
	"tripline/fco"
	"tripline/hierdb"
	"tripline/logger"
	"tripline/policy"
)

// UpdatePolicy rebuilds the section gdb for the rules newSpecs. oldSpecs
// must select what gdb was built from. Objects both policies cover keep
// their stored values when the live object still agrees with them on the
// properties the two rules share; otherwise the live values are stored and
// the difference is reported as a violation. Objects only the new policy
// covers are captured fresh, and stored objects it no longer covers are
// dropped.
//
// The result is false when violations or object errors occurred. In secure
// mode either aborts with ErrSecureModeAbort and gdb is left untouched.
func UpdatePolicy(ctx context.Context, env *Env, g fco.Genre, oldSpecs, newSpecs *policy.SpecList, gdb *hierdb.GenreDB, flags PolicyFlags) (bool, error) {
	u, err := env.universe(g)
	if err != nil {
		return false, err
	}
	if gdb.Genre != g || newSpecs.Genre() != g {
		return false, mismatch("policy update of %s given %s rules and %s database", g, newSpecs.Genre(), gdb.Genre)
	}
	if !oldSpecs.Equivalent(gdb.Specs) {
		return false, mismatch("old rules for %s differ from the database", g)
	}

	next := hierdb.NewGenreDB(g)
	next.Displayer.HexDigests = gdb.Displayer.HexDigests
	next.Displayer.Merge(gdb.Displayer)
	queue := errqueue.New()
	opts := env.captureOptions(flags.has(PolicyEraseFootprints), flags.has(PolicyDirectIO))

	violation := func(spec string, name fco.Name, format string, args ...interface{}) {
		queue.Add(&errqueue.Item{
			Kind:    errqueue.KindViolation,
			Genre:   g,
			Spec:    spec,
			Path:    name.String(),
			Message: fmt.Sprintf(format, args...),
		})
	}

	total := 0
	for _, s := range newSpecs.Specs() {
		logger.Debugf("Reconciling %s from %s", s.Name, s.StartPoint)
		next.Tree.MarkSpec(s.StartPoint, s.Name)
		seen := map[string]struct{}{}
		err := u.Source().Walk(ctx, env.request(newSpecs, s, opts), func(obj *fco.Object, err error) error {
			if err != nil {
				queue.Add(objectItem(g, s.Name, err))
			}
			if obj == nil {
				return nil
			}
			env.progress(s.Name, obj.Name)
			total++
			seen[obj.Name.String()] = struct{}{}
			next.Displayer.Remember(obj)

			old := oldSpecs.Owner(obj.Name)
			stored, ok := gdb.Tree.Lookup(obj.Name)
			if old == nil || !ok {
				next.Tree.Put(obj)
				return nil
			}
			if diff := fco.Compare(stored, obj, old.Props.Intersect(s.Props)); !diff.IsEmpty() {
				violation(s.Name, obj.Name, "changed since the database was written: %s", diff)
				next.Tree.Put(obj)
				return nil
			}
			kept := stored.Clone()
			kept.CopyProps(obj, s.Props.Minus(old.Props))
			kept.Trim(s.Props)
			next.Tree.Put(kept)
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			queue.Add(specItem(g, s.Name, fmt.Errorf("walk %s: %w", s.StartPoint, err)))
			continue
		}

		// Stored objects the old policy covered that are gone now.
		_ = gdb.Tree.WalkFrom(s.StartPoint, func(n *hierdb.Node) error {
			o := n.Object()
			if o == nil || !newSpecs.Covers(s, o.Name) || oldSpecs.Owner(o.Name) == nil {
				return nil
			}
			if _, ok := seen[o.Name.String()]; !ok {
				violation(s.Name, o.Name, "removed since the database was written")
			}
			return nil
		})
	}

	items := queue.Items()
	for _, item := range items {
		env.report(item)
	}
	if len(items) > 0 && flags.has(PolicySecureMode) {
		logger.Warnf("Policy update of %s aborted: %d violations or errors", g, len(items))
		return false, ErrSecureModeAbort
	}

	pruned := 0
	for _, o := range gdb.Tree.Objects() {
		if _, ok := next.Tree.Lookup(o.Name); !ok {
			pruned++
		}
	}
	if pruned > 0 {
		logger.Infof("Pruned %d objects no longer covered by the policy", pruned)
	}

	gdb.Tree = next.Tree
	gdb.Specs = newSpecs.Clone()
	gdb.Displayer = next.Displayer
	gdb.ObjectsScanned = total
	return len(items) == 0, nil
}
