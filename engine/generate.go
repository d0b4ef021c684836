package engine

import (
	"context"
	"errors"
	"fmt"

	"tripline/fco"
	"tripline/hierdb"
	"tripline/logger"
	"tripline/policy"
	"tripline/scanner"
)

// GenerateDatabase fills an empty genre section with every object the specs
// select. Per-object failures go to env.Errors; a spec that cannot be walked
// at all is reported and skipped.
func GenerateDatabase(ctx context.Context, env *Env, specs *policy.SpecList, gdb *hierdb.GenreDB, flags GenFlags) error {
	if specs.Genre() != gdb.Genre {
		return mismatch("spec list is %s, database section is %s", specs.Genre(), gdb.Genre)
	}
	if gdb.Tree.Len() != 0 {
		return fmt.Errorf("database section %s is not empty", gdb.Genre)
	}
	u, err := env.universe(gdb.Genre)
	if err != nil {
		return err
	}
	opts := env.captureOptions(flags.has(GenEraseFootprints), flags.has(GenDirectIO))

	total := 0
	for _, s := range specs.Specs() {
		logger.Debugf("Generating %s from %s", s.Name, s.StartPoint)
		n, err := generateSpec(ctx, env, u.Source(), specs, s, gdb, opts)
		total += n
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			env.report(specItem(gdb.Genre, s.Name, err))
			continue
		}
		logger.Debugf("Generated %s: %d objects", s.Name, n)
	}
	gdb.Specs = specs.Clone()
	gdb.ObjectsScanned = total
	return nil
}

// generateSpec stores every object s selects into gdb and marks its start
// point. It returns the number of objects captured.
func generateSpec(ctx context.Context, env *Env, src scanner.Source, list *policy.SpecList, s *policy.Spec, gdb *hierdb.GenreDB, opts scanner.CaptureOptions) (int, error) {
	gdb.Tree.MarkSpec(s.StartPoint, s.Name)
	count := 0
	err := src.Walk(ctx, env.request(list, s, opts), func(obj *fco.Object, err error) error {
		if err != nil {
			env.report(objectItem(gdb.Genre, s.Name, err))
		}
		if obj == nil {
			return nil
		}
		env.progress(s.Name, obj.Name)
		count++
		gdb.Displayer.Remember(obj)
		gdb.Tree.Put(obj)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("walk %s: %w", s.StartPoint, err)
	}
	return count, err
}
