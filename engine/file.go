package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"tripline/fco"
	"tripline/hierdb"
	"tripline/policy"
	"tripline/report"
)

// Init generates a new database for every genre of pol.
func Init(ctx context.Context, env *Env, pol *policy.Policy, flags GenFlags) (*hierdb.DatabaseFile, error) {
	db := hierdb.New(env.now())
	db.Header.PolicyDigest = pol.Digest
	for _, g := range pol.Genres() {
		gdb, err := db.AddGenre(g)
		if err != nil {
			return nil, err
		}
		if err := GenerateDatabase(ctx, env, pol.Specs(g), gdb, flags); err != nil {
			return nil, fmt.Errorf("generate %s: %w", g, err)
		}
	}
	return db, nil
}

// Check runs the integrity check for every genre of pol against db. The
// policy and database must cover the same genres.
func Check(ctx context.Context, env *Env, db *hierdb.DatabaseFile, pol *policy.Policy, opts CheckOptions) (*report.Report, error) {
	if err := sameGenres(db, pol); err != nil {
		return nil, err
	}
	rep := report.New(env.now())
	rep.Header.DatabaseID = db.Header.ID
	rep.Header.MinSeverity = opts.MinSeverity
	rep.Header.RuleNames = append([]string(nil), opts.RuleNames...)
	for _, g := range pol.Genres() {
		gdb, _ := db.Genre(g)
		gr, err := RunIntegrityCheck(ctx, env, g, pol.Specs(g), gdb, opts)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", g, err)
		}
		rep.Genres = append(rep.Genres, gr)
	}
	return rep, nil
}

func sameGenres(db *hierdb.DatabaseFile, pol *policy.Policy) error {
	for _, g := range pol.Genres() {
		if _, ok := db.Genre(g); !ok {
			return mismatch("policy has rules for %s, database has none", g)
		}
	}
	for _, g := range db.Genres() {
		if pol.Specs(g) == nil {
			return mismatch("database has %s, policy has no rules for it", g)
		}
	}
	return nil
}

// ApplyReport updates db from rep. Either every genre is applied or, when
// secure mode aborts one of them, none is.
func ApplyReport(ctx context.Context, env *Env, db *hierdb.DatabaseFile, rep *report.Report, flags UpdateFlags) (UpdateResult, error) {
	res := UpdateResult{Success: true}
	if rep.Header.DatabaseID != db.Header.ID {
		return UpdateResult{}, fmt.Errorf("%w: report is for %s, database is %s", ErrReportMismatch, rep.Header.DatabaseID, db.Header.ID)
	}
	work := db.Clone()
	for _, gr := range rep.Genres {
		gdb, ok := work.Genre(gr.Genre)
		if !ok {
			return UpdateResult{}, fmt.Errorf("%w: database has no %s section", ErrReportMismatch, gr.Genre)
		}
		r, err := UpdateDatabase(ctx, env, gdb, gr, flags)
		res.Conflicts = append(res.Conflicts, r.Conflicts...)
		res.Applied += r.Applied
		if err != nil {
			res.Success = false
			res.Applied = 0
			return res, err
		}
		res.Success = res.Success && r.Success
	}
	work.Header.LastUpdateTime = env.now()
	*db = *work
	return res, nil
}

// ApplyPolicy moves db to the rules of newPol. oldPol is the policy db was
// built from; nil trusts the rules stored in db. Genres newPol drops are
// removed from db.
func ApplyPolicy(ctx context.Context, env *Env, db *hierdb.DatabaseFile, oldPol, newPol *policy.Policy, flags PolicyFlags) (bool, error) {
	work := db.Clone()
	genres := map[fco.Genre]struct{}{}
	for _, g := range work.Genres() {
		genres[g] = struct{}{}
	}
	for _, g := range newPol.Genres() {
		genres[g] = struct{}{}
	}

	ok := true
	for _, g := range sortedGenres(genres) {
		gdb, exists := work.Genre(g)
		if !exists {
			var err error
			if gdb, err = work.AddGenre(g); err != nil {
				return false, err
			}
		}
		oldSpecs := gdb.Specs
		if oldPol != nil {
			oldSpecs = oldPol.Specs(g)
			if oldSpecs == nil {
				oldSpecs = policy.NewSpecList(g)
			}
		}
		newSpecs := newPol.Specs(g)
		if newSpecs == nil {
			newSpecs = policy.NewSpecList(g)
		}
		done, err := UpdatePolicy(ctx, env, g, oldSpecs, newSpecs, gdb, flags)
		if err != nil {
			if errors.Is(err, ErrNoUniverse) && newSpecs.Len() == 0 {
				// Dropping a genre this host cannot read is still allowed.
				work.RemoveGenre(g)
				continue
			}
			return false, fmt.Errorf("update policy %s: %w", g, err)
		}
		ok = ok && done
		if newSpecs.Len() == 0 {
			work.RemoveGenre(g)
		}
	}
	work.Header.PolicyDigest = newPol.Digest
	work.Header.LastUpdateTime = env.now()
	*db = *work
	return ok, nil
}

func sortedGenres(set map[fco.Genre]struct{}) []fco.Genre {
	out := make([]fco.Genre, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
