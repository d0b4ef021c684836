package engine

import (
	"errors"
	"fmt"
	"io/fs"

	"tripline/errqueue"
	"tripline/fco"
	"tripline/genre"
	"tripline/scanner"
)

var (
	// ErrNoUniverse means no universe serves a genre named by the policy or
	// database.
	ErrNoUniverse = genre.ErrNoUniverse
	// ErrPolicyMismatch means the policy does not select what the database
	// was built from.
	ErrPolicyMismatch = errors.New("policy does not match database")
	// ErrReportMismatch means a report was produced against another
	// database.
	ErrReportMismatch = errors.New("report does not belong to database")
	// ErrSecureModeAbort means secure mode refused to apply a partial
	// update.
	ErrSecureModeAbort = errors.New("aborted by secure mode")
)

func objectItem(g fco.Genre, spec string, err error) *errqueue.Item {
	item := &errqueue.Item{Kind: errqueue.KindObject, Genre: g, Spec: spec, Err: err}
	var oe *scanner.ObjectError
	if errors.As(err, &oe) {
		item.Path = oe.Name.String()
	}
	return item
}

func specItem(g fco.Genre, spec string, err error) *errqueue.Item {
	return &errqueue.Item{Kind: errqueue.KindSpec, Genre: g, Spec: spec, Err: err}
}

// failedName returns the name a walk error is about and whether it
// covers the subtree below it (a listing failure) or just the name.
func failedName(err error) (fco.Name, bool, bool) {
	var oe *scanner.ObjectError
	if !errors.As(err, &oe) {
		return fco.Name{}, false, false
	}
	return oe.Name, oe.Op == "readdir", true
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func mismatch(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrPolicyMismatch}, args...)...)
}
