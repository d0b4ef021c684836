// Package engine runs the four operations over a database: generation,
// integrity check, update from a report and update to a new policy.
package engine

import (
	"time"

	"golang.org/x/time/rate"

	"tripline/errqueue"
	"tripline/fco"
	"tripline/genre"
	"tripline/hasher"
	"tripline/policy"
	"tripline/scanner"
)

// Env carries everything an engine call needs besides its direct inputs.
// The zero value uses the local filesystem and discards non-fatal errors.
type Env struct {
	Genres *genre.Registry
	// Errors receives every non-fatal error.
	Errors errqueue.Sink
	// CrossFileSystems lets walks descend into other mounted filesystems.
	CrossFileSystems bool
	// Limiter throttles object reads; nil means unlimited.
	Limiter *rate.Limiter
	// ReadMode is the hash read path when direct I/O is not requested.
	ReadMode hasher.ReadMode
	// Progress is called for every object visited.
	Progress func(spec string, name fco.Name)
	Now      func() time.Time
}

func (e *Env) universe(g fco.Genre) (genre.Universe, error) {
	reg := e.Genres
	if reg == nil {
		reg = genre.Default()
	}
	return reg.Lookup(g)
}

func (e *Env) report(item *errqueue.Item) {
	if e.Errors != nil {
		e.Errors.Add(item)
	}
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Env) progress(spec string, name fco.Name) {
	if e.Progress != nil {
		e.Progress(spec, name)
	}
}

func (e *Env) captureOptions(erase, direct bool) scanner.CaptureOptions {
	mode := e.ReadMode
	if direct {
		mode = hasher.ModeDirect
	}
	return scanner.CaptureOptions{EraseFootprints: erase, ReadMode: mode}
}

// request builds the walk for s, honoring the coverage rules of list.
func (e *Env) request(list *policy.SpecList, s *policy.Spec, opts scanner.CaptureOptions) scanner.Request {
	return scanner.Request{
		Start:            s.StartPoint,
		Recurse:          s.Recurse,
		Props:            s.Props,
		Skip:             list.SkipFunc(s),
		CrossFileSystems: e.CrossFileSystems,
		Limiter:          e.Limiter,
		CaptureOptions:   opts,
	}
}
