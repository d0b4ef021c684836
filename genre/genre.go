// Package genre maps genre ids to the universe implementing them: how names
// are parsed and compared and where live objects come from.
package genre

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tripline/fco"
	"tripline/scanner"
)

var ErrNoUniverse = errors.New("no universe registered for genre")

// Universe is the per-genre behavior table.
type Universe interface {
	Genre() fco.Genre
	// ParseName turns a policy path into a canonical name, applying the
	// genre's separator and case rules.
	ParseName(s string) (fco.Name, error)
	Source() scanner.Source
}

// Registry is the genre switch. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	universes map[fco.Genre]Universe
}

func NewRegistry(universes ...Universe) *Registry {
	r := &Registry{universes: make(map[fco.Genre]Universe, len(universes))}
	for _, u := range universes {
		r.universes[u.Genre()] = u
	}
	return r
}

// Default returns a registry holding the local filesystem genre.
func Default() *Registry {
	return NewRegistry(NewFS(""))
}

// Register adds u, replacing any universe already serving its genre.
func (r *Registry) Register(u Universe) {
	r.mu.Lock()
	r.universes[u.Genre()] = u
	r.mu.Unlock()
}

func (r *Registry) Lookup(g fco.Genre) (Universe, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.universes[g]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoUniverse, g)
	}
	return u, nil
}

// Genres lists the registered genres by id.
func (r *Registry) Genres() []fco.Genre {
	r.mu.RLock()
	out := make([]fco.Genre, 0, len(r.universes))
	for g := range r.universes {
		out = append(out, g)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FS is the unix filesystem genre. Names are absolute and case-sensitive,
// and only '/' separates segments.
type FS struct {
	src *scanner.FS
}

// NewFS serves names below root; an empty root is the real filesystem.
func NewFS(root string) *FS {
	return &FS{src: scanner.NewFS(root)}
}

func (u *FS) Genre() fco.Genre { return fco.GenreFS }

func (u *FS) ParseName(s string) (fco.Name, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "/") {
		return fco.Name{}, fmt.Errorf("filesystem name %q is not absolute", s)
	}
	return fco.ParsePath(s), nil
}

func (u *FS) Source() scanner.Source { return u.src }
