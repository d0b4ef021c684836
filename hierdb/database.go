package hierdb

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"tripline/fco"
	"tripline/policy"
)

// Header identifies a database and the host and inputs that produced it.
type Header struct {
	ID             string
	Creator        string
	SystemName     string
	IPAddress      string
	HostID         string
	CreationTime   time.Time
	LastUpdateTime time.Time
	PolicyFile     string
	PolicyDigest   string
	ConfigFile     string
	DBFile         string
	Version        string
}

// GenreDB is the section of a database holding one genre.
type GenreDB struct {
	Genre          fco.Genre
	Tree           *Tree
	Specs          *policy.SpecList
	Displayer      *fco.PropDisplayer
	ObjectsScanned int
}

func NewGenreDB(g fco.Genre) *GenreDB {
	return &GenreDB{
		Genre:     g,
		Tree:      NewTree(),
		Specs:     policy.NewSpecList(g),
		Displayer: fco.NewPropDisplayer(),
	}
}

// Clone deep copies the section.
func (g *GenreDB) Clone() *GenreDB {
	c := &GenreDB{
		Genre:          g.Genre,
		Tree:           g.Tree.Clone(),
		Specs:          g.Specs.Clone(),
		Displayer:      fco.NewPropDisplayer(),
		ObjectsScanned: g.ObjectsScanned,
	}
	c.Displayer.HexDigests = g.Displayer.HexDigests
	c.Displayer.Merge(g.Displayer)
	return c
}

// DatabaseFile holds one section per genre.
type DatabaseFile struct {
	Header Header
	genres map[fco.Genre]*GenreDB
}

// New returns an empty database with a fresh id.
func New(now time.Time) *DatabaseFile {
	return &DatabaseFile{
		Header: Header{
			ID:             uuid.NewString(),
			CreationTime:   now.UTC(),
			LastUpdateTime: now.UTC(),
		},
		genres: map[fco.Genre]*GenreDB{},
	}
}

// AddGenre creates the section for g. Adding an existing genre is an error.
func (d *DatabaseFile) AddGenre(g fco.Genre) (*GenreDB, error) {
	if _, ok := d.genres[g]; ok {
		return nil, fmt.Errorf("genre %s already in database", g)
	}
	gdb := NewGenreDB(g)
	d.genres[g] = gdb
	return gdb, nil
}

// Genre returns the section for g.
func (d *DatabaseFile) Genre(g fco.Genre) (*GenreDB, bool) {
	gdb, ok := d.genres[g]
	return gdb, ok
}

// Genres lists the stored genres in id order.
func (d *DatabaseFile) Genres() []fco.Genre {
	out := make([]fco.Genre, 0, len(d.genres))
	for g := range d.genres {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (d *DatabaseFile) Clone() *DatabaseFile {
	c := &DatabaseFile{Header: d.Header, genres: make(map[fco.Genre]*GenreDB, len(d.genres))}
	for g, gdb := range d.genres {
		c.genres[g] = gdb.Clone()
	}
	return c
}

// RemoveGenre drops the section for g.
func (d *DatabaseFile) RemoveGenre(g fco.Genre) {
	delete(d.genres, g)
}
