package fco

import (
	"fmt"
	"strings"
)

// Genre identifies an object universe. Names are only meaningful within a
// single genre.
type Genre uint16

const (
	GenreInvalid Genre = 0
	GenreFS      Genre = 1
	// GenreNTFS and GenreNTReg are reserved so databases written on other
	// platforms keep stable ids.
	GenreNTFS  Genre = 2
	GenreNTReg Genre = 3
)

var genreNames = map[Genre]string{
	GenreFS:    "FS",
	GenreNTFS:  "NTFS",
	GenreNTReg: "NTREG",
}

func (g Genre) String() string {
	if name, ok := genreNames[g]; ok {
		return name
	}
	return fmt.Sprintf("genre(%d)", uint16(g))
}

// ParseGenre accepts the genre name in any case. An empty string selects FS.
func ParseGenre(s string) (Genre, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return GenreFS, nil
	}
	for g, name := range genreNames {
		if name == s {
			return g, nil
		}
	}
	return GenreInvalid, fmt.Errorf("unknown genre %q", s)
}
