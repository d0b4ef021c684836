package fuzzy

import (
	"bufio"
	"io"
	"os"

	"github.com/glaslos/tlsh"
)

// TLSHMinInput is the shortest content TLSH will digest.
const TLSHMinInput = 50

type TLSHHasher struct{}

func (h TLSHHasher) Name() string {
	return "tlsh"
}

func (h TLSHHasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if info, err := f.Stat(); err != nil {
		return "", err
	} else if info.Size() < TLSHMinInput {
		return "", nil
	}

	src := &errReader{r: f}
	hash, err := tlsh.HashReader(bufio.NewReader(src))
	if src.err != nil {
		return "", src.err
	}
	if err != nil {
		// Content without enough variety has no TLSH digest.
		return "", nil
	}
	return hash.String(), nil
}

// errReader remembers the first real read error so it can be told apart
// from TLSH rejecting the content.
type errReader struct {
	r   io.Reader
	err error
}

func (e *errReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF && e.err == nil {
		e.err = err
	}
	return n, err
}

func init() {
	Register(TLSHHasher{})
}
