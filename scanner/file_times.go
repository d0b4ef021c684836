package scanner

import (
	"io/fs"
	"os"
	"time"

	"github.com/djherbis/times"

	"tripline/logger"
)

// footprint remembers the access and modification times of a path so they
// can be put back after the path was read.
type footprint struct {
	path  string
	atime time.Time
	mtime time.Time
	ok    bool
}

func saveFootprint(path string) footprint {
	ts, err := times.Lstat(path)
	if err != nil {
		return footprint{}
	}
	return footprint{path: path, atime: ts.AccessTime(), mtime: ts.ModTime(), ok: true}
}

func footprintFromInfo(path string, info fs.FileInfo) footprint {
	ts := times.Get(info)
	return footprint{path: path, atime: ts.AccessTime(), mtime: ts.ModTime(), ok: true}
}

func (f footprint) restore() {
	if !f.ok {
		return
	}
	if err := os.Chtimes(f.path, f.atime, f.mtime); err != nil {
		logger.Debugf("Failed to restore times of %s: %v", f.path, err)
	}
}
