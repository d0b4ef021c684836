// Package scanner enumerates filesystem objects for a spec and captures
// their properties.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"tripline/fco"
	"tripline/hasher"
	"tripline/logger"
	"tripline/tracing"
)

// CaptureOptions control how content is read.
type CaptureOptions struct {
	// EraseFootprints restores access and modification times after a file
	// is read or a directory is listed.
	EraseFootprints bool
	ReadMode        hasher.ReadMode
}

// Request describes one enumeration.
type Request struct {
	Start fco.Name
	// Recurse is the number of levels below Start to visit; -1 is
	// unlimited and 0 visits the start point only.
	Recurse int
	Props   fco.Vector
	// Skip reports names that must not be visited; their subtree is
	// skipped too. It is never consulted for Start.
	Skip             func(fco.Name) bool
	CrossFileSystems bool
	Limiter          *rate.Limiter
	CaptureOptions
}

// VisitFunc receives objects in name order. obj is nil when nothing could
// be captured; err is non-nil for per-object failures, which never stop the
// walk. Returning fs.SkipDir skips the directory just visited; any other
// error aborts the walk.
type VisitFunc func(obj *fco.Object, err error) error

// Source is a data source for one genre.
type Source interface {
	Walk(ctx context.Context, req Request, fn VisitFunc) error
	Capture(ctx context.Context, name fco.Name, props fco.Vector, opts CaptureOptions) (*fco.Object, error)
}

// ObjectError is a non-fatal failure on one object.
type ObjectError struct {
	Name fco.Name
	Op   string
	Err  error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *ObjectError) Unwrap() error { return e.Err }

// FS reads the local filesystem. Names map to paths below Root, which is
// empty for the real root.
type FS struct {
	Root string

	mountsOnce sync.Once
	mounts     map[string]struct{}
	loadMounts func() ([]string, error)
}

func NewFS(root string) *FS {
	return &FS{Root: root, loadMounts: listMountPoints}
}

// Path converts a name into a local path.
func (s *FS) Path(name fco.Name) string {
	if s.Root == "" {
		return filepath.FromSlash(name.String())
	}
	return filepath.Join(s.Root, filepath.FromSlash(name.String()))
}

func (s *FS) isMountPoint(path string) bool {
	s.mountsOnce.Do(func() {
		s.mounts = map[string]struct{}{}
		if s.loadMounts == nil {
			return
		}
		points, err := s.loadMounts()
		if err != nil {
			logger.Debugf("Failed to list mount points: %v", err)
			return
		}
		for _, p := range points {
			s.mounts[filepath.Clean(p)] = struct{}{}
		}
	})
	_, ok := s.mounts[filepath.Clean(path)]
	return ok
}

func (s *FS) Capture(ctx context.Context, name fco.Name, props fco.Vector, opts CaptureOptions) (*fco.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(name)
	info, err := os.Lstat(path)
	if err != nil {
		return nil, &ObjectError{Name: name, Op: "lstat", Err: err}
	}
	return captureObject(path, name, info, props, opts)
}

func (s *FS) Walk(ctx context.Context, req Request, fn VisitFunc) error {
	ctx, endTask := tracing.StartTask(ctx, "walk_spec")
	defer endTask()
	tracing.Log(ctx, "start", req.Start.String())

	w := &walk{ctx: ctx, src: s, req: req, fn: fn}
	err := w.visit(req.Start, 0)
	if errors.Is(err, fs.SkipDir) || errors.Is(err, fs.SkipAll) {
		return nil
	}
	return err
}

type walk struct {
	ctx      context.Context
	src      *FS
	req      Request
	fn       VisitFunc
	startDev uint64
}

func (w *walk) descend(depth int) bool {
	return w.req.Recurse < 0 || depth < w.req.Recurse
}

func (w *walk) visit(name fco.Name, depth int) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if w.req.Limiter != nil {
		if err := w.req.Limiter.Wait(w.ctx); err != nil {
			return err
		}
	}

	path := w.src.Path(name)
	info, err := os.Lstat(path)
	if err != nil {
		ferr := w.fn(nil, &ObjectError{Name: name, Op: "lstat", Err: err})
		if errors.Is(ferr, fs.SkipDir) {
			return nil
		}
		return ferr
	}

	obj, capErr := captureObject(path, name, info, w.req.Props, w.req.CaptureOptions)
	if err := w.fn(obj, capErr); err != nil {
		if errors.Is(err, fs.SkipDir) {
			return nil
		}
		return err
	}
	if !info.IsDir() || !w.descend(depth) {
		return nil
	}

	dev := deviceOf(info)
	if depth == 0 {
		w.startDev = dev
	} else if !w.req.CrossFileSystems && (dev != w.startDev || w.src.isMountPoint(path)) {
		logger.Debugf("Not crossing into filesystem mounted at %s", path)
		return nil
	}

	children, err := readDirNames(path, w.req.EraseFootprints)
	if err != nil {
		ferr := w.fn(nil, &ObjectError{Name: name, Op: "readdir", Err: err})
		if errors.Is(ferr, fs.SkipDir) {
			return nil
		}
		if ferr != nil {
			return ferr
		}
	}
	for _, child := range children {
		childName := name.Append(child)
		if w.req.Skip != nil && w.req.Skip(childName) {
			continue
		}
		if err := w.visit(childName, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// readDirNames lists a directory in name order. Partial listings are
// returned together with the error.
func readDirNames(path string, eraseFootprints bool) ([]string, error) {
	var fp footprint
	if eraseFootprints {
		fp = saveFootprint(path)
		defer fp.restore()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	sort.Strings(names)
	return names, err
}
