package scanner

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/djherbis/times"
	"github.com/h2non/filetype"

	"tripline/fco"
	"tripline/fuzzy"
	"tripline/hasher"
	"tripline/logger"
)

var errNotSupported = errors.New("not supported")

// propCollector captures a group of related properties.
type propCollector interface {
	Name() string
	Props() fco.Vector
	Collect(fc *captureContext, obj *fco.Object) error
}

type captureContext struct {
	Path string
	Info fs.FileInfo
	Want fco.Vector
	Opts CaptureOptions
}

func (fc *captureContext) regular() bool { return fc.Info.Mode().IsRegular() }

var collectors = []propCollector{
	statCollector{},
	sysCollector{},
	linkCollector{},
	xattrCollector{},
	digestCollector{},
	fuzzyCollector{},
	mimeCollector{},
}

// contentProps are the properties that require reading file content.
var contentProps = fco.DigestProps

// captureObject fills the requested properties of path. Every collector
// runs even when an earlier one fails; the first failure is returned.
func captureObject(path string, name fco.Name, info fs.FileInfo, want fco.Vector, opts CaptureOptions) (*fco.Object, error) {
	obj := fco.NewObject(name)
	fc := &captureContext{Path: path, Info: info, Want: want, Opts: opts}

	if opts.EraseFootprints && fc.regular() && !want.Intersect(contentProps).IsEmpty() {
		fp := footprintFromInfo(path, info)
		defer fp.restore()
	}

	var firstErr error
	for _, c := range collectors {
		if want.Intersect(c.Props()).IsEmpty() {
			continue
		}
		if err := c.Collect(fc, obj); err != nil {
			logger.Debugf("Collector %s failed for %s: %v", c.Name(), path, err)
			if firstErr == nil {
				firstErr = &ObjectError{Name: name, Op: c.Name(), Err: err}
			}
		}
	}
	obj.Trim(want)
	return obj, firstErr
}

type statCollector struct{}

func (statCollector) Name() string { return "stat" }

func (statCollector) Props() fco.Vector {
	return fco.NewVector(fco.PropFileType, fco.PropMode, fco.PropSize, fco.PropGrowing, fco.PropMTime)
}

const permBits = fs.ModePerm | fs.ModeSetuid | fs.ModeSetgid | fs.ModeSticky

func (statCollector) Collect(fc *captureContext, obj *fco.Object) error {
	info := fc.Info
	obj.Props.Set(fco.PropFileType, fco.FileTypeValue(fco.FileTypeOf(info.Mode())))
	obj.Props.Set(fco.PropMode, fco.ModeValue(info.Mode()&permBits))
	obj.Props.Set(fco.PropSize, fco.IntValue(info.Size()))
	obj.Props.Set(fco.PropGrowing, fco.IntValue(info.Size()))
	obj.Props.Set(fco.PropMTime, fco.TimeValue{T: info.ModTime()})
	return nil
}

type sysCollector struct{}

func (sysCollector) Name() string { return "sys" }

func (sysCollector) Props() fco.Vector {
	return fco.NewVector(fco.PropDevice, fco.PropRDevice, fco.PropInode, fco.PropNLink,
		fco.PropUID, fco.PropGID, fco.PropBlocks, fco.PropATime, fco.PropCTime)
}

func (sysCollector) Collect(fc *captureContext, obj *fco.Object) error {
	ts := times.Get(fc.Info)
	obj.Props.Set(fco.PropATime, fco.TimeValue{T: ts.AccessTime()})
	if ts.HasChangeTime() {
		obj.Props.Set(fco.PropCTime, fco.TimeValue{T: ts.ChangeTime()})
	}
	fillSysProps(fc.Path, fc.Info, obj)
	return nil
}

type linkCollector struct{}

func (linkCollector) Name() string { return "readlink" }

func (linkCollector) Props() fco.Vector { return fco.NewVector(fco.PropLinkTarget) }

func (linkCollector) Collect(fc *captureContext, obj *fco.Object) error {
	if fc.Info.Mode()&fs.ModeSymlink == 0 {
		return nil
	}
	target, err := os.Readlink(fc.Path)
	if err != nil {
		return err
	}
	obj.Props.Set(fco.PropLinkTarget, fco.StringValue(target))
	return nil
}

type xattrCollector struct{}

func (xattrCollector) Name() string { return "xattrs" }

func (xattrCollector) Props() fco.Vector { return fco.NewVector(fco.PropXattrs) }

func (xattrCollector) Collect(fc *captureContext, obj *fco.Object) error {
	xattrs, err := getXattrs(fc.Path, -1)
	if errors.Is(err, errNotSupported) {
		return nil
	}
	if err != nil {
		return err
	}
	obj.Props.Set(fco.PropXattrs, fco.StringValue(xattrDigest(xattrs)))
	return nil
}

var digestAlgorithms = map[fco.Prop]hasher.Algorithm{
	fco.PropCRC32:  hasher.CRC32,
	fco.PropMD5:    hasher.MD5,
	fco.PropSHA1:   hasher.SHA1,
	fco.PropSHA256: hasher.SHA256,
	fco.PropXXHash: hasher.XXHash,
	fco.PropBLAKE3: hasher.BLAKE3,
}

type digestCollector struct{}

func (digestCollector) Name() string { return "digest" }

func (digestCollector) Props() fco.Vector {
	return fco.NewVector(fco.PropCRC32, fco.PropMD5, fco.PropSHA1, fco.PropSHA256, fco.PropXXHash, fco.PropBLAKE3)
}

func (m digestCollector) Collect(fc *captureContext, obj *fco.Object) error {
	if !fc.regular() {
		return nil
	}
	wanted := fc.Want.Intersect(m.Props()).Props()
	algs := make([]hasher.Algorithm, 0, len(wanted))
	for _, p := range wanted {
		algs = append(algs, digestAlgorithms[p])
	}
	sums, err := hasher.Compute(fc.Path, algs, hasher.Options{Mode: fc.Opts.ReadMode})
	if err != nil {
		return err
	}
	for _, p := range wanted {
		if sum, ok := sums[digestAlgorithms[p]]; ok {
			obj.Props.Set(p, fco.BytesValue(sum))
		}
	}
	return nil
}

type fuzzyCollector struct{}

func (fuzzyCollector) Name() string { return "fuzzy" }

func (fuzzyCollector) Props() fco.Vector { return fco.NewVector(fco.PropTLSH) }

func (fuzzyCollector) Collect(fc *captureContext, obj *fco.Object) error {
	if !fc.regular() {
		return nil
	}
	digest, err := fuzzy.HashFile("tlsh", fc.Path)
	if err != nil {
		return err
	}
	obj.Props.Set(fco.PropTLSH, fco.StringValue(digest))
	return nil
}

type mimeCollector struct{}

func (mimeCollector) Name() string { return "mime" }

func (mimeCollector) Props() fco.Vector { return fco.NewVector(fco.PropContentType) }

func (mimeCollector) Collect(fc *captureContext, obj *fco.Object) error {
	if !fc.regular() {
		return nil
	}
	mimeType, err := getMimeType(fc.Path)
	if err != nil {
		return err
	}
	obj.Props.Set(fco.PropContentType, fco.StringValue(mimeType))
	return nil
}

func getMimeType(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	buf := make([]byte, 261)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}

	kind, err := filetype.Match(buf[:n])
	if err != nil {
		return "", err
	}
	if kind == filetype.Unknown || kind.MIME.Value == "" {
		return "unknown", nil
	}
	return kind.MIME.Value, nil
}
