// Package hasher computes content signatures. Every requested digest is fed
// from the same read pass so a file is only read once per capture.
package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/exp/mmap"
	"lukechampine.com/blake3"

	"tripline/logger"
)

type Algorithm string

const (
	CRC32  Algorithm = "crc32"
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	XXHash Algorithm = "xxhash"
	BLAKE3 Algorithm = "blake3"
)

// ReadMode selects how file content is read.
type ReadMode string

const (
	ModeAuto   ReadMode = "auto"
	ModeStream ReadMode = "stream"
	ModeMmap   ReadMode = "mmap"
	ModeDirect ReadMode = "direct"
)

const (
	hashBufferSmallSize      = 32 * 1024
	hashBufferLargeSize      = 128 * 1024
	hashLargeBufferThreshold = 256 * 1024
	defaultMmapMinSize       = 4 * 1024 * 1024
)

var hashBufferSmallPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSmallSize)
		return &buf
	},
}

var hashBufferLargePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferLargeSize)
		return &buf
	},
}

var openMmapReader = mmap.Open

// errDirectUnsupported is returned by the direct read path when the platform
// or filesystem refuses unbuffered I/O. Compute falls back to streaming.
var errDirectUnsupported = errors.New("direct I/O not supported")

type Options struct {
	Mode ReadMode
	// MmapMinSize is the size from which ModeAuto maps the file instead of
	// streaming it.
	MmapMinSize int64
}

// ParseReadMode validates a read mode name; empty selects ModeAuto.
func ParseReadMode(s string) (ReadMode, error) {
	switch m := ReadMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeStream, ModeMmap, ModeDirect:
		return m, nil
	}
	return "", fmt.Errorf("unknown hash read mode %q", s)
}

type hasherEntry struct {
	alg Algorithm
	h   hash.Hash
}

func newHasher(alg Algorithm) hash.Hash {
	switch alg {
	case CRC32:
		return crc32.NewIEEE()
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case XXHash:
		return xxhash.New()
	case BLAKE3:
		return blake3.New(32, nil)
	}
	return nil
}

// Supported reports whether alg is known.
func Supported(alg Algorithm) bool { return newHasher(alg) != nil }

func newHashers(algorithms []Algorithm) []hasherEntry {
	hashers := make([]hasherEntry, 0, len(algorithms))
	seen := make(map[Algorithm]struct{}, len(algorithms))
	for _, alg := range algorithms {
		if _, ok := seen[alg]; ok {
			continue
		}
		h := newHasher(alg)
		if h == nil {
			logger.Warnf("Unsupported hash algorithm: %s", alg)
			continue
		}
		seen[alg] = struct{}{}
		hashers = append(hashers, hasherEntry{alg: alg, h: h})
	}
	return hashers
}

func writers(hashers []hasherEntry) io.Writer {
	ws := make([]io.Writer, len(hashers))
	for i := range hashers {
		ws[i] = hashers[i].h
	}
	return io.MultiWriter(ws...)
}

// Compute reads path once and returns the raw digest for every supported
// algorithm. An error means the content could not be read; no partial
// result is returned.
func Compute(path string, algorithms []Algorithm, opts Options) (map[Algorithm][]byte, error) {
	hashers := newHashers(algorithms)
	if len(hashers) == 0 {
		return map[Algorithm][]byte{}, nil
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeAuto
	}
	if mode == ModeAuto {
		mode = ModeStream
		minSize := opts.MmapMinSize
		if minSize <= 0 {
			minSize = defaultMmapMinSize
		}
		if info, err := os.Stat(path); err == nil && info.Size() >= minSize {
			mode = ModeMmap
		}
	}

	var err error
	switch mode {
	case ModeMmap:
		err = digestMmap(path, writers(hashers))
		if err != nil && !os.IsNotExist(err) && !os.IsPermission(err) {
			logger.Debugf("mmap read failed for %s, streaming instead: %v", path, err)
			hashers = newHashers(algorithms)
			err = digestStream(path, writers(hashers))
		}
	case ModeDirect:
		err = digestDirect(path, writers(hashers))
		if errors.Is(err, errDirectUnsupported) {
			logger.Debugf("direct I/O unavailable for %s, streaming instead", path)
			hashers = newHashers(algorithms)
			err = digestStream(path, writers(hashers))
		}
	default:
		err = digestStream(path, writers(hashers))
	}
	if err != nil {
		return nil, err
	}

	sums := make(map[Algorithm][]byte, len(hashers))
	for i := range hashers {
		sums[hashers[i].alg] = hashers[i].h.Sum(nil)
	}
	return sums, nil
}

func digestStream(path string, w io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	bufferPool := &hashBufferSmallPool
	if info, statErr := file.Stat(); statErr == nil && info.Size() >= hashLargeBufferThreshold {
		bufferPool = &hashBufferLargePool
	}
	bufferPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufferPtr)
	buffer := *bufferPtr
	for {
		n, readErr := file.Read(buffer)
		if n > 0 {
			if _, err := w.Write(buffer[:n]); err != nil {
				return err
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

func digestMmap(path string, w io.Writer) error {
	r, err := openMmapReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	bufferPtr := hashBufferLargePool.Get().(*[]byte)
	defer hashBufferLargePool.Put(bufferPtr)
	_, err = io.CopyBuffer(w, io.NewSectionReader(r, 0, int64(r.Len())), *bufferPtr)
	return err
}

// Hex renders a digest as lower-case hexadecimal.
func Hex(sum []byte) string { return hex.EncodeToString(sum) }

// Base64 renders a digest in standard base64.
func Base64(sum []byte) string { return base64.StdEncoding.EncodeToString(sum) }
