package hasher

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/exp/mmap"

	"tripline/logger"
)

func init() {
	logger.Init("error")
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hash-test")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return path
}

func TestComputeKnownDigests(t *testing.T) {
	path := writeTemp(t, "hello world")
	sums, err := Compute(path, []Algorithm{MD5, SHA1, SHA256, CRC32, "unknown"}, Options{Mode: ModeStream})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if Hex(sums[MD5]) != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 mismatch: %s", Hex(sums[MD5]))
	}
	if Hex(sums[SHA1]) != "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed" {
		t.Errorf("sha1 mismatch: %s", Hex(sums[SHA1]))
	}
	if Hex(sums[SHA256]) != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("sha256 mismatch: %s", Hex(sums[SHA256]))
	}
	if Hex(sums[CRC32]) != "0d4a1185" {
		t.Errorf("crc32 mismatch: %s", Hex(sums[CRC32]))
	}
	if _, ok := sums["unknown"]; ok {
		t.Errorf("unexpected hash for unknown algorithm")
	}
}

func TestReadModesAgree(t *testing.T) {
	path := writeTemp(t, strings.Repeat("tripline baseline content\n", 20000))
	algs := []Algorithm{MD5, SHA256, XXHash, BLAKE3}
	base, err := Compute(path, algs, Options{Mode: ModeStream})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(base[XXHash]) != 8 || len(base[BLAKE3]) != 32 {
		t.Fatalf("unexpected digest sizes: xxhash=%d blake3=%d", len(base[XXHash]), len(base[BLAKE3]))
	}
	for _, mode := range []ReadMode{ModeMmap, ModeDirect, ModeAuto} {
		got, err := Compute(path, algs, Options{Mode: mode, MmapMinSize: 1})
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		for _, alg := range algs {
			if !bytes.Equal(got[alg], base[alg]) {
				t.Errorf("%s %s differs from stream", mode, alg)
			}
		}
	}
}

func TestMmapFailureFallsBack(t *testing.T) {
	path := writeTemp(t, "hello world")
	orig := openMmapReader
	openMmapReader = func(string) (*mmap.ReaderAt, error) {
		return nil, errors.New("forced mmap failure")
	}
	defer func() { openMmapReader = orig }()

	sums, err := Compute(path, []Algorithm{MD5}, Options{Mode: ModeMmap})
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if Hex(sums[MD5]) != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 mismatch after fallback: %s", Hex(sums[MD5]))
	}
}

func TestMissingFileIsError(t *testing.T) {
	_, err := Compute(filepath.Join(t.TempDir(), "gone"), []Algorithm{SHA256}, Options{})
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestEmptyFileMmap(t *testing.T) {
	path := writeTemp(t, "")
	sums, err := Compute(path, []Algorithm{SHA256}, Options{Mode: ModeMmap})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if Hex(sums[SHA256]) != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("empty sha256 mismatch: %s", Hex(sums[SHA256]))
	}
}

func TestParseReadMode(t *testing.T) {
	if m, err := ParseReadMode(""); err != nil || m != ModeAuto {
		t.Fatalf("empty mode: %v %v", m, err)
	}
	if m, err := ParseReadMode(" Direct "); err != nil || m != ModeDirect {
		t.Fatalf("direct mode: %v %v", m, err)
	}
	if _, err := ParseReadMode("turbo"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestDisplayEncodings(t *testing.T) {
	sum := []byte{0xde, 0xad, 0xbe, 0xef}
	if Hex(sum) != "deadbeef" || Base64(sum) != "3q2+7w==" {
		t.Fatalf("unexpected encodings %s %s", Hex(sum), Base64(sum))
	}
}
