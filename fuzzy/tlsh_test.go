package fuzzy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTLSHRegistered(t *testing.T) {
	if _, ok := Lookup("TLSH"); !ok {
		t.Fatal("tlsh hasher not registered")
	}
	if names := Available(); len(names) == 0 || names[0] != "tlsh" {
		t.Fatalf("unexpected registry contents %v", names)
	}
	if _, err := HashFile("ssdeep", "/dev/null"); err == nil {
		t.Fatal("expected error for unknown hasher")
	}
}

func TestTLSHSmallFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small")
	if err := os.WriteFile(path, []byte("tiny"), 0o600); err != nil {
		t.Fatal(err)
	}
	digest, err := HashFile("tlsh", path)
	if err != nil || digest != "" {
		t.Fatalf("expected empty digest, got %q %v", digest, err)
	}
}

func TestTLSHStableDigest(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 400; i++ {
		fmt.Fprintf(&b, "line %d of a configuration file with value=%x\n", i, i*7919)
	}
	path := filepath.Join(t.TempDir(), "conf")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	first, err := HashFile("tlsh", path)
	if err != nil || first == "" {
		t.Fatalf("expected digest, got %q %v", first, err)
	}
	second, _ := HashFile("tlsh", path)
	if first != second {
		t.Fatalf("digest not stable: %s vs %s", first, second)
	}
}

func TestTLSHMissingFile(t *testing.T) {
	if _, err := HashFile("tlsh", filepath.Join(t.TempDir(), "gone")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
