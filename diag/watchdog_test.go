package diag

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tripline/logger"
)

func init() {
	logger.Init("error")
}

type fakeProfile struct {
	content string
}

func (f fakeProfile) WriteTo(w io.Writer, debug int) error {
	_, err := io.WriteString(w, f.content)
	return err
}

func TestProbeDumpsOnStall(t *testing.T) {
	now := time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	w := NewWatchdog(Options{
		StallThreshold: 2 * time.Second,
		Dir:            dir,
		Progress:       func() (int64, string) { return 42, "/proc/kcore" },
		DumpFlightRecorder: func(path string) error {
			return os.WriteFile(path, []byte("flight"), 0600)
		},
		Now: func() time.Time { return now },
	})
	w.lastCount = 42
	w.lastMoved = now

	w.probe(now.Add(time.Second))
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("dumped before the threshold: %d files", len(entries))
	}

	w.probe(now.Add(3 * time.Second))
	events, _ := filepath.Glob(filepath.Join(dir, "tripline-stall-*.json"))
	flights, _ := filepath.Glob(filepath.Join(dir, "tripline-flight-*.trace"))
	if len(events) != 1 || len(flights) != 1 {
		t.Fatalf("events %d, flight dumps %d", len(events), len(flights))
	}
	data, err := os.ReadFile(events[0])
	if err != nil {
		t.Fatal(err)
	}
	var event map[string]interface{}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatal(err)
	}
	if event["current_object"] != "/proc/kcore" || event["objects"] != float64(42) {
		t.Fatalf("event = %v", event)
	}

	// Rate limited to one dump per threshold.
	w.probe(now.Add(4 * time.Second))
	if events, _ := filepath.Glob(filepath.Join(dir, "tripline-stall-*.json")); len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
}

func TestProbeResetsOnProgress(t *testing.T) {
	now := time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC)
	count := int64(1)
	dir := t.TempDir()
	w := NewWatchdog(Options{
		StallThreshold: time.Second,
		Dir:            dir,
		Progress:       func() (int64, string) { return count, "/etc" },
		Now:            func() time.Time { return now },
	})
	w.lastCount = 1
	w.lastMoved = now
	count = 2
	w.probe(now.Add(5 * time.Second))
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatal("dumped despite progress")
	}
	if !w.lastMoved.Equal(now.Add(5 * time.Second)) {
		t.Fatalf("last moved = %s", w.lastMoved)
	}
}

func TestCloseWritesGoroutineProfile(t *testing.T) {
	dir := t.TempDir()
	w := NewWatchdog(Options{
		Dir:           dir,
		GoroutineLeak: true,
		Now:           func() time.Time { return time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC) },
		ProfileLookup: func(name string) profileWriter {
			if name == "goroutine" {
				return fakeProfile{content: "leak-profile"}
			}
			return nil
		},
	})
	w.Close()

	matches, _ := filepath.Glob(filepath.Join(dir, "tripline-goroutine-*.pprof"))
	if len(matches) != 1 {
		t.Fatalf("expected 1 goroutine profile, got %d", len(matches))
	}
	if _, err := w.writeProfile("heap-missing", 0); err == nil {
		t.Fatal("expected unavailable profile to fail")
	}
}

func TestStartWithoutThresholdIsNoOp(t *testing.T) {
	w := NewWatchdog(Options{Progress: func() (int64, string) { return 0, "" }})
	w.Start(t.Context())
	if w.stopCh != nil {
		t.Fatal("watchdog started without a threshold")
	}
	w.Close()
}
