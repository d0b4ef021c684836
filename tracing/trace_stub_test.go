//go:build !trace

package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStubHooksAreNoOps(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	if err := Start(path); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	Stop()
	if _, err := os.Stat(path); err == nil {
		t.Fatal("stub Start must not create a trace file")
	}

	ctx, endTask := StartTask(context.Background(), "walk_spec")
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	endTask()
	StartRegion(ctx, "capture")()
	Log(ctx, "start", "/etc")
}

func TestWriteFlightRecorderWithoutStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flight.out")
	if err := WriteFlightRecorder(path); err != nil {
		t.Fatalf("WriteFlightRecorder() returned error without recorder: %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatal("expected no file to be written when recorder is disabled")
	}
}
