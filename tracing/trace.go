//go:build trace

// Package tracing wraps runtime/trace. Builds without the trace tag get
// no-op hooks except for the flight recorder.
package tracing

import (
	"context"
	"os"
	"runtime/trace"
	"time"
)

// DefaultFile is where Start writes when given an empty path.
const DefaultFile = "tripline.trace"

var traceFile *os.File
var flightRecorder *trace.FlightRecorder

// Start enables runtime tracing into path.
func Start(path string) error {
	if path == "" {
		path = DefaultFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return err
	}
	traceFile = f
	return nil
}

// Stop ends runtime tracing and closes the trace file.
func Stop() {
	trace.Stop()
	if traceFile != nil {
		traceFile.Close()
		traceFile = nil
	}
}

// StartTask begins a trace task, e.g. one rule walk, and returns the derived
// context and the function ending it.
func StartTask(ctx context.Context, name string) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, name)
	return ctx, task.End
}

func StartRegion(ctx context.Context, name string) func() {
	region := trace.StartRegion(ctx, name)
	return region.End
}

func Log(ctx context.Context, category, message string) {
	trace.Log(ctx, category, message)
}

// StartFlightRecorder keeps the last minAge of trace data in memory, capped
// at maxBytes.
func StartFlightRecorder(maxBytes uint64, minAge time.Duration) error {
	flightRecorder = trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MaxBytes: maxBytes,
		MinAge:   minAge,
	})
	return flightRecorder.Start()
}

func StopFlightRecorder() {
	if flightRecorder != nil {
		flightRecorder.Stop()
		flightRecorder = nil
	}
}

// WriteFlightRecorder dumps the recorder window to path. It does nothing
// when the recorder is not running.
func WriteFlightRecorder(path string) error {
	if flightRecorder == nil || !flightRecorder.Enabled() {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = flightRecorder.WriteTo(f)
	return err
}
