//go:build !trace

package tracing

import (
	"context"
	"os"
	"runtime/trace"
	"time"
)

const DefaultFile = "tripline.trace"

var flightRecorder *trace.FlightRecorder

// Start is a no-op without the trace build tag.
func Start(path string) error {
	return nil
}

func Stop() {}

func StartTask(ctx context.Context, name string) (context.Context, func()) {
	return ctx, func() {}
}

func StartRegion(ctx context.Context, name string) func() {
	return func() {}
}

func Log(ctx context.Context, category, message string) {}

// StartFlightRecorder works in every build; stall dumps rely on it.
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
