// Package diag watches long walks for stalls. When no object has been
// visited for a while it writes an event file naming the object the walk is
// stuck on, plus a flight recorder dump when one is running.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"tripline/logger"
)

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

// Progress reports how many objects have been visited and the name of the
// last one.
type Progress func() (count int64, current string)

type Options struct {
	StallThreshold time.Duration
	Dir            string
	// GoroutineLeak writes a goroutine profile on Close.
	GoroutineLeak      bool
	Progress           Progress
	DumpFlightRecorder func(path string) error
	Now                func() time.Time
	ProfileLookup      func(name string) profileWriter
}

type Watchdog struct {
	threshold     time.Duration
	dir           string
	goroutineLeak bool
	progress      Progress
	dumpFlight    func(path string) error
	now           func() time.Time
	lookupProfile func(name string) profileWriter

	mu         sync.Mutex
	lastCount  int64
	lastMoved  time.Time
	lastDumpAt time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewWatchdog(opts Options) *Watchdog {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	lookup := opts.ProfileLookup
	if lookup == nil {
		lookup = func(name string) profileWriter {
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	return &Watchdog{
		threshold:     opts.StallThreshold,
		dir:           dir,
		goroutineLeak: opts.GoroutineLeak,
		progress:      opts.Progress,
		dumpFlight:    opts.DumpFlightRecorder,
		now:           now,
		lookupProfile: lookup,
	}
}

// Start polls progress until ctx ends or Close is called. It does nothing
// without a threshold or a progress source.
func (w *Watchdog) Start(ctx context.Context) {
	if w == nil || w.threshold <= 0 || w.progress == nil || w.stopCh != nil {
		return
	}
	count, _ := w.progress()
	w.mu.Lock()
	w.lastCount = count
	w.lastMoved = w.now()
	w.lastDumpAt = time.Time{}
	w.mu.Unlock()

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	interval := w.threshold / 2
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if interval > 2*time.Second {
		interval = 2 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(w.doneCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.probe(w.now())
			}
		}
	}()
}

func (w *Watchdog) Close() {
	if w == nil {
		return
	}
	if w.stopCh != nil {
		close(w.stopCh)
		<-w.doneCh
		w.stopCh = nil
		w.doneCh = nil
	}
	if w.goroutineLeak {
		if _, err := w.writeProfile("goroutine", 2); err != nil {
			logger.Warnf("Goroutine profile dump failed: %v", err)
		}
	}
}

func (w *Watchdog) probe(now time.Time) {
	if w.progress == nil || w.threshold <= 0 {
		return
	}
	count, current := w.progress()

	w.mu.Lock()
	if count != w.lastCount || w.lastMoved.IsZero() {
		w.lastCount = count
		w.lastMoved = now
		w.mu.Unlock()
		return
	}
	stalled := now.Sub(w.lastMoved)
	dump := stalled >= w.threshold && (w.lastDumpAt.IsZero() || now.Sub(w.lastDumpAt) >= w.threshold)
	if dump {
		w.lastDumpAt = now
	}
	w.mu.Unlock()

	if dump {
		logger.Warnf("No progress for %s, last object %s", stalled.Round(time.Millisecond), current)
		if err := w.dumpStall(now, count, current, stalled); err != nil {
			logger.Warnf("Stall dump failed: %v", err)
		}
	}
}

func (w *Watchdog) dumpStall(now time.Time, count int64, current string, stalled time.Duration) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	ts := now.UTC().Format("20060102-150405.000")
	event := map[string]interface{}{
		"event":          "walk_stalled",
		"timestamp":      now.UTC().Format(time.RFC3339Nano),
		"objects":        count,
		"current_object": current,
		"threshold_ms":   w.threshold.Milliseconds(),
		"stalled_ms":     stalled.Milliseconds(),
	}
	b, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(w.dir, fmt.Sprintf("tripline-stall-%s.json", ts)), b, 0600); err != nil {
		return err
	}
	if w.dumpFlight != nil {
		path := filepath.Join(w.dir, fmt.Sprintf("tripline-flight-%s.trace", ts))
		if err := w.dumpFlight(path); err != nil {
			logger.Warnf("Flight recorder dump failed: %v", err)
		}
	}
	return nil
}

func (w *Watchdog) writeProfile(name string, debug int) (string, error) {
	profile := w.lookupProfile(name)
	if profile == nil {
		return "", fmt.Errorf("pprof profile %q unavailable", name)
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", err
	}
	ts := w.now().UTC().Format("20060102-150405.000")
	path := filepath.Join(w.dir, fmt.Sprintf("tripline-%s-%s.pprof", name, ts))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := profile.WriteTo(f, debug); err != nil {
		return "", err
	}
	return path, nil
}
