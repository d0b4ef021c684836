package main

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"

	"tripline/fco"
)

// progressTracker feeds the spinner and answers the watchdog's progress
// probe.
type progressTracker struct {
	bar   *progressbar.ProgressBar
	count atomic.Int64

	mu      sync.Mutex
	current string
}

func newProgressTracker(enabled bool, description string) *progressTracker {
	return &progressTracker{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetVisibility(enabled && progressVisible()),
			progressbar.OptionFullWidth(),
		),
	}
}

func (p *progressTracker) Visit(spec string, name fco.Name) {
	p.count.Add(1)
	p.mu.Lock()
	p.current = spec + ": " + name.String()
	p.mu.Unlock()
	_ = p.bar.Add(1)
}

func (p *progressTracker) Snapshot() (int64, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count.Load(), p.current
}

func (p *progressTracker) Finish() {
	_ = p.bar.Finish()
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("TRIPLINE_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
