package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tripline/config"
	"tripline/logger"
	"tripline/release"
	"tripline/report"
	"tripline/tracing"
	"tripline/version"
)

// Exit status bits, as reported by check and print-report.
const (
	exitAdded   = 1
	exitRemoved = 2
	exitChanged = 4
	exitFailure = 8
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return exitFailure
	}

	logger.Init(cfg.LogLevel)

	if cfg.TraceFile != "" {
		if err := tracing.Start(cfg.TraceFile); err != nil {
			logger.Warnf("Failed to start trace: %v", err)
		} else {
			defer tracing.Stop()
		}
	}

	if cfg.TraceFlight {
		if err := tracing.StartFlightRecorder(cfg.TraceFlightMaxBytes, cfg.TraceFlightMinAge); err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			defer func() {
				if err := tracing.WriteFlightRecorder(cfg.TraceFlightFile); err != nil {
					logger.Warnf("Failed to write flight recorder: %v", err)
				}
				tracing.StopFlightRecorder()
			}()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, cfg.Timeout)
		defer cancelTimeout()
	}

	go handleSignals(cancel, cfg.TraceFlight, cfg.TraceFlightFile)

	if cfg.CheckUpdate {
		checkRelease(ctx, cfg.UpdateURL)
	}

	a := newApp(cfg)
	defer a.close()
	code, err := a.dispatch(ctx)
	if err != nil {
		logger.Errorf("%s failed: %v", cfg.Mode, err)
		return exitFailure
	}
	return code
}

// checkRelease only logs; a failed lookup never blocks the run.
func checkRelease(ctx context.Context, url string) {
	info, err := release.Check(ctx, version.Version, url)
	if err != nil {
		logger.Warnf("Release check failed: %v", err)
		return
	}
	if !info.Newer {
		logger.Debugf("Running the latest release (%s)", version.Version)
		return
	}
	if info.Security() {
		logger.Warnf("Security release %s is available (running %s)", info.Version, version.Version)
		return
	}
	logger.Infof("Release %s is available (running %s)", info.Version, version.Version)
}

func handleSignals(cancelFunc context.CancelFunc, traceFlight bool, traceFlightFile string) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	handleSignalEvent(cancelFunc, traceFlight, traceFlightFile, sigChan)
}

func handleSignalEvent(cancelFunc context.CancelFunc, traceFlight bool, traceFlightFile string, sigChan <-chan os.Signal) {
	sig := <-sigChan
	logger.Infof("Signal %v received. Stopping after the current object...", sig)

	if traceFlight {
		if err := tracing.WriteFlightRecorder(traceFlightFile); err != nil {
			logger.Warnf("Failed to write flight recorder: %v", err)
		}
	}

	cancelFunc()
}

// exitCode folds a report summary into the exit status bits.
func exitCode(sum report.Summary) int {
	code := 0
	if sum.Added > 0 {
		code |= exitAdded
	}
	if sum.Removed > 0 {
		code |= exitRemoved
	}
	if sum.Changed > 0 {
		code |= exitChanged
	}
	if sum.Errors > 0 {
		code |= exitFailure
	}
	return code
}
