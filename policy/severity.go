package policy

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	SeverityLow    = 33
	SeverityMedium = 66
	SeverityHigh   = 100
	SeverityMax    = 1000
)

// ParseSeverity accepts a bucket name or a number in 0..1000. Empty means 0.
func ParseSeverity(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return 0, nil
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid severity %q", s)
	}
	if n < 0 || n > SeverityMax {
		return 0, fmt.Errorf("severity %d outside 0..%d", n, SeverityMax)
	}
	return n, nil
}

// SeverityName returns the bucket a severity falls into.
func SeverityName(n int) string {
	switch {
	case n >= SeverityHigh:
		return "high"
	case n >= SeverityMedium:
		return "medium"
	case n >= SeverityLow:
		return "low"
	}
	return "none"
}
