// Package progress scans single lines of yt-dlp output for progress,
// completion and error signals. Everything here is pure: callers own the
// task state and decide what a signal means for it.
package progress

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	progressPrefix = "[download]"
	progressMarker = "% of"
)

// ParseProgressLine extracts the percentage from a "[download]  45.2% of ~10MiB"
// line. ok is false when the line carries no progress marker at all; err is
// set when the marker is there but the number cannot be read.
func ParseProgressLine(line string) (percent float64, ok bool, err error) {
	start := strings.Index(line, progressPrefix)
	if start < 0 {
		return 0, false, nil
	}
	end := strings.Index(line[start:], progressMarker)
	if end < 0 {
		return 0, false, nil
	}

	raw := strings.TrimSpace(line[start+len(progressPrefix) : start+end])
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse progress %q: %w", raw, err)
	}
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	return value, true, nil
}

var completionMarkers = []string{
	"Merging formats into",
	"has already been downloaded",
	"Destination:",
}

// IsCompletionSignal reports whether the line announces a merge, an already
// downloaded file or an output destination.
func IsCompletionSignal(line string) bool {
	for _, m := range completionMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

var errorMarkers = []string{"ERROR", "Error", "Failed", "failed", "错误", "失败"}

// IsErrorLine reports whether the line looks like an error report of any kind.
func IsErrorLine(line string) bool {
	for _, m := range errorMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}
