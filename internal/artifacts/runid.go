// Package artifacts manages the side-channel artifact directory: run
// directories for verification attempts, milestone context snapshots,
// the diagnostic report, and retention cleanup.
package artifacts

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run IDs look like run_20260115_142233_a1b2c3: a UTC timestamp plus a
// random suffix so concurrent processes can never collide.
const (
	runIDPrefix  = "run"
	suffixLength = 6
)

// NewRunID generates a unique run identifier.
func NewRunID() string {
	return newID(runIDPrefix, time.Now().UTC())
}

func newID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLength]
	return prefix + "_" + now.Format("20060102_150405") + "_" + suffix
}

// IsRunID reports whether s has the shape of a run identifier.
func IsRunID(s string) bool {
	_, ok := ParseRunTime(s)
	return ok
}

// ParseRunTime extracts the embedded UTC timestamp from a run ID.
func ParseRunTime(runID string) (time.Time, bool) {
	parts := strings.Split(runID, "_")
	if len(parts) != 4 || parts[0] != runIDPrefix {
		return time.Time{}, false
	}
	if len(parts[3]) != suffixLength {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation("20060102_150405", parts[1]+"_"+parts[2], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
