package logger

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// TimestampLayout is shared by every timestamped artifact anvil writes
// (logs, metrics, registries, child manifests).
const TimestampLayout = "20060102_150405"

var logFilePattern = regexp.MustCompile(`^anvil_(\d{8}_\d{6})_(\d+)\.log$`)

// LogFileName returns the per-process log path inside stateDir.
// The pid suffix lets sibling scatter processes share one state directory.
func LogFileName(stateDir, timestamp string, pid int) string {
	return filepath.Join(stateDir, fmt.Sprintf("anvil_%s_%d.log", timestamp, pid))
}

// ParseLogFileName extracts the timestamp and pid from a log file base name
func ParseLogFileName(name string) (timestamp string, pid int, ok bool) {
	m := logFilePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", 0, false
	}
	pid, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], pid, true
}
