package logger

import "go.uber.org/zap/zapcore"

// Verbosity levels for the -v flag count
const (
	VerbosityUser  = 0 // warnings and errors only
	VerbosityInfo  = 1 // -v: + pipeline lifecycle, per-file progress
	VerbosityDebug = 2 // -vv: + cache hits, store operations, child launches
	VerbosityTrace = 3 // -vvv: + per-item translation traces
)

// VerbosityToLevel maps the -v count to a zap level.
// Trace shares DebugLevel with Debug; callers gate per-item logs on ShouldLogTrace.
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

// ShouldLogTrace returns true for verbosity >= 3 (-vvv)
func ShouldLogTrace(verbosity int) bool {
	return verbosity >= VerbosityTrace
}

// LevelName returns a human-readable name for a verbosity level
func LevelName(verbosity int) string {
	switch {
	case verbosity <= VerbosityUser:
		return "User"
	case verbosity == VerbosityInfo:
		return "Info (-v)"
	case verbosity == VerbosityDebug:
		return "Debug (-vv)"
	default:
		return "Trace (-vvv)"
	}
}
