package logger

import (
	"go.uber.org/zap"
)

// Standard field names for structured logging.
// Use these instead of raw strings so log files stay queryable.
const (
	// Provenance of a work item
	FieldFile       = "file"
	FieldLine       = "line"
	FieldExpression = "expression"
	FieldFormat     = "format"
	FieldVRSID      = "vrs_id"

	// Pipeline
	FieldWorker     = "worker"
	FieldWorkers    = "workers"
	FieldDispatched = "dispatched"
	FieldCompleted  = "completed"
	FieldCount      = "count"
	FieldErrors     = "errors"
	FieldMaxErrors  = "max_errors"

	// Processes and files
	FieldPID      = "pid"
	FieldManifest = "manifest"
	FieldPath     = "path"
	FieldRunID    = "run_id"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Glyph from the sym package
	FieldSymbol = "symbol"
)

// ComponentLogger returns a named child of the global logger
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
