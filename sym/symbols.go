// Package sym defines the glyphs anvil prints in CLI output and attaches to
// log lines. They are stable across commands so logs stay greppable.
package sym

// Pipeline glyphs.
const (
	Pulse      = "꩜" // worker pool and dispatcher activity
	PulseOpen  = "✿" // pipeline startup
	PulseClose = "❀" // pipeline drained or aborted
	DB         = "⊔" // SQLite storage layer
)

// Domain glyphs.
const (
	Variant  = "⨳" // variant ingestion from VCF inputs
	MetaKB   = "∈" // knowledge-base membership
	Scatter  = "⋔" // scatter/gather child processes
	Manifest = "≡" // run manifest (am)
)

var descriptions = map[string]string{
	Pulse:      "Worker pool and dispatcher",
	PulseOpen:  "Pipeline startup",
	PulseClose: "Pipeline drained or aborted",
	DB:         "Storage layer",
	Variant:    "Variant ingestion",
	MetaKB:     "Knowledge-base membership",
	Scatter:    "Scatter/gather child processes",
	Manifest:   "Run manifest",
}

// Describe returns a short description of a glyph, or "" if it is unknown.
func Describe(glyph string) string {
	return descriptions[glyph]
}
