// Package pulse holds progress reporting shared by long-running commands.
// The pipeline itself lives in pulse/async.
package pulse

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// ProgressEmitter receives progress updates during a run. Implementations
// must be safe for use from the goroutine consuming pipeline results; the
// pipeline never calls them concurrently.
type ProgressEmitter interface {
	// EmitStage announces the start of a processing stage
	EmitStage(stage string, message string)

	// EmitProgress reports the cumulative count of processed input lines
	EmitProgress(count int, metadata map[string]interface{})

	// EmitComplete announces completion with a summary
	EmitComplete(summary map[string]interface{})

	// EmitError announces an error during processing
	EmitError(stage string, err error)

	// EmitInfo emits a general informational message
	EmitInfo(message string)
}

// NopEmitter discards everything
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, string)                 {}
func (NopEmitter) EmitProgress(int, map[string]interface{}) {}
func (NopEmitter) EmitComplete(map[string]interface{})      {}
func (NopEmitter) EmitError(string, error)                  {}
func (NopEmitter) EmitInfo(string)                          {}

// CLIEmitter draws a pterm progress bar sized by an estimate of the total
// line count. The estimate grows when exceeded.
type CLIEmitter struct {
	verbosity int
	estimate  int
	disabled  bool

	mu      sync.Mutex
	bar     *pterm.ProgressbarPrinter
	current int
}

// NewCLIEmitter creates a terminal emitter. With disableBar set, progress is
// tracked but no bar is drawn.
func NewCLIEmitter(verbosity, estimatedLines int, disableBar bool) *CLIEmitter {
	if estimatedLines < 1 {
		estimatedLines = 1
	}
	return &CLIEmitter{verbosity: verbosity, estimate: estimatedLines, disabled: disableBar}
}

// EmitStage prints a stage announcement
func (e *CLIEmitter) EmitStage(stage string, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopBar()
	pterm.Printf("%s %s: %s\n", pterm.Gray("→"), pterm.LightCyan(stage), message)
}

// EmitProgress advances the bar to count
func (e *CLIEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delta := count - e.current
	if delta <= 0 {
		return
	}
	e.current = count
	if e.disabled {
		return
	}

	if e.bar == nil {
		title := "Annotating"
		if file, ok := metadata["file"].(string); ok && file != "" {
			title = file
		}
		bar, err := pterm.DefaultProgressbar.
			WithTotal(e.estimate).
			WithTitle(title).
			WithRemoveWhenDone(true).
			Start()
		if err != nil {
			e.disabled = true
			return
		}
		e.bar = bar
		delta = count
	}
	if e.bar.Current+delta > e.bar.Total {
		e.bar.Total = e.bar.Current + delta + e.estimate/10 + 1
	}
	e.bar.Add(delta)
}

// Current returns the last reported count
func (e *CLIEmitter) Current() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// EmitComplete stops the bar and prints the summary at -v and above
func (e *CLIEmitter) EmitComplete(summary map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopBar()

	pterm.Success.Println("Annotation complete")
	if e.verbosity >= 1 {
		for key, value := range summary {
			pterm.Printf("  %s: %v\n", key, value)
		}
	}
}

// EmitError prints an error
func (e *CLIEmitter) EmitError(stage string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopBar()
	pterm.Error.Printf("Error in %s: %v\n", stage, err)
}

// EmitInfo prints a message at -v and above
func (e *CLIEmitter) EmitInfo(message string) {
	if e.verbosity >= 1 {
		pterm.Info.Println(message)
	}
}

func (e *CLIEmitter) stopBar() {
	if e.bar != nil {
		_, _ = e.bar.Stop()
		e.bar = nil
	}
}

// ProgressEvent is one line written by JSONEmitter
type ProgressEvent struct {
	Type      string                 `json:"type"` // stage, progress, complete, error, info
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// JSONEmitter writes newline-delimited ProgressEvents, for --json-logs runs
// where a bar would corrupt the log stream
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

// NewJSONEmitter writes events to w
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w), now: time.Now}
}

func (e *JSONEmitter) emit(kind string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.enc.Encode(ProgressEvent{Type: kind, Timestamp: e.now().UTC(), Data: data})
}

func (e *JSONEmitter) EmitStage(stage string, message string) {
	e.emit("stage", map[string]interface{}{"stage": stage, "message": message})
}

func (e *JSONEmitter) EmitProgress(count int, metadata map[string]interface{}) {
	data := map[string]interface{}{"count": count}
	for k, v := range metadata {
		data[k] = v
	}
	e.emit("progress", data)
}

func (e *JSONEmitter) EmitComplete(summary map[string]interface{}) {
	e.emit("complete", summary)
}

func (e *JSONEmitter) EmitError(stage string, err error) {
	e.emit("error", map[string]interface{}{"stage": stage, "error": fmt.Sprint(err)})
}

func (e *JSONEmitter) EmitInfo(message string) {
	e.emit("info", map[string]interface{}{"message": message})
}
