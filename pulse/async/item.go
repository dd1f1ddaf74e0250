package async

import (
	"fmt"

	"github.com/teranos/anvil/translate"
)

// WorkItem is one expression travelling through the pipeline. It is a value
// type: WithResult and WithError return modified copies, so a worker never
// shares an item with the dispatcher or monitor.
type WorkItem struct {
	Format     translate.Format
	Expression string
	SourceFile string
	LineNumber int

	Result *translate.Allele
	Error  string
}

// WithResult returns a copy carrying a translation
func (w WorkItem) WithResult(a *translate.Allele) WorkItem {
	w.Result = a
	w.Error = ""
	return w
}

// WithError returns a copy carrying an error message
func (w WorkItem) WithError(msg string) WorkItem {
	w.Result = nil
	w.Error = msg
	return w
}

// Done reports whether the item already carries an outcome. Items that are
// done when dispatched (malformed input lines) are passed through untouched.
func (w WorkItem) Done() bool {
	return w.Result != nil || w.Error != ""
}

// Failed reports whether the item carries an error
func (w WorkItem) Failed() bool {
	return w.Error != ""
}

// Provenance returns "file:line" for logs and evidence
func (w WorkItem) Provenance() string {
	return fmt.Sprintf("%s:%d", w.SourceFile, w.LineNumber)
}

// Source produces work items in input order. yield returns false when the
// consumer has stopped; the source must then return promptly. A non-nil
// return aborts the run.
type Source func(yield func(WorkItem) bool) error

// SliceSource yields items from a slice
func SliceSource(items []WorkItem) Source {
	return func(yield func(WorkItem) bool) error {
		for _, item := range items {
			if !yield(item) {
				return nil
			}
		}
		return nil
	}
}
