// Package budget enforces the run-level error budget.
package budget

import (
	"fmt"
	"sync"

	"github.com/teranos/anvil/errors"
)

// ErrorBudget counts per-item errors against a maximum. The run aborts on the
// first error that takes the count past max, so max=1 tolerates one error
// and stops on the second.
type ErrorBudget struct {
	max int

	mu    sync.Mutex
	count int
}

// NewErrorBudget creates a budget allowing max errors; negative is treated as 0
func NewErrorBudget(max int) *ErrorBudget {
	if max < 0 {
		max = 0
	}
	return &ErrorBudget{max: max}
}

// Record counts one error and returns ErrBudgetExceeded once count > max.
// Every call after the budget is exceeded keeps returning the error.
func (b *ErrorBudget) Record() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	if b.count <= b.max {
		return nil
	}
	err := errors.Wrapf(errors.ErrBudgetExceeded, "%d errors (max %d)", b.count, b.max)
	err = errors.WithDetail(err, fmt.Sprintf("Errors recorded: %d", b.count))
	err = errors.WithDetail(err, fmt.Sprintf("Max errors: %d", b.max))
	return errors.WithHint(err, "inspect the metrics file error histogram, or raise --max-errors")
}

// Count returns errors recorded so far
func (b *ErrorBudget) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Max returns the configured budget
func (b *ErrorBudget) Max() int {
	return b.max
}

// Exceeded reports whether the budget has been blown
func (b *ErrorBudget) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count > b.max
}

// Remaining returns how many more errors are tolerated
func (b *ErrorBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count >= b.max {
		return 0
	}
	return b.max - b.count
}
