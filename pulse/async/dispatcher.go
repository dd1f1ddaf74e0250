package async

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Dispatcher feeds the pool from a Source on a single goroutine. The
// started and finished flags are what the monitor uses to tell an empty
// moment from the end of input.
type Dispatcher struct {
	pool   *WorkerPool
	source Source
	logger pulseLogger

	started    atomic.Bool
	finished   atomic.Bool
	dispatched atomic.Int64

	err  error
	done chan struct{}
}

// NewDispatcher creates a dispatcher for source
func NewDispatcher(pool *WorkerPool, source Source, logger *zap.SugaredLogger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{
		pool:   pool,
		source: source,
		logger: pulseLogger{logger.Named("pulse")},
		done:   make(chan struct{}),
	}
}

// Run pushes every item into the pool, blocking whenever the task channel is
// full, then closes the task channel. Cancelling ctx stops the source early.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	d.started.Store(true)

	err := d.source(func(item WorkItem) bool {
		if err := d.pool.Submit(ctx, item); err != nil {
			return false
		}
		d.dispatched.Add(1)
		return true
	})
	if err != nil {
		d.err = err
		d.logger.Errorw("Input source failed", "dispatched", d.dispatched.Load(), "error", err)
	}

	d.pool.CloseTasks()
	d.finished.Store(true)
	d.logger.Pulse("Dispatcher finished", "dispatched", d.dispatched.Load())
}

// Started reports whether Run has begun
func (d *Dispatcher) Started() bool {
	return d.started.Load()
}

// Finished reports whether the source is exhausted and the task channel closed
func (d *Dispatcher) Finished() bool {
	return d.finished.Load()
}

// Dispatched returns how many items were handed to the pool
func (d *Dispatcher) Dispatched() int64 {
	return d.dispatched.Load()
}

// Done is closed when Run returns
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Err returns the source error; only valid after Done is closed
func (d *Dispatcher) Err() error {
	return d.err
}
