package async

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/sym"
	"github.com/teranos/anvil/translate"
)

const panicPrefix = "panic: "

// errNoAllele is the error result for a service that answered without an allele
const errNoAllele = "service returned no allele"

// pulseLogger wraps zap.SugaredLogger with special methods for Pulse operations
// Uses different log levels to create visual distinction:
// - DEBUG level → STARTING (✿ Opening operations)
// - WARN level → CLOSING (❀ Closing operations)
// - INFO level → PULSE (general worker operations)
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(sym.PulseOpen+" "+msg, keysAndValues...)
}

// Closing logs a Closing (❀) event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(sym.PulseClose+" "+msg, keysAndValues...)
}

// Pulse logs general worker operations
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	l.Infow(sym.Pulse+" "+msg, keysAndValues...)
}

// WorkerState is the externally visible state of one worker
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerBusy
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerBusy:
		return "busy"
	case WorkerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type worker struct {
	id         int
	translator translate.Service
	state      atomic.Int32
	processed  atomic.Int64
}

// WorkerPool runs N workers reading from a bounded task channel and writing
// to a bounded result channel. Each worker owns a private translator built
// by the factory, so translators need no locking.
//
// The in-flight gauge counts items between Submit and the worker's push to
// the result channel. Together with the result channel length it tells the
// monitor whether anything is still moving.
type WorkerPool struct {
	workers []*worker
	tasks   chan WorkItem
	results chan WorkItem

	inFlight atomic.Int64
	panics   atomic.Int64

	mu     sync.Mutex
	codes  map[ErrorCode]int64
	closed bool

	wg     sync.WaitGroup
	logger pulseLogger
}

// NewWorkerPool builds the pool and one translator per worker. A factory
// failure is a setup error.
func NewWorkerPool(factory translate.Factory, workers, capacity int, logger *zap.SugaredLogger) (*WorkerPool, error) {
	if workers < 1 {
		return nil, errors.NewInvalidRequestError("worker count must be at least 1, got %d", workers)
	}
	if capacity < 1 {
		capacity = 2 * workers
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	wp := &WorkerPool{
		tasks:   make(chan WorkItem, capacity),
		results: make(chan WorkItem, capacity),
		codes:   make(map[ErrorCode]int64),
		logger:  pulseLogger{logger.Named("pulse")},
	}
	for i := 0; i < workers; i++ {
		t, err := factory()
		if err != nil {
			return nil, errors.Wrapf(err, "create translator for worker %d", i)
		}
		wp.workers = append(wp.workers, &worker{id: i, translator: t})
	}
	return wp, nil
}

// Start launches the workers. They exit when the task channel is closed or
// ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.logger.Starting("Worker pool starting",
		"workers", len(wp.workers),
		"capacity", cap(wp.tasks),
	)
	for _, w := range wp.workers {
		wp.wg.Add(1)
		go wp.run(ctx, w)
	}
}

// Submit hands an item to the workers, blocking while the task channel is
// full. The item counts as in flight from the moment Submit is called.
func (wp *WorkerPool) Submit(ctx context.Context, item WorkItem) error {
	wp.inFlight.Add(1)
	select {
	case wp.tasks <- item:
		return nil
	case <-ctx.Done():
		wp.inFlight.Add(-1)
		return ctx.Err()
	}
}

// CloseTasks signals that no more items will be submitted. Safe to call twice.
func (wp *WorkerPool) CloseTasks() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if !wp.closed {
		wp.closed = true
		close(wp.tasks)
	}
}

// Results is the channel workers push completed items to
func (wp *WorkerPool) Results() <-chan WorkItem {
	return wp.results
}

// InFlight returns the number of submitted items whose result has not yet
// been pushed
func (wp *WorkerPool) InFlight() int64 {
	return wp.inFlight.Load()
}

// Idle reports whether no item is queued or being processed
func (wp *WorkerPool) Idle() bool {
	return wp.inFlight.Load() == 0
}

// PendingResults returns the number of results waiting to be consumed
func (wp *WorkerPool) PendingResults() int {
	return len(wp.results)
}

// States returns each worker's current state
func (wp *WorkerPool) States() []WorkerState {
	out := make([]WorkerState, len(wp.workers))
	for i, w := range wp.workers {
		out[i] = WorkerState(w.state.Load())
	}
	return out
}

// ActiveWorkers counts busy workers
func (wp *WorkerPool) ActiveWorkers() int {
	n := 0
	for _, s := range wp.States() {
		if s == WorkerBusy {
			n++
		}
	}
	return n
}

// Size returns the configured number of workers
func (wp *WorkerPool) Size() int {
	return len(wp.workers)
}

// Panics returns how many translations panicked
func (wp *WorkerPool) Panics() int64 {
	return wp.panics.Load()
}

// ErrorCodes returns a snapshot of error counts by classification
func (wp *WorkerPool) ErrorCodes() map[ErrorCode]int64 {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	out := make(map[ErrorCode]int64, len(wp.codes))
	for k, v := range wp.codes {
		out[k] = v
	}
	return out
}

// Wait blocks until every worker has exited
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) run(ctx context.Context, w *worker) {
	defer wp.wg.Done()
	defer w.state.Store(int32(WorkerStopped))

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-wp.tasks:
			if !ok {
				wp.logger.Debugw("Worker drained", "worker_id", w.id, "processed", w.processed.Load())
				return
			}
			out := wp.process(ctx, w, item)
			select {
			case wp.results <- out:
				wp.inFlight.Add(-1)
			case <-ctx.Done():
				wp.inFlight.Add(-1)
				return
			}
		}
	}
}

func (wp *WorkerPool) process(ctx context.Context, w *worker, item WorkItem) (out WorkItem) {
	if item.Done() {
		return item
	}

	w.state.Store(int32(WorkerBusy))
	defer w.state.Store(int32(WorkerIdle))
	defer w.processed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			wp.panics.Add(1)
			wp.count(ErrorCodePanic)
			wp.logger.Errorw("Translator panicked",
				"worker_id", w.id,
				"expression", item.Expression,
				"file", item.SourceFile,
				"line", item.LineNumber,
				"panic", r,
			)
			out = item.WithError(fmt.Sprintf("%s%v", panicPrefix, r))
		}
	}()

	allele, err := w.translator.Translate(ctx, item.Expression, item.Format)
	if err != nil {
		code := ClassifyError(err)
		wp.count(code)
		wp.logger.Debugw("Translation failed",
			"worker_id", w.id,
			"expression", item.Expression,
			"format", item.Format,
			"code", code,
			"error", err,
		)
		return item.WithError(err.Error())
	}
	if allele == nil {
		wp.count(ErrorCodeUnknown)
		return item.WithError(errNoAllele)
	}
	return item.WithResult(allele)
}

func (wp *WorkerPool) count(code ErrorCode) {
	wp.mu.Lock()
	wp.codes[code]++
	wp.mu.Unlock()
}
