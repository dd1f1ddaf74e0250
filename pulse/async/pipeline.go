// Package async runs the translation pipeline: a dispatcher reading work
// items from a source, a pool of workers each owning a translator, and a
// monitor consuming results until the input is exhausted.
package async

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/translate"
)

// Config sizes the pipeline
type Config struct {
	Workers int
	// QueueCapacity bounds both the task and result channels; 0 means 2×Workers
	QueueCapacity int
	// IdleTimeout is the monitor's quiet period; 0 means DefaultIdleTimeout
	IdleTimeout time.Duration
	// CacheEntries is the per-worker cache size, used only for the memory check
	CacheEntries int
}

// Stats summarises one run
type Stats struct {
	Dispatched int64
	// Completed counts results handed to the handler
	Completed int64
	Aborted   bool
	Workers   int
	Panics    int64
	Errors    map[ErrorCode]int64
	Duration  time.Duration
}

// Run wires a pool, a dispatcher and a monitor together and blocks until the
// source is exhausted and every result has been handled, or until handle
// returns an error. On a handler error the run is cancelled, the remaining
// items are not drained and the error is returned with Stats.Aborted set.
func Run(ctx context.Context, cfg Config, factory translate.Factory, source Source, handle Handler, logger *zap.SugaredLogger) (Stats, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity < 1 {
		cfg.QueueCapacity = 2 * cfg.Workers
	}
	start := time.Now()
	stats := Stats{Workers: cfg.Workers}

	pool, err := NewWorkerPool(factory, cfg.Workers, cfg.QueueCapacity, logger)
	if err != nil {
		return stats, err
	}
	if cfg.CacheEntries > 0 {
		if warning := pool.checkMemoryPressure(cfg.CacheEntries); warning != "" {
			pool.logger.Warnw(warning)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool.Start(runCtx)
	dispatcher := NewDispatcher(pool, source, logger)
	go dispatcher.Run(runCtx)

	monitor := NewMonitor(pool, dispatcher, cfg.IdleTimeout, logger)
	completed, monErr := monitor.Run(runCtx, handle)

	if monErr != nil {
		cancel()
	}
	<-dispatcher.Done()
	pool.Wait()

	stats.Dispatched = dispatcher.Dispatched()
	stats.Completed = completed
	stats.Panics = pool.Panics()
	stats.Errors = pool.ErrorCodes()
	stats.Duration = time.Since(start)

	if monErr != nil {
		stats.Aborted = true
		pool.logger.Closing("Pipeline aborted",
			"dispatched", stats.Dispatched,
			"completed", stats.Completed,
			"error", monErr,
		)
		if ctx.Err() != nil {
			return stats, errors.Wrap(ctx.Err(), "pipeline cancelled")
		}
		return stats, monErr
	}
	if err := dispatcher.Err(); err != nil {
		stats.Aborted = true
		return stats, errors.Wrap(err, "read input")
	}

	sys := pool.GetSystemMetrics()
	pool.logger.Closing("Pipeline drained",
		"dispatched", stats.Dispatched,
		"completed", stats.Completed,
		"duration_ms", stats.Duration.Milliseconds(),
		"memory_percent", sys.MemoryPercent,
	)
	return stats, nil
}
