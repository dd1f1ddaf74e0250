package async

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultIdleTimeout is how long the monitor waits for a result before
// checking whether the pipeline is exhausted
const DefaultIdleTimeout = time.Second

// Handler consumes one completed item. A non-nil return aborts the run.
type Handler func(WorkItem) error

// Monitor consumes results and decides when the pipeline is done. It only
// declares exhaustion after a quiet period in which the dispatcher has
// started and finished, nothing is in flight and no result is pending.
type Monitor struct {
	pool        *WorkerPool
	dispatcher  *Dispatcher
	idleTimeout time.Duration
	logger      pulseLogger

	lastReason string
}

// NewMonitor creates a monitor; idleTimeout <= 0 uses DefaultIdleTimeout
func NewMonitor(pool *WorkerPool, dispatcher *Dispatcher, idleTimeout time.Duration, logger *zap.SugaredLogger) *Monitor {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Monitor{
		pool:        pool,
		dispatcher:  dispatcher,
		idleTimeout: idleTimeout,
		logger:      pulseLogger{logger.Named("pulse")},
	}
}

// Run hands every result to handle until the pipeline is exhausted. It
// returns the number of results handled. A handler error is returned as is
// and the remaining results are left unconsumed.
func (m *Monitor) Run(ctx context.Context, handle Handler) (int64, error) {
	var handled int64
	timer := time.NewTimer(m.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return handled, ctx.Err()

		case item := <-m.pool.Results():
			if err := handle(item); err != nil {
				return handled + 1, err
			}
			handled++
			timer.Reset(m.idleTimeout)

		case <-timer.C:
			reason := m.waitingOn()
			if reason == "" {
				return handled, nil
			}
			if reason != m.lastReason {
				m.lastReason = reason
				m.logger.Debugw("Waiting", "reason", reason, "handled", handled)
			}
			timer.Reset(m.idleTimeout)
		}
	}
}

// waitingOn returns why the pipeline is not yet exhausted, or "" if it is
func (m *Monitor) waitingOn() string {
	switch {
	case !m.dispatcher.Started():
		return "dispatcher not started"
	case !m.dispatcher.Finished():
		return "dispatcher still reading input"
	case !m.pool.Idle():
		return fmt.Sprintf("%d items in flight", m.pool.InFlight())
	case m.pool.PendingResults() > 0:
		return fmt.Sprintf("%d results pending", m.pool.PendingResults())
	default:
		return ""
	}
}
