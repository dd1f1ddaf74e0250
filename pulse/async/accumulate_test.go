package async_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/anvil/annotate"
	"github.com/teranos/anvil/pulse/async"
	"github.com/teranos/anvil/pulse/budget"
	"github.com/teranos/anvil/translate"
)

// Results flow into the same accumulator the annotate command uses, and the
// run ends one quiet period after the last result instead of waiting on a
// stuck queue.
func TestRun_FourWorkersCapacityTwoIntoAccumulator(t *testing.T) {
	const idle = 50 * time.Millisecond
	const source = "kirby.vcf"

	work := make([]async.WorkItem, 10)
	for i := range work {
		work[i] = async.WorkItem{
			Format:     translate.FormatGnomad,
			Expression: fmt.Sprintf("1-%d-A-T", 2000+i),
			SourceFile: source,
			LineNumber: i + 1,
		}
	}

	svc := &translate.FakeService{Latency: time.Millisecond}
	factory := func() (translate.Service, error) { return svc, nil }

	acc := annotate.NewAccumulator(annotate.AccumulatorOptions{
		Budget: budget.NewErrorBudget(0),
		Logger: zaptest.NewLogger(t).Sugar(),
	})
	acc.StartFile(source)

	var (
		mu         sync.Mutex
		lastHandle time.Time
	)
	handle := func(item async.WorkItem) error {
		mu.Lock()
		lastHandle = time.Now()
		mu.Unlock()
		return acc.Add(item)
	}

	stats, err := async.Run(context.Background(),
		async.Config{Workers: 4, QueueCapacity: 2, IdleTimeout: idle},
		factory, async.SliceSource(work), handle, zaptest.NewLogger(t).Sugar())
	returned := time.Now()
	require.NoError(t, err)

	mu.Lock()
	tail := returned.Sub(lastHandle)
	mu.Unlock()
	assert.Less(t, tail, 2*idle, "run returned %s after the last result", tail)

	assert.Equal(t, int64(10), stats.Completed)
	assert.False(t, stats.Aborted)
	assert.Equal(t, int64(10), svc.Calls())

	metrics := acc.Finish(annotate.TotalMetrics{})
	assert.Equal(t, 10, metrics.Total.Successes)
	assert.Equal(t, 0, metrics.Total.Errors)
	require.Contains(t, metrics.Files, source)
	assert.Equal(t, 10, metrics.Files[source].Successes)
	assert.Zero(t, metrics.Files[source].ErrorCount())
}
