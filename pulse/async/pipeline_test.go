package async

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/pulse/budget"
	"github.com/teranos/anvil/translate"
)

// ============================================================================
// TAS Bot (Tool-Assisted Speedrun) & Kirby Test Universe
// ============================================================================
//
// Characters:
//   - TAS Bot: frame-perfect dispatcher feeding items in input order
//   - Kirby: the worker who swallows expressions and spits out alleles
//
// Theme: TAS Bot never drops an input, Kirby never answers twice.
// ============================================================================

const testIdle = 20 * time.Millisecond

func items(n int) []WorkItem {
	out := make([]WorkItem, n)
	for i := range out {
		out[i] = WorkItem{
			Format:     translate.FormatGnomad,
			Expression: fmt.Sprintf("1-%d-A-T", 1000+i),
			SourceFile: "kirby.vcf",
			LineNumber: i + 1,
		}
	}
	return out
}

func fakeFactory(svc *translate.FakeService) translate.Factory {
	return func() (translate.Service, error) { return svc, nil }
}

type collector struct {
	mu    sync.Mutex
	items []WorkItem
	lines map[int]int
}

func (c *collector) handle(item WorkItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lines == nil {
		c.lines = map[int]int{}
	}
	c.items = append(c.items, item)
	c.lines[item.LineNumber]++
	return nil
}

func TestRun_ExactlyOneResultPerItem(t *testing.T) {
	for _, workers := range []int{1, 2, 4, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			svc := &translate.FakeService{}
			var c collector

			stats, err := Run(context.Background(),
				Config{Workers: workers, IdleTimeout: testIdle},
				fakeFactory(svc), SliceSource(items(200)), c.handle, zaptest.NewLogger(t).Sugar())
			require.NoError(t, err)

			assert.Equal(t, int64(200), stats.Dispatched)
			assert.Equal(t, int64(200), stats.Completed)
			assert.False(t, stats.Aborted)
			require.Len(t, c.lines, 200)
			for line, n := range c.lines {
				assert.Equal(t, 1, n, "line %d", line)
			}
			for _, item := range c.items {
				require.NotNil(t, item.Result)
				assert.Equal(t, translate.FakeID(item.Expression, item.Format), item.Result.ID)
			}
		})
	}
}

func TestRun_FourWorkersCapacityTwo(t *testing.T) {
	t.Log("🎮 TAS Bot feeds 10 items through a 2-slot queue to 4 Kirbys")

	svc := &translate.FakeService{Latency: time.Millisecond}
	var c collector

	stats, err := Run(context.Background(),
		Config{Workers: 4, QueueCapacity: 2, IdleTimeout: testIdle},
		fakeFactory(svc), SliceSource(items(10)), c.handle, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	assert.Equal(t, int64(10), stats.Completed)
	assert.Equal(t, int64(10), svc.Calls())
	assert.Len(t, c.lines, 10)
	t.Log("✓ Poyo! Every item answered once")
}

func TestRun_SlowTranslationsOutlastIdleTimeout(t *testing.T) {
	svc := &translate.FakeService{Latency: 5 * testIdle}
	var c collector

	stats, err := Run(context.Background(),
		Config{Workers: 1, IdleTimeout: testIdle},
		fakeFactory(svc), SliceSource(items(3)), c.handle, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Completed)
}

func TestRun_BudgetAbortLeavesRemainingUndrained(t *testing.T) {
	in := items(3)
	reject := map[string]string{}
	for _, item := range in {
		reject[item.Expression] = "Unable to translate " + item.Expression
	}
	svc := &translate.FakeService{Reject: reject}
	b := budget.NewErrorBudget(1)

	var errorsSeen, successes atomic.Int64
	handle := func(item WorkItem) error {
		if item.Failed() {
			errorsSeen.Add(1)
			return b.Record()
		}
		successes.Add(1)
		return nil
	}

	stats, err := Run(context.Background(),
		Config{Workers: 1, QueueCapacity: 1, IdleTimeout: testIdle},
		fakeFactory(svc), SliceSource(in), handle, zaptest.NewLogger(t).Sugar())
	require.Error(t, err)
	assert.True(t, errors.IsBudgetExceeded(err))
	assert.True(t, stats.Aborted)
	assert.Equal(t, int64(2), errorsSeen.Load())
	assert.Equal(t, int64(0), successes.Load())
	assert.Equal(t, int64(2), stats.Completed)
}

func TestRun_BackpressureBoundsOutstandingItems(t *testing.T) {
	const (
		n        = 100000
		workers  = 4
		capacity = 8
	)
	var produced, handled, maxGap atomic.Int64

	source := func(yield func(WorkItem) bool) error {
		for i := 0; i < n; i++ {
			produced.Add(1)
			if !yield(WorkItem{Format: translate.FormatGnomad, Expression: fmt.Sprintf("1-%d-A-T", i), LineNumber: i + 1}) {
				return nil
			}
		}
		return nil
	}
	handle := func(item WorkItem) error {
		gap := produced.Load() - handled.Add(1)
		for {
			cur := maxGap.Load()
			if gap <= cur || maxGap.CompareAndSwap(cur, gap) {
				break
			}
		}
		return nil
	}

	stats, err := Run(context.Background(),
		Config{Workers: workers, QueueCapacity: capacity, IdleTimeout: testIdle},
		fakeFactory(&translate.FakeService{}), source, handle, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.Completed)

	// task buffer + result buffer + one per worker + one blocked in Submit
	bound := int64(2*capacity + workers + 1)
	assert.LessOrEqual(t, maxGap.Load(), bound)
}

func TestRun_EmptyInput(t *testing.T) {
	var c collector
	start := time.Now()

	stats, err := Run(context.Background(),
		Config{Workers: 2, IdleTimeout: testIdle},
		fakeFactory(&translate.FakeService{}), SliceSource(nil), c.handle, nil)
	require.NoError(t, err)

	assert.Zero(t, stats.Dispatched)
	assert.Zero(t, stats.Completed)
	assert.GreaterOrEqual(t, time.Since(start), testIdle)
}

func TestRun_PanicBecomesErrorResult(t *testing.T) {
	in := items(5)
	svc := &translate.FakeService{Panic: in[2].Expression}
	var c collector

	stats, err := Run(context.Background(),
		Config{Workers: 2, IdleTimeout: testIdle},
		fakeFactory(svc), SliceSource(in), c.handle, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.Completed)
	assert.Equal(t, int64(1), stats.Panics)
	assert.Equal(t, int64(1), stats.Errors[ErrorCodePanic])

	for _, item := range c.items {
		if item.LineNumber == 3 {
			assert.True(t, strings.HasPrefix(item.Error, panicPrefix), item.Error)
			assert.Nil(t, item.Result)
		} else {
			assert.False(t, item.Failed())
		}
	}
}

func TestRun_PreFailedItemsPassThrough(t *testing.T) {
	svc := &translate.FakeService{}
	bad := WorkItem{SourceFile: "kirby.vcf", LineNumber: 7}.WithError("invalid request: line has 3 fields")
	var c collector

	_, err := Run(context.Background(),
		Config{Workers: 2, IdleTimeout: testIdle},
		fakeFactory(svc), SliceSource([]WorkItem{bad}), c.handle, nil)
	require.NoError(t, err)

	require.Len(t, c.items, 1)
	assert.Equal(t, bad, c.items[0])
	assert.Zero(t, svc.Calls())
}

func TestRun_TranslationErrorsKeepExactMessage(t *testing.T) {
	in := items(1)
	msg := "Expected reference sequence A but found G"
	svc := &translate.FakeService{Reject: map[string]string{in[0].Expression: msg}}
	var c collector

	stats, err := Run(context.Background(), Config{Workers: 1, IdleTimeout: testIdle},
		fakeFactory(svc), SliceSource(in), c.handle, nil)
	require.NoError(t, err)

	require.Len(t, c.items, 1)
	assert.Equal(t, msg, c.items[0].Error)
	assert.Equal(t, int64(1), stats.Errors[ErrorCodeTranslation])
}

func TestRun_SourceErrorIsFatal(t *testing.T) {
	boom := errors.New("gzip: invalid checksum")
	source := func(yield func(WorkItem) bool) error {
		for _, item := range items(3) {
			if !yield(item) {
				return nil
			}
		}
		return boom
	}
	var c collector

	stats, err := Run(context.Background(), Config{Workers: 2, IdleTimeout: testIdle},
		fakeFactory(&translate.FakeService{}), source, c.handle, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, stats.Aborted)
	assert.Equal(t, int64(3), stats.Dispatched)
}

func TestRun_FactoryErrorIsSetupError(t *testing.T) {
	calls := 0
	factory := func() (translate.Service, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("no cache directory")
		}
		return &translate.FakeService{}, nil
	}

	_, err := Run(context.Background(), Config{Workers: 3, IdleTimeout: testIdle},
		factory, SliceSource(items(1)), func(WorkItem) error { return nil }, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker 1")
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &translate.FakeService{Latency: 10 * time.Millisecond}

	var handled atomic.Int64
	handle := func(WorkItem) error {
		if handled.Add(1) == 2 {
			cancel()
		}
		return nil
	}

	stats, err := Run(ctx, Config{Workers: 2, IdleTimeout: time.Minute},
		fakeFactory(svc), SliceSource(items(1000)), handle, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, stats.Aborted)
	assert.Less(t, stats.Completed, int64(1000))
}
