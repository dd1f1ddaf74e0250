package annotate

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/anvil/pulse"
	"github.com/teranos/anvil/pulse/async"
	"github.com/teranos/anvil/pulse/budget"
	"github.com/teranos/anvil/sym"
)

// progressEvery throttles progress callbacks
const progressEvery = 100

// Membership answers whether an allele id is in the knowledge base
type Membership interface {
	Get(id string) bool
}

// AccumulatorOptions configures NewAccumulator
type AccumulatorOptions struct {
	Budget *budget.ErrorBudget
	// Membership may be nil, in which case no hits are recorded
	Membership Membership
	// MaxEvidence bounds the evidence map per file; <= 0 means unbounded
	MaxEvidence int
	Progress    pulse.ProgressEmitter
	Logger      *zap.SugaredLogger
	Now         func() time.Time
}

// Accumulator folds pipeline results into Metrics. File records are created
// by StartFile from the reading goroutine; Add is called from the consuming
// goroutine.
type Accumulator struct {
	opts AccumulatorOptions

	mu      sync.Mutex
	metrics *Metrics
	start   time.Time
	handled int
	frozen  bool
}

// NewAccumulator creates an empty accumulator
func NewAccumulator(opts AccumulatorOptions) *Accumulator {
	if opts.Budget == nil {
		opts.Budget = budget.NewErrorBudget(0)
	}
	if opts.Progress == nil {
		opts.Progress = pulse.NopEmitter{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Accumulator{
		opts:    opts,
		metrics: &Metrics{Files: map[string]*FileMetrics{}},
		start:   opts.Now(),
	}
}

// StartFile creates the record for path; later calls are no-ops
func (a *Accumulator) StartFile(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fileLocked(path)
}

func (a *Accumulator) fileLocked(path string) *FileMetrics {
	fm, ok := a.metrics.Files[path]
	if !ok {
		fm = newFileMetrics(a.opts.Now())
		a.metrics.Files[path] = fm
	}
	return fm
}

// FileRead records how many physical lines were read from path and how
// many alternate alleles were skipped
func (a *Accumulator) FileRead(path string, lines, skipped int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fm := a.fileLocked(path)
	fm.LineCount = lines
	fm.Skipped = skipped
}

// Add folds one result in. It returns the budget error once the run-level
// error count exceeds the budget; the caller stops consuming.
func (a *Accumulator) Add(item async.WorkItem) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	fm := a.fileLocked(item.SourceFile)
	a.handled++
	if a.handled%progressEvery == 0 {
		a.opts.Progress.EmitProgress(a.handled, map[string]interface{}{"file": item.SourceFile})
	}

	if item.Failed() {
		fm.Errors[item.Error]++
		if err := a.opts.Budget.Record(); err != nil {
			a.opts.Logger.Errorw("Error budget exceeded",
				"file", item.SourceFile,
				"line", item.LineNumber,
				"errors", a.opts.Budget.Count(),
				"max_errors", a.opts.Budget.Max(),
			)
			return err
		}
		return nil
	}

	if item.Result == nil {
		return nil
	}
	fm.Successes++

	id := item.Result.ID
	if a.opts.Membership == nil || !a.opts.Membership.Get(id) {
		return nil
	}
	fm.MetaKBHits++
	a.opts.Logger.Infow(sym.MetaKB+" Allele found in metakb",
		"vrs_id", id,
		"file", item.SourceFile,
		"line", item.LineNumber,
		"expression", item.Expression,
	)
	if a.opts.MaxEvidence <= 0 || len(fm.Evidence) < a.opts.MaxEvidence {
		fm.Evidence[id] = Evidence{
			File:       item.SourceFile,
			Line:       item.LineNumber,
			Format:     item.Format,
			Expression: item.Expression,
		}
	}
	return nil
}

// Finish marks every file finished, computes the total record and returns
// the metrics. The accumulator is frozen afterwards; further calls return
// the same document.
func (a *Accumulator) Finish(total TotalMetrics) *Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return a.metrics
	}
	a.frozen = true

	end := a.opts.Now()
	total.StartTime = a.start
	total.EndTime = end
	total.ElapsedTime = end.Sub(a.start).Seconds()
	total.Files = len(a.metrics.Files)

	for _, fm := range a.metrics.Files {
		fm.Status = StatusFinished
		fm.EndTime = end
		fm.ElapsedTime = end.Sub(fm.StartTime).Seconds()

		total.LineCount += fm.LineCount
		total.Successes += fm.Successes
		total.Errors += fm.ErrorCount()
		total.MetaKBHits += fm.MetaKBHits
		total.Skipped += fm.Skipped
	}
	a.metrics.Total = total
	return a.metrics
}
