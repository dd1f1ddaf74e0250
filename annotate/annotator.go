// Package annotate runs a manifest end to end: collect inputs, load the
// knowledge-base membership store, translate every alternate allele through
// the worker pipeline and write a metrics file.
package annotate

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/anvil/am"
	"github.com/teranos/anvil/cache"
	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/ixgest/collect"
	"github.com/teranos/anvil/ixgest/vcf"
	"github.com/teranos/anvil/logger"
	"github.com/teranos/anvil/metakb"
	"github.com/teranos/anvil/pulse"
	"github.com/teranos/anvil/pulse/async"
	"github.com/teranos/anvil/pulse/budget"
	"github.com/teranos/anvil/translate"
)

const (
	// TranslationCacheFile is the persistent translation cache inside cache_directory
	TranslationCacheFile = "translations.db"
	// MetaKBCacheDir holds the membership store inside cache_directory
	MetaKBCacheDir = "metakb"
)

var errStopped = errors.New("consumer stopped")

// Option customizes an Annotator
type Option func(*Annotator)

// WithProgress sets the progress emitter
func WithProgress(p pulse.ProgressEmitter) Option {
	return func(a *Annotator) { a.progress = p }
}

// WithHTTPClient sets the client used for input and corpus downloads
func WithHTTPClient(c *http.Client) Option {
	return func(a *Annotator) { a.httpClient = c }
}

// WithService replaces the per-worker translation service constructor. Each
// worker still wraps its service in a CachingTranslator.
func WithService(f translate.Factory) Option {
	return func(a *Annotator) { a.service = f }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(a *Annotator) { a.now = now }
}

// Annotator runs one manifest
type Annotator struct {
	manifest   *am.Manifest
	log        *zap.SugaredLogger
	progress   pulse.ProgressEmitter
	httpClient *http.Client
	service    translate.Factory
	now        func() time.Time
	pid        int
}

// New creates an Annotator for a validated manifest
func New(m *am.Manifest, log *zap.SugaredLogger, opts ...Option) *Annotator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	a := &Annotator{
		manifest: m,
		log:      log.Named("annotate"),
		progress: pulse.NopEmitter{},
		now:      time.Now,
		pid:      os.Getpid(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnnotateAll annotates every input of the manifest and writes
// metrics_<timestamp>_<pid>.yaml into the state directory.
//
// Setup failures (inputs, corpus, caches) return an error and no metrics.
// Once the pipeline has run, metrics are always written, including when the
// error budget is exceeded; the budget error is then returned alongside the
// metrics path.
func (a *Annotator) AnnotateAll(ctx context.Context, maxErrors int, timestamp string) (string, *Metrics, error) {
	m := a.manifest
	if timestamp == "" {
		timestamp = a.now().Format(logger.TimestampLayout)
	}
	a.log.Infow("Annotation starting",
		"files", len(m.VCFFiles),
		"workers", m.NumThreads,
		"max_errors", maxErrors,
		"normalize", m.Normalize,
	)

	a.progress.EmitStage("collect", fmt.Sprintf("%d inputs", len(m.VCFFiles)))
	files, err := collect.Collect(ctx, m.VCFFiles, collect.Options{
		WorkDir:     m.WorkDirectory,
		Parallelism: m.NumThreads,
		HTTPClient:  a.httpClient,
		Logger:      a.log,
	})
	if err != nil {
		return "", nil, err
	}

	a.progress.EmitStage("metakb", m.MetaKBDirectory)
	proxy, err := OpenMetaKB(ctx, m, a.httpClient, a.log)
	if err != nil {
		return "", nil, err
	}
	defer proxy.Close()

	var store *cache.Store
	if m.CacheEnabled {
		store, err = cache.Open(filepath.Join(m.CacheDirectory, TranslationCacheFile),
			cache.Options{MaxBytes: m.CacheSizeLimitBytes()}, a.log)
		if err != nil {
			return "", nil, errors.WithHint(err, "set cache_enabled: false to run without the persistent cache")
		}
		defer store.Close()
	}

	factory, translators := a.translatorFactory(store)

	acc := NewAccumulator(AccumulatorOptions{
		Budget:      budget.NewErrorBudget(maxErrors),
		Membership:  proxy,
		MaxEvidence: m.Metrics.MaxEvidence,
		Progress:    a.progress,
		Logger:      a.log,
		Now:         a.now,
	})
	skips := vcf.NewSkipLog(a.log)

	a.progress.EmitStage("annotate", fmt.Sprintf("%d files", len(files)))
	stats, runErr := async.Run(ctx, async.Config{
		Workers:       m.NumThreads,
		QueueCapacity: m.QueueCapacity(),
		IdleTimeout:   m.IdleTimeout(),
		CacheEntries:  m.MemoryCacheEntries,
	}, factory, a.source(ctx, files, acc, skips), acc.Add, a.log)

	if runErr != nil && !stats.Aborted {
		return "", nil, runErr
	}

	total := TotalMetrics{
		RunID:     uuid.NewString(),
		Timestamp: timestamp,
		PID:       a.pid,
		Aborted:   stats.Aborted,
		Cache:     translators.stats(),
	}
	if runErr != nil {
		total.AbortReason = runErr.Error()
	}
	metrics := acc.Finish(total)

	path := MetricsFileName(m.StateDirectory, timestamp, a.pid)
	if err := metrics.Write(path); err != nil {
		if runErr != nil {
			return "", metrics, errors.Join(runErr, err)
		}
		return "", metrics, err
	}

	a.log.Infow("Annotation finished",
		"path", path,
		"successes", metrics.Total.Successes,
		"errors", metrics.Total.Errors,
		"metakb_hits", metrics.Total.MetaKBHits,
		"lines", metrics.Total.LineCount,
		"skipped_alts", skips.Distinct(),
		"panics", stats.Panics,
		"aborted", stats.Aborted,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	if runErr != nil {
		a.progress.EmitError("annotate", runErr)
	} else {
		a.progress.EmitComplete(map[string]interface{}{
			"successes":   metrics.Total.Successes,
			"errors":      metrics.Total.Errors,
			"metakb_hits": metrics.Total.MetaKBHits,
			"metrics":     path,
		})
	}
	return path, metrics, runErr
}

// OpenMetaKB makes the manifest's corpus available, downloading it when
// absent, and opens the membership store under the cache directory,
// building it on first use.
func OpenMetaKB(ctx context.Context, m *am.Manifest, client *http.Client, log *zap.SugaredLogger) (*metakb.Proxy, error) {
	if err := metakb.Download(ctx, m.MetaKBDirectory, m.MetaKBURLs, client, log); err != nil {
		return nil, err
	}
	return metakb.Open(ctx, m.MetaKBDirectory, filepath.Join(m.CacheDirectory, MetaKBCacheDir), metakb.Options{Logger: log})
}

// source yields one item per alternate allele of every data line, in file
// order. Malformed lines become items that already carry their error.
func (a *Annotator) source(ctx context.Context, files []string, acc *Accumulator, skips *vcf.SkipLog) async.Source {
	m := a.manifest
	return func(yield func(async.WorkItem) bool) error {
		for _, file := range files {
			acc.StartFile(file)
			skipped := 0

			lines, err := vcf.Scan(ctx, file, vcf.ScanOptions{Limit: m.Limit}, func(n int, line string) error {
				base := async.WorkItem{Format: translate.FormatGnomad, SourceFile: file, LineNumber: n}

				exprs, alts, err := vcf.Expressions(line, m.ComputeForRef)
				if err != nil {
					if !yield(base.WithError(err.Error())) {
						return errStopped
					}
					return nil
				}
				for _, alt := range alts {
					skips.Note(alt)
					skipped++
				}
				for _, expr := range exprs {
					item := base
					item.Expression = expr
					if !yield(item) {
						return errStopped
					}
				}
				return nil
			})
			acc.FileRead(file, lines, skipped)
			a.log.Debugw("File read", "file", file, "lines", lines, "skipped", skipped)

			if errors.Is(err, errStopped) {
				return nil
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
}

type translatorSet struct {
	mu   sync.Mutex
	list []*translate.CachingTranslator
}

func (s *translatorSet) add(t *translate.CachingTranslator) {
	s.mu.Lock()
	s.list = append(s.list, t)
	s.mu.Unlock()
}

func (s *translatorSet) stats() translate.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total translate.CacheStats
	for _, t := range s.list {
		total = total.Add(t.Stats())
	}
	return total
}

// translatorFactory builds one CachingTranslator per worker. All workers
// share the rate limiter and the persistent store.
func (a *Annotator) translatorFactory(store *cache.Store) (translate.Factory, *translatorSet) {
	m := a.manifest
	set := &translatorSet{}

	service := a.service
	if service == nil {
		limiter := translate.NewLimiter(m.Translator.MaxRequestsPerSecond)
		service = func() (translate.Service, error) {
			return translate.NewHTTPService(translate.HTTPOptions{
				URL:       m.Translator.URL,
				Normalize: m.Normalize,
				Timeout:   m.TranslatorTimeout(),
				Limiter:   limiter,
				Logger:    a.log,
			})
		}
	}

	factory := func() (translate.Service, error) {
		svc, err := service()
		if err != nil {
			return nil, err
		}
		t, err := translate.NewCachingTranslator(svc, translate.CachingOptions{
			MemoryEntries: m.MemoryCacheEntries,
			Store:         store,
			Namespace:     fmt.Sprintf("normalize=%t", m.Normalize),
			Logger:        a.log,
		})
		if err != nil {
			return nil, err
		}
		set.add(t)
		return t, nil
	}
	return factory, set
}
