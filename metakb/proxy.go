package metakb

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/anvil/cache"
	"github.com/teranos/anvil/errors"
)

const (
	storeFile = "metakb.db"
	batchSize = 1000
)

// Options configures Open
type Options struct {
	// Rebuild forces reloading the membership store from the corpus
	Rebuild bool
	Logger  *zap.SugaredLogger
}

// Proxy answers membership queries against the corpus identifiers
type Proxy struct {
	store  *cache.Store
	logger *zap.SugaredLogger

	hits   atomic.Int64
	misses atomic.Int64
}

// Open returns a read-only proxy over the membership store in cacheDir. The
// store is built from the corpus in corpusDir when cacheDir does not exist,
// or rebuilt when opts.Rebuild is set. cacheDir only ever appears holding a
// complete store, so concurrent openers either build their own copy or read
// a finished one. A failed build leaves any previous store in place.
func Open(ctx context.Context, corpusDir, cacheDir string, opts Options) (*Proxy, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	_, statErr := os.Stat(cacheDir)
	switch {
	case opts.Rebuild || os.IsNotExist(statErr):
		if err := build(ctx, corpusDir, cacheDir, opts.Rebuild, logger); err != nil {
			return nil, err
		}
	case statErr != nil:
		return nil, errors.Wrapf(statErr, "failed to stat %s", cacheDir)
	}

	store, err := cache.Open(filepath.Join(cacheDir, storeFile), cache.Options{ReadOnly: true}, logger)
	if err != nil {
		return nil, errors.WithHint(err, "remove the metakb cache directory to rebuild it")
	}
	return &Proxy{store: store, logger: logger}, nil
}

// build loads the corpus into a store in a sibling temp directory and
// renames it to cacheDir. When another process renamed its store into place
// first, that store is kept and this one discarded.
func build(ctx context.Context, corpusDir, cacheDir string, replace bool, logger *zap.SugaredLogger) error {
	start := time.Now()
	parent := filepath.Dir(cacheDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", parent)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(cacheDir)+"-build-")
	if err != nil {
		return errors.Wrapf(err, "failed to create build directory in %s", parent)
	}
	defer os.RemoveAll(tmp)

	found, distinct, err := load(ctx, corpusDir, filepath.Join(tmp, storeFile), logger)
	if err != nil {
		return errors.Wrap(err, "failed to build metakb membership store")
	}

	if replace {
		old := tmp + ".old"
		if err := os.Rename(cacheDir, old); err == nil {
			defer os.RemoveAll(old)
		} else if !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to retire %s", cacheDir)
		}
	}
	if err := os.Rename(tmp, cacheDir); err != nil {
		if _, statErr := os.Stat(filepath.Join(cacheDir, storeFile)); statErr == nil {
			logger.Debugw("metakb membership store built concurrently, using existing", "dir", cacheDir)
			return nil
		}
		return errors.Wrapf(err, "failed to move membership store into %s", cacheDir)
	}

	logger.Infow("Built metakb membership store",
		"ids", found,
		"distinct", distinct,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// load writes every corpus id into a new store at path and closes it
func load(ctx context.Context, corpusDir, path string, logger *zap.SugaredLogger) (found, distinct int, err error) {
	store, err := cache.Open(path, cache.Options{}, logger)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if cerr := store.Close(); err == nil && cerr != nil {
			err = errors.Wrap(cerr, "failed to close membership store")
		}
	}()

	batch := make([]cache.Entry, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := store.SetBatch(batch)
		batch = batch[:0]
		return err
	}

	err = IDs(ctx, corpusDir, func(id string) error {
		found++
		batch = append(batch, cache.Entry{Key: id, Value: []byte{1}})
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return found, 0, err
	}
	distinct, err = store.Len()
	return found, distinct, err
}

// Get reports whether id appears in the corpus. Store read failures are
// logged and answered as absent.
func (p *Proxy) Get(id string) bool {
	ok, err := p.store.Has(id)
	if err != nil {
		p.logger.Warnw("metakb lookup failed", "vrs_id", id, "error", err)
	}
	if ok {
		p.hits.Add(1)
	} else {
		p.misses.Add(1)
	}
	return ok
}

// Stats returns lookup hit and miss counts
func (p *Proxy) Stats() (hits, misses int64) {
	return p.hits.Load(), p.misses.Load()
}

// Len returns the number of distinct identifiers
func (p *Proxy) Len() (int, error) {
	return p.store.Len()
}

// Close releases the store
func (p *Proxy) Close() error {
	return p.store.Close()
}
