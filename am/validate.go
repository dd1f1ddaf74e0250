package am

import (
	"os"

	"github.com/teranos/anvil/errors"
)

// Validate checks the manifest and prepares its directories.
// Any error here is a setup error: nothing has been processed yet.
func (m *Manifest) Validate() error {
	if len(m.VCFFiles) == 0 {
		return errors.WithHint(
			errors.Wrap(errors.ErrInvalidRequest, "vcf_files must list at least one input"),
			"add local paths or URLs under vcf_files",
		)
	}
	if m.NumThreads < 1 {
		return errors.Newf("num_threads must be >= 1, got %d", m.NumThreads)
	}
	if m.MaxErrors < 0 {
		return errors.Newf("max_errors must be >= 0, got %d", m.MaxErrors)
	}
	if m.Limit < 0 {
		return errors.Newf("limit must be >= 0, got %d", m.Limit)
	}
	if m.CacheSizeLimitGB < 0 {
		return errors.Newf("cache_size_limit_gb must be >= 0, got %f", m.CacheSizeLimitGB)
	}
	if m.MemoryCacheEntries < 1 {
		return errors.Newf("memory_cache_entries must be >= 1, got %d", m.MemoryCacheEntries)
	}
	if m.Pipeline.QueueCapacity < 0 {
		return errors.Newf("pipeline.queue_capacity must be >= 0, got %d", m.Pipeline.QueueCapacity)
	}
	if m.Translator.URL == "" {
		return errors.New("translator.url cannot be empty")
	}
	if m.Translator.MaxRequestsPerSecond < 0 {
		return errors.Newf("translator.max_requests_per_second must be >= 0, got %f", m.Translator.MaxRequestsPerSecond)
	}

	for _, dir := range []string{m.WorkDirectory, m.CacheDirectory, m.StateDirectory} {
		if dir == "" {
			return errors.New("work, cache and state directories must be set")
		}
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	info, err := os.Stat(m.MetaKBDirectory)
	switch {
	case err == nil && !info.IsDir():
		return errors.Newf("metakb_directory %s is not a directory", m.MetaKBDirectory)
	case err == nil:
	case os.IsNotExist(err) && len(m.MetaKBURLs) > 0:
		if err := os.MkdirAll(m.MetaKBDirectory, DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "failed to create metakb directory %s", m.MetaKBDirectory)
		}
	case os.IsNotExist(err):
		return errors.WithHint(
			errors.Newf("metakb_directory %s does not exist", m.MetaKBDirectory),
			"create it with the corpus JSON files or set metakb_urls",
		)
	default:
		return errors.Wrapf(err, "failed to stat metakb directory %s", m.MetaKBDirectory)
	}

	return nil
}
