package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for every manifest key.
// Every key needs a default so ANVIL_* overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("vcf_files", []string{})
	v.SetDefault("num_threads", DefaultNumThreads)
	v.SetDefault("max_errors", DefaultMaxErrors)

	// Caches
	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_size_limit_gb", DefaultCacheSizeLimitGB)
	v.SetDefault("memory_cache_entries", DefaultMemoryCacheEntries)

	// Directories
	v.SetDefault("cache_directory", "cache")
	v.SetDefault("state_directory", "state")
	v.SetDefault("work_directory", "work")
	v.SetDefault("metakb_directory", "metakb")
	v.SetDefault("metakb_urls", DefaultMetaKBURLs)

	// Expression generation
	v.SetDefault("normalize", false)
	v.SetDefault("compute_for_ref", false)
	v.SetDefault("limit", 0)

	// Progress
	v.SetDefault("estimated_vcf_lines", DefaultEstimatedVCFLines)
	v.SetDefault("disable_progress_bars", false)

	// Normalization service
	v.SetDefault("translator.url", DefaultTranslatorURL)
	v.SetDefault("translator.timeout_seconds", DefaultTranslatorTimeout)
	v.SetDefault("translator.max_requests_per_second", 0.0)

	// Pipeline
	v.SetDefault("pipeline.queue_capacity", 0)
	v.SetDefault("pipeline.idle_timeout_ms", DefaultIdleTimeoutMS)

	v.SetDefault("metrics.max_evidence", DefaultMaxEvidence)
	v.SetDefault("scatter.command", "")
}
