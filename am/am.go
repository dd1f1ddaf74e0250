// Package am loads and validates the run manifest.
package am

import (
	"time"

	"github.com/spf13/viper"
)

// Manifest is the run configuration shared by a parent and its scatter children
type Manifest struct {
	VCFFiles            []string `mapstructure:"vcf_files" yaml:"vcf_files" toml:"vcf_files"`
	NumThreads          int      `mapstructure:"num_threads" yaml:"num_threads" toml:"num_threads"`
	MaxErrors           int      `mapstructure:"max_errors" yaml:"max_errors" toml:"max_errors"`
	CacheEnabled        bool     `mapstructure:"cache_enabled" yaml:"cache_enabled" toml:"cache_enabled"`
	CacheSizeLimitGB    float64  `mapstructure:"cache_size_limit_gb" yaml:"cache_size_limit_gb" toml:"cache_size_limit_gb"`
	MemoryCacheEntries  int      `mapstructure:"memory_cache_entries" yaml:"memory_cache_entries" toml:"memory_cache_entries"`
	CacheDirectory      string   `mapstructure:"cache_directory" yaml:"cache_directory" toml:"cache_directory"`
	StateDirectory      string   `mapstructure:"state_directory" yaml:"state_directory" toml:"state_directory"`
	WorkDirectory       string   `mapstructure:"work_directory" yaml:"work_directory" toml:"work_directory"`
	MetaKBDirectory     string   `mapstructure:"metakb_directory" yaml:"metakb_directory" toml:"metakb_directory"`
	MetaKBURLs          []string `mapstructure:"metakb_urls" yaml:"metakb_urls" toml:"metakb_urls"`
	Normalize           bool     `mapstructure:"normalize" yaml:"normalize" toml:"normalize"`
	ComputeForRef       bool     `mapstructure:"compute_for_ref" yaml:"compute_for_ref" toml:"compute_for_ref"`
	Limit               int      `mapstructure:"limit" yaml:"limit" toml:"limit"` // 0 = whole file
	EstimatedVCFLines   int      `mapstructure:"estimated_vcf_lines" yaml:"estimated_vcf_lines" toml:"estimated_vcf_lines"`
	DisableProgressBars bool     `mapstructure:"disable_progress_bars" yaml:"disable_progress_bars" toml:"disable_progress_bars"`

	Translator TranslatorConfig `mapstructure:"translator" yaml:"translator" toml:"translator"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline" toml:"pipeline"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics" toml:"metrics"`
	Scatter    ScatterConfig    `mapstructure:"scatter" yaml:"scatter" toml:"scatter"`

	// Path is the file the manifest was loaded from, empty when built in code
	Path string `mapstructure:"-" yaml:"-" toml:"-"`

	v *viper.Viper
}

// TranslatorConfig configures the variant normalization service client
type TranslatorConfig struct {
	URL                  string  `mapstructure:"url" yaml:"url" toml:"url"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second" yaml:"max_requests_per_second" toml:"max_requests_per_second"` // 0 = unlimited
}

// PipelineConfig tunes the worker pool
type PipelineConfig struct {
	QueueCapacity int `mapstructure:"queue_capacity" yaml:"queue_capacity" toml:"queue_capacity"` // 0 = 2 x num_threads
	IdleTimeoutMS int `mapstructure:"idle_timeout_ms" yaml:"idle_timeout_ms" toml:"idle_timeout_ms"`
}

// MetricsConfig bounds what the metrics file records
type MetricsConfig struct {
	MaxEvidence int `mapstructure:"max_evidence" yaml:"max_evidence" toml:"max_evidence"`
}

// ScatterConfig configures child process launch
type ScatterConfig struct {
	// Command is prepended to the child invocation, e.g. "nice -n 10".
	// Empty runs the current executable directly.
	Command string `mapstructure:"command" yaml:"command" toml:"command"`
}

// Default values
const (
	DefaultNumThreads         = 2
	DefaultMaxErrors          = 10
	DefaultCacheSizeLimitGB   = 20
	DefaultMemoryCacheEntries = 100_000
	DefaultEstimatedVCFLines  = 4_000_000
	DefaultTranslatorURL      = "https://normalize.cancervariants.org/variation"
	DefaultTranslatorTimeout  = 30
	DefaultIdleTimeoutMS      = 1000
	DefaultMaxEvidence        = 1000
)

// DefaultMetaKBURLs are the CIViC and MOA common data model releases
var DefaultMetaKBURLs = []string{
	"https://vicc-metakb.s3.us-east-2.amazonaws.com/cdm/20240305/civic_cdm_20240305.json.zip",
	"https://vicc-metakb.s3.us-east-2.amazonaws.com/cdm/20240305/moa_cdm_20240305.json.zip",
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// QueueCapacity returns the effective task/result channel capacity
func (m *Manifest) QueueCapacity() int {
	if m.Pipeline.QueueCapacity > 0 {
		return m.Pipeline.QueueCapacity
	}
	return 2 * m.NumThreads
}

// IdleTimeout returns the monitor poll timeout
func (m *Manifest) IdleTimeout() time.Duration {
	if m.Pipeline.IdleTimeoutMS <= 0 {
		return DefaultIdleTimeoutMS * time.Millisecond
	}
	return time.Duration(m.Pipeline.IdleTimeoutMS) * time.Millisecond
}

// TranslatorTimeout returns the per-request HTTP timeout
func (m *Manifest) TranslatorTimeout() time.Duration {
	if m.Translator.TimeoutSeconds <= 0 {
		return DefaultTranslatorTimeout * time.Second
	}
	return time.Duration(m.Translator.TimeoutSeconds) * time.Second
}

// CacheSizeLimitBytes converts the configured ceiling to bytes
func (m *Manifest) CacheSizeLimitBytes() int64 {
	return int64(m.CacheSizeLimitGB * (1 << 30))
}

// CloneForFile returns the manifest a scatter child runs with:
// one input file and a single worker thread.
func (m *Manifest) CloneForFile(path string) *Manifest {
	clone := *m
	clone.VCFFiles = []string{path}
	clone.NumThreads = 1
	clone.MetaKBURLs = append([]string(nil), m.MetaKBURLs...)
	clone.Path = ""
	clone.v = nil
	return &clone
}
