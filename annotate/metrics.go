package annotate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teranos/anvil/am"
	"github.com/teranos/anvil/errors"
	"github.com/teranos/anvil/translate"
)

// Status of a per-file record
type Status string

const (
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
)

// Evidence is the provenance of a knowledge-base hit
type Evidence struct {
	File       string           `yaml:"file" json:"file"`
	Line       int              `yaml:"line" json:"line"`
	Format     translate.Format `yaml:"fmt" json:"fmt"`
	Expression string           `yaml:"var" json:"var"`
}

// FileMetrics is the record for one input file
type FileMetrics struct {
	Status      Status              `yaml:"status" json:"status"`
	StartTime   time.Time           `yaml:"start_time" json:"start_time"`
	EndTime     time.Time           `yaml:"end_time,omitempty" json:"end_time,omitempty"`
	ElapsedTime float64             `yaml:"elapsed_time" json:"elapsed_time"` // seconds
	LineCount   int                 `yaml:"line_count" json:"line_count"`
	Successes   int                 `yaml:"successes" json:"successes"`
	MetaKBHits  int                 `yaml:"metakb_hits" json:"metakb_hits"`
	Skipped     int                 `yaml:"skipped" json:"skipped"`
	Errors      map[string]int      `yaml:"errors" json:"errors"`
	Evidence    map[string]Evidence `yaml:"evidence" json:"evidence"`
}

func newFileMetrics(start time.Time) *FileMetrics {
	return &FileMetrics{
		Status:    StatusStarted,
		StartTime: start,
		Errors:    map[string]int{},
		Evidence:  map[string]Evidence{},
	}
}

// ErrorCount sums the error histogram
func (f *FileMetrics) ErrorCount() int {
	n := 0
	for _, c := range f.Errors {
		n += c
	}
	return n
}

// TotalMetrics aggregates every file record
type TotalMetrics struct {
	RunID       string               `yaml:"run_id" json:"run_id"`
	Timestamp   string               `yaml:"timestamp" json:"timestamp"`
	PID         int                  `yaml:"pid" json:"pid"`
	StartTime   time.Time            `yaml:"start_time" json:"start_time"`
	EndTime     time.Time            `yaml:"end_time" json:"end_time"`
	ElapsedTime float64              `yaml:"elapsed_time" json:"elapsed_time"`
	Files       int                  `yaml:"files" json:"files"`
	LineCount   int                  `yaml:"line_count" json:"line_count"`
	Successes   int                  `yaml:"successes" json:"successes"`
	Errors      int                  `yaml:"errors" json:"errors"`
	MetaKBHits  int                  `yaml:"metakb_hits" json:"metakb_hits"`
	Skipped     int                  `yaml:"skipped" json:"skipped"`
	Aborted     bool                 `yaml:"aborted" json:"aborted"`
	AbortReason string               `yaml:"abort_reason,omitempty" json:"abort_reason,omitempty"`
	Cache       translate.CacheStats `yaml:"cache" json:"cache"`
}

// Metrics is the document written at the end of a run
type Metrics struct {
	Files map[string]*FileMetrics `yaml:"files" json:"files"`
	Total TotalMetrics            `yaml:"total" json:"total"`
}

var metricsFilePattern = regexp.MustCompile(`^metrics_(\d{8}_\d{6})_(\d+)\.yaml$`)

// MetricsFileName returns the metrics path inside stateDir. Timestamp and
// pid together keep sibling scatter children from colliding.
func MetricsFileName(stateDir, timestamp string, pid int) string {
	return filepath.Join(stateDir, fmt.Sprintf("metrics_%s_%d.yaml", timestamp, pid))
}

// ParseMetricsFileName extracts the timestamp and pid from a metrics file base name
func ParseMetricsFileName(name string) (timestamp string, pid int, ok bool) {
	m := metricsFilePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", 0, false
	}
	pid, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], pid, true
}

// Write serializes m as YAML to path
func (m *Metrics) Write(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "failed to marshal metrics")
	}
	if err := os.MkdirAll(filepath.Dir(path), am.DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, data, am.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write metrics %s", path)
	}
	return nil
}

// ReadMetrics loads a metrics file
func ReadMetrics(path string) (*Metrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("metrics file %s", path)
		}
		return nil, errors.Wrapf(err, "failed to read metrics %s", path)
	}
	var m Metrics
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse metrics %s", path)
	}
	return &m, nil
}
