package scatter

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/teranos/anvil/annotate"
)

// Summary is the part of a child's metrics shown by ps
type Summary struct {
	LineCount  int  `yaml:"line_count" json:"line_count"`
	Successes  int  `yaml:"successes" json:"successes"`
	Errors     int  `yaml:"errors" json:"errors"`
	MetaKBHits int  `yaml:"metakb_hits" json:"metakb_hits"`
	Aborted    bool `yaml:"aborted" json:"aborted"`
}

// ProcessStatus is the observed state of one registry entry. Resource
// fields are nil when the platform could not report them; their names are
// listed in Unavailable.
type ProcessStatus struct {
	Entry       `yaml:",inline"`
	Running     bool     `yaml:"running" json:"running"`
	CPUPercent  *float64 `yaml:"cpu_percent,omitempty" json:"cpu_percent,omitempty"`
	RSSBytes    *uint64  `yaml:"rss_bytes,omitempty" json:"rss_bytes,omitempty"`
	ReadBytes   *uint64  `yaml:"read_bytes,omitempty" json:"read_bytes,omitempty"`
	WriteBytes  *uint64  `yaml:"write_bytes,omitempty" json:"write_bytes,omitempty"`
	Unavailable []string `yaml:"unavailable,omitempty" json:"unavailable,omitempty"`
	LogFile     string   `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	MetricsFile string   `yaml:"metrics_file,omitempty" json:"metrics_file,omitempty"`
	Summary     *Summary `yaml:"summary,omitempty" json:"summary,omitempty"`
	// MetricsError is set when a metrics file exists but cannot be read
	MetricsError string `yaml:"metrics_error,omitempty" json:"metrics_error,omitempty"`
}

// State renders Running as a word
func (s ProcessStatus) State() string {
	if s.Running {
		return "running"
	}
	return "completed"
}

// Status inspects every registry entry. It never fails: whatever cannot be
// observed is left empty.
func Status(stateDir string, reg *Registry) []ProcessStatus {
	if reg == nil {
		return nil
	}
	out := make([]ProcessStatus, 0, len(reg.Processes))
	for _, e := range reg.Processes {
		st := ProcessStatus{Entry: e}
		st.LogFile = newest(filepath.Join(stateDir, fmt.Sprintf("*_%d.log", e.PID)))
		st.MetricsFile = newest(filepath.Join(stateDir, fmt.Sprintf("metrics_*_%d.yaml", e.PID)))

		if p := alive(e.PID); p != nil {
			st.Running = true
			sample(p, &st)
		} else if st.MetricsFile != "" {
			if m, err := annotate.ReadMetrics(st.MetricsFile); err != nil {
				st.MetricsError = err.Error()
			} else {
				t := m.Total
				st.Summary = &Summary{
					LineCount:  t.LineCount,
					Successes:  t.Successes,
					Errors:     t.Errors,
					MetaKBHits: t.MetaKBHits,
					Aborted:    t.Aborted,
				}
			}
		}
		out = append(out, st)
	}
	return out
}

// AllDone reports whether no process is running
func AllDone(statuses []ProcessStatus) bool {
	for _, s := range statuses {
		if s.Running {
			return false
		}
	}
	return true
}

// alive returns the process if pid exists and is not a zombie
func alive(pid int) *process.Process {
	if pid <= 0 {
		return nil
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return nil
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	if states, err := p.Status(); err == nil && slices.Contains(states, process.Zombie) {
		return nil
	}
	return p
}

func sample(p *process.Process, st *ProcessStatus) {
	if cpu, err := p.CPUPercent(); err == nil {
		st.CPUPercent = &cpu
	} else {
		st.Unavailable = append(st.Unavailable, "cpu")
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		st.RSSBytes = &mem.RSS
	} else {
		st.Unavailable = append(st.Unavailable, "memory")
	}
	if io, err := p.IOCounters(); err == nil && io != nil {
		st.ReadBytes = &io.ReadBytes
		st.WriteBytes = &io.WriteBytes
	} else {
		st.Unavailable = append(st.Unavailable, "io")
	}
}

// newest returns the most recently modified file matching pattern
func newest(pattern string) string {
	matches, _ := filepath.Glob(pattern)
	var best string
	var bestMod int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		if mod := info.ModTime().UnixNano(); best == "" || mod > bestMod || (mod == bestMod && m > best) {
			best, bestMod = m, mod
		}
	}
	return best
}
