package scatter

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teranos/anvil/am"
	"github.com/teranos/anvil/errors"
)

// Entry is one launched child
type Entry struct {
	PID      int    `yaml:"pid" json:"pid"`
	Manifest string `yaml:"manifest" json:"manifest"`
	File     string `yaml:"file" json:"file"`
}

// Registry lists the children of one scatter invocation. It is written
// once at launch and never updated; child progress is discovered from the
// state directory by pid.
type Registry struct {
	RunID     string    `yaml:"run_id" json:"run_id"`
	PID       int       `yaml:"pid" json:"pid"` // the scattering process
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	Timestamp string    `yaml:"timestamp" json:"timestamp"`
	Processes []Entry   `yaml:"processes" json:"processes"`
}

const registryGlob = "scattered_processes_*.yaml"

var registryPattern = regexp.MustCompile(`^scattered_processes_(\d{8}_\d{6})_(\d+)\.yaml$`)

// RegistryFileName returns the registry path of the scatter run started at
// timestamp by process pid
func RegistryFileName(stateDir, timestamp string, pid int) string {
	return filepath.Join(stateDir, fmt.Sprintf("scattered_processes_%s_%d.yaml", timestamp, pid))
}

// Write persists the registry
func (r *Registry) Write(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "failed to marshal registry")
	}
	if err := os.WriteFile(path, data, am.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write registry %s", path)
	}
	return nil
}

// LoadRegistry reads a registry file
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("registry %s", path)
		}
		return nil, errors.Wrapf(err, "failed to read registry %s", path)
	}
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "failed to parse registry %s", path)
	}
	return &r, nil
}

// LatestRegistry loads the most recent registry in stateDir: the newest
// timestamp in the file name, then the newest modification time among runs
// started in the same second. No registry is not an error: it returns
// (nil, "", nil).
func LatestRegistry(stateDir string) (*Registry, string, error) {
	matches, err := filepath.Glob(filepath.Join(stateDir, registryGlob))
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to list registries in %s", stateDir)
	}

	type candidate struct {
		path  string
		ts    string
		mtime time.Time
	}
	var candidates []candidate
	for _, p := range matches {
		m := registryPattern.FindStringSubmatch(filepath.Base(p))
		if m == nil {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: p, ts: m[1], mtime: info.ModTime()})
	}
	if len(candidates) == 0 {
		return nil, "", nil
	}
	// timestamps sort lexically
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ts != candidates[j].ts {
			return candidates[i].ts < candidates[j].ts
		}
		return candidates[i].mtime.Before(candidates[j].mtime)
	})
	path := candidates[len(candidates)-1].path
	r, err := LoadRegistry(path)
	if err != nil {
		return nil, "", err
	}
	return r, path, nil
}
