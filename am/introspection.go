package am

import (
	"os"
	"sort"
	"strings"
)

// SettingSource records where a manifest value came from
type SettingSource string

const (
	SourceDefault     SettingSource = "default"
	SourceManifest    SettingSource = "manifest"
	SourceEnvironment SettingSource = "environment"
)

// SettingInfo is one effective manifest key with its origin
type SettingInfo struct {
	Key    string        `json:"key" yaml:"key"`
	Value  interface{}   `json:"value" yaml:"value"`
	Source SettingSource `json:"source" yaml:"source"`
	EnvVar string        `json:"env_var,omitempty" yaml:"env_var,omitempty"`
}

// EnvVarName returns the override variable for a dotted key
func EnvVarName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Settings lists every effective key sorted by name. Manifests built in code
// (not loaded) report nil.
func (m *Manifest) Settings() []SettingInfo {
	if m.v == nil {
		return nil
	}
	keys := m.v.AllKeys()
	sort.Strings(keys)

	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info := SettingInfo{Key: key, Value: m.v.Get(key), Source: SourceDefault}
		env := EnvVarName(key)
		if _, ok := os.LookupEnv(env); ok {
			info.Source = SourceEnvironment
			info.EnvVar = env
		} else if m.v.InConfig(key) {
			info.Source = SourceManifest
		}
		settings = append(settings, info)
	}
	return settings
}
