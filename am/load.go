package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/anvil/errors"
)

// EnvPrefix is the prefix for environment overrides (ANVIL_NUM_THREADS, ANVIL_TRANSLATOR_URL)
const EnvPrefix = "ANVIL"

// Load reads a YAML or TOML manifest, applies defaults and ANVIL_* overrides,
// and expands ~ in directory paths. It does not validate.
func Load(path string) (*Manifest, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithHint(
				errors.Wrapf(errors.ErrNotFound, "manifest %s", path),
				"pass --manifest or create manifest.yaml in the working directory",
			)
		}
		return nil, errors.Wrapf(err, "failed to stat manifest %s", path)
	}

	v := newViper()
	v.SetConfigFile(path)
	if ext := configType(path); ext != "" {
		v.SetConfigType(ext)
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}

	m, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "manifest %s", path)
	}
	m.Path = path
	return m, nil
}

// LoadWithViper unmarshals a manifest from a prepared viper instance
func LoadWithViper(v *viper.Viper) (*Manifest, error) {
	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal manifest")
	}
	m.v = v
	m.expandPaths()
	return &m, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	}
	return ""
}

func (m *Manifest) expandPaths() {
	m.CacheDirectory = expandHome(m.CacheDirectory)
	m.StateDirectory = expandHome(m.StateDirectory)
	m.WorkDirectory = expandHome(m.WorkDirectory)
	m.MetaKBDirectory = expandHome(m.MetaKBDirectory)
	for i, f := range m.VCFFiles {
		m.VCFFiles[i] = expandHome(f)
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
