package am

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/anvil/errors"
)

// Marshal encodes the manifest as yaml, toml or json
func (m *Manifest) Marshal(format string) ([]byte, error) {
	switch format {
	case "", "yaml", "yml":
		return yaml.Marshal(m)
	case "toml":
		return toml.Marshal(m)
	case "json":
		// Round-trip through YAML so JSON keys match the manifest keys
		data, err := yaml.Marshal(m)
		if err != nil {
			return nil, err
		}
		var generic map[string]interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
		return json.MarshalIndent(generic, "", "  ")
	}
	return nil, errors.Wrapf(errors.ErrInvalidRequest, "unknown manifest format %q", format)
}

// Save writes the manifest to path, choosing TOML or YAML by extension
func (m *Manifest) Save(path string) error {
	format := configType(path)
	if format == "" {
		format = "yaml"
	}
	data, err := m.Marshal(format)
	if err != nil {
		return errors.Wrapf(err, "failed to encode manifest %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write manifest %s", path)
	}
	return nil
}
