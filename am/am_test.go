package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/anvil/errors"
)

func writeManifest(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadWithViper_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	m, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, DefaultNumThreads, m.NumThreads)
	assert.Equal(t, DefaultMaxErrors, m.MaxErrors)
	assert.True(t, m.CacheEnabled)
	assert.Equal(t, DefaultTranslatorURL, m.Translator.URL)
	assert.Equal(t, DefaultMetaKBURLs, m.MetaKBURLs)
	assert.Equal(t, 4, m.QueueCapacity())
	assert.Equal(t, time.Second, m.IdleTimeout())
	assert.Equal(t, 30*time.Second, m.TranslatorTimeout())
	assert.Equal(t, int64(20)<<30, m.CacheSizeLimitBytes())
}

func TestLoad_YAML(t *testing.T) {
	path := writeManifest(t, "manifest.yaml", `
vcf_files:
  - a.vcf
  - b.vcf.gz
num_threads: 4
max_errors: 3
compute_for_ref: true
translator:
  url: http://localhost:9999
pipeline:
  queue_capacity: 5
`)
	m, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.vcf", "b.vcf.gz"}, m.VCFFiles)
	assert.Equal(t, 4, m.NumThreads)
	assert.Equal(t, 3, m.MaxErrors)
	assert.True(t, m.ComputeForRef)
	assert.Equal(t, "http://localhost:9999", m.Translator.URL)
	assert.Equal(t, 5, m.QueueCapacity())
	assert.Equal(t, path, m.Path)
	// untouched keys keep defaults
	assert.Equal(t, "state", m.StateDirectory)
}

func TestLoad_TOML(t *testing.T) {
	path := writeManifest(t, "manifest.toml", `
vcf_files = ["x.vcf"]
num_threads = 8

[translator]
timeout_seconds = 5
`)
	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.vcf"}, m.VCFFiles)
	assert.Equal(t, 8, m.NumThreads)
	assert.Equal(t, 5*time.Second, m.TranslatorTimeout())
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeManifest(t, "manifest.yaml", "vcf_files: [a.vcf]\nnum_threads: 4\n")
	t.Setenv("ANVIL_NUM_THREADS", "7")
	t.Setenv("ANVIL_TRANSLATOR_URL", "http://override")

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, m.NumThreads)
	assert.Equal(t, "http://override", m.Translator.URL)

	sources := map[string]SettingInfo{}
	for _, s := range m.Settings() {
		sources[s.Key] = s
	}
	assert.Equal(t, SourceEnvironment, sources["num_threads"].Source)
	assert.Equal(t, "ANVIL_NUM_THREADS", sources["num_threads"].EnvVar)
	assert.Equal(t, SourceManifest, sources["vcf_files"].Source)
	assert.Equal(t, SourceDefault, sources["max_errors"].Source)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "cache"), expandHome("~/cache"))
	assert.Equal(t, "relative/dir", expandHome("relative/dir"))
	assert.Equal(t, "/abs/~dir", expandHome("/abs/~dir"))
}

func validManifest(t *testing.T) *Manifest {
	t.Helper()
	root := t.TempDir()
	v := viper.New()
	SetDefaults(v)
	m, err := LoadWithViper(v)
	require.NoError(t, err)
	m.VCFFiles = []string{"a.vcf"}
	m.WorkDirectory = filepath.Join(root, "work")
	m.CacheDirectory = filepath.Join(root, "cache")
	m.StateDirectory = filepath.Join(root, "state")
	m.MetaKBDirectory = filepath.Join(root, "metakb")
	return m
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *Manifest)
		wantErr bool
	}{
		{"defaults are valid", func(m *Manifest) {}, false},
		{"no inputs", func(m *Manifest) { m.VCFFiles = nil }, true},
		{"zero threads", func(m *Manifest) { m.NumThreads = 0 }, true},
		{"zero max errors is valid", func(m *Manifest) { m.MaxErrors = 0 }, false},
		{"negative max errors", func(m *Manifest) { m.MaxErrors = -1 }, true},
		{"negative limit", func(m *Manifest) { m.Limit = -5 }, true},
		{"negative queue capacity", func(m *Manifest) { m.Pipeline.QueueCapacity = -1 }, true},
		{"empty translator url", func(m *Manifest) { m.Translator.URL = "" }, true},
		{"missing metakb without urls", func(m *Manifest) { m.MetaKBURLs = nil }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest(t)
			tt.mutate(m)
			err := m.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_CreatesDirectories(t *testing.T) {
	m := validManifest(t)
	require.NoError(t, m.Validate())

	for _, dir := range []string{m.WorkDirectory, m.CacheDirectory, m.StateDirectory, m.MetaKBDirectory} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}

func TestCloneForFile(t *testing.T) {
	m := validManifest(t)
	m.VCFFiles = []string{"a.vcf", "b.vcf"}
	m.NumThreads = 6

	child := m.CloneForFile("b.vcf")
	assert.Equal(t, []string{"b.vcf"}, child.VCFFiles)
	assert.Equal(t, 1, child.NumThreads)
	assert.Equal(t, m.Translator, child.Translator)

	// parent is untouched
	assert.Equal(t, []string{"a.vcf", "b.vcf"}, m.VCFFiles)
	assert.Equal(t, 6, m.NumThreads)

	child.MetaKBURLs[0] = "changed"
	assert.NotEqual(t, "changed", m.MetaKBURLs[0])
}

func TestSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"child.yaml", "child.toml"} {
		t.Run(name, func(t *testing.T) {
			m := validManifest(t).CloneForFile("/data/chr1.vcf")
			m.Normalize = true
			m.Limit = 100

			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, m.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, []string{"/data/chr1.vcf"}, loaded.VCFFiles)
			assert.Equal(t, 1, loaded.NumThreads)
			assert.True(t, loaded.Normalize)
			assert.Equal(t, 100, loaded.Limit)
			assert.Equal(t, m.StateDirectory, loaded.StateDirectory)
		})
	}
}

func TestMarshal_UnknownFormat(t *testing.T) {
	_, err := validManifest(t).Marshal("xml")
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
