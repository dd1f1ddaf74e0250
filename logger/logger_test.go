package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
	assert.False(t, ShouldLogTrace(2))
	assert.True(t, ShouldLogTrace(3))
	assert.Equal(t, "Info (-v)", LevelName(1))
}

func TestInitializeWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	path := LogFileName(dir, "20240305_101112", 4242)

	require.NoError(t, Initialize(Options{Verbosity: VerbosityUser, LogFile: path}))
	t.Cleanup(func() {
		Cleanup()
		require.NoError(t, Initialize(Options{}))
	})

	// Debug entries reach the file even though the console is at warn level
	Debugw("pipeline started", FieldWorkers, 4)
	Cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"pipeline started"`)
	assert.Contains(t, string(data), `"workers":4`)
}

func TestLogFileName(t *testing.T) {
	path := LogFileName("state", "20240305_101112", 99)
	assert.Equal(t, filepath.Join("state", "anvil_20240305_101112_99.log"), path)

	ts, pid, ok := ParseLogFileName(path)
	require.True(t, ok)
	assert.Equal(t, "20240305_101112", ts)
	assert.Equal(t, 99, pid)

	_, _, ok = ParseLogFileName("metrics_20240305_101112_99.yaml")
	assert.False(t, ok)
}

func TestMinimalEncoder(t *testing.T) {
	enc := newMinimalEncoder()
	ent := zapcore.Entry{
		Level:      zapcore.WarnLevel,
		Time:       time.Date(2024, 3, 5, 13, 4, 35, 0, time.UTC),
		LoggerName: "pulse",
		Message:    "Worker recovered from panic",
	}
	fields := []zapcore.Field{
		{Key: FieldFile, Type: zapcore.StringType, String: "chr1.vcf"},
		{Key: FieldLine, Type: zapcore.Int64Type, Integer: 120},
		{Key: FieldWorkers, Type: zapcore.Int64Type, Integer: 3},
		{Key: "ignored", Type: zapcore.StringType, String: "noise"},
	}

	buf, err := enc.EncodeEntry(ent, fields)
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "13:04:35")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "pulse")
	assert.Contains(t, out, "Worker recovered from panic")
	assert.Contains(t, out, "chr1.vcf:120")
	assert.Contains(t, out, "workers")
	assert.NotContains(t, out, "noise")
	assert.True(t, strings.HasSuffix(out, "\n"))
}
