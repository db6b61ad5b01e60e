package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultConfig(), cfg)

	cfg = Config{Level: "debug", MaxBackups: 3}
	cfg.ApplyDefaults()
	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, 3, cfg.MaxBackups)
	assert.Equal(t, "text", cfg.Format)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, -4, int(parseLevel("debug")))
	assert.Equal(t, 0, int(parseLevel("info")))
	assert.Equal(t, 4, int(parseLevel("warn")))
	assert.Equal(t, 8, int(parseLevel("error")))
	assert.Equal(t, 0, int(parseLevel("")))
}

func TestNew_WritesToRotatedFile(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Level: "info", Format: "text", Dir: dir, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}

	logger, err := New(cfg)
	require.NoError(t, err)

	logger.Info("hello from test")
	require.NoError(t, Shutdown())

	content, err := os.ReadFile(filepath.Join(dir, "remotestore.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "hello from test")
}

func TestNew_JSONFormat(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Level: "info", Format: "json", Dir: dir, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("json line")
	require.NoError(t, Shutdown())

	content, err := os.ReadFile(filepath.Join(dir, "remotestore.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"json line"`)
}
