package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NotNil(t, cfg)
	assert.Equal(t, DefaultMaxLogSize, cfg.MaxLogSize)
	assert.Contains(t, cfg.BaseDir, ".blackcell")
	assert.False(t, cfg.Quiet)
	assert.False(t, cfg.Verbose)
}

func TestNormalizeDerivesPaths(t *testing.T) {
	cfg := &Config{BaseDir: "/data/blackcell"}
	cfg.Normalize()

	assert.Equal(t, filepath.Join("/data/blackcell", "logs"), cfg.LogRoot)
	assert.Equal(t, filepath.Join("/data/blackcell", "blackcell.db"), cfg.IndexPath)
	assert.Equal(t, DefaultMaxLogSize, cfg.MaxLogSize)

	// Explicit values survive normalization.
	cfg = &Config{BaseDir: "/data/blackcell", LogRoot: "/mnt/logs", MaxLogSize: 123}
	cfg.Normalize()
	assert.Equal(t, "/mnt/logs", cfg.LogRoot)
	assert.Equal(t, int64(123), cfg.MaxLogSize)
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "blackcell.yaml")
	content := `
base_dir: /srv/blackcell
max_log_size: 1000000
verbose: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/blackcell", cfg.BaseDir)
	assert.Equal(t, int64(1_000_000), cfg.MaxLogSize)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, filepath.Join("/srv/blackcell", "logs"), cfg.LogRoot)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BLACKCELL_LOG_ROOT", "/custom/logs")
	t.Setenv("BLACKCELL_MAX_LOG_SIZE", "2500000")
	t.Setenv("BLACKCELL_QUIET", "1")

	cfg := Default()
	applyEnvOverrides(cfg)
	cfg.Normalize()

	assert.Equal(t, "/custom/logs", cfg.LogRoot)
	assert.Equal(t, int64(2_500_000), cfg.MaxLogSize)
	assert.True(t, cfg.Quiet)
}

func TestEnvOverridesRejectBadSize(t *testing.T) {
	t.Setenv("BLACKCELL_MAX_LOG_SIZE", "not-a-number")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, DefaultMaxLogSize, cfg.MaxLogSize)
}
