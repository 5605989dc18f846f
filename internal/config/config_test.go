package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidcrawl/vidcrawl/internal/config"
)

func TestDefaultsBaseline(t *testing.T) {
	d := config.Defaults()
	assert.Equal(t, 30, d.PageSize)
	assert.Equal(t, 3, d.ConcurrentLimit)
	assert.True(t, d.UpdateIndexOnSave)
	assert.NotEmpty(t, d.UserAgents)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*config.Config){
		func(c *config.Config) { c.RequestInterval = 0 },
		func(c *config.Config) { c.MaxRetries = -1 },
		func(c *config.Config) { c.PageSize = 0 },
		func(c *config.Config) { c.ConcurrentLimit = 0 },
		func(c *config.Config) { c.MetadataDir = "" },
	}
	for _, mutate := range cases {
		d := config.Defaults()
		mutate(&d)
		assert.Error(t, d.Validate())
	}
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "vidcrawl.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("page_size: 50\nmetadata_dir: meta\nmedia_dir: media\nindex_file: meta/index.json\n"), 0o644))

	t.Setenv("VIDCRAWL_MAX_RETRIES", "7")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, "meta", cfg.MetadataDir)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Defaults().PageSize, cfg.PageSize)
}
