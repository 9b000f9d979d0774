package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	require.NoError(t, Init(v, "", nil))
	return v
}

// seededViper is freshViper plus the one key without a default.
func seededViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := freshViper(t)
	v.Set("crawl.output_dir", t.TempDir())
	return v
}

func TestLoadRequiresOutputDir(t *testing.T) {
	_, err := Load(freshViper(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl.output_dir")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(seededViper(t))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.DelayMin)
	assert.Equal(t, 5*time.Second, cfg.DelayMax)
	assert.Equal(t, 45*time.Second, cfg.FetchCeiling)
	assert.Equal(t, 30*time.Second, cfg.LoadTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.SettleDelay)
	assert.Equal(t, 1000, cfg.MinContentBytes)
	assert.Equal(t, 200, cfg.CooldownEvery)
	assert.Equal(t, 20*time.Second, cfg.CooldownFor)
	assert.Equal(t, 60*time.Second, cfg.BlockCooldown)
	assert.Zero(t, cfg.Limit)
	assert.False(t, cfg.SkipImages)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CHROMECRAWL_CRAWL_PORT", "9333")
	t.Setenv("CHROMECRAWL_CRAWL_DELAY_MAX", "8s")
	t.Setenv("CHROMECRAWL_LOG_VERBOSE", "true")

	cfg, err := Load(seededViper(t))
	require.NoError(t, err)
	assert.Equal(t, "9333", cfg.Port)
	assert.Equal(t, 8*time.Second, cfg.DelayMax)
	assert.True(t, cfg.Verbose)
}

func TestLoadFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chromecrawl.yaml")
	content := []byte(`
crawl:
  output_dir: /tmp/articles
  endpoint: http://127.0.0.1:9222/
  limit: 25
antiblock:
  markers:
    - "access denied"
    - "  "
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	v := viper.New()
	require.NoError(t, Init(v, path, nil))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/articles", cfg.OutputDir)
	assert.Equal(t, "http://127.0.0.1:9222", cfg.Endpoint, "trailing slash is cleaned")
	assert.Equal(t, 25, cfg.Limit)
	assert.Equal(t, []string{"access denied"}, cfg.BlockMarkers, "blank entries are dropped")
}

func TestInitMissingExplicitFileIsError(t *testing.T) {
	v := viper.New()
	err := Init(v, filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestValidateRejectsBadCombinations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty output dir", func(c *Config) { c.OutputDir = "" }},
		{"zero delay min", func(c *Config) { c.DelayMin = 0 }},
		{"max below min", func(c *Config) { c.DelayMax = c.DelayMin - time.Second }},
		{"negative limit", func(c *Config) { c.Limit = -1 }},
		{"ceiling below load timeout", func(c *Config) { c.FetchCeiling = c.LoadTimeout }},
		{"zero cooldown cadence", func(c *Config) { c.CooldownEvery = 0 }},
		{"zero block cooldown", func(c *Config) { c.BlockCooldown = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(seededViper(t))
			require.NoError(t, err)
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
