package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadServerConfig(t *testing.T) {
	path := writeFile(t, `
port: 9090
waterfall:
  page_size: 3
store:
  cache_ttl: 5s
ad_units:
  - id: unit-1
    format: interstitial
    entries:
      - ad_type: html
        body: "<b>hi</b>"
        extras:
          placement: p1
      - ad_type: mraid
`)
	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 3, cfg.Waterfall.PageSize)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.Store.CacheTTL)
	require.Len(t, cfg.AdUnits, 1)
	require.Len(t, cfg.AdUnits[0].Entries, 2)
	assert.Equal(t, "p1", cfg.AdUnits[0].Entries[0].Extras["placement"])
}

func TestLoadServerConfig_Invalid(t *testing.T) {
	_, err := LoadServerConfig(writeFile(t, "store:\n  backend: s3\n"))
	assert.Error(t, err)

	_, err = LoadServerConfig(writeFile(t, "store:\n  backend: redis\n"))
	assert.Error(t, err)

	_, err = LoadServerConfig(writeFile(t, "ad_units:\n  - format: banner\n"))
	assert.Error(t, err)
}

func TestLoadClientConfig(t *testing.T) {
	path := writeFile(t, `
loader:
  server_url: http://ads.local:8080
  ad_unit_id: unit-1
simulation:
  failure_rate: 0.25
`)
	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://ads.local:8080", cfg.Loader.ServerURL)
	assert.Equal(t, "interstitial", cfg.Loader.AdFormat)
	assert.Equal(t, 0.25, cfg.Simulation.FailureRate)
	assert.Equal(t, 20, cfg.Simulation.MaxAds)
	assert.True(t, cfg.Beacon.Enabled)

	_, err = LoadClientConfig(writeFile(t, "loader:\n  server_url: http://x\n"))
	assert.Error(t, err)
}

func TestLoadClientConfig_RunType(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "conf", "dev.yaml"),
		[]byte("loader:\n  ad_unit_id: dev-unit\n"), 0o644))
	t.Setenv("CONFIG_PATH", root)
	t.Setenv("RUN_TYPE", "dev")

	cfg, err := LoadClientConfig("")
	require.NoError(t, err)
	assert.Equal(t, "dev-unit", cfg.Loader.AdUnitID)
}
