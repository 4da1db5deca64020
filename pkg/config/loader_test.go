package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServiceConfig struct {
	BaseConfig `mapstructure:",squash"`

	AdUnitID string `mapstructure:"ad_unit_id"`
}

func writeConf(t *testing.T, root, runType, body string) {
	t.Helper()
	dir := filepath.Join(root, "conf")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, runType+".yaml"), []byte(body), 0o644))
}

func TestLoader_LoadByRunType(t *testing.T) {
	root := t.TempDir()
	writeConf(t, root, "prod", `
host: 0.0.0.0
port: 9090
read_timeout: 5s
ad_unit_id: unit-prod
logging:
  level: warn
`)
	t.Setenv("CONFIG_PATH", root)
	t.Setenv("RUN_TYPE", "prod")

	var cfg testServiceConfig
	require.NoError(t, NewLoader("svc").Load(&cfg))

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "unit-prod", cfg.AdUnitID)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, IsProduction())
}

func TestLoader_EnvOverride(t *testing.T) {
	root := t.TempDir()
	writeConf(t, root, "test", "ad_unit_id: from-file\n")
	t.Setenv("CONFIG_PATH", root)
	t.Setenv("RUN_TYPE", "")
	t.Setenv("SVC_AD_UNIT_ID", "from-env")

	var cfg testServiceConfig
	require.NoError(t, NewLoader("svc").Load(&cfg))
	assert.Equal(t, "from-env", cfg.AdUnitID)
	assert.True(t, IsTest())
}

func TestLoader_Errors(t *testing.T) {
	t.Setenv("CONFIG_PATH", t.TempDir())

	t.Setenv("RUN_TYPE", "staging")
	assert.Error(t, NewLoader("svc").Load(&testServiceConfig{}))

	t.Setenv("RUN_TYPE", "dev")
	err := NewLoader("svc").Load(&testServiceConfig{})
	assert.ErrorContains(t, err, "config file not found")
}

func TestBaseConfig_GetAddress(t *testing.T) {
	cfg := &BaseConfig{}
	assert.Equal(t, "localhost:8080", cfg.GetAddress())
	assert.Equal(t, "localhost:8080", DefaultBaseConfig().GetAddress())
}

func TestLoggingConfig_NewLogger(t *testing.T) {
	t.Setenv("RUN_TYPE", "dev")
	l, err := LoggingConfig{Backend: "zerolog", Level: "debug"}.NewLogger()
	require.NoError(t, err)
	l.Debug("logger from config")
}
