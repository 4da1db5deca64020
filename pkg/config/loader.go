package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader resolves and decodes a service's yaml config with viper.
type Loader struct {
	ServiceName string
}

func NewLoader(serviceName string) *Loader {
	return &Loader{
		ServiceName: serviceName,
	}
}

// Load reads <conf dir>/<RUN_TYPE>.yaml into configStruct.
func (l *Loader) Load(configStruct interface{}) error {
	runType := GetRunType()
	if runType != "test" && runType != "prod" && runType != "dev" {
		return fmt.Errorf("invalid RUN_TYPE: %s, must be 'test', 'prod', or 'dev'", runType)
	}

	configFile := filepath.Join(l.getConfigDir(), fmt.Sprintf("%s.yaml", runType))
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configFile)
	}

	return l.LoadFile(configFile, configStruct)
}

// LoadFile reads an explicit yaml file into configStruct. Environment
// variables prefixed with the service name override file values, e.g.
// WATERFALL_CLIENT_AD_UNIT_ID for ad_unit_id.
func (l *Loader) LoadFile(configFile string, configStruct interface{}) error {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(l.ServiceName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	if err := v.Unmarshal(configStruct); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// Priority: $CONFIG_PATH/conf, conf next to the executable, ./conf.
func (l *Loader) getConfigDir() string {
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return filepath.Join(configPath, "conf")
	}

	if exePath, err := os.Executable(); err == nil {
		confPath := filepath.Join(filepath.Dir(exePath), "conf")
		if _, err := os.Stat(confPath); err == nil {
			return confPath
		}
	}

	return "conf"
}

func GetRunType() string {
	runType := os.Getenv("RUN_TYPE")
	if runType == "" {
		return "test"
	}
	return runType
}

func IsProduction() bool {
	return GetRunType() == "prod"
}

func IsTest() bool {
	return GetRunType() == "test"
}
