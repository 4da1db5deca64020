package config

import (
	"fmt"
	"time"

	"github.com/echoface/adloader/pkg/logger"
)

// BaseConfig is shared by every service.
type BaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type LoggingConfig struct {
	Backend    string `mapstructure:"backend"` // zap or zerolog
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

type PrometheusConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

func DefaultBaseConfig() *BaseConfig {
	return &BaseConfig{
		Host:            "localhost",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Logging: LoggingConfig{
			Backend:    string(logger.Zap),
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     30,
		},
		Monitoring: MonitoringConfig{
			Prometheus: PrometheusConfig{
				Enabled:   true,
				Endpoint:  "/metrics",
				Namespace: "adloader",
			},
		},
	}
}

func (c *BaseConfig) GetAddress() string {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewLogger builds the service logger for the current RUN_TYPE.
func (c LoggingConfig) NewLogger() (logger.Logger, error) {
	backend, err := logger.ParseLoggerType(c.Backend)
	if err != nil {
		return nil, err
	}
	cfg := logger.DefaultConfig()
	cfg.Environment = logger.ParseEnvironment(GetRunType())
	if c.Level != "" {
		cfg.LogLevel = c.Level
	}
	cfg.LogFile = c.FilePath
	if c.MaxSize > 0 {
		cfg.MaxSize = c.MaxSize
	}
	if c.MaxBackups > 0 {
		cfg.MaxBackups = c.MaxBackups
	}
	if c.MaxAge > 0 {
		cfg.MaxAge = c.MaxAge
	}
	cfg.Compress = c.Compress
	return logger.New(backend, cfg)
}
