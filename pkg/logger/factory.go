package logger

import (
	"fmt"
	"os"
)

// LoggerType selects the logging back-end.
type LoggerType string

const (
	Zap     LoggerType = "zap"
	Zerolog LoggerType = "zerolog"
)

// Default is used by components built without an explicit logger. Its
// environment follows RUN_TYPE.
var Default Logger = MustNew(Zap, defaultConfigFor(os.Getenv("RUN_TYPE")))

// ParseLoggerType accepts the config spelling of a back-end; empty means zap.
func ParseLoggerType(s string) (LoggerType, error) {
	switch LoggerType(s) {
	case "", Zap:
		return Zap, nil
	case Zerolog:
		return Zerolog, nil
	default:
		return "", fmt.Errorf("unknown logger backend %q", s)
	}
}

func MustNew(loggerType LoggerType, config Config) Logger {
	l, err := New(loggerType, config)
	if err != nil {
		panic(err)
	}
	return l
}

func New(loggerType LoggerType, config Config) (Logger, error) {
	switch loggerType {
	case Zap:
		return NewZapLogger(config)
	case Zerolog:
		return NewZerologLogger(config)
	default:
		return nil, fmt.Errorf("unknown logger backend %q", loggerType)
	}
}

// DefaultConfig logs info and above to stdout. Rotation settings only apply
// once LogFile is set.
func DefaultConfig() Config {
	return Config{
		Environment: Dev,
		LogLevel:    "info",
		MaxSize:     100, // MB
		MaxBackups:  3,
		MaxAge:      30, // days
		Compress:    true,
	}
}

func defaultConfigFor(runType string) Config {
	cfg := DefaultConfig()
	cfg.Environment = ParseEnvironment(runType)
	if cfg.Environment != Prod {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func NewDevelopment(loggerType LoggerType) (Logger, error) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	return New(loggerType, cfg)
}
