// Package log provides the leveled, field-tagged logger injected into every component.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	// SetLevel changes the level of the underlying logger, shared by every derived Logger.
	SetLevel(level string) error
	IsDebugEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = mustNew(DefaultConfig(), os.Stdout)
)

// GetLogger returns the process logger.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the process logger. Output goes to stdout plus the optional rotating file.
func Init(cfg *LoggerConfig) error {
	out := NewMultiWriter().Add(os.Stdout)
	if cfg.File.Enabled {
		if _, err := out.AddFileAppender(cfg.File); err != nil {
			return err
		}
	}
	l, err := New(cfg, out)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// New creates a Logger writing to out.
func New(cfg *LoggerConfig, out io.Writer) (Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	pattern := cfg.Pattern
	if pattern == "" {
		pattern = DefaultPattern
	}
	timeFormat := cfg.Time
	if timeFormat == "" {
		timeFormat = DefaultTimeFormat
	}

	l := logrus.New()
	l.SetFormatter(&formatter{pattern: pattern, time: timeFormat})
	l.SetLevel(level)
	l.SetOutput(out)

	return &logrusAdapter{entry: logrus.NewEntry(l)}, nil
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return mustNew(&LoggerConfig{Level: "error"}, io.Discard)
}

func mustNew(cfg *LoggerConfig, out io.Writer) Logger {
	l, err := New(cfg, out)
	if err != nil {
		panic(err)
	}
	return l
}

// parseLevel accepts debug, info, warn/warning and error in any case.
func parseLevel(s string) (logrus.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %q", s)
	}
}
