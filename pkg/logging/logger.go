// Package logging provides the shared logger configuration. File sinks are
// size-rotated so a long-running service does not grow a log without bound.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the service logger.
type Options struct {
	Level      string // logrus level name; anything unparseable falls back to info
	Output     string // "stdout", "stderr", or a file path (rotated)
	MaxSizeMB  int    // rotation threshold per log file, default 50
	MaxBackups int    // rotated files to keep, default 3
}

// New creates a configured logger emitting structured JSON.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetOutput(sink(opts))
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})

	return logger
}

func sink(opts Options) io.Writer {
	switch opts.Output {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}
	return &lumberjack.Logger{
		Filename:   opts.Output,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		Compress:   true,
	}
}

// Component returns a logger entry tagged with a component name.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}
