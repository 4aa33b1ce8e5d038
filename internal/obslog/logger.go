// Package obslog builds the structured logger shared by every
// component of the navigation service.
package obslog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a JSON-formatted logger at the given level, writing to
// stdout unless output names a file path.
func New(level, output string) *logrus.Logger {
	logger := logrus.New()
	SetLevel(logger, level)

	switch output {
	case "", "stdout":
		logger.SetOutput(os.Stdout)
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			logger.SetOutput(os.Stdout)
			logger.Warnf("failed to open log file %s, falling back to stdout: %v", output, err)
			break
		}
		logger.SetOutput(f)
	}

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return logger
}

// SetLevel changes a logger's level at runtime; an unrecognized level
// name is treated as info.
func SetLevel(logger *logrus.Logger, level string) {
	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
}
