// Package logging builds the process logger and carries the structured
// error-logging helper used across modules.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"brewery-production-backend/config"
)

// New builds a logrus logger from config. Unknown levels fall back to info.
func New(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)
	return logger
}

// Discard returns a logger that drops everything. Used when no logger is wired.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}

// LogDegraded records a swallowed secondary-write failure at warn level.
func LogDegraded(logger *logrus.Logger, moduleName string, funcName string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"degraded": true,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Warn(err.Error())
}
