// Package log wires up structured logging for the engine. It follows the
// teacher's split between a discarding production logger and a
// file-backed development logger, stamped with static build fields.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/stepchowfun/toast/internal/config"
)

// NewLogger returns a new logger scoped to one invocation of toast.
func NewLogger(cfg *config.AppConfig) *logrus.Entry {
	var logger *logrus.Logger
	if cfg.Debug || os.Getenv("TOAST_DEBUG") == "TRUE" {
		logger = newDevelopmentLogger(cfg)
	} else {
		logger = newProductionLogger()
	}

	logger.Formatter = &logrus.JSONFormatter{}

	return logger.WithFields(logrus.Fields{
		"debug":     cfg.Debug,
		"version":   cfg.Version,
		"commit":    cfg.Commit,
		"buildDate": cfg.BuildDate,
	})
}

func getLogLevel() logrus.Level {
	strLevel := os.Getenv("LOG_LEVEL")
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return logrus.DebugLevel
	}
	return level
}

func newDevelopmentLogger(cfg *config.AppConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(getLogLevel())

	file, err := os.OpenFile(filepath.Join(cfg.ConfigDir, "development.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		fmt.Println("unable to log to file")
		os.Exit(1)
	}
	logger.SetOutput(file)
	return logger
}

func newProductionLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}
