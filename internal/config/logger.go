package config

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from cfg.
// A nil out writes to stderr so stdout stays free for JSON results and MCP stdio.
func NewLogger(cfg *Config, out io.Writer) *logrus.Logger {
	log := logrus.New()
	if out == nil {
		out = os.Stderr
	}
	log.SetOutput(out)

	if cfg != nil && cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := logrus.InfoLevel
	if cfg != nil && cfg.LogLevel != "" {
		if parsed, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			level = parsed
		} else {
			log.WithField("log_level", cfg.LogLevel).Warn("unknown log level, using info")
		}
	}
	log.SetLevel(level)

	return log
}

// DiscardLogger returns a logger that drops everything. Useful for tests and
// for library callers that did not supply one.
func DiscardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
