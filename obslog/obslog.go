// Package obslog provides chronicle's structured logging: a logrus
// logger with error-level output split to stderr so containerized
// environments can treat the two streams differently.
package obslog

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/evalgo-chronicle/chronicle/config"
)

// streamSplitter routes "level=error" formatted lines to stderr and
// everything else to stdout.
type streamSplitter struct{}

func (streamSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logger: logrus's defaults routed through
// streamSplitter. New does not modify it; it builds and returns a separate
// logger configured per a config.ServiceConfig.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(streamSplitter{})
}

// New builds a logger configured from cfg — JSON formatting for
// "json" log format, text with full timestamps otherwise, and the
// configured level (falling back to info on an unparseable one) — and
// returns it scoped with service/version/env fields attached to every
// entry.
func New(cfg config.ServiceConfig) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(streamSplitter{})

	if cfg.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	return l.WithFields(logrus.Fields{
		"service": cfg.Name,
		"version": cfg.Version,
		"env":     cfg.Environment,
	})
}
