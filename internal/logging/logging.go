// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Init sets the level and formatter of the standard logrus logger.
// Call this once at application startup, after loading config.
// Unknown levels fall back to info.
func Init(levelStr string) {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(levelStr)))
	if err != nil {
		level = log.InfoLevel
		log.WithField("configuredLevel", levelStr).Warn("Invalid LOG_LEVEL specified, defaulting to INFO")
	}

	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	log.SetLevel(level)

	log.WithField("level", level.String()).Info("Logger initialized")
}

// Discard returns a logger that drops everything, for tests and library callers
// that did not configure one.
func Discard() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}
