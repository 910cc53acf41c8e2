// Package telemetry centralizes logrus setup so every cmd entry point
// configures logging the same way. Grounded on the teacher's
// cmd/ntrip-caster/main.go, which parsed a -log-level flag and built a
// logrus.Logger with a TextFormatter inline; generalized here into a
// shared constructor plus an optional log-file destination.
package telemetry

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	// Level is a logrus level name (debug, info, warn, error). Empty
	// defaults to "info".
	Level string
	// LogFile, if non-empty, also writes log output to this path. The
	// process still logs to stderr as well.
	LogFile string
}

// New builds a logrus.Entry per opts, returning an error if Level does not
// parse or LogFile cannot be opened.
func New(opts Options) (*logrus.Entry, error) {
	level := opts.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("telemetry: invalid log level %q: %w", level, err)
	}

	logger := logrus.New()
	logger.SetLevel(parsed)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("telemetry: opening log file %s: %w", opts.LogFile, err)
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	return logrus.NewEntry(logger), nil
}
