// Package logging configures the standard logger for the CLI and server.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log output goes.
type Options struct {
	// File enables a rotating log file. Empty logs to stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Quiet discards output when no file is set.
	Quiet bool
}

// Setup points the standard logger at the configured destination and returns
// the writer in use. Callers should Close it when it implements io.Closer.
func Setup(opts Options) (io.Writer, error) {
	var out io.Writer = os.Stderr
	switch {
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10), // MB
			MaxBackups: orDefault(opts.MaxBackups, 2),
			MaxAge:     orDefault(opts.MaxAgeDays, 28), // days
			Compress:   true,
		}
	case opts.Quiet:
		out = io.Discard
	}

	log.SetOutput(out)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	return out, nil
}

func orDefault(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}
