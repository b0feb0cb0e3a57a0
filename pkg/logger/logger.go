// Package logger builds the process-wide httplog logger, optionally teeing
// output into a size-rotated file.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/httplog/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      slog.Level
	JSON       bool
	Concise    bool
	Tags       map[string]string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Writer replaces stdout. Used by tests.
	Writer io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns the logger and a closer for the rotated file, if any.
func New(service string, opts Options) (*httplog.Logger, io.Closer, error) {
	const op = "logger.New"

	var out io.Writer = os.Stdout
	if opts.Writer != nil {
		out = opts.Writer
	}

	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("%s: failed to create log directory: %w", op, err)
		}

		fileWriter := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}

		out = io.MultiWriter(out, fileWriter)
		closer = fileWriter
	}

	logger := httplog.NewLogger(service, httplog.Options{
		JSON:             opts.JSON,
		LogLevel:         opts.Level,
		Concise:          opts.Concise,
		RequestHeaders:   !opts.Concise,
		MessageFieldName: "message",
		Tags:             opts.Tags,
		QuietDownRoutes:  []string{"/health"},
		QuietDownPeriod:  10 * time.Second,
		Writer:           out,
	})

	return logger, closer, nil
}
