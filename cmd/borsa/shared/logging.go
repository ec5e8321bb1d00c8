package shared

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions controls where and how much a command logs.
type LogOptions struct {
	Level   string
	File    string // rotated log file, empty for stderr only
	Console bool   // also write to stderr when File is set
}

// SetupLogger returns a charmbracelet logger for opts and a closer for any
// file it opened.
func SetupLogger(opts LogOptions) (*log.Logger, io.Closer, error) {
	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		closer = rotating
		out = rotating
		if opts.Console {
			out = io.MultiWriter(os.Stderr, rotating)
		}
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		ReportTimestamp: true,
	})
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
