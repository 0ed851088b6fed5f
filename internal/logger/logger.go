package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// SlogConfig controls the structured log handler.
type SlogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	Color      bool   // ANSI colored levels for text format
	TimeStamps bool
	Source     bool
}

// FileConfig enables a rotated log file in addition to the console.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Path       string
	MaxSizeMB  int // megabytes before rotation (default 10)
	MaxBackups int // number of backups to keep (default 3)
	MaxAgeDays int // days to keep (default 7)
	Compress   bool
}

// Config is the unified logging configuration.
type Config struct {
	Slog SlogConfig
	File FileConfig
}

func DefaultConfig() Config {
	return Config{
		Slog: SlogConfig{Level: "info", Format: "text", Color: true, TimeStamps: true},
		File: FileConfig{
			MaxSizeMB:  DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAgeDays: DefaultMaxAgeDays,
		},
	}
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// FileWriter returns the rotated log file writer, or nil when no path is set.
func (c Config) FileWriter() io.WriteCloser {
	if c.File.Path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.File.Path,
		MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.File.Compress,
	}
}

// NewSlogger builds a logger writing to console (stderr when nil) and, when
// configured, to the rotated file. The returned closer releases the file.
func (c Config) NewSlogger(console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(c.Slog.Level)
	if err != nil {
		return nil, nil, err
	}
	if console == nil {
		console = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: c.Slog.Source}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = dropTime
	}

	var closer io.Closer = nopCloser{}
	var handler slog.Handler
	fw := c.FileWriter()
	switch strings.ToLower(c.Slog.Format) {
	case "", "text":
		if c.Slog.Color {
			handler = NewColorTextHandler(console, opts, c.Slog.TimeStamps)
		} else {
			handler = slog.NewTextHandler(console, opts)
		}
		if fw != nil {
			// colour codes stay out of the file
			handler = fanout{handler, slog.NewTextHandler(fw, opts)}
		}
	case "json":
		w := console
		if fw != nil {
			w = io.MultiWriter(console, fw)
		}
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("invalid log format %q", c.Slog.Format)
	}
	if fw != nil {
		closer = fw
	}
	return slog.New(handler), closer, nil
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
