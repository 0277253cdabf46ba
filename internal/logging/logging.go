// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Package logging builds the process slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config selects log level, format and an optional rotating file.
type Config struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" json:"level"`
	// Format is text or json.
	Format string `yaml:"format" json:"format"`
	// File enables logging to a rotating file instead of the default writer.
	File string `yaml:"file" json:"file,omitempty"`
	// MaxSizeMB is the file size that triggers rotation.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb,omitempty"`
	// MaxBackups is how many rotated files are kept.
	MaxBackups int `yaml:"max_backups" json:"max_backups,omitempty"`
	// MaxAgeDays removes rotated files older than this.
	MaxAgeDays int `yaml:"max_age_days" json:"max_age_days,omitempty"`
}

// ParseLevel maps a level name to slog.Level. Unknown names are an error.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// New returns a logger writing to w, or to the rotating file when cfg.File is set.
// The returned closer releases the file and is a no-op otherwise.
func New(cfg Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		w, closer = file, file
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", FormatText:
		handler = slog.NewTextHandler(w, opts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
