// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Package config loads tool settings from defaults, a YAML file, .env and RPF_* variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/woozymasta/pathrules"
	"gopkg.in/yaml.v3"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/logging"
	"github.com/woozymasta/rpf/internal/vfs"
)

// Environment variable names.
const (
	EnvLogLevel       = "RPF_LOG_LEVEL"
	EnvLogFormat      = "RPF_LOG_FORMAT"
	EnvLogFile        = "RPF_LOG_FILE"
	EnvTempDir        = "RPF_TEMP_DIR"
	EnvMaxDepth       = "RPF_MAX_DEPTH"
	EnvPassphrase     = "RPF_PASSPHRASE"
	EnvWorkers        = "RPF_WORKERS"
	EnvRawExtensions  = "RPF_RAW_EXT"
	EnvBackupKeep     = "RPF_BACKUP_KEEP"
	EnvServeAddr      = "RPF_SERVE_ADDR"
	EnvSessionIdle    = "RPF_SESSION_IDLE"
	EnvIndexCacheSize = "RPF_INDEX_CACHE_SIZE"
)

// DefaultDotEnv is the .env file read by Load when it exists.
const DefaultDotEnv = ".env"

// ErrInvalid is returned for out-of-range or unparsable settings.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full tool configuration.
type Config struct {
	Log logging.Config `yaml:"log"`

	// TempDir holds materialized nested containers. Empty means the OS temp dir.
	TempDir string `yaml:"temp_dir"`

	// MaxDepth bounds nested container recursion.
	MaxDepth int `yaml:"max_depth"`

	// Passphrase feeds payload key derivation for AES and NG containers.
	Passphrase string `yaml:"passphrase"`

	// Workers is the extraction worker count. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// RawExtensions are resource extensions extracted without decoding by unpack.
	RawExtensions []string `yaml:"raw_extensions"`

	Codec CodecConfig `yaml:"codec"`
	Serve ServeConfig `yaml:"serve"`
}

// CodecConfig holds container encoding rules. Patterns prefixed with "!" exclude.
type CodecConfig struct {
	Compress   []string `yaml:"compress"`
	Resources  []string `yaml:"resources"`
	BackupKeep int      `yaml:"backup_keep"`
}

// ServeConfig holds HTTP surface settings.
type ServeConfig struct {
	Addr            string        `yaml:"addr"`
	SessionIdle     time.Duration `yaml:"session_idle"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	IndexCacheSize  int           `yaml:"index_cache_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:           logging.Config{Level: "info", Format: logging.FormatText, MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28},
		MaxDepth:      vfs.DefaultMaxDepth,
		RawExtensions: []string{".ytd"},
		Serve: ServeConfig{
			Addr:            "127.0.0.1:8790",
			SessionIdle:     30 * time.Minute,
			JanitorInterval: time.Minute,
			IndexCacheSize:  vfs.DefaultIndexCacheSize,
		},
	}
}

// Load returns defaults overlaid with the YAML file at path (skipped when empty),
// the .env file when present, and RPF_* environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(DefaultDotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", DefaultDotEnv, err)
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// decodeYAML decodes data into cfg, rejecting unknown keys.
func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err := dec.Decode(cfg)
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

// ApplyEnv overlays variables found by lookup onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}

		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, name, v)
		}

		*dst = n
		return nil
	}

	str(EnvLogLevel, &cfg.Log.Level)
	str(EnvLogFormat, &cfg.Log.Format)
	str(EnvLogFile, &cfg.Log.File)
	str(EnvTempDir, &cfg.TempDir)
	str(EnvPassphrase, &cfg.Passphrase)
	str(EnvServeAddr, &cfg.Serve.Addr)

	if v, ok := lookup(EnvRawExtensions); ok && v != "" {
		cfg.RawExtensions = SplitList(v)
	}

	if v, ok := lookup(EnvSessionIdle); ok && v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalid, EnvSessionIdle, v)
		}
		cfg.Serve.SessionIdle = d
	}

	return errors.Join(
		num(EnvMaxDepth, &cfg.MaxDepth),
		num(EnvWorkers, &cfg.Workers),
		num(EnvBackupKeep, &cfg.Codec.BackupKeep),
		num(EnvIndexCacheSize, &cfg.Serve.IndexCacheSize),
	)
}

// Validate rejects out-of-range settings.
func (c Config) Validate() error {
	var errs []error
	if c.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("%w: max_depth %d", ErrInvalid, c.MaxDepth))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: workers %d", ErrInvalid, c.Workers))
	}
	if c.Codec.BackupKeep < 0 {
		errs = append(errs, fmt.Errorf("%w: backup_keep %d", ErrInvalid, c.Codec.BackupKeep))
	}
	if c.Serve.IndexCacheSize < 0 {
		errs = append(errs, fmt.Errorf("%w: index_cache_size %d", ErrInvalid, c.Serve.IndexCacheSize))
	}
	if c.Serve.SessionIdle < 0 {
		errs = append(errs, fmt.Errorf("%w: session_idle %s", ErrInvalid, c.Serve.SessionIdle))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}

	return errors.Join(errs...)
}

// CodecOptions converts the codec section and passphrase to rpf.Options.
func (c Config) CodecOptions() rpf.Options {
	return rpf.Options{
		Passphrase: c.Passphrase,
		Compress:   Rules(c.Codec.Compress),
		Resources:  Rules(c.Codec.Resources),
		BackupKeep: c.Codec.BackupKeep,
	}
}

// Rules converts patterns to path rules; a "!" prefix excludes. Nil in, nil out.
func Rules(patterns []string) []pathrules.Rule {
	if patterns == nil {
		return nil
	}

	rules := make([]pathrules.Rule, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		action := pathrules.ActionInclude
		if rest, ok := strings.CutPrefix(p, "!"); ok {
			action, p = pathrules.ActionExclude, rest
		}

		rules = append(rules, pathrules.Rule{Action: action, Pattern: p})
	}

	return rules
}

// SplitList splits a comma-separated list and drops empty items.
func SplitList(raw string) []string {
	var out []string
	for item := range strings.SplitSeq(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}

// Resolver returns a nested container resolver configured from c.
func (c Config) Resolver(logger *slog.Logger) *vfs.Resolver {
	return &vfs.Resolver{
		Logger:   logger,
		TempDir:  c.TempDir,
		Options:  c.CodecOptions(),
		MaxDepth: c.MaxDepth,
	}
}
