// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package pack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/woozymasta/rpf"
)

// DefaultMaxDepth bounds nested container creation.
const DefaultMaxDepth = 16

var (
	// ErrSourceNotDirectory is returned when the pack source is not a directory.
	ErrSourceNotDirectory = errors.New("pack source is not a directory")
	// ErrDepthExceeded is returned when nested containers are deeper than MaxDepth.
	ErrDepthExceeded = errors.New("nested container depth exceeded")
)

// Result summarizes one Pack call.
type Result struct {
	Path        string `json:"path"`
	Source      string `json:"source"`
	Files       int    `json:"files"`
	Directories int    `json:"directories"`
	Containers  int    `json:"containers"`
}

// Packer builds containers from directory trees.
type Packer struct {
	// Logger receives progress and cleanup warnings. Nil means slog.Default().
	Logger *slog.Logger

	// TempDir holds nested containers while they are built. Empty means os.TempDir().
	TempDir string

	// Options are codec options for every created container.
	Options rpf.Options

	// MaxDepth bounds nested container creation. Zero means DefaultMaxDepth.
	MaxDepth int
}

// Pack creates a container at dest (suffix appended when missing) from sourceDir.
// A source holding exactly one subdirectory and nothing else is unwrapped to that subdirectory.
// Nested containers are always created unencrypted.
func (p *Packer) Pack(ctx context.Context, sourceDir string, dest string, enc rpf.Encryption) (Result, error) {
	source, err := unwrapSource(sourceDir)
	if err != nil {
		return Result{}, err
	}

	dest = rpf.EnsureSuffix(dest)
	res := Result{Path: dest, Source: source}

	opts := p.Options
	opts.Name = ""
	a, err := rpf.CreateWithOptions(dest, enc, opts)
	if err != nil {
		return res, err
	}

	importErr := p.importDir(ctx, a, a.Root(), source, 0, &res)
	closeErr := a.Close()
	if err := errors.Join(importErr, closeErr); err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			p.logger().Warn("remove partial container", "path", dest, "error", rmErr)
		}

		return res, err
	}

	p.logger().Info("packed", "source", source, "path", dest, "files", res.Files, "containers", res.Containers)
	return res, nil
}

// importDir imports subdirectories, then files, of src into dir of a.
func (p *Packer) importDir(ctx context.Context, a *rpf.Archive, dir *rpf.Entry, src string, depth int, res *Result) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read source %s: %w", src, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(src, e.Name())
		listing, err := ReadListing(path, e.Name())
		if err != nil {
			return fmt.Errorf("read source %s: %w", path, err)
		}

		if Classify(listing) == PlainDirectory {
			sub, err := a.CreateDirectory(dir, e.Name())
			if err != nil {
				return fmt.Errorf("create directory %s: %w", path, err)
			}

			res.Directories++
			if err := p.importDir(ctx, a, sub, path, depth, res); err != nil {
				return err
			}

			continue
		}

		data, err := p.buildNested(ctx, path, rpf.EnsureSuffix(e.Name()), depth+1, res)
		if err != nil {
			return err
		}

		if _, err := a.CreateFile(dir, rpf.EnsureSuffix(e.Name()), data, true); err != nil {
			return fmt.Errorf("store nested %s: %w", path, err)
		}
		res.Containers++
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(src, e.Name())
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			p.logger().Debug("skip non-regular file", "path", path)
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		if _, err := a.CreateFile(dir, e.Name(), data, true); err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
		res.Files++
	}

	return nil
}

// buildNested packs src into a temporary unencrypted container and returns its bytes.
func (p *Packer) buildNested(ctx context.Context, src string, name string, depth int, res *Result) ([]byte, error) {
	if depth > p.maxDepth() {
		return nil, fmt.Errorf("%w: %s at depth %d", ErrDepthExceeded, src, depth)
	}

	tmp, err := os.CreateTemp(p.TempDir, "rpf-pack-*"+rpf.Suffix)
	if err != nil {
		return nil, fmt.Errorf("create nested temp: %w", err)
	}

	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger().Warn("remove nested temp", "path", tmpPath, "error", err)
		}
	}()

	opts := p.Options
	opts.Name = name
	inner, err := rpf.CreateWithOptions(tmpPath, rpf.EncryptionOpen, opts)
	if err != nil {
		return nil, err
	}

	importErr := p.importDir(ctx, inner, inner.Root(), src, depth, res)
	closeErr := inner.Close()
	if err := errors.Join(importErr, closeErr); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read nested %s: %w", name, err)
	}

	return data, nil
}

// unwrapSource validates sourceDir and descends into a lone subdirectory.
func unwrapSource(sourceDir string) (string, error) {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrSourceNotDirectory, sourceDir)
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return "", fmt.Errorf("read source %s: %w", sourceDir, err)
	}

	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(sourceDir, entries[0].Name()), nil
	}

	return sourceDir, nil
}

func (p *Packer) maxDepth() int {
	if p.MaxDepth <= 0 {
		return DefaultMaxDepth
	}

	return p.MaxDepth
}

func (p *Packer) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}

	return p.Logger
}
