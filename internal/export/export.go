// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/vfs"
)

// ErrExtract wraps decode failures of the exported entry.
var ErrExtract = errors.New("failed to extract data")

// Result summarizes ExportAll.
type Result struct {
	OutputDir string `json:"output_directory"`
	Exported  int    `json:"exported_files"`
	Skipped   int    `json:"skipped_files"`
}

// Exporter writes transcoded entries to the host filesystem.
type Exporter struct {
	// Resolver walks virtual paths. Nil means a default resolver.
	Resolver *vfs.Resolver

	// Transcoder converts payloads. Nil means PassthroughXML.
	Transcoder Transcoder

	// Logger receives skipped entries. Nil means slog.Default().
	Logger *slog.Logger
}

// ExportEntry transcodes the file at virtualPath and writes it into outDir.
// It returns the written file path.
func (x *Exporter) ExportEntry(a *rpf.Archive, virtualPath string, outDir string) (string, error) {
	var outPath string
	err := x.resolver().Walk(a, virtualPath, func(owner *rpf.Archive, e *rpf.Entry) error {
		name, text, err := x.transcodeEntry(owner, e)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(outDir, 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", outDir, err)
		}

		outPath = filepath.Join(outDir, filepath.Base(name))
		return writeFile(outPath, text)
	})

	return outPath, err
}

// ExportAll transcodes every supported file of a into outDir, keeping the folder layout.
// With recursive, nested containers become folders named without their suffix.
// Unsupported entries are skipped.
func (x *Exporter) ExportAll(ctx context.Context, a *rpf.Archive, outDir string, recursive bool) (Result, error) {
	res := Result{OutputDir: outDir}
	err := x.resolver().Visit(a, recursive, func(owner *rpf.Archive, virtualPath string, e *rpf.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !e.IsFile() || (recursive && e.IsContainer()) {
			return nil
		}

		name, text, err := x.transcodeEntry(owner, e)
		if errors.Is(err, ErrUnsupported) {
			res.Skipped++
			x.logger().Debug("skip entry", "path", virtualPath)
			return nil
		}
		if err != nil {
			return err
		}

		segments := rpf.SplitPath(virtualPath)
		segments[len(segments)-1] = filepath.Base(name)
		rel, err := vfs.OutputPath(segments)
		if err != nil {
			return fmt.Errorf("output path for %s: %w", virtualPath, err)
		}

		target := filepath.Join(outDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", filepath.Dir(target), err)
		}
		if err := writeFile(target, text); err != nil {
			return err
		}

		res.Exported++
		return nil
	})

	return res, err
}

// transcodeEntry decodes e from owner and runs the transcoder on it.
func (x *Exporter) transcodeEntry(owner *rpf.Archive, e *rpf.Entry) (string, []byte, error) {
	data, err := owner.ExtractFile(e)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %w", ErrExtract, e.Path, err)
	}

	name, text, err := x.transcoder().Transcode(e.Name, data)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", e.Path, err)
	}

	return name, text, nil
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

func (x *Exporter) transcoder() Transcoder {
	if x.Transcoder == nil {
		return PassthroughXML{}
	}

	return x.Transcoder
}

func (x *Exporter) resolver() *vfs.Resolver {
	if x.Resolver == nil {
		return vfs.NewResolver(x.Logger)
	}

	return x.Resolver
}

func (x *Exporter) logger() *slog.Logger {
	if x.Logger == nil {
		return slog.Default()
	}

	return x.Logger
}
