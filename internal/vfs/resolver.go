// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package vfs

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/woozymasta/rpf"
)

// DefaultMaxDepth bounds how many nested container boundaries one walk may cross.
const DefaultMaxDepth = 16

var (
	// ErrNotFound is returned when a virtual path segment or terminal file does not exist.
	ErrNotFound = errors.New("entry not found")
	// ErrDepthExceeded is returned when a walk crosses more nested containers than allowed.
	ErrDepthExceeded = errors.New("nested container depth exceeded")
)

// WalkFunc receives the container owning the terminal entry and the entry itself.
// Transient containers stay open and on disk until WalkFunc returns.
type WalkFunc func(owner *rpf.Archive, e *rpf.Entry) error

// Resolver walks virtual paths across nested container boundaries.
type Resolver struct {
	// Logger receives temp-file cleanup warnings. Nil means slog.Default().
	Logger *slog.Logger

	// TempDir holds materialized nested containers. Empty means os.TempDir().
	TempDir string

	// Options are used to open transient containers.
	Options rpf.Options

	// MaxDepth bounds nested container recursion. Zero means DefaultMaxDepth.
	MaxDepth int

	// WriteBack re-imports a modified transient container into its parent after Replace.
	WriteBack bool

	// OnDescend is called every time a nested container is materialized.
	OnDescend func(e *rpf.Entry)
}

// NewResolver returns a resolver with default depth and temp dir.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{Logger: logger}
}

// Walk resolves virtualPath inside a and calls fn with the terminal file entry.
// A leading segment equal to a's own name is discarded.
func (r *Resolver) Walk(a *rpf.Archive, virtualPath string, fn WalkFunc) error {
	return r.walk(a, virtualPath, false, fn)
}

// walk is Walk with optional write-back of transient containers on success.
func (r *Resolver) walk(a *rpf.Archive, virtualPath string, writeBack bool, fn WalkFunc) error {
	segments := TrimArchivePrefix(a, rpf.SplitPath(virtualPath))
	if len(segments) == 0 {
		return fmt.Errorf("%w: empty path", ErrNotFound)
	}

	return r.walkSegments(a, segments, 0, writeBack, fn)
}

// walkSegments walks segments rooted at a's root directory.
func (r *Resolver) walkSegments(a *rpf.Archive, segments []string, depth int, writeBack bool, fn WalkFunc) error {
	dir := a.Root()
	for i, seg := range segments {
		if i == len(segments)-1 {
			e := dir.FindFile(seg)
			if e == nil {
				return fmt.Errorf("%w: %s in %s", ErrNotFound, seg, dir.Path)
			}

			return fn(a, e)
		}

		if e := dir.FindFile(seg); e != nil && e.IsContainer() {
			rest := segments[i+1:]
			return r.descend(a, e, depth+1, writeBack, func(inner *rpf.Archive) error {
				return r.walkSegments(inner, rest, depth+1, writeBack, fn)
			})
		}

		next := dir.FindDirectory(seg)
		if next == nil {
			return fmt.Errorf("%w: %s in %s", ErrNotFound, seg, dir.Path)
		}

		dir = next
	}

	return fmt.Errorf("%w: empty path", ErrNotFound)
}

// WalkDir resolves a directory path inside a and calls fn with the directory entry.
// An empty path selects the root; a path ending at a nested container selects its root.
func (r *Resolver) WalkDir(a *rpf.Archive, virtualPath string, fn WalkFunc) error {
	segments := TrimArchivePrefix(a, rpf.SplitPath(virtualPath))
	return r.walkDirSegments(a, segments, 0, fn)
}

func (r *Resolver) walkDirSegments(a *rpf.Archive, segments []string, depth int, fn WalkFunc) error {
	dir := a.Root()
	for i, seg := range segments {
		if e := dir.FindFile(seg); e != nil && e.IsContainer() {
			rest := segments[i+1:]
			return r.descend(a, e, depth+1, false, func(inner *rpf.Archive) error {
				return r.walkDirSegments(inner, rest, depth+1, fn)
			})
		}

		next := dir.FindDirectory(seg)
		if next == nil {
			return fmt.Errorf("%w: %s in %s", ErrNotFound, seg, dir.Path)
		}

		dir = next
	}

	return fn(a, dir)
}

// descend materializes container entry e and runs next inside it.
func (r *Resolver) descend(a *rpf.Archive, e *rpf.Entry, depth int, writeBack bool, next func(inner *rpf.Archive) error) error {
	if depth > r.maxDepth() {
		return fmt.Errorf("%w: %s at depth %d", ErrDepthExceeded, e.Path, depth)
	}

	inner, release, err := r.Materialize(a, e)
	if err != nil {
		return err
	}
	defer release()

	if err := next(inner); err != nil {
		return err
	}

	if !writeBack {
		return nil
	}

	return r.importBack(a, e, inner)
}

// importBack closes inner and stores its file as e's new payload in a.
// The caller still owns the temp file.
func (r *Resolver) importBack(a *rpf.Archive, e *rpf.Entry, inner *rpf.Archive) error {
	physical := inner.PhysicalPath()
	if err := inner.Close(); err != nil {
		return fmt.Errorf("close transient %s: %w", e.Path, err)
	}

	data, err := os.ReadFile(physical)
	if err != nil {
		return fmt.Errorf("read transient %s: %w", e.Path, err)
	}

	if _, err := a.CreateFile(e.Parent, e.Name, data, true); err != nil {
		return fmt.Errorf("write back %s: %w", e.Path, err)
	}

	r.logger().Debug("nested container written back", "entry", e.Path, "size", len(data))
	return nil
}

// Materialize decodes container entry e of a into a temp file and opens it.
// release closes the transient container and removes its file; cleanup failures are logged.
func (r *Resolver) Materialize(a *rpf.Archive, e *rpf.Entry) (*rpf.Archive, func(), error) {
	data, err := a.ExtractFile(e)
	if err != nil {
		return nil, nil, fmt.Errorf("extract nested %s: %w", e.Path, err)
	}

	tmp, err := os.CreateTemp(r.TempDir, "rpf-nested-*"+rpf.Suffix)
	if err != nil {
		return nil, nil, fmt.Errorf("create nested temp: %w", err)
	}

	tmpPath := tmp.Name()
	remove := func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger().Warn("remove nested temp", "path", tmpPath, "error", err)
		}
	}

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		remove()
		return nil, nil, fmt.Errorf("write nested temp %s: %w", e.Path, err)
	}

	opts := r.Options
	opts.Name = e.Name
	inner, err := rpf.OpenWithOptions(tmpPath, opts)
	if err != nil {
		remove()
		return nil, nil, fmt.Errorf("open nested %s: %w", e.Path, err)
	}

	if r.OnDescend != nil {
		r.OnDescend(e)
	}

	release := func() {
		if err := inner.Close(); err != nil {
			r.logger().Warn("close nested container", "entry", e.Path, "error", err)
		}

		remove()
	}

	return inner, release, nil
}

// TrimArchivePrefix drops a leading segment equal to a's own name.
func TrimArchivePrefix(a *rpf.Archive, segments []string) []string {
	if len(segments) > 0 && strings.EqualFold(segments[0], a.Name()) {
		return segments[1:]
	}

	return segments
}

func (r *Resolver) maxDepth() int {
	if r.MaxDepth <= 0 {
		return DefaultMaxDepth
	}

	return r.MaxDepth
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}

	return r.Logger
}
