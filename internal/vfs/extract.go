// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/woozymasta/rpf"
)

// extractCopyBufferSize defines per-worker buffer size for file copy during extraction.
const extractCopyBufferSize = 64 * 1024

// ErrInvalidOutputPath is returned for entry paths that would escape the output directory.
var ErrInvalidOutputPath = errors.New("invalid output path")

// ExtractOptions controls ExtractAll.
type ExtractOptions struct {
	// Filter keeps entries whose virtual path it accepts. Nil keeps everything.
	Filter func(virtualPath string) bool

	// OnEntryDone is called after each file is written.
	OnEntryDone func(virtualPath string, written int64, outputPath string)

	// RawExtensions lists lowercase extensions (".ytd") written with ReadRaw instead of decoding.
	RawExtensions []string

	// Workers is the number of parallel writers. Zero means GOMAXPROCS.
	Workers int

	// Recursive descends into nested containers and writes their files into folders
	// named after the container without its suffix.
	Recursive bool
}

// ExtractResult summarizes ExtractAll.
type ExtractResult struct {
	OutputDir string `json:"output_directory"`
	Extracted int    `json:"extracted_files"`
	Total     int    `json:"total_files"`
}

// extractWorkItem stores one selected entry with prepared output relative paths.
type extractWorkItem struct {
	owner       *rpf.Archive
	entry       *rpf.Entry
	virtualPath string
	relPath     string
	relDir      string
	raw         bool
}

// Extract resolves virtualPath inside a and returns the decoded payload.
func (r *Resolver) Extract(a *rpf.Archive, virtualPath string) ([]byte, error) {
	var data []byte
	err := r.Walk(a, virtualPath, func(owner *rpf.Archive, e *rpf.Entry) error {
		var err error
		data, err = owner.ExtractFile(e)
		return err
	})

	return data, err
}

// ExtractRaw resolves virtualPath inside a and returns the stored payload without decoding.
// It returns nil for zero-size entries.
func (r *Resolver) ExtractRaw(a *rpf.Archive, virtualPath string) ([]byte, error) {
	var data []byte
	err := r.Walk(a, virtualPath, func(owner *rpf.Archive, e *rpf.Entry) error {
		var err error
		data, err = ReadRaw(owner, e)
		return err
	})

	return data, err
}

// ReadRaw reads exactly the stored size of e starting at base + block offset * 512.
// Encrypted payloads are returned as stored (ciphertext); nothing is decompressed.
func ReadRaw(owner *rpf.Archive, e *rpf.Entry) ([]byte, error) {
	if e == nil || !e.IsFile() {
		return nil, fmt.Errorf("%w: not a file", ErrNotFound)
	}
	if e.StoredSize == 0 {
		return nil, nil
	}

	off := owner.StartPos() + int64(e.BlockOffset)*rpf.BlockSize
	buf := make([]byte, e.StoredSize)
	if _, err := io.ReadFull(io.NewSectionReader(owner, off, int64(len(buf))), buf); err != nil {
		return nil, fmt.Errorf("read raw %s: %w", e.Path, err)
	}

	return buf, nil
}

// ExtractAll writes every file of a (optionally across nested containers) below dstDir.
// Writing is parallelized by Workers; on failure it returns the first encountered error.
func (r *Resolver) ExtractAll(ctx context.Context, a *rpf.Archive, dstDir string, opts ExtractOptions) (ExtractResult, error) {
	result := ExtractResult{OutputDir: dstDir}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return result, fmt.Errorf("resolve output dir: %w", err)
	}
	result.OutputDir = dstRootAbs

	var releases []func()
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}()

	items, err := r.collectWorkItems(a, nil, 0, opts, &releases)
	if err != nil {
		return result, err
	}

	result.Total = len(items)
	if len(items) == 0 {
		return result, nil
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return result, fmt.Errorf("create output dir: %w", err)
	}

	if err := prepareExtractDirs(dstRootAbs, items); err != nil {
		return result, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(max(workers, 1), len(items))

	taskCh := make(chan extractWorkItem)
	errCh := make(chan error, len(items))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		extracted atomic.Int64
	)
	for range workers {
		wg.Go(func() {
			copyBuf := make([]byte, extractCopyBufferSize)
			for task := range taskCh {
				err := extractPreparedEntry(ctx, dstRootAbs, task, copyBuf, opts.OnEntryDone)
				if err == nil {
					extracted.Add(1)
				} else {
					cancel()
				}

				errCh <- err
			}
		})
	}

	var sendErr error
	for _, task := range items {
		select {
		case <-ctx.Done():
			sendErr = ctx.Err()
		case taskCh <- task:
		}

		if sendErr != nil {
			break
		}
	}

	close(taskCh)
	wg.Wait()
	close(errCh)
	result.Extracted = int(extracted.Load())

	var first error
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			first = err
			break
		}
		if err != nil && first == nil {
			first = err
		}
	}
	if first == nil {
		first = sendErr
	}

	return result, first
}

// collectWorkItems lists files of a below prefix, materializing nested containers when recursive.
func (r *Resolver) collectWorkItems(a *rpf.Archive, prefix []string, depth int, opts ExtractOptions, releases *[]func()) ([]extractWorkItem, error) {
	var (
		items   []extractWorkItem
		walkErr error
	)

	a.Root().Walk(func(e *rpf.Entry) bool {
		if walkErr != nil {
			return false
		}
		if !e.IsFile() {
			return true
		}

		segments := append(append([]string(nil), prefix...), rpf.SplitPath(e.RelPath())...)
		if opts.Recursive && e.IsContainer() {
			if depth+1 > r.maxDepth() {
				walkErr = fmt.Errorf("%w: %s at depth %d", ErrDepthExceeded, e.Path, depth+1)
				return false
			}

			inner, release, err := r.Materialize(a, e)
			if err != nil {
				walkErr = err
				return false
			}
			*releases = append(*releases, release)

			nested, err := r.collectWorkItems(inner, segments, depth+1, opts, releases)
			if err != nil {
				walkErr = err
				return false
			}

			items = append(items, nested...)
			return true
		}

		virtualPath := strings.Join(segments, rpf.Separator)
		if opts.Filter != nil && !opts.Filter(virtualPath) {
			return true
		}

		normalized, err := OutputPath(segments)
		if err != nil {
			walkErr = fmt.Errorf("normalize entry path %s: %w", virtualPath, err)
			return false
		}

		relPath := filepath.FromSlash(normalized)
		relDir := filepath.Dir(relPath)
		if relDir == "." {
			relDir = ""
		}

		items = append(items, extractWorkItem{
			owner:       a,
			entry:       e,
			virtualPath: virtualPath,
			relPath:     relPath,
			relDir:      relDir,
			raw:         e.Kind == rpf.KindResource && hasExtension(e.Name, opts.RawExtensions),
		})
		return true
	})

	return items, walkErr
}

// FlattenPath joins segments with "/" and drops the container suffix from every
// non-terminal segment, so nested containers become plain folders.
func FlattenPath(segments []string) string {
	out := make([]string, len(segments))
	for i, seg := range segments {
		if i < len(segments)-1 {
			seg = rpf.TrimSuffix(seg)
		}

		out[i] = seg
	}

	return strings.Join(out, "/")
}

// OutputPath flattens segments and validates the result as a relative output path.
func OutputPath(segments []string) (string, error) {
	return normalizeOutputPath(FlattenPath(segments))
}

// prepareExtractDirs creates all unique parent directories needed by work items.
func prepareExtractDirs(dstRootAbs string, items []extractWorkItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, task := range items {
		if task.relDir == "" {
			continue
		}

		dirPath := filepath.Join(dstRootAbs, task.relDir)
		key := strings.ToLower(dirPath)
		if _, exists := seen[key]; exists {
			continue
		}

		seen[key] = struct{}{}
		if err := os.MkdirAll(dirPath, 0o750); err != nil {
			return fmt.Errorf("create output directory %s: %w", dirPath, err)
		}
	}

	return nil
}

// extractPreparedEntry writes one prepared work item to destination root.
func extractPreparedEntry(
	ctx context.Context,
	dstRootAbs string,
	task extractWorkItem,
	copyBuf []byte,
	onEntryDone func(virtualPath string, written int64, outputPath string),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		src io.Reader
		err error
	)
	if task.raw {
		var data []byte
		data, err = ReadRaw(task.owner, task.entry)
		src = bytes.NewReader(data)
	} else {
		var rc io.ReadCloser
		rc, err = task.owner.OpenFile(task.entry)
		if err == nil {
			defer func() { _ = rc.Close() }()
			src = rc
		}
	}
	if err != nil {
		return fmt.Errorf("extract %s: %w", task.virtualPath, err)
	}

	outPath := filepath.Join(dstRootAbs, task.relPath)
	file, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", task.virtualPath, err)
	}

	written, copyErr := io.CopyBuffer(file, src, copyBuf)
	closeErr := file.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", task.virtualPath, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", task.virtualPath, closeErr)
	}

	if onEntryDone != nil {
		onEntryDone(task.virtualPath, written, outPath)
	}

	return nil
}

// normalizeOutputPath normalizes a slash path and rejects absolute/traversal inputs.
func normalizeOutputPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" || strings.ContainsRune(raw, 0) {
		return "", ErrInvalidOutputPath
	}
	if strings.HasPrefix(raw, `/`) || strings.HasPrefix(raw, `\`) {
		return "", ErrInvalidOutputPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidOutputPath
	}

	parts := strings.Split(raw, `/`)
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidOutputPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidOutputPath
	}

	return strings.Join(cleanParts, `/`), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive-root prefix like C:/.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 3 {
		return false
	}

	c := path[0]
	return ((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) && path[1] == ':' && path[2] == '/'
}

// hasExtension reports whether name ends with one of exts (case-insensitive).
func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range exts {
		if ext == strings.ToLower(candidate) {
			return true
		}
	}

	return false
}
