// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/vfs"
)

// archiveFlags select a container on the host: --file, or --gta-dir joined with --rpf.
type archiveFlags struct {
	file   string
	gtaDir string
	rpf    string
}

func (f *archiveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "Path to the RPF container")
	cmd.Flags().StringVar(&f.gtaDir, "gta-dir", "", "Game directory; used with --rpf when --file is not set")
	cmd.Flags().StringVar(&f.rpf, "rpf", "", "Container path relative to --gta-dir")
}

// path returns the selected container path or "" when none was given.
func (f *archiveFlags) path() string {
	switch {
	case f.file != "":
		return f.file
	case f.gtaDir != "" && f.rpf != "":
		return filepath.Join(f.gtaDir, filepath.FromSlash(strings.ReplaceAll(f.rpf, `\`, "/")))
	default:
		return ""
	}
}

// open opens the selected container for cmdName.
func (f *archiveFlags) open(app *App, cmdName string) (*rpf.Archive, error) {
	path := f.path()
	if path == "" {
		return nil, usagef("%s requires --file or --gta-dir and --rpf", cmdName)
	}

	return app.openArchive(path)
}

// openArchive opens path with the configured codec options.
func (a *App) openArchive(path string) (*rpf.Archive, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("RPF file not found: %w", err)
	}

	arc, err := rpf.OpenWithOptions(path, a.Config.CodecOptions())
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrOpen, path, err)
	}

	return arc, nil
}

// splitHostPath splits an entry path that starts with host directories and a container
// file below root, like "update.rpf\common\data\x.meta", into the container path and
// the inner virtual path.
func splitHostPath(root string, entryPath string) (string, string, error) {
	segments := rpf.SplitPath(entryPath)
	host := root
	for i, seg := range segments {
		host = filepath.Join(host, seg)
		if !rpf.IsContainerName(seg) {
			continue
		}

		info, err := os.Stat(host)
		if err == nil && !info.IsDir() {
			return host, rpf.JoinPath(segments[i+1:]...), nil
		}
	}

	return "", "", fmt.Errorf("%w: no container file in %q below %s", vfs.ErrNotFound, entryPath, root)
}

// globFilter returns a case-insensitive doublestar matcher over '/'-separated
// virtual paths. An empty pattern matches everything.
func globFilter(pattern string) (func(virtualPath string) bool, error) {
	if pattern == "" {
		return nil, nil
	}

	pattern = strings.ToLower(strings.ReplaceAll(pattern, `\`, "/"))
	if !doublestar.ValidatePattern(pattern) {
		return nil, usagef("invalid --filter pattern %q", pattern)
	}

	return func(virtualPath string) bool {
		ok, _ := doublestar.Match(pattern, strings.ToLower(strings.ReplaceAll(virtualPath, `\`, "/")))
		return ok
	}, nil
}

// normalizeExtensions lowercases extensions and adds the leading dot.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}

	return out
}
