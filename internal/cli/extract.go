// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/inventory"
	"github.com/woozymasta/rpf/internal/vfs"
)

func newUnpackCmd(app *App) *cobra.Command {
	var (
		src       archiveFlags
		out       string
		recursive bool
		filter    string
		rawExt    []string
	)

	cmd := &cobra.Command{
		Use:   "unpack",
		Short: "Extract every file of a container",
		Long:  "Extract every file of a container into --out. With --recursive, nested containers become folders named without their suffix.",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return usagef("unpack requires --file (or --gta-dir and --rpf) and --out")
			}

			res, err := app.extractAll(cmd, &src, "unpack", out, recursive, filter, rawExt)
			if err != nil {
				return err
			}

			outf(cmd, "Extracted %d files to %s", res.Extracted, out)
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Output directory")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "Descend into nested containers")
	cmd.Flags().StringVar(&filter, "filter", "", "Doublestar glob over entry paths, e.g. '**/*.meta'")
	cmd.Flags().StringSliceVar(&rawExt, "raw-ext", nil, "Resource extensions written raw (default from config: .ytd)")

	return cmd
}

func newExtractJSONCmd(app *App) *cobra.Command {
	var (
		src       archiveFlags
		out       string
		recursive bool
		filter    string
		rawExt    []string
	)

	cmd := &cobra.Command{
		Use:   "extract-json",
		Short: "Extract every file and print a JSON envelope",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJSON(cmd, func() (any, error) {
				if out == "" {
					return nil, usagef("extract-json requires --file and --out")
				}

				return app.extractAll(cmd, &src, "extract-json", out, recursive, filter, rawExt)
			})
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Output directory")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "Descend into nested containers")
	cmd.Flags().StringVar(&filter, "filter", "", "Doublestar glob over entry paths")
	cmd.Flags().StringSliceVar(&rawExt, "raw-ext", nil, "Resource extensions written raw")

	return cmd
}

// extractAll opens the selected container and writes its files below out.
func (a *App) extractAll(cmd *cobra.Command, src *archiveFlags, name string, out string, recursive bool, filter string, rawExt []string) (vfs.ExtractResult, error) {
	match, err := globFilter(filter)
	if err != nil {
		return vfs.ExtractResult{}, err
	}
	if rawExt == nil {
		rawExt = a.Config.RawExtensions
	}

	arc, err := src.open(a, name)
	if err != nil {
		return vfs.ExtractResult{}, err
	}
	defer func() { _ = arc.Close() }()

	return a.Config.Resolver(a.Logger).ExtractAll(cmd.Context(), arc, out, vfs.ExtractOptions{
		Filter:        match,
		RawExtensions: normalizeExtensions(rawExt),
		Workers:       a.Config.Workers,
		Recursive:     recursive,
		OnEntryDone: func(virtualPath string, written int64, _ string) {
			a.Logger.Debug("extracted", "path", virtualPath, "size", written)
		},
	})
}

func newExtractCmd(app *App) *cobra.Command {
	var (
		src  archiveFlags
		in   string
		out  string
		raw  bool
		stdo bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract one entry by virtual path",
		Long:  "Extract one entry by virtual path. The path may cross nested containers, e.g. 'dlc.rpf\\x64\\data\\file.meta'.",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in == "" || (out == "" && !stdo) {
				return usagef("extract requires --file, --in and --out (or --stdout)")
			}

			arc, err := src.open(app, "extract")
			if err != nil {
				return err
			}
			defer func() { _ = arc.Close() }()

			r := app.Config.Resolver(app.Logger)
			var data []byte
			if raw {
				data, err = r.ExtractRaw(arc, in)
			} else {
				data, err = r.Extract(arc, in)
			}
			if err != nil {
				return err
			}

			if stdo {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			if info, statErr := os.Stat(out); statErr == nil && info.IsDir() {
				segments := rpf.SplitPath(in)
				out = filepath.Join(out, segments[len(segments)-1])
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			outln(cmd, out)
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&in, "in", "", "Entry path inside the container")
	cmd.Flags().StringVar(&out, "out", "", "Output file or existing directory")
	cmd.Flags().BoolVar(&raw, "raw", false, "Write stored bytes without decryption or decompression")
	cmd.Flags().BoolVar(&stdo, "stdout", false, "Write the payload to stdout")

	return cmd
}

func newListCmd(app *App) *cobra.Command {
	var (
		src       archiveFlags
		recursive bool
		filter    string
		long      bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every entry path of a container",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			match, err := globFilter(filter)
			if err != nil {
				return err
			}

			arc, err := src.open(app, "list")
			if err != nil {
				return err
			}
			defer func() { _ = arc.Close() }()

			r := app.Config.Resolver(app.Logger)
			return r.Visit(arc, recursive, func(_ *rpf.Archive, virtualPath string, e *rpf.Entry) error {
				if match != nil && !match(virtualPath) {
					return nil
				}

				path := rpf.JoinPath(arc.Name(), virtualPath)
				if !long {
					outln(cmd, path)
					return nil
				}

				switch {
				case e.IsDir():
					outf(cmd, "%-9s %10s  %s", e.Kind, "-", path)
				default:
					outf(cmd, "%-9s %10s  %s", e.Kind, humanize.IBytes(uint64(e.UncompressedSize)), path)
				}
				return nil
			})
		},
	}

	src.register(cmd)
	cmd.Flags().BoolVar(&recursive, "recursive", false, "Include the contents of nested containers")
	cmd.Flags().StringVar(&filter, "filter", "", "Doublestar glob over entry paths")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "Print kind and size")

	return cmd
}

func newListJSONCmd(app *App) *cobra.Command {
	var (
		src archiveFlags
		dir string
	)

	cmd := &cobra.Command{
		Use:   "list-json",
		Short: "Print the immediate children of a directory as a JSON envelope",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJSON(cmd, func() (any, error) {
				arc, err := src.open(app, "list-json")
				if err != nil {
					return nil, err
				}
				defer func() { _ = arc.Close() }()

				return inventory.List(app.Config.Resolver(app.Logger), arc, dir)
			})
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&dir, "dir", "", "Directory path inside the container; may cross nested containers")

	return cmd
}

func newFindCmd(app *App) *cobra.Command {
	var (
		src  archiveFlags
		name string
	)

	cmd := &cobra.Command{
		Use:   "find",
		Short: "Find files by name anywhere in a container, including nested containers",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(name) == "" {
				return usagef("find requires --file and --name")
			}

			arc, err := src.open(app, "find")
			if err != nil {
				return err
			}
			defer func() { _ = arc.Close() }()

			paths, err := app.Config.Resolver(app.Logger).FindByName(arc, name)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("%w: %s", vfs.ErrNotFound, name)
			}

			for _, p := range paths {
				outln(cmd, rpf.JoinPath(arc.Name(), p))
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "File name, case-insensitive")

	return cmd
}

func newInfoCmd(app *App) *cobra.Command {
	var src archiveFlags

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print container header details",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := src.path()
			if path == "" {
				return usagef("info requires --file or --gta-dir and --rpf")
			}

			info, err := rpf.ReadInfo(path)
			if err != nil {
				return err
			}

			outf(cmd, "Name:       %s", info.Name)
			outf(cmd, "Version:    0x%08X", info.Version)
			outf(cmd, "Encryption: %s", info.Encryption)
			outf(cmd, "Entries:    %d", info.EntryCount)
			outf(cmd, "Names:      %d bytes", info.NamesLength)
			outf(cmd, "Size:       %s (%d bytes)", humanize.IBytes(uint64(info.Size)), info.Size)
			return nil
		},
	}

	src.register(cmd)
	return cmd
}
