// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/woozymasta/rpf/internal/export"
)

func newExportXMLCmd(app *App) *cobra.Command {
	var (
		src archiveFlags
		in  string
		out string
	)

	cmd := &cobra.Command{
		Use:   "export-xml",
		Short: "Export one metadata entry as XML",
		Long: "Export one metadata entry as XML. With --gta-dir and no --file, --in starts with the container path\n" +
			"relative to the game directory, e.g. 'update\\update.rpf\\common\\data\\levels\\gta5\\trains.xml'.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in == "" || (src.file == "" && src.gtaDir == "") {
				return usagef("export-xml requires --gta-dir (or --file) and --in")
			}
			if out == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				out = wd
			}

			archivePath, entryPath := src.file, in
			if archivePath == "" {
				var err error
				if archivePath, entryPath, err = splitHostPath(src.gtaDir, in); err != nil {
					return err
				}
			}

			arc, err := app.openArchive(archivePath)
			if err != nil {
				return err
			}
			defer func() { _ = arc.Close() }()

			x := &export.Exporter{Resolver: app.Config.Resolver(app.Logger), Logger: app.Logger}
			written, err := x.ExportEntry(arc, entryPath, out)
			if err != nil {
				return err
			}

			outln(cmd, written)
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&in, "in", "", "Entry path")
	cmd.Flags().StringVar(&out, "out", "", "Output directory (default: current directory)")

	return cmd
}

func newExportXMLRPFCmd(app *App) *cobra.Command {
	var (
		src       archiveFlags
		out       string
		recursive bool
	)

	cmd := &cobra.Command{
		Use:   "export-xml-rpf",
		Short: "Export every XML-convertible entry of a container",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return usagef("export-xml-rpf requires --file (or --gta-dir and --rpf) and --out")
			}

			arc, err := src.open(app, "export-xml-rpf")
			if err != nil {
				return err
			}
			defer func() { _ = arc.Close() }()

			x := &export.Exporter{Resolver: app.Config.Resolver(app.Logger), Logger: app.Logger}
			res, err := x.ExportAll(cmd.Context(), arc, out, recursive)
			if err != nil {
				return err
			}

			app.Logger.Debug("export finished", "archive", arc.Name(), "skipped", res.Skipped)
			outf(cmd, "Exported XML for %d entries to %s", res.Exported, out)
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "Output directory")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "Descend into nested containers")

	return cmd
}
