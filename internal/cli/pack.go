// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/woozymasta/rpf"
	"github.com/woozymasta/rpf/internal/pack"
	"github.com/woozymasta/rpf/internal/vfs"
)

func newPackRPFCmd(app *App) *cobra.Command {
	var (
		source     string
		out        string
		encryption string
	)

	cmd := &cobra.Command{
		Use:   "pack-rpf",
		Short: "Pack a directory tree into a new container",
		Long: "Pack a directory tree into a new container. Subdirectories named *.rpf become nested containers.\n" +
			"The .rpf suffix is appended to --out when missing.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if source == "" || out == "" {
				return usagef("pack-rpf requires --source and --out")
			}

			enc, err := rpf.ParseEncryption(encryption)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrUsage, err)
			}

			p := &pack.Packer{
				Logger:   app.Logger,
				TempDir:  app.Config.TempDir,
				Options:  app.Config.CodecOptions(),
				MaxDepth: app.Config.MaxDepth,
			}
			res, err := p.Pack(cmd.Context(), source, out, enc)
			if err != nil {
				return err
			}

			outf(cmd, "Packed %d files into %s", res.Files, res.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source directory")
	cmd.Flags().StringVar(&out, "out", "", "Output container path")
	cmd.Flags().StringVar(&encryption, "encryption", "OPEN", "Encryption: OPEN, AES or NG")

	return cmd
}

func newReplaceCmd(app *App) *cobra.Command {
	var (
		src       archiveFlags
		in        string
		data      string
		writeBack bool
	)

	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Replace one entry's payload with a host file",
		Long: "Replace one entry's payload with a host file. Inside nested containers the change is made on a\n" +
			"temporary copy unless --write-back is set, which re-imports the modified container into its parent.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in == "" || data == "" {
				return usagef("replace requires --file, --in and --data")
			}

			payload, err := os.ReadFile(data)
			if err != nil {
				return fmt.Errorf("read replacement: %w", err)
			}

			arc, err := src.open(app, "replace")
			if err != nil {
				return err
			}
			defer func() { _ = arc.Close() }()

			r := app.Config.Resolver(app.Logger)
			r.WriteBack = writeBack

			replaced, err := r.Replace(arc, in, payload)
			if err != nil {
				return err
			}
			if !replaced {
				return fmt.Errorf("%w: %s", vfs.ErrNotFound, in)
			}

			outf(cmd, "Replaced %s (%d bytes)", in, len(payload))
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&in, "in", "", "Entry path inside the container")
	cmd.Flags().StringVar(&data, "data", "", "Host file with the new payload")
	cmd.Flags().BoolVar(&writeBack, "write-back", false, "Re-import modified nested containers into their parents")

	return cmd
}
