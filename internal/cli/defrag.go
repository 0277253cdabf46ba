// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package cli

import (
	"github.com/spf13/cobra"

	"github.com/woozymasta/rpf/internal/defrag"
	"github.com/woozymasta/rpf/internal/inventory"
)

func newDefragCmd(app *App) *cobra.Command {
	var (
		src       archiveFlags
		recursive bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "defrag",
		Short: "Rewrite a container without slack space",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			arc, err := src.open(app, "defrag")
			if err != nil {
				return err
			}
			defer func() { _ = arc.Close() }()

			d := &defrag.Driver{Logger: app.Logger}
			if dryRun {
				plan, err := d.Plan(arc, recursive)
				if err != nil {
					return err
				}

				outln(cmd, defrag.FormatPlan(plan))
				return nil
			}

			res, err := d.Run(cmd.Context(), arc, defrag.RunOptions{
				Recursive: recursive,
				OnPlan:    func(plan defrag.Result) { outln(cmd, defrag.FormatPlan(plan)) },
				OnProgress: func(message string, progress float64) {
					outln(cmd, defrag.FormatProgress(message, progress))
				},
			})
			if err != nil {
				return err
			}

			outln(cmd, defrag.FormatDone(res))
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().BoolVar(&recursive, "recursive", false, "Defragment nested containers first")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print current and projected sizes only")

	return cmd
}

func newAnalyzeJSONCmd(app *App) *cobra.Command {
	var (
		src       archiveFlags
		recursive bool
	)

	cmd := &cobra.Command{
		Use:   "analyze-json",
		Short: "Print container statistics as a JSON envelope",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runJSON(cmd, func() (any, error) {
				arc, err := src.open(app, "analyze-json")
				if err != nil {
					return nil, err
				}
				defer func() { _ = arc.Close() }()

				an := &inventory.Analyzer{
					Resolver: app.Config.Resolver(app.Logger),
					Logger:   app.Logger,
					MaxDepth: app.Config.MaxDepth,
				}
				return an.Analyze(cmd.Context(), arc, recursive)
			})
		},
	}

	src.register(cmd)
	cmd.Flags().BoolVar(&recursive, "recursive", false, "Fold nested containers into the statistics")

	return cmd
}
