// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

// Package cli implements the rpftool command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/woozymasta/rpf/internal/config"
	"github.com/woozymasta/rpf/internal/logging"
)

// App holds state shared by all commands of one invocation.
type App struct {
	Config config.Config
	Logger *slog.Logger

	configPath string
	logLevel   string
	closer     io.Closer
}

// Execute runs rpftool with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	app := &App{}
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if _, _, err := root.Find(args); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return ExitUsage
	}

	err := root.ExecuteContext(ctx)
	if app.closer != nil {
		_ = app.closer.Close()
	}
	if err == nil {
		return ExitOK
	}

	var reported reportedError
	if !errors.As(err, &reported) {
		_, _ = fmt.Fprintln(stderr, err)
	}

	return ExitCode(err)
}

// NewRootCommand builds the command tree bound to app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "rpftool",
		Short:         "Inspect, extract, pack and defragment RPF containers",
		Long:          "Inspect, extract, pack and defragment RPF containers, including containers nested inside other containers.\nEntry paths use '\\' or '/' separators and may cross nested container boundaries.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&app.configPath, "config", "", "Path to YAML config file")
	root.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	})

	root.AddCommand(
		newUnpackCmd(app),
		newExtractCmd(app),
		newExtractJSONCmd(app),
		newListCmd(app),
		newListJSONCmd(app),
		newFindCmd(app),
		newInfoCmd(app),
		newExportXMLCmd(app),
		newExportXMLRPFCmd(app),
		newPackRPFCmd(app),
		newReplaceCmd(app),
		newDefragCmd(app),
		newAnalyzeJSONCmd(app),
		newServeCmd(app),
	)

	return root
}

// setup loads configuration and installs the logger on stderr.
func (a *App) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	a.Config, a.Logger, a.closer = cfg, logger, closer
	return nil
}
