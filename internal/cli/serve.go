// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package cli

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/woozymasta/rpf/internal/server"
	"github.com/woozymasta/rpf/internal/session"
	"github.com/woozymasta/rpf/internal/vfs"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve container sessions over HTTP",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.Config
			if addr != "" {
				cfg.Serve.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := session.NewRegistry(cfg.CodecOptions(), app.Logger)
			defer reg.CloseAll()

			svc, err := vfs.NewService(reg, cfg.Resolver(app.Logger), cfg.Serve.IndexCacheSize, app.Logger)
			if err != nil {
				return err
			}

			var wg sync.WaitGroup
			defer wg.Wait()
			defer stop()

			wg.Go(func() {
				reg.RunJanitor(ctx, cfg.Serve.SessionIdle, cfg.Serve.JanitorInterval)
			})

			return server.New(svc, app.Logger).ListenAndServe(ctx, cfg.Serve.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config: 127.0.0.1:8790)")
	return cmd
}
