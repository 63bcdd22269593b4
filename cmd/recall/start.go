// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func (c *cli) newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the recall service",
		Long:  "Load configuration, open the store, warm up the embedding provider in the background and serve the status API.",
		RunE:  c.runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = c.v.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func (c *cli) runStart(cmd *cobra.Command, _ []string) error {
	logger := c.newLogger(cmd.ErrOrStderr())

	cfg, err := c.loadConfig(logger)
	if err != nil {
		return err
	}

	app, err := Wire(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting recall on %s (store %s)\n", cfg.Server.Listen, cfg.Storage.Path)
	return app.Run(ctx)
}
