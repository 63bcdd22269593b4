// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/config"
)

func (c *cli) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check configuration",
	}
	cmd.AddCommand(newConfigInitCmd(), c.newConfigValidateCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file populated with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("path")
			if path == "" {
				var err error
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}
			force, _ := cmd.Flags().GetBool("force")

			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Wrote "+path))
			return nil
		},
	}
	cmd.Flags().String("path", "", "destination (defaults to ~/.recall/recall.yaml)")
	cmd.Flags().Bool("force", false, "overwrite an existing file")
	return cmd
}

func (c *cli) newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig(c.newLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			source := c.v.ConfigFileUsed()
			if source == "" {
				source = "defaults"
			}
			_, _ = fmt.Fprintln(out, successStyle.Render("Configuration is valid"))
			_, _ = fmt.Fprintln(out, row("Source", source))
			_, _ = fmt.Fprintln(out, row("Data dir", cfg.DataDir))
			_, _ = fmt.Fprintln(out, row("Store", cfg.Storage.Path))
			_, _ = fmt.Fprintln(out, row("Marker", cfg.Coordinator.MarkerPath))
			return nil
		},
	}
}
