// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/coordinator"
)

// newMarkCmd stamps the update marker. Processes that write to the shared
// store outside recall run this after each commit so running services
// reconnect on their next tool call.
func (c *cli) newMarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Signal that the store was changed by another process",
		Long:  "Write the current time to the update marker. Running services reconnect to the store before their next tool call.",
		Args:  cobra.NoArgs,
		RunE:  c.runMark,
	}
	cmd.Flags().String("path", "", "marker file (defaults to coordinator.marker_path)")
	return cmd
}

func (c *cli) runMark(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		cfg, err := c.loadConfig(c.newLogger(cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		path = cfg.Coordinator.MarkerPath
	}

	now := time.Now()
	if err := coordinator.MarkUpdated(path, now); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Marked %s at %d\n", path, now.UnixMilli())
	return nil
}
