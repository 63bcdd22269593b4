// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/server"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

func (c *cli) newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status",
		Long:  "Query a running service for cache statistics, coordinator state and the active embedding provider.",
		RunE:  c.runStatus,
	}

	cmd.Flags().String("address", "", "service address (defaults to server.listen)")
	cmd.Flags().Bool("json", false, "print the raw status document")

	return cmd
}

func (c *cli) runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = c.v.GetString("server.listen")
	}
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	var body server.StatusBody
	if err := newServiceClient(addr).getJSON("/api/v1/status", &body); err != nil {
		if recallerr.HasCode(err, recallerr.CodeCLIServerNotRunning) {
			_, _ = fmt.Fprintf(out, "recall at %s is not running (connection refused)\n", addr)
			return nil
		}
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(body)
	}

	_, err := fmt.Fprintln(out, renderStatus(addr, body))
	return err
}

func renderStatus(addr string, b server.StatusBody) string {
	var sb strings.Builder

	state := successStyle.Render(b.Status)
	if b.Status != "ok" {
		state = warnStyle.Render(b.Status)
	}
	sb.WriteString(titleStyle.Render("recall "+b.Version) + " " + dimStyle.Render(addr) + "\n")
	sb.WriteString(row("Status", state) + "\n\n")

	sb.WriteString(titleStyle.Render("Cache") + "\n")
	if !b.Cache.Enabled {
		sb.WriteString(row("Enabled", dimStyle.Render("no")) + "\n")
	} else {
		sb.WriteString(row("Entries", fmt.Sprintf("%d / %d", b.Cache.Size, b.Cache.MaxSize)) + "\n")
		sb.WriteString(row("Hit rate", fmt.Sprintf("%.2f%% (%d hits, %d misses)", b.Cache.HitRate, b.Cache.Hits, b.Cache.Misses)) + "\n")
		sb.WriteString(row("Evicted / expired", fmt.Sprintf("%d / %d", b.Cache.Evictions, b.Cache.Expirations)) + "\n")
		sb.WriteString(row("Invalidated", fmt.Sprintf("%d", b.Cache.Invalidations)) + "\n")
	}
	sb.WriteString("\n")

	co := b.Coordinator
	sb.WriteString(titleStyle.Render("Coordinator") + "\n")
	sb.WriteString(row("State", co.State) + "\n")
	sb.WriteString(row("Reinitializations", fmt.Sprintf("%d", co.Reinitializations)) + "\n")
	sb.WriteString(row("Last update seen", formatMillis(co.LastSeenMarker)) + "\n")
	sb.WriteString(row("Last index scan", formatMillis(co.LastIndexScan)) + "\n\n")

	sb.WriteString(titleStyle.Render("Embeddings") + "\n")
	if e := b.Embedding; e == nil {
		sb.WriteString(row("Provider", warnStyle.Render("warming up")) + "\n")
	} else {
		sb.WriteString(row("Provider", fmt.Sprintf("%s (%s, %d dims)", e.Provider, e.Model, e.Dimensions)) + "\n")
		sb.WriteString(row("Namespace", e.Namespace) + "\n")
		if e.FellBack {
			sb.WriteString(row("Fallback", warnStyle.Render(e.Selected+" failed: "+e.FallbackReason)) + "\n")
		}
	}
	for _, p := range b.Providers {
		health := successStyle.Render("available")
		if !p.Available {
			health = errorStyle.Render(fmt.Sprintf("cooling down (%d failures)", p.FailureCount))
		}
		sb.WriteString(row("  "+p.Provider, health) + "\n")
	}

	if m := b.Memory; m != nil {
		sb.WriteString("\n" + titleStyle.Render("Memories") + "\n")
		sb.WriteString(row("Count", fmt.Sprintf("%d", m.Count)) + "\n")
	}

	return boxStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return dimStyle.Render("never")
	}
	return time.UnixMilli(ms).Format(time.RFC3339)
}
