// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/sigil-dev/recall/internal/config"
	"github.com/sigil-dev/recall/internal/coordinator"
	"github.com/sigil-dev/recall/internal/embedding"
	"github.com/sigil-dev/recall/internal/server"
	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

func (c *cli) newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the config file, data directory, store, embedding selection, disk space and the running service.",
		RunE:  c.runDoctor,
	}

	cmd.Flags().String("address", "", "service address to check (defaults to server.listen)")

	return cmd
}

func (c *cli) runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = c.v.GetString("server.listen")
	}

	// A broken config is itself a finding, so the remaining checks fall
	// back to what viper resolved.
	cfg, cfgErr := c.loadConfig(c.newLogger(cmd.ErrOrStderr()))
	dataDir := c.v.GetString("data_dir")
	if cfg != nil {
		dataDir = cfg.DataDir
	}

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", func() string { return c.checkConfig(cfgErr) }},
		{"Data Dir", func() string { return checkDataDir(dataDir) }},
		{"Store", func() string { return checkStore(cmd.Context(), cfg) }},
		{"Update Marker", func() string { return checkMarker(cfg) }},
		{"Embeddings", func() string { return checkEmbeddings(cfg) }},
		{"Service", func() string { return checkService(addr) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}

	for _, ch := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", ch.name+":", ch.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("recall %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func (c *cli) checkConfig(loadErr error) string {
	if loadErr != nil {
		return fmt.Sprintf("invalid: %s", loadErr)
	}
	cfgFile := c.v.ConfigFileUsed()
	if cfgFile == "" {
		return "using defaults (no config file found)"
	}
	info, err := os.Stat(cfgFile)
	if err == nil && info.Mode().Perm()&0o077 != 0 {
		return fmt.Sprintf("loaded from %s (mode %04o, readable by others)", cfgFile, info.Mode().Perm())
	}
	return fmt.Sprintf("loaded from %s", cfgFile)
}

func checkDataDir(dir string) string {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Sprintf("%s does not exist yet (created on start)", dir)
	}
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	if !info.IsDir() {
		return fmt.Sprintf("%s is not a directory", dir)
	}
	return dir
}

// checkStore opens an existing store and counts its memories. A missing
// file is not created.
func checkStore(ctx context.Context, cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	if _, err := os.Stat(cfg.Storage.Path); os.IsNotExist(err) {
		return fmt.Sprintf("%s not created yet", cfg.Storage.Path)
	}

	h, err := store.Open(&store.StorageConfig{Backend: cfg.Storage.Backend, Path: cfg.Storage.Path})
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	defer func() { _ = h.Close() }()

	n, err := h.Memories().Count(ctx)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s (%d memories)", cfg.Storage.Path, n)
}

func checkMarker(cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	ts, ok := coordinator.ReadMarker(cfg.Coordinator.MarkerPath)
	if !ok {
		return "no external updates recorded"
	}
	return fmt.Sprintf("last external update %s", time.UnixMilli(ts).Format(time.RFC3339))
}

func checkEmbeddings(cfg *config.Config) string {
	if cfg == nil {
		return "skipped (config invalid)"
	}
	factory, err := embedding.NewFactory(embeddingConfig(cfg.Embeddings))
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	sel := factory.Resolve()
	return fmt.Sprintf("%s (%s)", sel.Provider, sel.Reason)
}

func checkService(addr string) string {
	var body server.StatusBody
	if err := newServiceClient(addr).getJSON("/api/v1/status", &body); err != nil {
		if recallerr.HasCode(err, recallerr.CodeCLIServerNotRunning) {
			return fmt.Sprintf("not running at %s (run 'recall start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s (cache hit rate %.2f%%)", body.Status, addr, body.Cache.HitRate)
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
