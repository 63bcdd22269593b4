// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/embedding"
)

func (c *cli) newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show which embedding provider and vector namespace would be used",
		Long: "Resolve the embedding provider from configuration and print its profile. " +
			"With --warmup the provider is contacted, so a failing cloud provider shows the local fallback.",
		Args: cobra.NoArgs,
		RunE: c.runProfile,
	}
	cmd.Flags().Bool("warmup", false, "construct and warm up the provider")
	return cmd
}

func (c *cli) runProfile(cmd *cobra.Command, _ []string) error {
	logger := c.newLogger(cmd.ErrOrStderr())
	cfg, err := c.loadConfig(logger)
	if err != nil {
		return err
	}

	ecfg := embeddingConfig(cfg.Embeddings)
	factory, err := embedding.NewFactory(ecfg, embedding.WithLogger(logger))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sel := factory.Resolve()
	_, _ = fmt.Fprintln(out, row("Selected", sel.Provider))
	_, _ = fmt.Fprintln(out, row("Reason", sel.Reason))

	if warm, _ := cmd.Flags().GetBool("warmup"); !warm {
		pc := ecfg.Providers[sel.Provider]
		profile, err := embedding.NewProfile(sel.Provider, pc.Model, pc.Dimensions, pc.BaseURL)
		if err != nil {
			return err
		}
		printProfile(out, profile)
		return nil
	}

	res, err := factory.Create(cmd.Context())
	if err != nil {
		_, _ = fmt.Fprintln(out, row("Warmup", errorStyle.Render(err.Error())))
		return err
	}
	defer func() { _ = res.Provider.Close() }()

	if res.FellBack {
		_, _ = fmt.Fprintln(out, row("Warmup", warnStyle.Render("failed, using local: "+res.FallbackReason)))
	} else {
		_, _ = fmt.Fprintln(out, row("Warmup", successStyle.Render("ok")))
	}
	printProfile(out, res.Profile)
	return nil
}

func printProfile(w io.Writer, p embedding.Profile) {
	_, _ = fmt.Fprintln(w, row("Provider", p.Provider()))
	_, _ = fmt.Fprintln(w, row("Model", p.Model()))
	_, _ = fmt.Fprintln(w, row("Dimensions", fmt.Sprintf("%d", p.Dimensions())))
	ns := p.Namespace()
	if p.IsLegacy() {
		ns += dimStyle.Render(" (legacy)")
	}
	_, _ = fmt.Fprintln(w, row("Namespace", ns))
}
