// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sigil-dev/recall/internal/config"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// cli carries the per-invocation viper instance so that commands built by
// separate NewRootCmd calls never share state.
type cli struct {
	v *viper.Viper
}

// NewRootCmd creates the root recall command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "recall",
		Short:         "recall - memory cache and embedding coordinator",
		Long:          "recall keeps a memory index consistent across processes sharing one store, caches tool output and picks an embedding provider.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		c.newStartCmd(),
		c.newStatusCmd(),
		c.newMarkCmd(),
		c.newProfileCmd(),
		c.newConfigCmd(),
		newInitCmd(),
		newSecretCmd(),
		c.newDoctorCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper sets up defaults, env bindings, flag bindings and the optional
// config file so the standard precedence (flag > env > file > defaults) is
// handled uniformly.
func (c *cli) initViper(cmd *cobra.Command) error {
	v := c.v

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return recallerr.Wrapf(err, recallerr.CodeConfigLoadReadFailure, "reading config file %s", cfgFile)
		}
	} else {
		// SetConfigType is omitted so viper does not fall back to the bare
		// name, which would match the ./recall binary.
		v.SetConfigName("recall")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".recall"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return recallerr.Wrapf(err, recallerr.CodeConfigLoadReadFailure, "reading config")
			}
		}
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeCLISetupFailure, "binding data-dir flag")
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeCLISetupFailure, "binding verbose flag")
	}
	return nil
}

// loadConfig decodes the prepared viper instance, resolving keyring
// references.
func (c *cli) loadConfig(logger *slog.Logger) (*config.Config, error) {
	if used := c.v.ConfigFileUsed(); used != "" {
		config.WarnInsecurePermissions(used, logger)
	}
	return config.FromViper(c.v,
		config.WithSecrets(secretStoreFactory()),
		config.WithLogger(logger),
	)
}

// newLogger builds the slog handler selected by logging.level and
// logging.format. --verbose forces debug.
func (c *cli) newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.v.GetString("logging.level"))); err != nil {
		level = slog.LevelInfo
	}
	if c.v.GetBool("verbose") {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.v.GetString("logging.format"), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
