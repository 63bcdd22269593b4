// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/secrets"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage provider credentials stored in the OS keyring",
		Long: "Store, inspect and delete secrets under the recall keyring service. " +
			"Reference a stored secret from config as keyring://recall/<name>.",
	}

	cmd.PersistentFlags().String("service", secrets.DefaultService, "keyring service name")

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretGetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret (reads the value from stdin when omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runSecretSet,
	}
}

func newSecretGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Show a stored secret, masked unless --reveal is given",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretGet,
	}
	cmd.Flags().Bool("reveal", false, "print the secret in full")
	return cmd
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored secret names",
		Args:  cobra.NoArgs,
		RunE:  runSecretList,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	service, _ := cmd.Flags().GetString("service")
	name := args[0]

	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return recallerr.Wrap(err, recallerr.CodeCLIInputInvalid, "reading secret from stdin")
		}
		value = strings.TrimRight(line, "\r\n")
	}
	if value == "" {
		return recallerr.New(recallerr.CodeCLIInputInvalid, "secret value must not be empty")
	}

	if err := secretStoreFactory().Set(service, name, value); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Stored secret: %s\n", name)
	_, _ = fmt.Fprintf(out, "Reference it in config as %s\n", secrets.URI(service, name))
	return nil
}

func runSecretGet(cmd *cobra.Command, args []string) error {
	service, _ := cmd.Flags().GetString("service")
	reveal, _ := cmd.Flags().GetBool("reveal")
	name := args[0]

	value, err := secretStoreFactory().Get(service, name)
	if err != nil {
		if recallerr.HasCode(err, recallerr.CodeSecretNotFound) {
			return recallerr.Errorf(recallerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return err
	}

	if !reveal {
		value = mask(value)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	service, _ := cmd.Flags().GetString("service")
	keys, err := secretStoreFactory().Keys(service)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	service, _ := cmd.Flags().GetString("service")
	name := args[0]

	if err := secretStoreFactory().Delete(service, name); err != nil {
		if recallerr.HasCode(err, recallerr.CodeSecretNotFound) {
			return recallerr.Errorf(recallerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}

// mask keeps the last four characters of values long enough that doing so
// does not give most of the secret away.
func mask(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
