// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/config"
	"github.com/sigil-dev/recall/internal/embedding"
	"github.com/sigil-dev/recall/internal/secrets"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// initWizardStep tracks which step of the wizard is active.
type initWizardStep int

const (
	stepProvider initWizardStep = iota // select provider
	stepAPIKey                         // enter API key
	stepValidate                       // warming up the provider (spinner)
	stepDone                           // wizard complete
	stepError                          // terminal error
)

type providerChoice struct {
	name        string
	description string
}

var supportedProviders = []providerChoice{
	{embedding.ProviderOpenAI, "OpenAI embeddings API"},
	{embedding.ProviderGoogle, "Gemini embeddings API"},
	{embedding.ProviderOllama, "local Ollama server"},
	{embedding.ProviderLocal, "built-in lexical embedder, no network"},
}

// initResult holds the collected wizard configuration.
type initResult struct {
	Provider string
	APIKey   string
}

// --- bubbletea messages ---

type (
	validationSuccessMsg struct{}
	validationErrorMsg   struct{ err error }
	configWrittenMsg     struct{ path string }
)

// validateProvider warms the provider up once with the given key. Tests
// replace it.
var validateProvider = func(ctx context.Context, provider, apiKey string) error {
	factory, err := embedding.NewFactory(embedding.Config{
		Provider: provider,
		Providers: map[string]embedding.ProviderConfig{
			provider: {APIKey: apiKey},
		},
	})
	if err != nil {
		return err
	}
	res, err := factory.Create(ctx)
	if err != nil {
		return err
	}
	return res.Provider.Close()
}

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step           initWizardStep
	providerIdx    int
	apiKeyInput    textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	forceOverwrite bool
}

func newInitModel(store secrets.Store, configPath string) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepProvider,
		apiKeyInput: apiKey,
		spinner:     sp,
		secretStore: store,
		configPath:  configPath,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		return m, writeConfigCmd(m.result, m.secretStore, m.configPath, m.forceOverwrite)

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		if needsAPIKey(m.result.Provider) {
			m.step = stepAPIKey
			m.apiKeyInput.Focus()
		} else {
			m.step = stepProvider
		}
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	return m, nil
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	}
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(supportedProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx].name
		m.validationErr = ""
		if !needsAPIKey(m.result.Provider) {
			m.step = stepValidate
			return m, tea.Batch(m.spinner.Tick, validateProviderCmd(m.result))
		}
		m.step = stepAPIKey
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.validationErr = ""
		m.step = stepValidate
		return m, tea.Batch(m.spinner.Tick, validateProviderCmd(m.result))
	case "esc":
		m.step = stepProvider
		m.validationErr = ""
		m.apiKeyInput.Blur()
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  recall setup  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString("Choose an embedding provider\n\n")
		for i, p := range supportedProviders {
			line := fmt.Sprintf("%-8s %s", p.name, p.description)
			if i == m.providerIdx {
				b.WriteString(successStyle.Render("  > "+line) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+line) + "\n")
			}
		}
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(m.result.Provider + " API key\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  esc to go back  ctrl+c to quit"))

	case stepValidate:
		b.WriteString(m.spinner.View() + " Warming up " + m.result.Provider + "…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		b.WriteString("Run " + titleStyle.Render("recall start") + " to start the service.\n")
		b.WriteString("Run " + titleStyle.Render("recall doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func needsAPIKey(provider string) bool {
	return provider == embedding.ProviderOpenAI || provider == embedding.ProviderGoogle
}

// --- tea.Cmd factories ---

func validateProviderCmd(result initResult) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := validateProvider(ctx, result.Provider, result.APIKey); err != nil {
			return validationErrorMsg{err: err}
		}
		return validationSuccessMsg{}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, path string, force bool) tea.Cmd {
	return func() tea.Msg {
		if err := storeSecretAndWriteConfig(result, store, path, force); err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// storeSecretAndWriteConfig saves the API key to the keyring and writes a
// config that selects the provider and references the key by URI. A stored
// key is not rolled back when the config write fails; re-running replaces it.
func storeSecretAndWriteConfig(result initResult, store secrets.Store, path string, force bool) error {
	overrides := map[string]any{
		"embeddings.provider": result.Provider,
	}
	if result.APIKey != "" {
		if err := store.Set(secrets.DefaultService, result.Provider, result.APIKey); err != nil {
			return recallerr.Wrapf(err, recallerr.CodeSecretStoreFailure, "storing %s API key", result.Provider)
		}
		overrides["embeddings.providers."+result.Provider+".api_key"] = secrets.URI(secrets.DefaultService, result.Provider)
	}
	return config.Write(path, force, overrides)
}

// --- Cobra command ---

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Run an interactive wizard that picks an embedding provider, checks it
with one warmup request and writes a config file.

API keys are stored in the OS keyring and referenced via keyring:// URIs in
the config file. No secrets are written in plain text.

For non-interactive setup use 'recall config init' and 'recall secret set'.`,
		RunE: runInit,
	}

	cmd.Flags().String("path", "", "destination (defaults to ~/.recall/recall.yaml)")
	cmd.Flags().Bool("force", false, "overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"recall init requires an interactive terminal.\n"+
				"To configure recall non-interactively, run 'recall config init' and edit the file.")
		return recallerr.New(recallerr.CodeCLISetupFailure, "recall init: not an interactive terminal")
	}

	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	force, _ := cmd.Flags().GetBool("force")
	if !force {
		if _, err := os.Stat(path); err == nil {
			return recallerr.New(recallerr.CodeCLIInputInvalid,
				"config file already exists at "+path+"; use --force to overwrite")
		}
	}

	m := newInitModel(secretStoreFactory(), path)
	m.forceOverwrite = force

	finalModel, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return recallerr.Wrap(err, recallerr.CodeCLISetupFailure, "init wizard error")
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return recallerr.New(recallerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return recallerr.Wrap(fm.errFinal, recallerr.CodeCLISetupFailure, "init failed")
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Wrote "+fm.configPath))
	}
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
