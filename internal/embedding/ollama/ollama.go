// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package ollama embeds text through a local Ollama server's
// OpenAI-compatible endpoint.
package ollama

import (
	"github.com/sigil-dev/recall/internal/embedding/openai"
)

const (
	DefaultBaseURL    = "http://localhost:11434/v1"
	DefaultModel      = "nomic-embed-text"
	DefaultDimensions = 768
)

// Config holds Ollama embedding configuration. No credential is needed.
type Config struct {
	BaseURL    string
	Model      string
	Dimensions int
}

// New returns an OpenAI-compatible provider pointed at the Ollama server.
func New(cfg Config) (*openai.Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	return openai.New(openai.Config{
		Name:           "ollama",
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Dimensions:     cfg.Dimensions,
		OmitDimensions: true,
		AllowNoKey:     true,
	})
}
