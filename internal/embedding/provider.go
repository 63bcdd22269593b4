// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embedding selects and constructs the embedding provider and
// derives the storage namespace its vectors live in.
package embedding

import "context"

// Provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// ProviderAuto lets the factory choose from credentials present.
	ProviderAuto = "auto"
)

// Provider turns text into fixed-length vectors.
type Provider interface {
	Name() string
	Model() string
	// Dimensions is the length of every vector Embed returns.
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Warmup performs one cheap round trip so that credential or
	// connectivity problems surface before any vector is written.
	Warmup(ctx context.Context) error
	Close() error
}
