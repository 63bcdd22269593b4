// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/recall/internal/embedding"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

func TestProfile_Slug(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		dims     int
		want     string
	}{
		{"plain", "openai", "text-embedding-3-small", 1536, "openai__text_embedding_3_small__1536"},
		{"mixed case and slashes", "ollama", "Library/Nomic.Embed:Text", 768, "ollama__library_nomic_embed_text__768"},
		{"leading and trailing junk", "google", "--gecko--", 768, "google__gecko__768"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := embedding.NewProfile(tt.provider, tt.model, tt.dims, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Slug())
			assert.Equal(t, tt.want, p.Namespace())
			assert.False(t, p.IsLegacy())
		})
	}
}

func TestProfile_DistinctProfilesGetDistinctNamespaces(t *testing.T) {
	a, err := embedding.NewProfile("openai", "text-embedding-3-small", 1536, "")
	require.NoError(t, err)
	b, err := embedding.NewProfile("openai", "text-embedding-3-small", 512, "")
	require.NoError(t, err)
	c, err := embedding.NewProfile("google", "text-embedding-004", 768, "")
	require.NoError(t, err)

	assert.NotEqual(t, a.Namespace(), b.Namespace())
	assert.NotEqual(t, a.Namespace(), c.Namespace())
	assert.NotEqual(t, b.Namespace(), c.Namespace())
}

func TestProfile_LegacyTupleMapsToLegacyNamespace(t *testing.T) {
	p, err := embedding.NewProfile(embedding.ProviderLocal, embedding.LegacyModel, embedding.LegacyDimensions, "")
	require.NoError(t, err)

	assert.True(t, p.IsLegacy())
	assert.Equal(t, embedding.LegacyNamespace, p.Namespace())
	assert.Equal(t, "local__lexical_v1__768", p.Slug())

	other, err := embedding.NewProfile(embedding.ProviderLocal, embedding.LegacyModel, 384, "")
	require.NoError(t, err)
	assert.False(t, other.IsLegacy())
	assert.Equal(t, "local__lexical_v1__384", other.Namespace())
}

func TestProfile_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		dims     int
	}{
		{"missing provider", "", "m", 8},
		{"missing model", "openai", "", 8},
		{"zero dimensions", "openai", "m", 0},
		{"negative dimensions", "openai", "m", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := embedding.NewProfile(tt.provider, tt.model, tt.dims, "")
			require.Error(t, err)
			assert.True(t, recallerr.HasCode(err, recallerr.CodeEmbeddingProfileInvalid))
		})
	}
}

func TestProfile_Accessors(t *testing.T) {
	p, err := embedding.NewProfile("ollama", "nomic-embed-text", 768, "http://localhost:11434/v1")
	require.NoError(t, err)

	assert.Equal(t, "ollama", p.Provider())
	assert.Equal(t, "nomic-embed-text", p.Model())
	assert.Equal(t, 768, p.Dimensions())
	assert.Equal(t, "http://localhost:11434/v1", p.BaseURL())
	assert.Equal(t, "ollama/nomic-embed-text (768 dims)", p.String())
}
