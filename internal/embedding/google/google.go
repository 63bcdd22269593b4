// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package google embeds text through the Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

const (
	DefaultModel      = "text-embedding-004"
	DefaultDimensions = 768

	// taskType tunes embeddings for retrieval of stored documents.
	taskType = "RETRIEVAL_DOCUMENT"
)

// Config holds Gemini embedding configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, for tests
	Model      string
	Dimensions int
}

// Provider implements embedding.Provider on genai EmbedContent.
type Provider struct {
	client *genai.Client
	config Config
}

// New creates a provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, recallerr.New(recallerr.CodeEmbeddingCredentialMissing,
			"google: missing api_key in config",
			recallerr.FieldProvider("google"),
		)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeEmbeddingUpstreamFailure, "google: creating client")
	}
	return &Provider{client: client, config: cfg}, nil
}

func (p *Provider) Name() string    { return "google" }
func (p *Provider) Model() string   { return p.config.Model }
func (p *Provider) Dimensions() int { return p.config.Dimensions }
func (p *Provider) Close() error    { return nil }

func (p *Provider) Warmup(ctx context.Context) error {
	_, err := p.Embed(ctx, []string{"warmup"})
	return err
}

// Embed sends all texts in one batch and returns vectors in input order.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dims := int32(p.config.Dimensions)
	resp, err := p.client.Models.EmbedContent(ctx, p.config.Model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
		TaskType:             taskType,
	})
	if err != nil {
		fields := []recallerr.Attr{
			recallerr.FieldProvider("google"),
			recallerr.FieldModel(p.config.Model),
		}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			fields = append(fields, recallerr.Field("status", apiErr.Code))
		}
		return nil, recallerr.Wrap(err, recallerr.CodeEmbeddingUpstreamFailure, "google: embed content failed", fields...)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, recallerr.Errorf(recallerr.CodeEmbeddingResponseInvalid,
			"google: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) != p.config.Dimensions {
			got := 0
			if e != nil {
				got = len(e.Values)
			}
			return nil, recallerr.New(recallerr.CodeEmbeddingResponseInvalid,
				fmt.Sprintf("google: model returned %d dimensions, configured %d", got, p.config.Dimensions),
				recallerr.FieldProvider("google"),
				recallerr.FieldModel(p.config.Model),
			)
		}
		out[i] = e.Values
	}
	return out, nil
}
