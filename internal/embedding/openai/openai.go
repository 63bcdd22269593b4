// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openai embeds text through the OpenAI embeddings API or any
// endpoint compatible with it.
package openai

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

const (
	DefaultModel      = "text-embedding-3-small"
	DefaultDimensions = 1536
)

// Config holds OpenAI embedding configuration.
type Config struct {
	APIKey     string
	BaseURL    string // optional, for compatible endpoints and tests
	Model      string
	Dimensions int

	// Name overrides the reported provider name. Defaults to "openai".
	Name string
	// OmitDimensions leaves the dimensions parameter out of requests, for
	// servers that reject it. Dimensions is still enforced on responses.
	OmitDimensions bool
	// AllowNoKey permits an empty APIKey for local compatible servers.
	AllowNoKey bool
}

// Provider implements embedding.Provider on the Embeddings API.
type Provider struct {
	client openaisdk.Client
	config Config
}

// New creates a provider. A missing API key is a configuration error
// unless AllowNoKey is set.
func New(cfg Config) (*Provider, error) {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.APIKey == "" && !cfg.AllowNoKey {
		return nil, recallerr.New(recallerr.CodeEmbeddingCredentialMissing,
			cfg.Name+": missing api_key in config",
			recallerr.FieldProvider(cfg.Name),
		)
	}

	key := cfg.APIKey
	if key == "" {
		key = cfg.Name // compatible servers ignore the key but the header must be set
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{client: openaisdk.NewClient(opts...), config: cfg}, nil
}

func (p *Provider) Name() string    { return p.config.Name }
func (p *Provider) Model() string   { return p.config.Model }
func (p *Provider) Dimensions() int { return p.config.Dimensions }
func (p *Provider) Close() error    { return nil }

// Warmup embeds a single short string and checks the returned dimension.
func (p *Provider) Warmup(ctx context.Context) error {
	_, err := p.Embed(ctx, []string{"warmup"})
	return err
}

// Embed sends all texts in one request and returns vectors in input order.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	params := openaisdk.EmbeddingNewParams{
		Input:          openaisdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openaisdk.EmbeddingModel(p.config.Model),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	}
	if !p.config.OmitDimensions {
		params.Dimensions = openaisdk.Int(int64(p.config.Dimensions))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, p.upstreamError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, recallerr.New(recallerr.CodeEmbeddingResponseInvalid,
			fmt.Sprintf("%s: expected %d embeddings, got %d", p.config.Name, len(texts), len(resp.Data)),
			recallerr.FieldProvider(p.config.Name),
			recallerr.FieldModel(p.config.Model),
		)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, recallerr.Errorf(recallerr.CodeEmbeddingResponseInvalid,
				"%s: embedding index %d out of range", p.config.Name, d.Index)
		}
		if out[d.Index] != nil {
			return nil, recallerr.Errorf(recallerr.CodeEmbeddingResponseInvalid,
				"%s: embedding index %d returned twice", p.config.Name, d.Index)
		}
		if len(d.Embedding) != p.config.Dimensions {
			return nil, recallerr.New(recallerr.CodeEmbeddingResponseInvalid,
				fmt.Sprintf("%s: model returned %d dimensions, configured %d",
					p.config.Name, len(d.Embedding), p.config.Dimensions),
				recallerr.FieldProvider(p.config.Name),
				recallerr.FieldModel(p.config.Model),
			)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

func (p *Provider) upstreamError(err error) error {
	fields := []recallerr.Attr{
		recallerr.FieldProvider(p.config.Name),
		recallerr.FieldModel(p.config.Model),
	}
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		fields = append(fields, recallerr.Field("status", apiErr.StatusCode))
	}
	return recallerr.Wrap(err, recallerr.CodeEmbeddingUpstreamFailure, p.config.Name+": embeddings request failed", fields...)
}
