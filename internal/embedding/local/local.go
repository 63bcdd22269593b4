// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package local provides an in-process lexical embedder. It needs no
// network or credential and is the fallback when no cloud provider is
// usable.
//
// Vectors are built by feature hashing: text is lower-cased and split on
// non-alphanumeric runes, each token (and each adjacent token pair) is
// hashed to a bucket with a sign bit, term frequencies are damped with
// 1+ln(tf), and the result is L2-normalized. The embedder is stateless, so
// the same text always yields the same vector across restarts.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

const (
	DefaultModel      = "lexical-v1"
	DefaultDimensions = 768

	minTokenLen = 2
)

type Config struct {
	Model      string
	Dimensions int
}

// Provider implements embedding.Provider without any I/O.
type Provider struct {
	model      string
	dimensions int
}

func New(cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Dimensions < 0 {
		return nil, recallerr.Errorf(recallerr.CodeConfigValidateInvalidValue,
			"local: dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &Provider{model: cfg.Model, dimensions: cfg.Dimensions}, nil
}

func (p *Provider) Name() string    { return "local" }
func (p *Provider) Model() string   { return p.model }
func (p *Provider) Dimensions() int { return p.dimensions }
func (p *Provider) Close() error    { return nil }

func (p *Provider) Warmup(ctx context.Context) error { return ctx.Err() }

// Embed returns one vector per text. Text without any token yields a zero
// vector.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = p.vector(tokenize(text))
	}
	return out, nil
}

func (p *Provider) vector(tokens []string) []float32 {
	vec := make([]float32, p.dimensions)
	if len(tokens) == 0 {
		return vec
	}

	tf := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		tf[tok]++
		if i > 0 {
			tf[tokens[i-1]+" "+tok]++
		}
	}

	acc := make([]float64, p.dimensions)
	for term, n := range tf {
		bucket, sign := p.hash(term)
		weight := 1 + math.Log(float64(n))
		if strings.Contains(term, " ") {
			weight *= 0.5 // bigrams sharpen ranking without dominating
		}
		acc[bucket] += sign * weight
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// hash maps a term to a bucket and a ±1 sign so collisions tend to cancel.
func (p *Provider) hash(term string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(term))
	sum := h.Sum64()

	sign := 1.0
	if sum&(1<<63) != 0 {
		sign = -1.0
	}
	return int(sum % uint64(p.dimensions)), sign
}

// tokenize lower-cases text and splits on non-alphanumeric runes, dropping
// tokens shorter than two characters.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() >= minTokenLen {
			tokens = append(tokens, current.String())
		}
		current.Reset()
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			_, _ = current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}
