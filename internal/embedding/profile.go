// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

const (
	// LegacyNamespace holds vectors written before per-profile namespaces
	// existed. Only the original local profile maps onto it.
	LegacyNamespace = "memory_index"

	LegacyModel      = "lexical-v1"
	LegacyDimensions = 768
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Profile identifies one vector space: vectors from different profiles are
// never comparable and never share a namespace.
type Profile struct {
	provider   string
	model      string
	dimensions int
	baseURL    string
}

// NewProfile validates and builds a Profile.
func NewProfile(provider, model string, dimensions int, baseURL string) (Profile, error) {
	if provider == "" || model == "" {
		return Profile{}, recallerr.New(recallerr.CodeEmbeddingProfileInvalid,
			"embedding profile needs a provider and a model",
			recallerr.FieldProvider(provider),
			recallerr.FieldModel(model),
		)
	}
	if dimensions <= 0 {
		return Profile{}, recallerr.New(recallerr.CodeEmbeddingProfileInvalid,
			fmt.Sprintf("embedding dimensions must be positive, got %d", dimensions),
			recallerr.FieldProvider(provider),
			recallerr.FieldModel(model),
		)
	}
	return Profile{
		provider:   provider,
		model:      model,
		dimensions: dimensions,
		baseURL:    baseURL,
	}, nil
}

func (p Profile) Provider() string { return p.provider }
func (p Profile) Model() string    { return p.model }
func (p Profile) Dimensions() int  { return p.dimensions }
func (p Profile) BaseURL() string  { return p.baseURL }

// Slug is "<provider>__<sanitized model>__<dimensions>".
func (p Profile) Slug() string {
	return sanitize(p.provider) + "__" + sanitize(p.model) + "__" + strconv.Itoa(p.dimensions)
}

// Namespace is the vector table namespace for this profile.
func (p Profile) Namespace() string {
	if p.IsLegacy() {
		return LegacyNamespace
	}
	return p.Slug()
}

// IsLegacy reports whether this is the original local lexical profile.
func (p Profile) IsLegacy() bool {
	return p.provider == ProviderLocal && p.model == LegacyModel && p.dimensions == LegacyDimensions
}

func (p Profile) String() string {
	return fmt.Sprintf("%s/%s (%d dims)", p.provider, p.model, p.dimensions)
}

// sanitize lower-cases s and collapses each run of characters outside
// [a-z0-9] into one underscore, trimming underscores at both ends.
func sanitize(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(s), "_"), "_")
}
