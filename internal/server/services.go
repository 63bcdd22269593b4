// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"regexp"

	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/coordinator"
	"github.com/sigil-dev/recall/internal/embedding"
	"github.com/sigil-dev/recall/internal/memory"
	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
	"github.com/sigil-dev/recall/pkg/health"
)

// CacheService is the output cache as seen by the status routes.
type CacheService interface {
	Stats() cache.Stats
	InvalidateByOwner(owner string) int
	InvalidateByPattern(re *regexp.Regexp) int
}

// CoordinatorService reports the store coordinator's state.
type CoordinatorService interface {
	State() coordinator.State
	Reinitializations() int64
	LastSeenMarker() int64
	IsEmbeddingReady() bool
	GetLastScanTime(ctx context.Context) int64
}

// EmbeddingService reports the active provider and per-provider health.
type EmbeddingService interface {
	// Active is nil until a provider has warmed up.
	Active() *embedding.Result
	Health() []health.Metrics
}

// MemoryService runs the memory tools.
type MemoryService interface {
	Save(ctx context.Context, req memory.SaveRequest) (*store.Memory, error)
	Get(ctx context.Context, id string) (*store.Memory, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts store.ListOpts) ([]*store.Memory, error)
	Search(ctx context.Context, query string, k int) ([]memory.Hit, error)
	MatchTriggers(ctx context.Context, text string) ([]*store.Memory, error)
	Pinned(ctx context.Context) ([]*store.Memory, error)
	Stats(ctx context.Context) (memory.Stats, error)
	Reindex(ctx context.Context) (int, error)
}

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
type Services struct {
	cache       CacheService
	coordinator CoordinatorService
	embeddings  EmbeddingService
	memories    MemoryService // optional; nil = memory routes answer 503
}

// NewServices creates a Services instance. cache, coordinator and
// embeddings are required.
func NewServices(c CacheService, coord CoordinatorService, emb EmbeddingService, memories MemoryService) (*Services, error) {
	if c == nil {
		return nil, recallerr.New(recallerr.CodeServerConfigInvalid, "cache service is required")
	}
	if coord == nil {
		return nil, recallerr.New(recallerr.CodeServerConfigInvalid, "coordinator service is required")
	}
	if emb == nil {
		return nil, recallerr.New(recallerr.CodeServerConfigInvalid, "embedding service is required")
	}
	return &Services{
		cache:       c,
		coordinator: coord,
		embeddings:  emb,
		memories:    memories,
	}, nil
}
