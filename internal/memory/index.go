// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package memory stores memory entries with their embeddings and answers
// semantic searches over them.
package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sigil-dev/recall/internal/embedding"
	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// DefaultSearchLimit is used when a search does not ask for a size.
const DefaultSearchLimit = 10

const matchPageSize = 100

// SaveRequest is the input to Save. An empty ID creates a new entry.
type SaveRequest struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Pinned  bool   `json:"pinned"`
}

// Hit is one search result. Distance is lower for closer matches.
type Hit struct {
	Memory   *store.Memory `json:"memory"`
	Distance float64       `json:"distance"`
}

// Stats summarises the index.
type Stats struct {
	Count      int64  `json:"count"`
	Namespace  string `json:"namespace"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// Index keeps memory rows and their vectors in step. It holds a borrowed
// store handle that is replaced on every Init and is never closed here.
type Index struct {
	embedder embedding.Provider
	profile  embedding.Profile
	logger   *slog.Logger

	mu      sync.RWMutex
	handle  store.Handle
	vectors store.VectorStore

	// pinned is the always-relevant lookahead, loaded on first use. nil
	// means not loaded.
	pinnedMu sync.Mutex
	pinned   []*store.Memory
}

// Option configures an Index.
type Option func(*Index)

func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// NewIndex returns an Index that embeds with p into the namespace of
// profile. The provider's dimension must match the profile's.
func NewIndex(p embedding.Provider, profile embedding.Profile, opts ...Option) (*Index, error) {
	if p == nil {
		return nil, recallerr.New(recallerr.CodeMemoryInvalidInput, "embedding provider is required")
	}
	if p.Dimensions() != profile.Dimensions() {
		return nil, recallerr.Errorf(recallerr.CodeEmbeddingProfileInvalid,
			"provider produces %d dimensions but profile %s expects %d",
			p.Dimensions(), profile, profile.Dimensions())
	}

	ix := &Index{
		embedder: p,
		profile:  profile,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Init binds the index to h. It is called at startup and again after every
// reconnection.
func (ix *Index) Init(ctx context.Context, h store.Handle) error {
	if h == nil {
		return recallerr.New(recallerr.CodeStateNotInitialized, "memory index: nil store handle")
	}

	vs, err := h.Vectors(ctx, ix.profile.Namespace(), ix.profile.Dimensions())
	if err != nil {
		return err
	}

	ix.mu.Lock()
	ix.handle = h
	ix.vectors = vs
	ix.mu.Unlock()

	ix.Reset()
	ix.logger.Debug("memory index bound", "namespace", vs.Namespace(), "path", h.Path())
	return nil
}

// Reset drops the pinned lookahead so the next read reloads it.
func (ix *Index) Reset() {
	ix.pinnedMu.Lock()
	ix.pinned = nil
	ix.pinnedMu.Unlock()
}

// Profile returns the embedding profile the index writes under.
func (ix *Index) Profile() embedding.Profile { return ix.profile }

func (ix *Index) bound() (store.Handle, store.VectorStore, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.handle == nil {
		return nil, nil, recallerr.New(recallerr.CodeStateNotInitialized, "memory index is not initialized")
	}
	return ix.handle, ix.vectors, nil
}

// Save embeds and stores a memory. The row is written first so a failed
// vector write leaves an entry that a later scan can re-embed.
func (ix *Index) Save(ctx context.Context, req SaveRequest) (*store.Memory, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, recallerr.New(recallerr.CodeMemoryInvalidInput, "memory content must not be empty")
	}
	h, vs, err := ix.bound()
	if err != nil {
		return nil, err
	}

	m := &store.Memory{
		ID:      req.ID,
		Title:   req.Title,
		Content: req.Content,
		Pinned:  req.Pinned,
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	} else if existing, err := h.Memories().Get(ctx, m.ID); err == nil {
		m.CreatedAt = existing.CreatedAt
	} else if !recallerr.IsNotFound(err) {
		return nil, err
	}

	vecs, err := ix.embedder.Embed(ctx, []string{embeddingText(m)})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, recallerr.Errorf(recallerr.CodeEmbeddingResponseInvalid,
			"expected one embedding, got %d", len(vecs))
	}

	if err := h.Memories().Put(ctx, m); err != nil {
		return nil, err
	}
	meta := map[string]any{"title": m.Title}
	if err := vs.Store(ctx, m.ID, vecs[0], meta); err != nil {
		return nil, recallerr.With(err, recallerr.Field("memory_id", m.ID))
	}

	ix.Reset()
	return m, nil
}

// Get returns one memory by ID.
func (ix *Index) Get(ctx context.Context, id string) (*store.Memory, error) {
	h, _, err := ix.bound()
	if err != nil {
		return nil, err
	}
	m, err := h.Memories().Get(ctx, id)
	if recallerr.IsNotFound(err) {
		return nil, recallerr.New(recallerr.CodeMemoryNotFound, "memory not found: "+id,
			recallerr.Field("memory_id", id))
	}
	return m, err
}

// Delete removes a memory and its vector.
func (ix *Index) Delete(ctx context.Context, id string) error {
	h, vs, err := ix.bound()
	if err != nil {
		return err
	}
	if err := h.Memories().Delete(ctx, id); err != nil {
		if recallerr.IsNotFound(err) {
			return recallerr.New(recallerr.CodeMemoryNotFound, "memory not found: "+id,
				recallerr.Field("memory_id", id))
		}
		return err
	}
	if err := vs.Delete(ctx, []string{id}); err != nil {
		return err
	}
	ix.Reset()
	return nil
}

// List pages through memories, newest first.
func (ix *Index) List(ctx context.Context, opts store.ListOpts) ([]*store.Memory, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	h, _, err := ix.bound()
	if err != nil {
		return nil, err
	}
	return h.Memories().List(ctx, opts)
}

// Search embeds query and returns the k closest memories. Vectors whose row
// has since been deleted are skipped.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, recallerr.New(recallerr.CodeMemoryInvalidInput, "search query must not be empty")
	}
	if k <= 0 {
		k = DefaultSearchLimit
	}
	h, vs, err := ix.bound()
	if err != nil {
		return nil, err
	}

	vecs, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, recallerr.Errorf(recallerr.CodeEmbeddingResponseInvalid,
			"expected one embedding, got %d", len(vecs))
	}

	results, err := vs.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		m, err := h.Memories().Get(ctx, r.ID)
		if recallerr.IsNotFound(err) {
			ix.logger.Debug("skipping orphaned vector", "id", r.ID, "namespace", vs.Namespace())
			continue
		}
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{Memory: m, Distance: r.Score})
	}
	return hits, nil
}

// MatchTriggers returns the memories whose title occurs in text, ignoring
// case. Titles act as trigger phrases; blank titles never match.
func (ix *Index) MatchTriggers(ctx context.Context, text string) ([]*store.Memory, error) {
	if strings.TrimSpace(text) == "" {
		return nil, recallerr.New(recallerr.CodeMemoryInvalidInput, "trigger text must not be empty")
	}
	h, _, err := ix.bound()
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)
	matched := []*store.Memory{}
	for offset := 0; ; offset += matchPageSize {
		page, err := h.Memories().List(ctx, store.ListOpts{Limit: matchPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			trigger := strings.ToLower(strings.TrimSpace(m.Title))
			if trigger != "" && strings.Contains(lower, trigger) {
				matched = append(matched, m)
			}
		}
		if len(page) < matchPageSize {
			return matched, nil
		}
	}
}

// is loaded.
func (ix *Index) Pinned(ctx context.Context) ([]*store.Memory, error) {
	ix.pinnedMu.Lock()
	defer ix.pinnedMu.Unlock()

	if ix.pinned != nil {
		return ix.pinned, nil
	}

	h, _, err := ix.bound()
	if err != nil {
		return nil, err
	}
	pinned, err := h.Memories().Pinned(ctx)
	if err != nil {
		return nil, err
	}
	if pinned == nil {
		pinned = []*store.Memory{}
	}
	ix.pinned = pinned
	return pinned, nil
}

// Stats reports the entry count and the vector space in use.
func (ix *Index) Stats(ctx context.Context) (Stats, error) {
	h, _, err := ix.bound()
	if err != nil {
		return Stats{}, err
	}
	n, err := h.Memories().Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Count:      n,
		Namespace:  ix.profile.Namespace(),
		Provider:   ix.profile.Provider(),
		Model:      ix.profile.Model(),
		Dimensions: ix.profile.Dimensions(),
	}, nil
}

// reindexPage is how many rows Reindex embeds per provider call.
const reindexPage = 100

// Reindex re-embeds every stored memory into the current namespace. It
// repairs rows whose vector write failed and fills a namespace that was
// created after a provider switch.
func (ix *Index) Reindex(ctx context.Context) (int, error) {
	h, vs, err := ix.bound()
	if err != nil {
		return 0, err
	}

	total := 0
	for offset := 0; ; offset += reindexPage {
		page, err := h.Memories().List(ctx, store.ListOpts{Limit: reindexPage, Offset: offset})
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			break
		}

		texts := make([]string, len(page))
		for i, m := range page {
			texts[i] = embeddingText(m)
		}
		vecs, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return total, err
		}
		if len(vecs) != len(page) {
			return total, recallerr.Errorf(recallerr.CodeEmbeddingResponseInvalid,
				"expected %d embeddings, got %d", len(page), len(vecs))
		}

		for i, m := range page {
			if err := vs.Store(ctx, m.ID, vecs[i], map[string]any{"title": m.Title}); err != nil {
				return total, recallerr.With(err, recallerr.Field("memory_id", m.ID))
			}
		}
		total += len(page)
		if len(page) < reindexPage {
			break
		}
	}

	ix.Reset()
	ix.logger.Info("memory index rebuilt", "entries", total, "namespace", vs.Namespace())
	return total, nil
}

func embeddingText(m *store.Memory) string {
	if m.Title == "" {
		return m.Content
	}
	return m.Title + "\n\n" + m.Content
}
