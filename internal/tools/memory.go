// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package tools

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/memory"
	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// DefaultReadyTimeout is how long a memory tool waits for the embedding
// provider to finish warming up.
const DefaultReadyTimeout = 5 * time.Second

// MemoryTools exposes the memory index through the dispatcher, so every
// call gets the external-update check, read caching and write invalidation.
// The index is bound once the embedding provider is ready. Reads return
// copies, so callers may modify results without touching cached entries.
type MemoryTools struct {
	d            *Dispatcher
	index        atomic.Pointer[memory.Index]
	readyTimeout time.Duration
}

// NewMemoryTools returns tools with no index bound. Calls made before Bind
// wait up to readyTimeout and then fail as not initialized.
func NewMemoryTools(d *Dispatcher, readyTimeout time.Duration) *MemoryTools {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	return &MemoryTools{d: d, readyTimeout: readyTimeout}
}

// Bind installs the index the tools operate on.
func (mt *MemoryTools) Bind(ix *memory.Index) {
	mt.index.Store(ix)
}

func (mt *MemoryTools) bound(ctx context.Context) (*memory.Index, error) {
	if !mt.d.coord.WaitForReady(ctx, mt.readyTimeout) {
		return nil, recallerr.New(recallerr.CodeStateNotInitialized, "embedding provider is still warming up")
	}
	ix := mt.index.Load()
	if ix == nil {
		return nil, recallerr.New(recallerr.CodeStateNotInitialized, "memory index is not bound")
	}
	return ix, nil
}

// Save stores a memory. Passing an ID updates that entry in place.
func (mt *MemoryTools) Save(ctx context.Context, req memory.SaveRequest) (*store.Memory, error) {
	ix, err := mt.bound(ctx)
	if err != nil {
		return nil, err
	}

	op := cache.OpSave
	if req.ID != "" {
		op = cache.OpUpdate
	}

	var saved *store.Memory
	err = mt.d.Write(ctx, op, cache.WriteEvent{IDs: []string{req.ID}, Source: "memory_save"}, func(ctx context.Context) error {
		m, err := ix.Save(ctx, req)
		saved = m
		return err
	})
	return saved, err
}

func (mt *MemoryTools) Get(ctx context.Context, id string) (*store.Memory, error) {
	ix, err := mt.bound(ctx)
	if err != nil {
		return nil, err
	}
	m, err := Read(ctx, mt.d, cache.OwnerMemoryRead, map[string]any{"id": id},
		func(ctx context.Context) (*store.Memory, error) { return ix.Get(ctx, id) })
	return cloneMemory(m), err
}

func (mt *MemoryTools) Delete(ctx context.Context, id string) error {
	ix, err := mt.bound(ctx)
	if err != nil {
		return err
	}
	return mt.d.Write(ctx, cache.OpDelete, cache.WriteEvent{IDs: []string{id}, Source: "memory_delete"},
		func(ctx context.Context) error { return ix.Delete(ctx, id) })
}

func (mt *MemoryTools) List(ctx context.Context, opts store.ListOpts) ([]*store.Memory, error) {
	ix, err := mt.bound(ctx)
	if err != nil {
		return nil, err
	}
	args := map[string]any{"limit": opts.Limit, "offset": opts.Offset}
	list, err := Read(ctx, mt.d, cache.OwnerMemoryList, args,
		func(ctx context.Context) ([]*store.Memory, error) { return ix.List(ctx, opts) })
	return cloneMemories(list), err
}

// Search returns the k memories closest to query.
func (mt *MemoryTools) Search(ctx context.Context, query string, k int) ([]memory.Hit, error) {
	ix, err := mt.bound(ctx)
	if err != nil {
		return nil, err
	}
	args := map[string]any{"query": query, "k": k}
	hits, err := Read(ctx, mt.d, cache.OwnerMemorySearch, args,
		func(ctx context.Context) ([]memory.Hit, error) { return ix.Search(ctx, query, k) })
	if hits == nil {
		return nil, err
	}
	out := make([]memory.Hit, len(hits))
	for i, h := range hits {
		out[i] = memory.Hit{Memory: cloneMemory(h.Memory), Distance: h.Distance}
	}
	return out, err
}

// MatchTriggers returns the memories whose title occurs in text.
func (mt *MemoryTools) MatchTriggers(ctx context.Context, text string) ([]*store.Memory, error) {
	ix, err := mt.bound(ctx)
	if err != nil {
		return nil, err
	}
	matched, err := Read(ctx, mt.d, cache.OwnerMemoryMatchTriggers, map[string]any{"text": text},
		func(ctx context.Context) ([]*store.Memory, error) { return ix.MatchTriggers(ctx, text) })
	return cloneMemories(matched), err
}

// Pinned returns the always-relevant memories. The index keeps its own
// lookahead for these, so the output cache is not consulted.
func (mt *MemoryTools) Pinned(ctx context.Context) ([]*store.Memory, error) {
	ix, err := mt.bound(ctx)
	if err != nil {
		return nil, err
	}
	if err := mt.d.sync(ctx); err != nil {
		return nil, err
	}
	pinned, err := ix.Pinned(ctx)
	return cloneMemories(pinned), err
}

func (mt *MemoryTools) Stats(ctx context.Context) (memory.Stats, error) {
	ix, err := mt.bound(ctx)
	if err != nil {
		return memory.Stats{}, err
	}
	return Read(ctx, mt.d, cache.OwnerMemoryStats, nil, ix.Stats)
}

// Reindex re-embeds every memory, subject to the scan cooldown.
func (mt *MemoryTools) Reindex(ctx context.Context) (int, error) {
	ix, err := mt.bound(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = mt.d.Scan(ctx, func(ctx context.Context) error {
		var err error
		n, err = ix.Reindex(ctx)
		return err
	})
	return n, err
}

func cloneMemory(m *store.Memory) *store.Memory {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

func cloneMemories(ms []*store.Memory) []*store.Memory {
	if ms == nil {
		return nil
	}
	out := make([]*store.Memory, len(ms))
	for i, m := range ms {
		out[i] = cloneMemory(m)
	}
	return out
}
