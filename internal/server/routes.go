// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"
	"regexp"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/memory"
	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
	"github.com/sigil-dev/recall/pkg/health"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Cache, coordinator and embedding status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "invalidate-cache",
		Method:      http.MethodPost,
		Path:        "/api/v1/cache/invalidate",
		Summary:     "Drop cached tool output by owner or key pattern",
		Tags:        []string{"cache"},
	}, s.handleInvalidateCache)

	// Memory tools
	huma.Register(s.api, huma.Operation{
		OperationID:   "save-memory",
		Method:        http.MethodPost,
		Path:          "/api/v1/memories",
		Summary:       "Save a memory",
		Tags:          []string{"memories"},
		DefaultStatus: http.StatusCreated,
	}, s.handleSaveMemory)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-memories",
		Method:      http.MethodGet,
		Path:        "/api/v1/memories",
		Summary:     "List memories, newest first",
		Tags:        []string{"memories"},
	}, s.handleListMemories)

	huma.Register(s.api, huma.Operation{
		OperationID: "search-memories",
		Method:      http.MethodGet,
		Path:        "/api/v1/memories/search",
		Summary:     "Semantic search over memories",
		Tags:        []string{"memories"},
	}, s.handleSearchMemories)

	huma.Register(s.api, huma.Operation{
		OperationID: "match-memory-triggers",
		Method:      http.MethodGet,
		Path:        "/api/v1/memories/match",
		Summary:     "Memories whose title occurs in the given text",
		Tags:        []string{"memories"},
	}, s.handleMatchTriggers)

	huma.Register(s.api, huma.Operation{
		OperationID: "pinned-memories",
		Method:      http.MethodGet,
		Path:        "/api/v1/memories/pinned",
		Summary:     "List always-relevant memories",
		Tags:        []string{"memories"},
	}, s.handlePinnedMemories)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-memory",
		Method:      http.MethodGet,
		Path:        "/api/v1/memories/{id}",
		Summary:     "Get a memory",
		Tags:        []string{"memories"},
	}, s.handleGetMemory)

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-memory",
		Method:        http.MethodDelete,
		Path:          "/api/v1/memories/{id}",
		Summary:       "Delete a memory",
		Tags:          []string{"memories"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteMemory)

	huma.Register(s.api, huma.Operation{
		OperationID: "scan-memories",
		Method:      http.MethodPost,
		Path:        "/api/v1/memories/scan",
		Summary:     "Re-embed every memory (rate limited)",
		Tags:        []string{"memories"},
	}, s.handleScan)
}

// --- Request/Response types for huma ---

// CoordinatorStatus is the coordinator section of the status response.
type CoordinatorStatus struct {
	State             string `json:"state" enum:"idle,in_progress"`
	Reinitializations int64  `json:"reinitializations"`
	LastSeenMarker    int64  `json:"last_seen_marker" doc:"Unix ms of the newest external update acted on"`
	LastIndexScan     int64  `json:"last_index_scan" doc:"Unix ms of the last index scan, 0 if never"`
	EmbeddingReady    bool   `json:"embedding_ready"`
}

// EmbeddingStatus describes the active provider and its vector namespace.
type EmbeddingStatus struct {
	Selected       string `json:"selected"`
	Forced         bool   `json:"forced"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	Dimensions     int    `json:"dimensions"`
	Namespace      string `json:"namespace"`
	Legacy         bool   `json:"legacy"`
	FellBack       bool   `json:"fell_back"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// StatusBody is the JSON body of GET /api/v1/status.
type StatusBody struct {
	Status      string            `json:"status" enum:"ok,starting"`
	Version     string            `json:"version"`
	Cache       cache.Stats       `json:"cache"`
	Coordinator CoordinatorStatus `json:"coordinator"`
	Embedding   *EmbeddingStatus  `json:"embedding,omitempty"`
	Providers   []health.Metrics  `json:"providers"`
	Memory      *memory.Stats     `json:"memory,omitempty"`
}

type statusOutput struct {
	Body StatusBody
}

type invalidateCacheInput struct {
	Body struct {
		Owner   string `json:"owner,omitempty" doc:"Owner tag, e.g. memory_search"`
		Pattern string `json:"pattern,omitempty" doc:"Regular expression matched against cache keys"`
	}
}

// InvalidateBody reports how many entries were dropped.
type InvalidateBody struct {
	Invalidated int `json:"invalidated"`
}

type invalidateCacheOutput struct {
	Body InvalidateBody
}

type saveMemoryInput struct {
	Body struct {
		ID      string `json:"id,omitempty" doc:"Existing memory to update"`
		Title   string `json:"title,omitempty"`
		Content string `json:"content" minLength:"1"`
		Pinned  bool   `json:"pinned,omitempty"`
	}
}

type memoryOutput struct {
	Body *store.Memory
}

type listMemoriesInput struct {
	Limit  int `query:"limit" default:"50" minimum:"1" maximum:"500"`
	Offset int `query:"offset" default:"0" minimum:"0"`
}

type memoriesOutput struct {
	Body struct {
		Memories []*store.Memory `json:"memories"`
	}
}

type searchMemoriesInput struct {
	Query string `query:"q" required:"true" minLength:"1"`
	K     int    `query:"k" default:"10" minimum:"1" maximum:"100"`
}

type searchMemoriesOutput struct {
	Body struct {
		Hits []memory.Hit `json:"hits"`
	}
}

type matchTriggersInput struct {
	Text string `query:"text" required:"true" minLength:"1"`
}

type memoryIDInput struct {
	ID string `path:"id"`
}

type scanOutput struct {
	Body struct {
		Reindexed int `json:"reindexed"`
	}
}

// --- Handlers ---

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	svc := s.services
	out := &statusOutput{}
	b := &out.Body

	b.Version = s.cfg.Version
	b.Cache = svc.cache.Stats()
	b.Coordinator = CoordinatorStatus{
		State:             svc.coordinator.State().String(),
		Reinitializations: svc.coordinator.Reinitializations(),
		LastSeenMarker:    svc.coordinator.LastSeenMarker(),
		LastIndexScan:     svc.coordinator.GetLastScanTime(ctx),
		EmbeddingReady:    svc.coordinator.IsEmbeddingReady(),
	}
	b.Providers = svc.embeddings.Health()
	if b.Providers == nil {
		b.Providers = []health.Metrics{}
	}

	b.Status = "starting"
	if res := svc.embeddings.Active(); res != nil {
		b.Embedding = &EmbeddingStatus{
			Selected:       res.Selection.Provider,
			Forced:         res.Selection.Forced,
			Provider:       res.Profile.Provider(),
			Model:          res.Profile.Model(),
			Dimensions:     res.Profile.Dimensions(),
			Namespace:      res.Profile.Namespace(),
			Legacy:         res.Profile.IsLegacy(),
			FellBack:       res.FellBack,
			FallbackReason: res.FallbackReason,
		}
	}
	if b.Coordinator.EmbeddingReady {
		b.Status = "ok"
		if svc.memories != nil {
			if st, err := svc.memories.Stats(ctx); err == nil {
				b.Memory = &st
			} else {
				s.logger.Warn("status: memory stats unavailable", "error", err)
			}
		}
	}
	return out, nil
}

func (s *Server) handleInvalidateCache(_ context.Context, input *invalidateCacheInput) (*invalidateCacheOutput, error) {
	owner, pattern := input.Body.Owner, input.Body.Pattern
	if (owner == "") == (pattern == "") {
		return nil, huma.Error400BadRequest("exactly one of owner or pattern is required")
	}

	out := &invalidateCacheOutput{}
	if owner != "" {
		out.Body.Invalidated = s.services.cache.InvalidateByOwner(owner)
		s.logger.Info("cache invalidated by owner", "owner", owner, "entries", out.Body.Invalidated)
		return out, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid pattern: " + err.Error())
	}
	out.Body.Invalidated = s.services.cache.InvalidateByPattern(re)
	s.logger.Info("cache invalidated by pattern", "pattern", pattern, "entries", out.Body.Invalidated)
	return out, nil
}

func (s *Server) memoryService() (MemoryService, error) {
	if s.services.memories == nil {
		return nil, huma.Error503ServiceUnavailable("memory tools are not available")
	}
	return s.services.memories, nil
}

func (s *Server) handleSaveMemory(ctx context.Context, input *saveMemoryInput) (*memoryOutput, error) {
	mem, err := s.memoryService()
	if err != nil {
		return nil, err
	}
	m, err := mem.Save(ctx, memory.SaveRequest{
		ID:      input.Body.ID,
		Title:   input.Body.Title,
		Content: input.Body.Content,
		Pinned:  input.Body.Pinned,
	})
	if err != nil {
		return nil, s.apiError("save memory", err)
	}
	return &memoryOutput{Body: m}, nil
}

func (s *Server) handleListMemories(ctx context.Context, input *listMemoriesInput) (*memoriesOutput, error) {
	mem, err := s.memoryService()
	if err != nil {
		return nil, err
	}
	list, err := mem.List(ctx, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, s.apiError("list memories", err)
	}
	out := &memoriesOutput{}
	out.Body.Memories = nonNil(list)
	return out, nil
}

func (s *Server) handleSearchMemories(ctx context.Context, input *searchMemoriesInput) (*searchMemoriesOutput, error) {
	mem, err := s.memoryService()
	if err != nil {
		return nil, err
	}
	hits, err := mem.Search(ctx, input.Query, input.K)
	if err != nil {
		return nil, s.apiError("search memories", err)
	}
	out := &searchMemoriesOutput{}
	out.Body.Hits = hits
	if out.Body.Hits == nil {
		out.Body.Hits = []memory.Hit{}
	}
	return out, nil
}

func (s *Server) handleMatchTriggers(ctx context.Context, input *matchTriggersInput) (*memoriesOutput, error) {
	mem, err := s.memoryService()
	if err != nil {
		return nil, err
	}
	matched, err := mem.MatchTriggers(ctx, input.Text)
	if err != nil {
		return nil, s.apiError("match triggers", err)
	}
	out := &memoriesOutput{}
	out.Body.Memories = nonNil(matched)
	return out, nil
}

func (s *Server) handlePinnedMemories(ctx context.Context, _ *struct{}) (*memoriesOutput, error) {
	mem, err := s.memoryService()
	if err != nil {
		return nil, err
	}
	pinned, err := mem.Pinned(ctx)
	if err != nil {
		return nil, s.apiError("pinned memories", err)
	}
	out := &memoriesOutput{}
	out.Body.Memories = nonNil(pinned)
	return out, nil
}

func (s *Server) handleGetMemory(ctx context.Context, input *memoryIDInput) (*memoryOutput, error) {
	mem, err := s.memoryService()
	if err != nil {
		return nil, err
	}
	m, err := mem.Get(ctx, input.ID)
	if err != nil {
		return nil, s.apiError("get memory", err)
	}
	return &memoryOutput{Body: m}, nil
}

func (s *Server) handleDeleteMemory(ctx context.Context, input *memoryIDInput) (*struct{}, error) {
	mem, err := s.memoryService()
	if err != nil {
		return nil, err
	}
	if err := mem.Delete(ctx, input.ID); err != nil {
		return nil, s.apiError("delete memory", err)
	}
	return &struct{}{}, nil
}

func (s *Server) handleScan(ctx context.Context, _ *struct{}) (*scanOutput, error) {
	mem, err := s.memoryService()
	if err != nil {
		return nil, err
	}
	n, err := mem.Reindex(ctx)
	if err != nil {
		return nil, s.apiError("scan memories", err)
	}
	out := &scanOutput{}
	out.Body.Reindexed = n
	return out, nil
}

// apiError maps a domain error to an HTTP error. Internal failures are
// logged and reported without detail.
func (s *Server) apiError(op string, err error) error {
	status := recallerr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "op", op, "error", err)
		return huma.Error500InternalServerError(op + " failed")
	}

	herr := huma.NewError(status, err.Error())
	if status == http.StatusTooManyRequests {
		if secs, ok := recallerr.FieldsOf(err)["retry_after_seconds"].(int64); ok {
			return huma.ErrorWithHeaders(herr, http.Header{"Retry-After": []string{strconv.FormatInt(secs, 10)}})
		}
	}
	return herr
}

func nonNil(list []*store.Memory) []*store.Memory {
	if list == nil {
		return []*store.Memory{}
	}
	return list
}
