// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/sigil-dev/recall/internal/cache"
	"github.com/sigil-dev/recall/internal/coordinator"
	"github.com/sigil-dev/recall/internal/embedding"
	"github.com/sigil-dev/recall/internal/memory"
	"github.com/sigil-dev/recall/internal/server"
	"github.com/sigil-dev/recall/internal/store"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
	"github.com/sigil-dev/recall/pkg/health"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, recallerr.Wrap(err, recallerr.CodeCLISetupFailure, "creating server")
	}
	defer func() { _ = srv.Close() }()

	// Handlers are never invoked during spec generation.
	svc, err := server.NewServices(stubCache{}, stubCoordinator{}, stubEmbeddings{}, stubMemories{})
	if err != nil {
		return nil, err
	}
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubCache struct{}

func (stubCache) Stats() cache.Stats                     { return cache.Stats{} }
func (stubCache) InvalidateByOwner(string) int           { return 0 }
func (stubCache) InvalidateByPattern(*regexp.Regexp) int { return 0 }

type stubCoordinator struct{}

func (stubCoordinator) State() coordinator.State              { return coordinator.StateIdle }
func (stubCoordinator) Reinitializations() int64              { return 0 }
func (stubCoordinator) LastSeenMarker() int64                 { return 0 }
func (stubCoordinator) IsEmbeddingReady() bool                { return false }
func (stubCoordinator) GetLastScanTime(context.Context) int64 { return 0 }

type stubEmbeddings struct{}

func (stubEmbeddings) Active() *embedding.Result { return nil }
func (stubEmbeddings) Health() []health.Metrics  { return nil }

type stubMemories struct{}

func (stubMemories) Save(context.Context, memory.SaveRequest) (*store.Memory, error) {
	return nil, nil
}
func (stubMemories) Get(context.Context, string) (*store.Memory, error) { return nil, nil }
func (stubMemories) Delete(context.Context, string) error               { return nil }
func (stubMemories) List(context.Context, store.ListOpts) ([]*store.Memory, error) {
	return nil, nil
}
func (stubMemories) Search(context.Context, string, int) ([]memory.Hit, error)  { return nil, nil }
func (stubMemories) MatchTriggers(context.Context, string) ([]*store.Memory, error) {
	return nil, nil
}
func (stubMemories) Pinned(context.Context) ([]*store.Memory, error)           { return nil, nil }
func (stubMemories) Stats(context.Context) (memory.Stats, error)               { return memory.Stats{}, nil }
func (stubMemories) Reindex(context.Context) (int, error)                      { return 0, nil }
