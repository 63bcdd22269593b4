// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embedding

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sigil-dev/recall/internal/embedding/google"
	"github.com/sigil-dev/recall/internal/embedding/local"
	"github.com/sigil-dev/recall/internal/embedding/ollama"
	"github.com/sigil-dev/recall/internal/embedding/openai"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
	"github.com/sigil-dev/recall/pkg/health"
)

// DefaultWarmupTimeout bounds the warmup round trip.
const DefaultWarmupTimeout = 15 * time.Second

// autoOrder is the preference order for automatic selection. Only cloud
// providers that need a credential take part; ollama is explicit only.
var autoOrder = []string{ProviderOpenAI, ProviderGoogle}

var requiresCredential = map[string]bool{
	ProviderOpenAI: true,
	ProviderGoogle: true,
}

// ProviderConfig is the per-provider configuration block.
type ProviderConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	BaseURL    string
}

// DefaultProviderConfigs returns the stock model and dimension per provider.
func DefaultProviderConfigs() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		ProviderOpenAI: {Model: openai.DefaultModel, Dimensions: openai.DefaultDimensions},
		ProviderGoogle: {Model: google.DefaultModel, Dimensions: google.DefaultDimensions},
		ProviderOllama: {Model: ollama.DefaultModel, Dimensions: ollama.DefaultDimensions, BaseURL: ollama.DefaultBaseURL},
		ProviderLocal:  {Model: LegacyModel, Dimensions: LegacyDimensions},
	}
}

// Config selects and configures the embedding provider.
type Config struct {
	// Provider is a provider name, or "auto"/"" for automatic selection.
	Provider       string
	WarmupTimeout  time.Duration
	HealthCooldown time.Duration
	Providers      map[string]ProviderConfig
}

// Constructor builds a provider from its configuration block.
type Constructor func(cfg ProviderConfig) (Provider, error)

// Selection is the outcome of Resolve.
type Selection struct {
	Provider string `json:"provider"`
	// Forced is true when the operator named the provider explicitly.
	Forced bool   `json:"forced"`
	Reason string `json:"reason"`
}

// Result is a warmed-up provider together with the profile its vectors
// belong to.
type Result struct {
	Provider  Provider
	Profile   Profile
	Selection Selection
	// FellBack is true when the selected provider failed warmup and the
	// local provider was substituted.
	FellBack       bool
	FallbackReason string
}

// Factory resolves and constructs embedding providers.
type Factory struct {
	cfg          Config
	logger       *slog.Logger
	constructors map[string]Constructor

	mu       sync.Mutex
	trackers map[string]*HealthTracker
	active   *Result
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

func WithLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithConstructor replaces (or adds) the constructor for a provider name.
func WithConstructor(name string, c Constructor) FactoryOption {
	return func(f *Factory) { f.constructors[name] = c }
}

// NewFactory returns a factory for cfg. Missing provider blocks and zero
// fields take the stock defaults.
func NewFactory(cfg Config, opts ...FactoryOption) (*Factory, error) {
	if cfg.WarmupTimeout < 0 || cfg.HealthCooldown < 0 {
		return nil, recallerr.New(recallerr.CodeConfigValidateInvalidValue,
			"embedding timeouts must not be negative")
	}
	if cfg.WarmupTimeout == 0 {
		cfg.WarmupTimeout = DefaultWarmupTimeout
	}
	if cfg.HealthCooldown == 0 {
		cfg.HealthCooldown = DefaultHealthCooldown
	}

	merged := DefaultProviderConfigs()
	for name, pc := range cfg.Providers {
		base := merged[name]
		if pc.Model == "" {
			pc.Model = base.Model
		}
		if pc.Dimensions == 0 {
			pc.Dimensions = base.Dimensions
		}
		if pc.BaseURL == "" {
			pc.BaseURL = base.BaseURL
		}
		merged[name] = pc
	}
	cfg.Providers = merged
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	f := &Factory{
		cfg:    cfg,
		logger: slog.Default(),
		constructors: map[string]Constructor{
			ProviderOpenAI: newOpenAI,
			ProviderGoogle: newGoogle,
			ProviderOllama: newOllama,
			ProviderLocal:  newLocal,
		},
		trackers: make(map[string]*HealthTracker),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Resolve picks a provider without constructing anything: an explicit
// override wins, then the first auto candidate with a credential that is
// not cooling down after a failure, then the local provider.
func (f *Factory) Resolve() Selection {
	if name := f.cfg.Provider; name != "" && name != ProviderAuto {
		return Selection{Provider: name, Forced: true, Reason: "configured explicitly"}
	}

	for _, name := range autoOrder {
		if f.cfg.Providers[name].APIKey == "" {
			continue
		}
		if !f.tracker(name).IsHealthy() {
			f.logger.Debug("skipping provider in cooldown", "provider", name)
			continue
		}
		return Selection{Provider: name, Reason: "credential present"}
	}

	return Selection{Provider: ProviderLocal, Reason: "no cloud credential available"}
}

// Create resolves, constructs and warms up a provider. A forced provider
// that lacks its credential or fails warmup is an error. An automatically
// selected provider that fails warmup is replaced by the local provider;
// the profile is derived only after warmup so no vector is ever written
// under the failed provider's namespace.
func (f *Factory) Create(ctx context.Context) (*Result, error) {
	sel := f.Resolve()
	pcfg := f.cfg.Providers[sel.Provider]

	if sel.Forced && requiresCredential[sel.Provider] && pcfg.APIKey == "" {
		return nil, recallerr.New(recallerr.CodeEmbeddingCredentialMissing,
			"embedding provider "+sel.Provider+" is configured but has no credential",
			recallerr.FieldProvider(sel.Provider),
		)
	}

	p, err := f.build(ctx, sel.Provider, pcfg)
	if err == nil {
		return f.result(p, sel, pcfg, "")
	}
	if sel.Forced || sel.Provider == ProviderLocal {
		return nil, err
	}

	f.logger.Warn("embedding provider failed warmup, falling back to local",
		"provider", sel.Provider,
		"error", err,
	)
	f.tracker(sel.Provider).RecordFailure(err)

	localCfg := f.cfg.Providers[ProviderLocal]
	fallback, ferr := f.build(ctx, ProviderLocal, localCfg)
	if ferr != nil {
		return nil, recallerr.Join(err, ferr)
	}
	return f.result(fallback, sel, localCfg, err.Error())
}

// build constructs and warms up one provider. The provider is closed when
// warmup fails.
func (f *Factory) build(ctx context.Context, name string, pcfg ProviderConfig) (Provider, error) {
	construct, ok := f.constructors[name]
	if !ok {
		return nil, recallerr.New(recallerr.CodeEmbeddingProviderUnknown,
			"unknown embedding provider: "+name,
			recallerr.FieldProvider(name),
		)
	}

	p, err := construct(pcfg)
	if err != nil {
		return nil, err
	}

	warmCtx, cancel := context.WithTimeout(ctx, f.cfg.WarmupTimeout)
	defer cancel()

	started := time.Now()
	if err := p.Warmup(warmCtx); err != nil {
		_ = p.Close()
		return nil, recallerr.Wrap(err, recallerr.CodeEmbeddingWarmupFailure, "warming up "+name,
			recallerr.FieldProvider(name),
			recallerr.FieldModel(pcfg.Model),
		)
	}

	f.tracker(name).RecordSuccess()
	f.logger.Info("embedding provider ready",
		"provider", name,
		"model", p.Model(),
		"dimensions", p.Dimensions(),
		"warmup", time.Since(started),
	)
	return p, nil
}

func (f *Factory) result(p Provider, sel Selection, pcfg ProviderConfig, fallbackReason string) (*Result, error) {
	profile, err := NewProfile(p.Name(), p.Model(), p.Dimensions(), pcfg.BaseURL)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	res := &Result{
		Provider:       p,
		Profile:        profile,
		Selection:      sel,
		FellBack:       fallbackReason != "",
		FallbackReason: fallbackReason,
	}

	f.mu.Lock()
	f.active = res
	f.mu.Unlock()
	return res, nil
}

// Active returns the result of the last successful Create, or nil.
func (f *Factory) Active() *Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Factory) tracker(name string) *HealthTracker {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.trackers[name]
	if !ok {
		// Cooldown was validated positive in NewFactory.
		t, _ = NewHealthTracker(name, f.cfg.HealthCooldown)
		f.trackers[name] = t
	}
	return t
}

// Tracker returns the health tracker for a provider.
func (f *Factory) Tracker(name string) *HealthTracker { return f.tracker(name) }

// Health returns a snapshot of every provider that has been tried, sorted
// by name.
func (f *Factory) Health() []health.Metrics {
	f.mu.Lock()
	trackers := make([]*HealthTracker, 0, len(f.trackers))
	for _, t := range f.trackers {
		trackers = append(trackers, t)
	}
	f.mu.Unlock()

	out := make([]health.Metrics, 0, len(trackers))
	for _, t := range trackers {
		out = append(out, t.Metrics())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func newOpenAI(cfg ProviderConfig) (Provider, error) {
	return openai.New(openai.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
	})
}

func newGoogle(cfg ProviderConfig) (Provider, error) {
	return google.New(google.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
	})
}

func newOllama(cfg ProviderConfig) (Provider, error) {
	return ollama.New(ollama.Config{
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
	})
}

func newLocal(cfg ProviderConfig) (Provider, error) {
	return local.New(local.Config{
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
	})
}
