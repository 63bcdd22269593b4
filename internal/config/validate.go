// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"net"
	"slices"
	"sort"
	"strconv"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

var (
	validBackends     = []string{"sqlite"}
	validProviders    = []string{"auto", "openai", "google", "ollama", "local"}
	validLogLevels    = []string{"debug", "info", "warn", "error"}
	validLogFormats   = []string{"text", "json"}
	configurableNames = []string{"openai", "google", "ollama", "local"}
)

// Validate checks the configuration for logical errors. All problems are
// collected rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateCoordinator()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateEmbeddings()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

func invalid(format string, args ...any) error {
	return recallerr.Errorf(recallerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateStorage() []error {
	var errs []error
	if !slices.Contains(validBackends, c.Storage.Backend) {
		errs = append(errs, invalid("storage.backend must be one of %v, got %q", validBackends, c.Storage.Backend))
	}
	if c.Storage.Path == "" {
		errs = append(errs, invalid("storage.path must not be empty"))
	}
	return errs
}

func (c *Config) validateCoordinator() []error {
	var errs []error
	if c.Coordinator.PollInterval < 0 {
		errs = append(errs, invalid("coordinator.poll_interval must not be negative, got %s", c.Coordinator.PollInterval))
	}
	if c.Coordinator.ScanCooldown <= 0 {
		errs = append(errs, invalid("coordinator.scan_cooldown must be greater than 0, got %s", c.Coordinator.ScanCooldown))
	}
	if c.Coordinator.ReadyPollInterval <= 0 {
		errs = append(errs, invalid("coordinator.ready_poll_interval must be greater than 0, got %s", c.Coordinator.ReadyPollInterval))
	}
	return errs
}

func (c *Config) validateCache() []error {
	var errs []error
	if c.Cache.TTL <= 0 {
		errs = append(errs, invalid("cache.ttl must be greater than 0, got %s", c.Cache.TTL))
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, invalid("cache.max_entries must be greater than 0, got %d", c.Cache.MaxEntries))
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, invalid("cache.sweep_interval must be greater than 0, got %s", c.Cache.SweepInterval))
	}
	return errs
}

func (c *Config) validateEmbeddings() []error {
	var errs []error
	if !slices.Contains(validProviders, c.Embeddings.Provider) {
		errs = append(errs, invalid("embeddings.provider must be one of %v, got %q", validProviders, c.Embeddings.Provider))
	}
	if c.Embeddings.WarmupTimeout <= 0 {
		errs = append(errs, invalid("embeddings.warmup_timeout must be greater than 0, got %s", c.Embeddings.WarmupTimeout))
	}
	if c.Embeddings.HealthCooldown <= 0 {
		errs = append(errs, invalid("embeddings.health_cooldown must be greater than 0, got %s", c.Embeddings.HealthCooldown))
	}

	names := make([]string, 0, len(c.Embeddings.Providers))
	for name := range c.Embeddings.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := c.Embeddings.Providers[name]
		if !slices.Contains(configurableNames, name) {
			errs = append(errs, invalid("embeddings.providers.%s is not a known provider", name))
			continue
		}
		if pc.Model == "" {
			errs = append(errs, invalid("embeddings.providers.%s.model must not be empty", name))
		}
		if pc.Dimensions <= 0 {
			errs = append(errs, invalid("embeddings.providers.%s.dimensions must be greater than 0, got %d", name, pc.Dimensions))
		}
	}
	return errs
}

func (c *Config) validateServer() []error {
	if c.Server.Listen == "" {
		return []error{invalid("server.listen must not be empty")}
	}
	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return []error{invalid("server.listen must be a host:port address, got %q", c.Server.Listen)}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return []error{invalid("server.listen port must be between 1 and 65535, got %q", portStr)}
	}
	return nil
}

func (c *Config) validateLogging() []error {
	var errs []error
	if !slices.Contains(validLogLevels, c.Logging.Level) {
		errs = append(errs, invalid("logging.level must be one of %v, got %q", validLogLevels, c.Logging.Level))
	}
	if !slices.Contains(validLogFormats, c.Logging.Format) {
		errs = append(errs, invalid("logging.format must be one of %v, got %q", validLogFormats, c.Logging.Format))
	}
	return errs
}
