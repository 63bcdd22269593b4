// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package config loads recall configuration from defaults, an optional YAML
// file and RECALL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/recall/internal/secrets"
	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// Config is the top-level recall configuration.
type Config struct {
	DataDir     string            `mapstructure:"data_dir"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Embeddings  EmbeddingsConfig  `mapstructure:"embeddings"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// StorageConfig selects the store backend and file. An empty Path means
// <data_dir>/recall.db.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// CoordinatorConfig controls external-change detection. An empty
// MarkerPath means <data_dir>/.db-updated.
type CoordinatorConfig struct {
	MarkerPath        string        `mapstructure:"marker_path"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	ScanCooldown      time.Duration `mapstructure:"scan_cooldown"`
	ReadyPollInterval time.Duration `mapstructure:"ready_poll_interval"`
}

// CacheConfig controls the tool output cache.
type CacheConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	TTL           time.Duration `mapstructure:"ttl"`
	MaxEntries    int           `mapstructure:"max_entries"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider       string                    `mapstructure:"provider"`
	WarmupTimeout  time.Duration             `mapstructure:"warmup_timeout"`
	HealthCooldown time.Duration             `mapstructure:"health_cooldown"`
	Providers      map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig holds one embedding provider's credential and model.
// APIKey may be a keyring:// reference.
type ProviderConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BaseURL    string `mapstructure:"base_url"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// credentialEnv lists the conventional variables each provider's key is
// also read from, after the RECALL_* form.
var credentialEnv = map[string][]string{
	"openai": {"OPENAI_API_KEY"},
	"google": {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	for _, d := range defaults {
		v.SetDefault(d.key, d.value)
	}
}

// SetupEnv enables RECALL_* overrides (dots become underscores) and binds
// the provider credential variables.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for provider, names := range credentialEnv {
		key := "embeddings.providers." + provider + ".api_key"
		envs := append([]string{"RECALL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		// BindEnv only errors when called without a key.
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	secrets secrets.Store
	logger  *slog.Logger
}

// WithSecrets resolves keyring:// values through s after loading.
func WithSecrets(s secrets.Store) LoadOption {
	return func(o *loadOptions) { o.secrets = s }
}

func WithLogger(l *slog.Logger) LoadOption {
	return func(o *loadOptions) { o.logger = l }
}

// Load reads configuration from path (optional) with defaults and
// environment overrides applied, then validates it.
func Load(path string, opts ...LoadOption) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, recallerr.Wrapf(err, recallerr.CodeConfigParseInvalidFormat, "parsing config %s", path)
			}
			return nil, recallerr.Wrapf(err, recallerr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
	}

	return FromViper(v, opts...)
}

// FromViper decodes an already populated viper instance. Derived paths are
// filled in and the result is validated.
func FromViper(v *viper.Viper, opts ...LoadOption) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.secrets != nil {
		secrets.ResolveViper(v, o.secrets, o.logger)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeConfigParseInvalidFormat, "decoding config")
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, recallerr.New(recallerr.CodeConfigValidateInvalidValue,
			"validating config: "+errors.Join(errs...).Error())
	}
	return &cfg, nil
}

// resolvePaths expands ~ in data_dir and derives the store and marker
// paths from it when they are unset.
func (c *Config) resolvePaths() error {
	dir, err := expandHome(c.DataDir)
	if err != nil {
		return err
	}
	c.DataDir = dir

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "recall.db")
	} else if c.Storage.Path, err = expandHome(c.Storage.Path); err != nil {
		return err
	}
	if c.Coordinator.MarkerPath == "" {
		c.Coordinator.MarkerPath = filepath.Join(c.DataDir, ".db-updated")
	} else if c.Coordinator.MarkerPath, err = expandHome(c.Coordinator.MarkerPath); err != nil {
		return err
	}
	return nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", recallerr.Wrapf(err, recallerr.CodeConfigLoadReadFailure, "resolving home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// DefaultPath returns ~/.recall/recall.yaml.
func DefaultPath() (string, error) {
	dir, err := expandHome(defaultDataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "recall.yaml"), nil
}
