// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

const defaultDataDir = "~/.recall"

type setting struct {
	key   string
	value any
}

// defaults is ordered as the generated config file presents it.
var defaults = []setting{
	{"data_dir", defaultDataDir},

	{"storage.backend", "sqlite"},
	{"storage.path", ""},

	{"coordinator.marker_path", ""},
	{"coordinator.poll_interval", time.Duration(0)},
	{"coordinator.scan_cooldown", 60 * time.Second},
	{"coordinator.ready_poll_interval", 50 * time.Millisecond},

	{"cache.enabled", true},
	{"cache.ttl", 60 * time.Second},
	{"cache.max_entries", 1000},
	{"cache.sweep_interval", 30 * time.Second},

	{"embeddings.provider", "auto"},
	{"embeddings.warmup_timeout", 15 * time.Second},
	{"embeddings.health_cooldown", 5 * time.Minute},
	{"embeddings.providers.openai.api_key", ""},
	{"embeddings.providers.openai.model", "text-embedding-3-small"},
	{"embeddings.providers.openai.dimensions", 1536},
	{"embeddings.providers.openai.base_url", ""},
	{"embeddings.providers.google.api_key", ""},
	{"embeddings.providers.google.model", "text-embedding-004"},
	{"embeddings.providers.google.dimensions", 768},
	{"embeddings.providers.ollama.base_url", "http://localhost:11434/v1"},
	{"embeddings.providers.ollama.model", "nomic-embed-text"},
	{"embeddings.providers.ollama.dimensions", 768},
	{"embeddings.providers.local.model", "lexical-v1"},
	{"embeddings.providers.local.dimensions", 768},

	{"server.listen", "127.0.0.1:18790"},

	{"logging.level", "info"},
	{"logging.format", "text"},
}

// DefaultYAML renders the defaults as a YAML document. Durations are
// written in their string form so the file reads naturally.
func DefaultYAML() ([]byte, error) {
	return RenderYAML(nil)
}

// RenderYAML is DefaultYAML with some keys replaced. Every override key
// must name a known setting.
func RenderYAML(overrides map[string]any) ([]byte, error) {
	known := make(map[string]bool, len(defaults))
	for _, d := range defaults {
		known[d.key] = true
	}
	for k := range overrides {
		if !known[k] {
			return nil, recallerr.Errorf(recallerr.CodeConfigValidateInvalidValue, "unknown setting %q", k)
		}
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, d := range defaults {
		val := d.value
		if o, ok := overrides[d.key]; ok {
			val = o
		}
		if dur, ok := val.(time.Duration); ok {
			val = dur.String()
		}
		if err := setPath(root, strings.Split(d.key, "."), val); err != nil {
			return nil, err
		}
	}

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	doc.HeadComment = "recall configuration. Environment variables RECALL_<SECTION>_<KEY> override these values.\n" +
		"Credentials may be keyring:// references, see `recall secret set`."
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeConfigParseInvalidFormat, "encoding default config")
	}
	return out, nil
}

// setPath inserts value under the nested keys, keeping insertion order.
func setPath(m *yaml.Node, keys []string, value any) error {
	for i := 0; i < len(m.Content); i += 2 {
		if m.Content[i].Value != keys[0] {
			continue
		}
		if len(keys) == 1 {
			return recallerr.Errorf(recallerr.CodeConfigValidateInvalidValue, "duplicate default %q", keys[0])
		}
		return setPath(m.Content[i+1], keys[1:], value)
	}

	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: keys[0]}
	if len(keys) == 1 {
		valNode := &yaml.Node{}
		if err := valNode.Encode(value); err != nil {
			return recallerr.Wrapf(err, recallerr.CodeConfigParseInvalidFormat, "encoding default %q", keys[0])
		}
		m.Content = append(m.Content, keyNode, valNode)
		return nil
	}

	child := &yaml.Node{Kind: yaml.MappingNode}
	m.Content = append(m.Content, keyNode, child)
	return setPath(child, keys[1:], value)
}

// WriteDefault writes the default config to path. An existing file is only
// replaced when force is set.
func WriteDefault(path string, force bool) error {
	return Write(path, force, nil)
}

// Write is WriteDefault with the given settings replaced.
func Write(path string, force bool, overrides map[string]any) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return recallerr.New(recallerr.CodeCLIInputInvalid, "config file already exists: "+path,
				recallerr.FieldPath(path))
		}
	}

	data, err := RenderYAML(overrides)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeConfigLoadReadFailure, "creating config directory")
	}
	// Credentials may be pasted into this file later.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeConfigLoadReadFailure, "writing config %s", path)
	}
	return nil
}
