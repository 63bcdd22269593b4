// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps embedding provider credentials out of config files.
// A config value of the form keyring://service/key is replaced at load time
// with the secret stored in the OS keyring under that service and key.
package secrets

// DefaultService is the keyring service recall stores its credentials
// under.
const DefaultService = "recall"

// Store is a flat secret store addressed by (service, key).
type Store interface {
	// Set saves value, replacing any previous value.
	Set(service, key, value string) error
	// Get returns a CodeSecretNotFound error for absent keys.
	Get(service, key string) (string, error)
	// Delete returns a CodeSecretNotFound error for absent keys.
	Delete(service, key string) error
	// Keys lists the key names stored under service.
	Keys(service string) ([]string, error)
}
