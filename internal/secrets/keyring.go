// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"

	"github.com/zalando/go-keyring"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// indexKey names the entry holding a service's JSON list of keys.
// go-keyring cannot enumerate, so Keys reads this list instead.
const indexKey = "::index"

// KeyringStore implements Store on the OS keyring (Keychain, Secret
// Service or Credential Manager).
type KeyringStore struct{}

func NewKeyringStore() *KeyringStore { return &KeyringStore{} }

func checkAddress(op, service, key string) error {
	if service == "" || key == "" {
		return recallerr.New(recallerr.CodeSecretInvalidInput, "secret "+op+": service and key are required",
			recallerr.Field("service", service),
			recallerr.Field("key", key),
		)
	}
	if key == indexKey {
		return recallerr.New(recallerr.CodeSecretInvalidInput, "secret "+op+": key name is reserved")
	}
	return nil
}

func (s *KeyringStore) Set(service, key, value string) error {
	if err := checkAddress("set", service, key); err != nil {
		return err
	}
	if err := keyring.Set(service, key, value); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	keys, err := s.Keys(service)
	if err != nil {
		return err
	}
	if slices.Contains(keys, key) {
		return nil
	}
	return s.writeIndex(service, append(keys, key))
}

func (s *KeyringStore) Get(service, key string) (string, error) {
	if err := checkAddress("get", service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", recallerr.Errorf(recallerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", recallerr.Wrapf(err, recallerr.CodeSecretStoreFailure, "reading secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkAddress("delete", service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return recallerr.Errorf(recallerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return recallerr.Wrapf(err, recallerr.CodeSecretStoreFailure, "deleting secret %s/%s", service, key)
	}

	keys, err := s.Keys(service)
	if err != nil {
		return err
	}
	return s.writeIndex(service, slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}

func (s *KeyringStore) Keys(service string) ([]string, error) {
	raw, err := keyring.Get(service, indexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeSecretStoreFailure, "reading key index for %s", service)
	}

	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, recallerr.Wrapf(err, recallerr.CodeSecretStoreFailure, "decoding key index for %s", service)
	}
	return keys, nil
}

func (s *KeyringStore) writeIndex(service string, keys []string) error {
	if len(keys) == 0 {
		if err := keyring.Delete(service, indexKey); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			slog.Debug("removing empty key index", "service", service, "error", err)
		}
		return nil
	}

	data, err := json.Marshal(keys)
	if err != nil {
		return recallerr.Wrapf(err, recallerr.CodeSecretStoreFailure, "encoding key index for %s", service)
	}
	if err := keyring.Set(service, indexKey, string(data)); err != nil {
		return recallerr.Wrapf(err, recallerr.CodeSecretStoreFailure, "writing key index for %s", service)
	}
	return nil
}
