// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

const uriScheme = "keyring://"

// IsURI reports whether value is a keyring:// reference.
func IsURI(value string) bool {
	return strings.HasPrefix(value, uriScheme)
}

// URI builds the keyring:// reference for (service, key).
func URI(service, key string) string {
	return uriScheme + service + "/" + key
}

// ParseURI splits keyring://service/key. The key may itself contain
// slashes.
func ParseURI(uri string) (service, key string, err error) {
	rest, ok := strings.CutPrefix(uri, uriScheme)
	if !ok {
		return "", "", recallerr.Errorf(recallerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}
	service, key, found := strings.Cut(rest, "/")
	if !found || service == "" || key == "" {
		return "", "", recallerr.Errorf(recallerr.CodeSecretInvalidInput,
			"malformed keyring URI %q, want keyring://service/key", uri)
	}
	return service, key, nil
}

// Resolve returns the secret a keyring:// value points at. Any other value
// is returned as is.
func Resolve(s Store, value string) (string, error) {
	if !IsURI(value) {
		return value, nil
	}
	service, key, err := ParseURI(value)
	if err != nil {
		return "", err
	}
	secret, err := s.Get(service, key)
	if err != nil {
		return "", recallerr.Wrapf(err, recallerr.CodeSecretResolveFailure, "resolving %s", value)
	}
	return secret, nil
}

// ResolveViper replaces every keyring:// string in v with its secret. A
// reference that cannot be resolved is left in place and logged; the
// provider that uses it reports the failure when it is built. Returns the
// number of values resolved.
func ResolveViper(v *viper.Viper, s Store, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	var n int
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if !ok || !IsURI(val) {
			continue
		}
		secret, err := Resolve(s, val)
		if err != nil {
			logger.Warn("unresolved keyring reference", "config_key", key, "error", err)
			continue
		}
		v.Set(key, secret)
		n++
	}
	return n
}
