// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	recallerr "github.com/sigil-dev/recall/pkg/errors"
)

// keyLength is the number of hex characters kept from the digest.
const keyLength = 32

// Key derives a fixed-length cache key from an owner tag and call
// arguments. Arguments are normalized through JSON, nil-valued object
// fields are dropped and object keys are sorted, so two argument sets that
// differ only in field order produce the same key.
func Key(owner string, args any) (string, error) {
	canonical, err := canonicalize(args)
	if err != nil {
		return "", recallerr.Wrap(err, recallerr.CodeCacheKeyInvalid, "canonicalizing cache arguments",
			recallerr.FieldOwner(owner),
		)
	}

	sum := sha256.Sum256([]byte(owner + ":" + string(canonical)))
	return hex.EncodeToString(sum[:])[:keyLength], nil
}

func canonicalize(args any) ([]byte, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	// encoding/json writes map keys in sorted order.
	return json.Marshal(stripNil(generic))
}

// stripNil removes nil-valued object fields recursively. Array elements are
// kept in place so positions stay meaningful.
func stripNil(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = stripNil(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripNil(val)
		}
		return out
	default:
		return v
	}
}
