// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache

import (
	"context"
	"time"
)

// CallOption customizes a single WithCache call.
type CallOption func(*callOptions)

type callOptions struct {
	bypass bool
	ttl    time.Duration
}

// Bypass skips the cache entirely for this call: compute always runs and
// its result is not stored.
func Bypass(skip bool) CallOption {
	return func(o *callOptions) { o.bypass = skip }
}

// TTL overrides the entry lifetime for this call's result.
func TTL(ttl time.Duration) CallOption {
	return func(o *callOptions) { o.ttl = ttl }
}

// WithCache returns the cached result for (owner, args) or runs compute and
// stores what it returns. Errors from compute are returned unchanged and
// nothing is cached for them. compute runs without any cache lock held, so
// two concurrent misses for the same key may both compute; the later Set
// wins.
func WithCache[T any](
	ctx context.Context,
	c *Cache,
	owner string,
	args any,
	compute func(context.Context) (T, error),
	opts ...CallOption,
) (T, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !c.Enabled() || o.bypass {
		return compute(ctx)
	}

	key, err := Key(owner, args)
	if err != nil {
		c.logger.Debug("cache: uncacheable arguments", "owner", owner, "error", err)
		return compute(ctx)
	}

	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
		// A different type under the same key is treated as a miss.
		c.logger.Debug("cache: type mismatch on hit", "owner", owner, "key", key)
	}

	result, err := compute(ctx)
	if err != nil {
		return result, err
	}

	c.Set(key, result, WithOwner(owner), WithTTL(o.ttl))
	return result, nil
}
