// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package cache

import (
	"regexp"
)

// Owner tags of the cached read tools.
const (
	OwnerMemorySearch        = "memory_search"
	OwnerMemoryMatchTriggers = "memory_match_triggers"
	OwnerMemoryList          = "memory_list"
	OwnerMemoryStats         = "memory_stats"
	OwnerMemoryRead          = "memory_read"
)

// WriteOp names a store mutation that can make cached results stale.
type WriteOp string

const (
	OpSave              WriteOp = "save"
	OpUpdate            WriteOp = "update"
	OpDelete            WriteOp = "delete"
	OpBulkDelete        WriteOp = "bulk_delete"
	OpIndexScan         WriteOp = "index_scan"
	OpCheckpointRestore WriteOp = "checkpoint_restore"
	OpReinitialize      WriteOp = "reinitialize"
)

// WriteEvent describes the write that happened. It is informational and
// only shows up in logs.
type WriteEvent struct {
	IDs    []string
	Source string
}

var memoryReaders = []string{
	OwnerMemorySearch,
	OwnerMemoryMatchTriggers,
	OwnerMemoryList,
	OwnerMemoryStats,
	OwnerMemoryRead,
}

// invalidationTable maps each write to the owners it invalidates. A nil
// slice means the whole cache.
var invalidationTable = map[WriteOp][]string{
	OpSave:              memoryReaders,
	OpUpdate:            memoryReaders,
	OpDelete:            memoryReaders,
	OpBulkDelete:        memoryReaders,
	OpIndexScan:         memoryReaders,
	OpCheckpointRestore: nil,
	OpReinitialize:      nil,
}

// InvalidateByOwner drops every entry tagged with owner.
func (c *Cache) InvalidateByOwner(owner string) int {
	if !c.Enabled() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeWhereLocked(func(_ string, e *entry) bool { return e.owner == owner })
}

// InvalidateByPattern drops every entry whose owner tag or key matches re.
func (c *Cache) InvalidateByPattern(re *regexp.Regexp) int {
	if !c.Enabled() || re == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeWhereLocked(func(key string, e *entry) bool {
		return re.MatchString(e.owner) || re.MatchString(key)
	})
}

// InvalidateOnWrite drops the entries the given write makes stale and
// returns how many were removed. Unknown operations invalidate nothing.
func (c *Cache) InvalidateOnWrite(op WriteOp, ev WriteEvent) int {
	if !c.Enabled() {
		return 0
	}

	owners, known := invalidationTable[op]
	if !known {
		c.logger.Debug("cache: no invalidation rule for write", "op", op, "source", ev.Source)
		return 0
	}

	var n int
	if owners == nil {
		n = c.Clear()
	} else {
		set := make(map[string]struct{}, len(owners))
		for _, o := range owners {
			set[o] = struct{}{}
		}

		c.mu.Lock()
		n = c.removeWhereLocked(func(_ string, e *entry) bool {
			_, hit := set[e.owner]
			return hit
		})
		c.mu.Unlock()
	}

	c.logger.Debug("cache invalidated on write",
		"op", op,
		"ids", len(ev.IDs),
		"source", ev.Source,
		"removed", n,
	)
	return n
}

func (c *Cache) removeWhereLocked(match func(key string, e *entry) bool) int {
	var n int
	for k, e := range c.entries {
		if match(k, e) {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.stats.invalidations += int64(n)
		c.metrics.invalidated(n)
		c.metrics.setSize(len(c.entries))
	}
	return n
}
