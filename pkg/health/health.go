// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package health holds serializable health snapshots shared between the
// embedding providers and the status server.
package health

import "time"

// Metrics exposes the current health state of an embedding provider for
// status reporting. All fields are point-in-time snapshots safe to
// serialize to JSON.
type Metrics struct {
	Provider      string     `json:"provider"`
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}
