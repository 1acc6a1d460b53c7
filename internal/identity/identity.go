// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package identity resolves biometric samples to registered employees.
//
// The biometric front end produces embedding vectors; Punchd never runs
// face detection itself. Resolution compares a sample against a read-only
// snapshot of the registered identity table. The snapshot is rebuilt
// wholesale on registration or deletion and published atomically, so
// readers never observe a partially rebuilt table.
package identity

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/metrics"
	"github.com/punchd-io/punchd/internal/models"
)

// Identity is the result of a successful resolution.
type Identity struct {
	EmployeeID    string
	DisplayName   string
	RemoteOwnerID string
}

// Resolver maps a biometric sample to an identity or unknown. It must
// return unknown rather than fail on ambiguous input.
type Resolver interface {
	Identify(ctx context.Context, sample []float64) (Identity, bool)
}

// entry is one row of the identity table.
type entry struct {
	identity Identity
	encoding []float64
}

// Snapshot is an immutable identity table. Build a new one and publish
// it via Table.Swap; never mutate a snapshot in place.
type Snapshot struct {
	entries []entry
}

// BuildSnapshot constructs a snapshot from the employee list. Employees
// without an encoding are skipped; they can only be addressed by ID.
func BuildSnapshot(employees []*models.Employee) *Snapshot {
	snap := &Snapshot{entries: make([]entry, 0, len(employees))}
	for _, emp := range employees {
		if len(emp.FaceEncoding) == 0 {
			continue
		}
		snap.entries = append(snap.entries, entry{
			identity: Identity{
				EmployeeID:    emp.ID,
				DisplayName:   emp.DisplayName,
				RemoteOwnerID: emp.RemoteOwnerID,
			},
			encoding: emp.FaceEncoding,
		})
	}
	return snap
}

// Len returns the number of resolvable identities.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Table holds the currently published snapshot. Swap-on-build: rebuilds
// produce a fresh snapshot and publish it with a single atomic store.
type Table struct {
	current atomic.Pointer[Snapshot]
	// threshold is the maximum embedding distance accepted as a match.
	threshold float64
}

// NewTable creates a table with an empty snapshot published.
func NewTable(threshold float64) *Table {
	t := &Table{threshold: threshold}
	t.current.Store(&Snapshot{})
	return t
}

// Swap publishes a new snapshot.
func (t *Table) Swap(snap *Snapshot) {
	t.current.Store(snap)
	logging.Info().Int("identities", snap.Len()).Msg("Identity snapshot published")
}

// Identify resolves a sample against the published snapshot using
// nearest-neighbor Euclidean distance. Samples with no neighbor under
// the threshold resolve to unknown.
func (t *Table) Identify(_ context.Context, sample []float64) (Identity, bool) {
	snap := t.current.Load()

	best := math.MaxFloat64
	var bestIdentity Identity
	found := false
	for i := range snap.entries {
		d, ok := euclidean(sample, snap.entries[i].encoding)
		if !ok {
			continue
		}
		if d < best {
			best = d
			bestIdentity = snap.entries[i].identity
			found = true
		}
	}

	if !found || best > t.threshold {
		metrics.IdentityMatches.WithLabelValues("unknown").Inc()
		return Identity{}, false
	}
	metrics.IdentityMatches.WithLabelValues("matched").Inc()
	return bestIdentity, true
}

// euclidean returns the L2 distance between equal-length vectors.
func euclidean(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), true
}
