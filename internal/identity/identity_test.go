// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package identity

import (
	"context"
	"testing"

	"github.com/punchd-io/punchd/internal/models"
)

func testEmployees() []*models.Employee {
	return []*models.Employee{
		{ID: "emp-1", DisplayName: "Ada", RemoteOwnerID: "owner-1", FaceEncoding: []float64{1, 0, 0}},
		{ID: "emp-2", DisplayName: "Grace", RemoteOwnerID: "owner-2", FaceEncoding: []float64{0, 1, 0}},
		// No encoding: addressable by ID only, never by sample.
		{ID: "emp-3", DisplayName: "Edsger", RemoteOwnerID: "owner-3"},
	}
}

func TestBuildSnapshotSkipsUnencoded(t *testing.T) {
	snap := BuildSnapshot(testEmployees())
	if snap.Len() != 2 {
		t.Errorf("Len = %d, want 2", snap.Len())
	}
}

func TestIdentifyNearestNeighbor(t *testing.T) {
	table := NewTable(0.6)
	table.Swap(BuildSnapshot(testEmployees()))

	id, ok := table.Identify(context.Background(), []float64{0.9, 0.1, 0})
	if !ok {
		t.Fatal("expected a match")
	}
	if id.EmployeeID != "emp-1" || id.RemoteOwnerID != "owner-1" {
		t.Errorf("matched %+v, want emp-1", id)
	}

	id, ok = table.Identify(context.Background(), []float64{0.1, 0.95, 0})
	if !ok || id.EmployeeID != "emp-2" {
		t.Errorf("matched %+v (%v), want emp-2", id, ok)
	}
}

func TestIdentifyThreshold(t *testing.T) {
	table := NewTable(0.6)
	table.Swap(BuildSnapshot(testEmployees()))

	// Nearest neighbor exists but sits outside the threshold.
	if id, ok := table.Identify(context.Background(), []float64{5, 5, 5}); ok {
		t.Errorf("matched %+v, want unknown", id)
	}
}

func TestIdentifyDimensionMismatch(t *testing.T) {
	table := NewTable(0.6)
	table.Swap(BuildSnapshot(testEmployees()))

	if _, ok := table.Identify(context.Background(), []float64{1, 0}); ok {
		t.Error("mismatched vector length must resolve to unknown")
	}
	if _, ok := table.Identify(context.Background(), nil); ok {
		t.Error("empty sample must resolve to unknown")
	}
}

func TestEmptyTableResolvesUnknown(t *testing.T) {
	table := NewTable(0.6)
	if _, ok := table.Identify(context.Background(), []float64{1, 0, 0}); ok {
		t.Error("empty table must resolve to unknown")
	}
}

func TestSwapReplacesSnapshot(t *testing.T) {
	table := NewTable(0.6)
	table.Swap(BuildSnapshot(testEmployees()))

	if _, ok := table.Identify(context.Background(), []float64{1, 0, 0}); !ok {
		t.Fatal("expected match before swap")
	}

	// Deregistration rebuilds the snapshot without emp-1.
	table.Swap(BuildSnapshot(testEmployees()[1:]))
	if id, ok := table.Identify(context.Background(), []float64{1, 0, 0}); ok {
		t.Errorf("matched %+v after removal, want unknown", id)
	}
}

func TestEuclidean(t *testing.T) {
	d, ok := euclidean([]float64{0, 0}, []float64{3, 4})
	if !ok || d != 5 {
		t.Errorf("euclidean = (%v, %v), want (5, true)", d, ok)
	}
	if _, ok := euclidean([]float64{1}, []float64{1, 2}); ok {
		t.Error("length mismatch must not compute")
	}
}
