// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package audit records administrative mutations in the local store.
// Automated attendance transitions are not audited; the daily record
// itself is their trail. Audit answers "who changed the data by hand".
package audit

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/store"
)

// Event types recorded by the API layer.
const (
	TypeEmployeeRegistered = "employee_registered"
	TypeEmployeeUpdated    = "employee_updated"
	TypeEmployeeDeleted    = "employee_deleted"
	TypeRecordOverridden   = "record_overridden"
	TypeRecordDeleted      = "record_deleted"
	TypeSyncTriggered      = "sync_triggered"
)

// Event is one audited administrative action.
type Event struct {
	ID       string         `json:"id"`
	Time     time.Time      `json:"time"`
	Type     string         `json:"type"`
	Actor    string         `json:"actor"`
	TargetID string         `json:"target_id,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Recorder writes audit events through the local store.
type Recorder struct {
	store     *store.Store
	retention time.Duration
}

// NewRecorder builds a recorder. retention <= 0 keeps events forever.
func NewRecorder(st *store.Store, retention time.Duration) *Recorder {
	return &Recorder{store: st, retention: retention}
}

// Record persists one event. Audit failures are logged, never fatal: an
// unavailable audit trail must not block the administrative action.
func (r *Recorder) Record(eventType, actor, targetID string, details map[string]any) {
	event := Event{
		ID:       uuid.NewString(),
		Time:     time.Now().UTC(),
		Type:     eventType,
		Actor:    actor,
		TargetID: targetID,
		Details:  details,
	}

	sortKey := event.Time.Format(time.RFC3339Nano) + ":" + event.ID
	if err := r.store.AppendAudit(sortKey, &event); err != nil {
		logging.Error().Err(err).Str("type", eventType).Msg("Failed to persist audit event")
		return
	}
	logging.Info().
		Str("type", eventType).
		Str("actor", actor).
		Str("target", targetID).
		Msg("Audit event recorded")
}

// Recent returns up to limit events, newest first.
func (r *Recorder) Recent(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := r.store.RecentAudit(limit)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, data := range raw {
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			logging.Warn().Err(err).Msg("Skipping undecodable audit entry")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Prune removes events older than the retention window.
func (r *Recorder) Prune() (int, error) {
	if r.retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-r.retention).Format(time.RFC3339Nano)
	return r.store.PruneAudit(cutoff)
}
