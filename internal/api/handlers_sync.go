// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/punchd-io/punchd/internal/audit"
	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/mirror"
)

type syncStatusResponse struct {
	SchedulerRunning bool   `json:"scheduler_running"`
	PendingRecords   int    `json:"pending_records"`
	MirrorOnline     bool   `json:"mirror_online"`
	MirrorReason     string `json:"mirror_reason,omitempty"`
}

// SyncStatus handles GET /api/v1/sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.PendingRecords()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to scan pending records", err)
		return
	}

	reach := mirror.Probe(r.Context(), h.mirror)

	respondJSON(w, http.StatusOK, syncStatusResponse{
		SchedulerRunning: h.sched.Running(),
		PendingRecords:   len(pending),
		MirrorOnline:     reach.Online,
		MirrorReason:     reach.Reason,
	})
}

// TriggerSync handles POST /api/v1/sync/trigger. The sweep runs in the
// background; overlap with the periodic sweep is serialized by the
// scheduler itself.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		h.sched.RunSweep(ctx)
	}()

	logging.Info().Msg("Manual sync sweep triggered")
	h.recordAudit(r, audit.TypeSyncTriggered, "", nil)
	respondJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
}
