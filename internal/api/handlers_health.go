// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"net/http"
	"time"

	"github.com/punchd-io/punchd/internal/mirror"
)

type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version,omitempty"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	PendingRecords int    `json:"pending_records"`
	MirrorOnline   bool   `json:"mirror_online"`
	MirrorReason   string `json:"mirror_reason,omitempty"`
}

// Health handles GET /api/v1/health. Degraded connectivity to the mirror
// does not make the service unhealthy; local capture keeps working.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.PendingRecords()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_ERROR", "local store unavailable", err)
		return
	}

	reach := mirror.Probe(r.Context(), h.mirror)

	respondJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.startedAt).Seconds()),
		PendingRecords: len(pending),
		MirrorOnline:   reach.Online,
		MirrorReason:   reach.Reason,
	})
}

// HealthLive handles GET /api/v1/health/live (process liveness).
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready (store readiness).
func (h *Handler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	if _, err := h.store.ListEmployees(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_ERROR", "local store unavailable", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
