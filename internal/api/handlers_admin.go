// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"net/http"
	"strconv"
)

// ListAudit handles GET /api/v1/audit?limit=n, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		respondError(w, http.StatusServiceUnavailable, "AUDIT_DISABLED", "audit trail is not configured", nil)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be 1..1000", nil)
			return
		}
		limit = n
	}

	events, err := h.audit.Recent(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to read audit trail", err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// ListBackups handles GET /api/v1/backups.
func (h *Handler) ListBackups(w http.ResponseWriter, _ *http.Request) {
	if h.backups == nil {
		respondError(w, http.StatusServiceUnavailable, "BACKUP_DISABLED", "backups are not configured", nil)
		return
	}

	names, err := h.backups.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "BACKUP_ERROR", "failed to list backups", err)
		return
	}
	respondJSON(w, http.StatusOK, names)
}

// TriggerBackup handles POST /api/v1/backups. The snapshot is written
// synchronously; badger backups are online and do not block writers.
func (h *Handler) TriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		respondError(w, http.StatusServiceUnavailable, "BACKUP_DISABLED", "backups are not configured", nil)
		return
	}

	path, err := h.backups.CreateBackup()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "BACKUP_ERROR", "failed to create backup", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"path": path})
}
