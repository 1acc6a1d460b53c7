// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/punchd-io/punchd/internal/audit"
	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/models"
	"github.com/punchd-io/punchd/internal/store"
)

// recordParams extracts and validates the {employeeID}/{date} route pair.
func recordParams(w http.ResponseWriter, r *http.Request) (employeeID, date string, ok bool) {
	employeeID = chi.URLParam(r, "employeeID")
	date = chi.URLParam(r, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_DATE", "date must be YYYY-MM-DD", nil)
		return "", "", false
	}
	return employeeID, date, true
}

// ListRecords handles GET /api/v1/records/{employeeID}, newest first.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.RecordsForEmployee(chi.URLParam(r, "employeeID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to list records", err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// GetRecord handles GET /api/v1/records/{employeeID}/{date}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	employeeID, date, ok := recordParams(w, r)
	if !ok {
		return
	}

	rec, err := h.store.GetRecord(employeeID, date)
	if errors.Is(err, store.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "record not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load record", err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// overrideRecordRequest carries an administrative correction. Timestamp
// fields accept any format the intake path accepts; absent fields are
// left untouched.
type overrideRecordRequest struct {
	CheckIn  any    `json:"check_in"`
	BreakIn  any    `json:"break_in"`
	BreakOut any    `json:"break_out"`
	CheckOut any    `json:"check_out"`
	Source   string `json:"source" validate:"omitempty,oneof=office continue_working_from_home"`
}

// OverrideRecord handles PATCH /api/v1/records/{employeeID}/{date}. Any
// override re-marks the record pending so the next reconciliation pushes
// the corrected values.
func (h *Handler) OverrideRecord(w http.ResponseWriter, r *http.Request) {
	employeeID, date, ok := recordParams(w, r)
	if !ok {
		return
	}

	var req overrideRecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Normalize outside the lock; bad input is rejected before any state
	// is touched.
	parse := func(raw any) (*time.Time, bool) {
		if raw == nil {
			return nil, true
		}
		ts, err := h.norm.Normalize(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_TIMESTAMP", "field is not a recognized timestamp", err)
			return nil, false
		}
		return &ts, true
	}
	checkIn, ok := parse(req.CheckIn)
	if !ok {
		return
	}
	breakIn, ok := parse(req.BreakIn)
	if !ok {
		return
	}
	breakOut, ok := parse(req.BreakOut)
	if !ok {
		return
	}
	checkOut, ok := parse(req.CheckOut)
	if !ok {
		return
	}

	// The merge runs under the same per-employee lock as the intake path,
	// so a transition applied between load and write cannot be lost.
	var rec *models.DailyRecord
	err := h.machine.WithLock(employeeID, func() error {
		var err error
		rec, err = h.store.GetRecord(employeeID, date)
		if err != nil {
			return err
		}
		if checkIn != nil {
			rec.CheckIn = checkIn
		}
		if breakIn != nil {
			rec.BreakIn = breakIn
		}
		if breakOut != nil {
			rec.BreakOut = breakOut
		}
		if checkOut != nil {
			rec.CheckOut = checkOut
		}
		if req.Source != "" {
			rec.Source = models.RecordSource(req.Source)
		}
		rec.SyncStatus = models.SyncPending
		return h.store.UpdateRecord(rec)
	})
	if errors.Is(err, store.ErrRecordNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "record not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to persist record", err)
		return
	}

	logging.Info().Str("employee", employeeID).Str("date", date).Msg("Record overridden; re-marked pending")
	h.recordAudit(r, audit.TypeRecordOverridden, employeeID+"/"+date, nil)
	respondJSON(w, http.StatusOK, rec)
}

// DeleteRecord handles DELETE /api/v1/records/{employeeID}/{date}. The
// local record is removed synchronously; the mirror counterpart is
// removed best-effort in the background.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	employeeID, date, ok := recordParams(w, r)
	if !ok {
		return
	}

	emp, err := h.store.GetEmployee(employeeID)
	if err != nil && !errors.Is(err, store.ErrEmployeeNotFound) {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load employee", err)
		return
	}

	if err := h.store.DeleteRecord(employeeID, date); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "record not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to delete record", err)
		return
	}

	if emp != nil && h.mirror != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.engine.DeleteMirror(ctx, emp, date); err != nil {
				logging.Warn().Err(err).Str("employee", employeeID).Str("date", date).Msg("Mirror delete failed; remote copy may remain")
			}
		}()
	}

	h.recordAudit(r, audit.TypeRecordDeleted, employeeID+"/"+date, nil)
	respondJSON(w, http.StatusOK, map[string]string{"deleted": employeeID + "/" + date})
}
