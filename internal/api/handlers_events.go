// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/punchd-io/punchd/internal/attendance"
	"github.com/punchd-io/punchd/internal/clock"
	"github.com/punchd-io/punchd/internal/models"
)

// eventRequest is one biometric trigger from a capture station. Either
// employee_id (already-resolved identity) or sample (raw embedding to
// match) must be present.
type eventRequest struct {
	EmployeeID string    `json:"employee_id"`
	Sample     []float64 `json:"sample"`
	Action     string    `json:"action" validate:"required,oneof=checkin breakin breakout checkout switch_remote auto"`
	// CapturedAt accepts an RFC3339 string, a unix epoch (seconds or
	// millis), or nothing (server receive time).
	CapturedAt any `json:"captured_at"`
}

type eventResponse struct {
	Status      string              `json:"status"`
	FinalAction string              `json:"final_action,omitempty"`
	Message     string              `json:"message,omitempty"`
	Remaining   int                 `json:"remaining_seconds,omitempty"`
	Record      *models.DailyRecord `json:"record,omitempty"`
}

// PostEvent handles POST /api/v1/events, the kiosk intake path.
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	employeeID := req.EmployeeID
	if employeeID == "" {
		if len(req.Sample) == 0 {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "either employee_id or sample is required", nil)
			return
		}
		ident, ok := h.resolver.Identify(r.Context(), req.Sample)
		if !ok {
			respondError(w, http.StatusNotFound, "UNKNOWN_IDENTITY", "no registered employee matched the sample", nil)
			return
		}
		employeeID = ident.EmployeeID
	}

	capturedAt := time.Now()
	if req.CapturedAt != nil {
		ts, err := h.norm.Normalize(req.CapturedAt)
		if err != nil {
			if errors.Is(err, clock.ErrInvalidTimestamp) {
				respondError(w, http.StatusBadRequest, "INVALID_TIMESTAMP", "captured_at is not a recognized timestamp", err)
				return
			}
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to normalize timestamp", err)
			return
		}
		capturedAt = ts
	}

	res, err := h.machine.Apply(r.Context(), employeeID, models.Action(req.Action), capturedAt)
	if err != nil {
		kind := attendance.Kind(err)
		switch kind {
		case "validation":
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		case "precursor_missing", "guard_violation", "already_done":
			// The code stays stable for clients; the kind distinguishes
			// which guard refused the transition.
			respondErrorDetails(w, http.StatusConflict, "TRANSITION_REJECTED", err.Error(), map[string]string{"kind": kind})
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to apply event", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, eventResponse{
		Status:      string(res.Status),
		FinalAction: string(res.FinalAction),
		Message:     res.Message,
		Remaining:   res.Remaining,
		Record:      res.Record,
	})
}
