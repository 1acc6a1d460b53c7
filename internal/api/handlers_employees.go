// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/punchd-io/punchd/internal/audit"
	"github.com/punchd-io/punchd/internal/models"
	"github.com/punchd-io/punchd/internal/store"
)

type registerEmployeeRequest struct {
	DisplayName   string                `json:"display_name" validate:"required,min=1,max=120"`
	RemoteOwnerID string                `json:"remote_owner_id" validate:"max=120"`
	Department    string                `json:"department" validate:"max=120"`
	Schedule      models.WeeklySchedule `json:"schedule"`
	FaceEncoding  []float64             `json:"face_encoding"`
}

// RegisterEmployee handles POST /api/v1/employees.
func (h *Handler) RegisterEmployee(w http.ResponseWriter, r *http.Request) {
	var req registerEmployeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	emp := &models.Employee{
		ID:            uuid.NewString(),
		DisplayName:   req.DisplayName,
		RemoteOwnerID: req.RemoteOwnerID,
		Department:    req.Department,
		Schedule:      req.Schedule,
		FaceEncoding:  req.FaceEncoding,
		CreatedAt:     time.Now().UTC(),
	}

	if err := h.store.PutEmployee(emp); err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to persist employee", err)
		return
	}
	h.rebuildSnapshot()
	h.recordAudit(r, audit.TypeEmployeeRegistered, emp.ID, map[string]any{"display_name": emp.DisplayName})

	respondJSON(w, http.StatusCreated, emp)
}

// ListEmployees handles GET /api/v1/employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.store.ListEmployees()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to list employees", err)
		return
	}
	respondJSON(w, http.StatusOK, employees)
}

// GetEmployee handles GET /api/v1/employees/{id}.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.store.GetEmployee(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrEmployeeNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "employee not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load employee", err)
		return
	}
	respondJSON(w, http.StatusOK, emp)
}

type updateEmployeeRequest struct {
	DisplayName   *string                `json:"display_name" validate:"omitempty,min=1,max=120"`
	RemoteOwnerID *string                `json:"remote_owner_id" validate:"omitempty,max=120"`
	Department    *string                `json:"department" validate:"omitempty,max=120"`
	Schedule      *models.WeeklySchedule `json:"schedule"`
	FaceEncoding  []float64              `json:"face_encoding"`
}

// UpdateEmployee handles PUT /api/v1/employees/{id}. Only the fields
// present in the body change.
func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.store.GetEmployee(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrEmployeeNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "employee not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to load employee", err)
		return
	}

	var req updateEmployeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.DisplayName != nil {
		emp.DisplayName = *req.DisplayName
	}
	if req.RemoteOwnerID != nil {
		emp.RemoteOwnerID = *req.RemoteOwnerID
	}
	if req.Department != nil {
		emp.Department = *req.Department
	}
	if req.Schedule != nil {
		emp.Schedule = *req.Schedule
	}
	if req.FaceEncoding != nil {
		emp.FaceEncoding = req.FaceEncoding
	}

	if err := h.store.PutEmployee(emp); err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to persist employee", err)
		return
	}
	h.rebuildSnapshot()
	h.recordAudit(r, audit.TypeEmployeeUpdated, emp.ID, nil)

	respondJSON(w, http.StatusOK, emp)
}

// DeleteEmployee handles DELETE /api/v1/employees/{id}. Attendance
// records survive the employee for audit purposes.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteEmployee(id); err != nil {
		if errors.Is(err, store.ErrEmployeeNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "employee not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to delete employee", err)
		return
	}
	h.rebuildSnapshot()
	h.recordAudit(r, audit.TypeEmployeeDeleted, id, nil)

	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
