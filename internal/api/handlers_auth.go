// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"net/http"

	"github.com/punchd-io/punchd/internal/logging"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=120"`
	Password string `json:"password" validate:"required,min=1,max=256"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil || h.jwt == nil {
		respondError(w, http.StatusServiceUnavailable, "AUTH_NOT_CONFIGURED", "admin authentication is not configured", nil)
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.verifier.Verify(req.Username, req.Password); err != nil {
		logging.Warn().Str("username", sanitizeLogValue(req.Username)).Msg("Failed login attempt")
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials", nil)
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, "admin")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to issue token", err)
		return
	}

	respondJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresIn: int64(h.jwt.SessionTimeout().Seconds()),
	})
}
