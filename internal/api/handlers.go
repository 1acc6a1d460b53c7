// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package api provides the HTTP surface: biometric event intake,
// employee and record administration, sync control, and the live
// dashboard websocket.
package api

import (
	"net/http"
	"time"

	"github.com/punchd-io/punchd/internal/attendance"
	"github.com/punchd-io/punchd/internal/audit"
	"github.com/punchd-io/punchd/internal/auth"
	"github.com/punchd-io/punchd/internal/backup"
	"github.com/punchd-io/punchd/internal/clock"
	"github.com/punchd-io/punchd/internal/identity"
	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/mirror"
	"github.com/punchd-io/punchd/internal/reconcile"
	"github.com/punchd-io/punchd/internal/scheduler"
	"github.com/punchd-io/punchd/internal/store"
	ws "github.com/punchd-io/punchd/internal/websocket"
)

// Handler carries the dependencies of every endpoint.
type Handler struct {
	store    *store.Store
	machine  *attendance.Machine
	resolver *identity.Table
	sched    *scheduler.Scheduler
	engine   *reconcile.Engine
	hub      *ws.Hub
	mirror   mirror.Client

	verifier *auth.Verifier
	jwt      *auth.JWTManager
	audit    *audit.Recorder
	backups  *backup.Manager

	norm        *clock.Normalizer
	corsOrigins []string
	startedAt   time.Time
	version     string
}

// HandlerDeps bundles the constructor arguments; all but verifier, jwt,
// and mirror are required.
type HandlerDeps struct {
	Store       *store.Store
	Machine     *attendance.Machine
	Resolver    *identity.Table
	Sched       *scheduler.Scheduler
	Engine      *reconcile.Engine
	Hub         *ws.Hub
	Mirror      mirror.Client
	Verifier    *auth.Verifier
	JWT         *auth.JWTManager
	Audit       *audit.Recorder
	Backups     *backup.Manager
	Norm        *clock.Normalizer
	CORSOrigins []string
	Version     string
}

// NewHandler wires the endpoint dependencies.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		store:       deps.Store,
		machine:     deps.Machine,
		resolver:    deps.Resolver,
		sched:       deps.Sched,
		engine:      deps.Engine,
		hub:         deps.Hub,
		mirror:      deps.Mirror,
		verifier:    deps.Verifier,
		jwt:         deps.JWT,
		audit:       deps.Audit,
		backups:     deps.Backups,
		norm:        deps.Norm,
		corsOrigins: deps.CORSOrigins,
		startedAt:   time.Now(),
		version:     deps.Version,
	}
}

// recordAudit writes an admin audit event when a recorder is configured.
func (h *Handler) recordAudit(r *http.Request, eventType, targetID string, details map[string]any) {
	if h.audit == nil {
		return
	}
	h.audit.Record(eventType, UserFromContext(r.Context()), targetID, details)
}

// rebuildSnapshot republishes the identity table after any employee
// mutation. In-flight identifications keep using the old snapshot.
func (h *Handler) rebuildSnapshot() {
	employees, err := h.store.ListEmployees()
	if err != nil {
		logging.Error().Err(err).Msg("Failed to rebuild identity snapshot")
		return
	}
	snap := identity.BuildSnapshot(employees)
	h.resolver.Swap(snap)
	logging.Info().Int("identities", snap.Len()).Msg("Identity snapshot rebuilt")
}
