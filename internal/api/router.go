// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the chi route tree.
type Router struct {
	handler *Handler
	mw      *Middleware
}

// NewRouter pairs the handler set with the middleware stack.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	return &Router{handler: handler, mw: mw}
}

// Setup returns the complete HTTP handler.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(rt.mw.CORS())

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(PrometheusMetrics)

		r.Route("/health", func(r chi.Router) {
			r.Get("/", rt.handler.Health)
			r.Get("/live", rt.handler.HealthLive)
			r.Get("/ready", rt.handler.HealthReady)
		})

		r.With(rt.mw.RateLimitLogin()).Post("/auth/login", rt.handler.Login)

		// Intake path: permissive rate limit, no auth. The capture
		// station is trusted hardware on the local network.
		r.Group(func(r chi.Router) {
			r.Use(rt.mw.RateLimitIntake())
			r.Post("/events", rt.handler.PostEvent)
			r.Get("/ws", rt.handler.WebSocket)
		})

		r.Group(func(r chi.Router) {
			r.Use(rt.mw.RateLimit())

			r.Get("/employees", rt.handler.ListEmployees)
			r.Get("/employees/{id}", rt.handler.GetEmployee)
			r.Get("/records/{employeeID}", rt.handler.ListRecords)
			r.Get("/records/{employeeID}/{date}", rt.handler.GetRecord)
			r.Get("/sync/status", rt.handler.SyncStatus)

			// Admin mutations require a valid session token.
			r.Group(func(r chi.Router) {
				r.Use(rt.mw.Authenticate)

				r.Post("/employees", rt.handler.RegisterEmployee)
				r.Put("/employees/{id}", rt.handler.UpdateEmployee)
				r.Delete("/employees/{id}", rt.handler.DeleteEmployee)
				r.Patch("/records/{employeeID}/{date}", rt.handler.OverrideRecord)
				r.Delete("/records/{employeeID}/{date}", rt.handler.DeleteRecord)
				r.Post("/sync/trigger", rt.handler.TriggerSync)
				r.Get("/audit", rt.handler.ListAudit)
				r.Get("/backups", rt.handler.ListBackups)
				r.Post("/backups", rt.handler.TriggerBackup)
			})
		})
	})

	return r
}
