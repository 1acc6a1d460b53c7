// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Punchd server: biometric attendance capture with offline-first CRM
// mirroring. Local capture is authoritative; the remote mirror is
// eventually consistent.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/punchd-io/punchd/internal/api"
	"github.com/punchd-io/punchd/internal/attendance"
	"github.com/punchd-io/punchd/internal/audit"
	"github.com/punchd-io/punchd/internal/auth"
	"github.com/punchd-io/punchd/internal/backup"
	"github.com/punchd-io/punchd/internal/clock"
	"github.com/punchd-io/punchd/internal/config"
	"github.com/punchd-io/punchd/internal/identity"
	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/mirror"
	"github.com/punchd-io/punchd/internal/models"
	"github.com/punchd-io/punchd/internal/reconcile"
	"github.com/punchd-io/punchd/internal/scheduler"
	"github.com/punchd-io/punchd/internal/store"
	"github.com/punchd-io/punchd/internal/supervisor"
	ws "github.com/punchd-io/punchd/internal/websocket"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("version", version).Msg("Punchd starting")

	norm, err := clock.New(cfg.Attendance.Timezone)
	if err != nil {
		return fmt.Errorf("resolve timezone: %w", err)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Store close failed")
		}
	}()

	// Identity table: swap-on-build snapshot of all registered encodings.
	resolver := identity.NewTable(cfg.Attendance.MatchThreshold)
	employees, err := st.ListEmployees()
	if err != nil {
		return fmt.Errorf("load employees: %w", err)
	}
	snap := identity.BuildSnapshot(employees)
	resolver.Swap(snap)
	logging.Info().Int("identities", snap.Len()).Msg("Identity snapshot loaded")

	// Mirror client: nil in standalone mode, circuit-broken HTTP otherwise.
	var mirrorClient mirror.Client
	if cfg.Remote.Enabled {
		mirrorClient = mirror.NewCircuitBreakerClient(mirror.NewHTTPClient(cfg.Remote))
		logging.Info().Str("base_url", cfg.Remote.BaseURL).Msg("CRM mirroring enabled")
	} else {
		logging.Info().Msg("CRM mirroring disabled; running standalone")
	}

	engine := reconcile.NewEngine(st, mirrorClient, norm, cfg.Sync.ImmediateCorrection, cfg.Sync.SweepCorrection)

	machine := attendance.NewMachine(st, engine, norm, attendance.Config{
		Cooldown:   cfg.Attendance.Cooldown,
		Debounce:   cfg.Attendance.Debounce,
		DefaultEnd: cfg.Attendance.DefaultEnd,
	})

	hub := ws.NewHub()
	machine.SetOnApplied(func(employeeID string, action models.Action, rec *models.DailyRecord) {
		name := employeeID
		if emp, err := st.GetEmployee(employeeID); err == nil {
			name = emp.DisplayName
		}
		hub.BroadcastAttendance(ws.AttendanceEventData{
			EmployeeID:  employeeID,
			DisplayName: name,
			Action:      string(action),
			Status:      string(rec.SyncStatus),
			Record:      rec,
		})
	})

	sched := scheduler.New(st, engine, mirrorClient, cfg.Sync.Interval)

	// Admin auth is optional; nil verifier disables the login endpoint
	// and the Authenticate middleware passes everything through.
	verifier := auth.NewVerifier(&cfg.Security)
	var jwtManager *auth.JWTManager
	if verifier != nil {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			return fmt.Errorf("init jwt: %w", err)
		}
	}

	recorder := audit.NewRecorder(st, cfg.Store.AuditRetention)

	var backups *backup.Manager
	if cfg.Backup.Enabled {
		backups, err = backup.NewManager(st, backup.Config{
			Dir:      cfg.Backup.Dir,
			Interval: cfg.Backup.Interval,
			Keep:     cfg.Backup.Keep,
		})
		if err != nil {
			return fmt.Errorf("init backups: %w", err)
		}
	}

	handler := api.NewHandler(api.HandlerDeps{
		Store:       st,
		Machine:     machine,
		Resolver:    resolver,
		Sched:       sched,
		Engine:      engine,
		Hub:         hub,
		Mirror:      mirrorClient,
		Verifier:    verifier,
		JWT:         jwtManager,
		Audit:       recorder,
		Backups:     backups,
		Norm:        norm,
		CORSOrigins: cfg.Server.CORSOrigins,
		Version:     version,
	})

	mw := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
	}, jwtManager)

	router := api.NewRouter(handler, mw)
	server := api.NewServer(cfg.Server, router.Setup())

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSyncService(hub)
	tree.AddSyncService(sched)
	if backups != nil {
		tree.AddSyncService(backups)
	}
	tree.AddAPIService(server)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Int("port", cfg.Server.Port).Msg("Supervision tree starting")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	logging.Info().Msg("Punchd stopped")
	return nil
}
