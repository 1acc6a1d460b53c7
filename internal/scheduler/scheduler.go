// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package scheduler runs the background reconciliation sweep.
//
// Exactly one sweep loop runs per process; Serve guards its start with an
// atomic compare-and-swap so a second supervisor restart or manual start
// can never produce two loops. The loop never terminates except on
// context cancellation and survives any single failure inside an
// iteration.
//
// Retry policy is a fixed interval with unbounded attempts: simplicity
// over optimality. Each sweep iteration is cheap when there is nothing to
// do, so a record stuck on RemoteRejection costs one log line per sweep.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/metrics"
	"github.com/punchd-io/punchd/internal/mirror"
	"github.com/punchd-io/punchd/internal/models"
	"github.com/punchd-io/punchd/internal/reconcile"
	"github.com/punchd-io/punchd/internal/store"
)

// ErrAlreadyRunning is returned when Serve is called while another loop
// instance holds the run guard.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Scheduler sweeps pending records and reconciles them.
type Scheduler struct {
	store    *store.Store
	engine   *reconcile.Engine
	client   mirror.Client
	interval time.Duration

	running atomic.Bool
	// sweepMu makes sweeps single-flight: a manual trigger cannot overlap
	// the periodic sweep.
	sweepMu sync.Mutex
}

// New builds a scheduler. client may be nil (standalone mode); the loop
// then sleeps through every probe.
func New(st *store.Store, engine *reconcile.Engine, client mirror.Client, interval time.Duration) *Scheduler {
	return &Scheduler{
		store:    st,
		engine:   engine,
		client:   client,
		interval: interval,
	}
}

// Serve implements suture.Service. It acquires the process-wide run guard
// and loops until ctx is cancelled. A second concurrent Serve returns
// ErrAlreadyRunning instead of starting a duplicate loop.
func (s *Scheduler) Serve(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	logging.Info().Dur("interval", s.interval).Msg("Sync scheduler started")

	for {
		s.RunSweep(ctx)

		select {
		case <-ctx.Done():
			logging.Info().Msg("Sync scheduler stopped")
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

// Running reports whether the loop currently holds the run guard.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// RunSweep performs one probe-and-reconcile pass. Single-flight: overlap
// with another sweep blocks until the first finishes. Safe to call from
// the manual trigger endpoint while the loop runs.
func (s *Scheduler) RunSweep(ctx context.Context) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	// Any panic escaping an iteration is caught so the loop continues.
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("Sweep iteration panicked; loop continues")
		}
	}()

	if reach := mirror.Probe(ctx, s.client); !reach.Online {
		logging.Debug().Str("reason", reach.Reason).Msg("Mirror offline; sweep deferred")
		metrics.SyncSweeps.WithLabelValues("offline").Inc()
		return
	}

	pending, err := s.store.PendingRecords()
	if err != nil {
		logging.Error().Err(err).Msg("Pending scan failed")
		return
	}
	metrics.PendingRecords.Set(float64(len(pending)))
	if len(pending) == 0 {
		metrics.SyncSweeps.WithLabelValues("empty").Inc()
		return
	}

	logging.Info().Int("pending", len(pending)).Msg("Sweeping pending records")
	for _, rec := range pending {
		if ctx.Err() != nil {
			return
		}
		s.reconcileOne(ctx, rec)
	}
	metrics.SyncSweeps.WithLabelValues("completed").Inc()
}

// reconcileOne reconciles a single record. A failure here never aborts
// the sweep for the remaining records.
func (s *Scheduler) reconcileOne(ctx context.Context, rec *models.DailyRecord) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Str("employee", rec.EmployeeID).Str("date", rec.Date).Msg("Reconcile panicked; continuing sweep")
		}
	}()

	// The attempt is stamped regardless of outcome.
	if err := s.engine.StampAttempt(rec, time.Now()); err != nil {
		logging.Error().Err(err).Str("employee", rec.EmployeeID).Msg("Failed to stamp sync attempt")
	}

	emp, err := s.store.GetEmployee(rec.EmployeeID)
	if err != nil {
		logging.Warn().Err(err).Str("employee", rec.EmployeeID).Str("date", rec.Date).Msg("Pending record without employee; skipping")
		return
	}

	outcome, err := s.engine.Reconcile(ctx, rec, emp, reconcile.Sweep)
	if err != nil {
		logging.Warn().Err(err).Str("employee", rec.EmployeeID).Str("date", rec.Date).Str("outcome", string(outcome.Status)).Msg("Reconcile failed; record stays pending")
		return
	}
	logging.Debug().Str("employee", rec.EmployeeID).Str("date", rec.Date).Int("writes", outcome.Wrote).Msg("Record reconciled")
}
