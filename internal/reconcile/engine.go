// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package reconcile computes the field-level diff between a local daily
// record and its CRM mirror and issues idempotent upserts.
//
// The engine never retries internally; callers own the retry policy.
// A known, deliberate divergence: when the mirror's ordering constraint
// (Check_Out__c > Check_In__c) would be violated, the checkout string
// pushed to the mirror is shifted forward by a fixed offset. The local
// timestamp is never touched, so local truth and mirror truth differ by
// the offset whenever the correction fires.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/punchd-io/punchd/internal/clock"
	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/metrics"
	"github.com/punchd-io/punchd/internal/mirror"
	"github.com/punchd-io/punchd/internal/models"
	"github.com/punchd-io/punchd/internal/store"
)

// Mode selects the ordering-correction offset. The background sweep uses
// a larger offset than the synchronous intake path.
type Mode int

const (
	// Immediate is the synchronous reconcile right after a transition.
	Immediate Mode = iota
	// Sweep is the background scheduler pass.
	Sweep
)

// Status is the reconciliation outcome.
type Status string

const (
	// StatusSynced means the mirror now matches the local record.
	StatusSynced Status = "synced"
	// StatusOffline means the mirror was unreachable; record stays pending.
	StatusOffline Status = "offline"
	// StatusRejected means the CRM rejected the write even after
	// correction; record stays pending for operator intervention.
	StatusRejected Status = "rejected"
)

// Outcome reports what a reconciliation attempt did.
type Outcome struct {
	Status Status
	// Wrote is the number of remote writes issued (0 on the idempotent
	// fast path).
	Wrote int
	// Corrected reports whether the ordering correction fired.
	Corrected bool
}

// Engine reconciles local records against the remote mirror.
type Engine struct {
	store  *store.Store
	client mirror.Client
	norm   *clock.Normalizer

	immediateCorrection time.Duration
	sweepCorrection     time.Duration
}

// NewEngine builds an engine. client may be nil (standalone mode), in
// which case every reconcile reports StatusOffline.
func NewEngine(st *store.Store, client mirror.Client, norm *clock.Normalizer, immediateCorrection, sweepCorrection time.Duration) *Engine {
	return &Engine{
		store:               st,
		client:              client,
		norm:                norm,
		immediateCorrection: immediateCorrection,
		sweepCorrection:     sweepCorrection,
	}
}

// stagedField is one pending remote write.
type stagedField struct {
	name  string
	value string
	// ts is the local timestamp behind the string; used to recompute the
	// value when the ordering correction fires.
	ts time.Time
}

// Reconcile pushes the record's non-null fields to the mirror. Calling it
// twice with unchanged local state issues zero writes on the second call.
// On success the record's SyncStatus transitions to synced in the local
// store; on any failure the record is left pending and the caller decides
// when to retry.
func (e *Engine) Reconcile(ctx context.Context, rec *models.DailyRecord, emp *models.Employee, mode Mode) (Outcome, error) {
	timer := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(timer).Seconds())
	}()

	if e.client == nil {
		metrics.ReconcileOutcomes.WithLabelValues("offline").Inc()
		return Outcome{Status: StatusOffline}, mirror.ErrUnavailable
	}

	remote, err := e.client.Find(ctx, emp.RemoteOwnerID, rec.Date)
	if err != nil && !errors.Is(err, mirror.ErrNotFound) {
		metrics.ReconcileOutcomes.WithLabelValues("offline").Inc()
		return Outcome{Status: StatusOffline}, fmt.Errorf("find mirror: %w", err)
	}

	staged, corrected := e.stage(rec, remote, mode)

	if remote != nil && len(staged) == 0 {
		// Pure idempotence: nothing differs, no remote call.
		if err := e.markSynced(rec); err != nil {
			return Outcome{}, err
		}
		metrics.ReconcileOutcomes.WithLabelValues("noop").Inc()
		return Outcome{Status: StatusSynced}, nil
	}

	var wrote int
	if remote == nil {
		wrote, err = e.createMirror(ctx, rec, emp, staged)
	} else {
		wrote, err = e.updateMirror(ctx, remote, staged)
	}
	if err != nil {
		if errors.Is(err, mirror.ErrRejected) {
			logging.Error().Err(err).Str("employee", rec.EmployeeID).Str("date", rec.Date).Msg("Mirror rejected record; operator intervention required")
			metrics.ReconcileOutcomes.WithLabelValues("rejected").Inc()
			return Outcome{Status: StatusRejected, Corrected: corrected}, err
		}
		metrics.ReconcileOutcomes.WithLabelValues("offline").Inc()
		return Outcome{Status: StatusOffline, Corrected: corrected}, err
	}

	if err := e.markSynced(rec); err != nil {
		return Outcome{}, err
	}
	metrics.ReconcileOutcomes.WithLabelValues("synced").Inc()
	return Outcome{Status: StatusSynced, Wrote: wrote, Corrected: corrected}, nil
}

// stage computes the set of fields to write. remote may be nil (absent
// mirror). The ordering correction shifts only the staged strings, never
// the record's timestamps.
func (e *Engine) stage(rec *models.DailyRecord, remote *models.MirrorRecord, mode Mode) ([]stagedField, bool) {
	var staged []stagedField

	add := func(name string, ts *time.Time) {
		if ts == nil {
			return
		}
		value := e.norm.TimeOfDay(*ts)
		if remote != nil && remote.Field(name) == value {
			return
		}
		staged = append(staged, stagedField{name: name, value: value, ts: *ts})
	}

	add(models.MirrorFieldCheckIn, rec.CheckIn)
	add(models.MirrorFieldBreakIn, rec.BreakIn)
	add(models.MirrorFieldBreakOut, rec.BreakOut)
	add(models.MirrorFieldCheckOut, rec.CheckOut)

	corrected := e.applyOrderingCorrection(rec, remote, staged, mode)
	return staged, corrected
}

// applyOrderingCorrection enforces Check_Out__c > Check_In__c on the
// staged values. The effective check-in string is the staged one if
// present, otherwise the mirror's existing one. When the staged checkout
// does not sort strictly above it, the checkout string is recomputed
// from the check-in timestamp plus the mode's offset, so even an
// inversion much larger than the offset (an administrative override,
// clock skew) ends strictly above the check-in. When the check-in
// exists only as a mirror string its timestamp is not at hand; the
// checkout then shifts by the offset and a persisting violation
// surfaces as a remote rejection. A break-out auto-filled to the
// departure time is shifted with it so the pair stays consistent.
func (e *Engine) applyOrderingCorrection(rec *models.DailyRecord, remote *models.MirrorRecord, staged []stagedField, mode Mode) bool {
	checkoutIdx, checkInIdx := -1, -1
	for i := range staged {
		switch staged[i].name {
		case models.MirrorFieldCheckOut:
			checkoutIdx = i
		case models.MirrorFieldCheckIn:
			checkInIdx = i
		}
	}
	if checkoutIdx < 0 {
		return false
	}
	checkInStr := ""
	if checkInIdx >= 0 {
		checkInStr = staged[checkInIdx].value
	} else if remote != nil {
		checkInStr = remote.CheckIn
	}
	if checkInStr == "" || staged[checkoutIdx].value > checkInStr {
		return false
	}

	offset := e.immediateCorrection
	if mode == Sweep {
		offset = e.sweepCorrection
	}

	base := staged[checkoutIdx].ts
	if checkInIdx >= 0 {
		base = staged[checkInIdx].ts
	}
	original := staged[checkoutIdx].value
	staged[checkoutIdx].value = e.norm.TimeOfDay(base.Add(offset))

	// The implicit break-out companion: a break closed at departure
	// carries the same string and must move with the checkout.
	for i := range staged {
		if staged[i].name == models.MirrorFieldBreakOut && staged[i].value == original {
			staged[i].value = staged[checkoutIdx].value
		}
	}

	metrics.OrderingCorrections.Inc()
	logging.Warn().
		Str("employee", rec.EmployeeID).
		Str("date", rec.Date).
		Str("local_checkout", original).
		Str("mirror_checkout", staged[checkoutIdx].value).
		Msg("Ordering correction applied; mirror diverges from local truth by the offset")
	return true
}

// createMirror creates the mirror record with every currently known field
// instead of issuing per-field updates.
func (e *Engine) createMirror(ctx context.Context, rec *models.DailyRecord, emp *models.Employee, staged []stagedField) (int, error) {
	fields := map[string]string{
		models.MirrorFieldOwner: emp.RemoteOwnerID,
		models.MirrorFieldDate:  rec.Date,
	}
	for _, f := range staged {
		fields[f.name] = f.value
	}
	if _, err := e.client.Create(ctx, fields); err != nil {
		return 0, fmt.Errorf("create mirror: %w", err)
	}
	return 1, nil
}

func (e *Engine) updateMirror(ctx context.Context, remote *models.MirrorRecord, staged []stagedField) (int, error) {
	fields := make(map[string]string, len(staged))
	for _, f := range staged {
		fields[f.name] = f.value
	}
	if err := e.client.Update(ctx, remote.ID, fields); err != nil {
		return 0, fmt.Errorf("update mirror: %w", err)
	}
	return 1, nil
}

// markSynced flips the stored record to synced. The store applies the
// flip only when the record's transition fields still match the
// snapshot that was pushed; a transition applied concurrently (the
// sweep runs without the machine's per-employee lock) leaves the record
// pending for the next pass.
func (e *Engine) markSynced(rec *models.DailyRecord) error {
	synced, err := e.store.MarkSynced(rec)
	if err != nil {
		return fmt.Errorf("persist sync status: %w", err)
	}
	if !synced {
		logging.Debug().Str("employee", rec.EmployeeID).Str("date", rec.Date).Msg("Record changed during push; left pending")
		return nil
	}
	rec.SyncStatus = models.SyncSynced
	return nil
}

// StampAttempt records a sync attempt time on the record regardless of
// outcome. The scheduler calls this once per visited record; the stamp
// merges into the latest stored value so it never reverts a concurrent
// transition.
func (e *Engine) StampAttempt(rec *models.DailyRecord, at time.Time) error {
	rec.LastSyncAttempt = &at
	if err := e.store.StampSyncAttempt(rec.EmployeeID, rec.Date, at); err != nil {
		return fmt.Errorf("persist sync attempt: %w", err)
	}
	return nil
}

// DeleteMirror removes the remote counterpart of a locally deleted
// record. Best-effort: an unreachable mirror is reported, not fatal.
func (e *Engine) DeleteMirror(ctx context.Context, emp *models.Employee, date string) error {
	if e.client == nil {
		return mirror.ErrUnavailable
	}
	remote, err := e.client.Find(ctx, emp.RemoteOwnerID, date)
	if errors.Is(err, mirror.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find mirror for delete: %w", err)
	}
	if err := e.client.Delete(ctx, remote.ID); err != nil {
		return fmt.Errorf("delete mirror: %w", err)
	}
	return nil
}
