// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package attendance owns the per-employee-per-day state machine.
//
// Conceptual states per record:
//
//	Empty -> CheckedIn -> OnBreak -> CheckedIn -> Complete
//
// with switch_remote as an alternate terminal transition from CheckedIn
// or OnBreak directly to Complete. Complete rejects all further
// transitions for the day.
//
// Each transition is applied at most once: guards are evaluated under a
// per-employee lock, so two near-simultaneous captures can never both
// pass a guard on stale state.
package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/punchd-io/punchd/internal/clock"
	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/metrics"
	"github.com/punchd-io/punchd/internal/models"
	"github.com/punchd-io/punchd/internal/reconcile"
	"github.com/punchd-io/punchd/internal/store"
)

// Status is the outcome reported to the intake caller.
type Status string

const (
	// StatusSynced: transition applied and mirrored immediately.
	StatusSynced Status = "synced"
	// StatusOffline: transition applied locally; mirror deferred to the
	// scheduler. Event capture succeeds locally even when the remote
	// mirror is down.
	StatusOffline Status = "offline"
	// StatusCooldownWait: auto-inferred checkout refused inside the
	// post-checkin cooldown window. No state change.
	StatusCooldownWait Status = "cooldown_wait"
	// StatusAlreadyDone: the day is complete or the field already set.
	StatusAlreadyDone Status = "already_done"
	// StatusDebounced: repeated trigger for the same identity inside the
	// debounce window. No state change.
	StatusDebounced Status = "debounced"
	// StatusError: validation or guard failure; Kind carries the detail.
	StatusError Status = "error"
)

// Result is returned from Apply.
type Result struct {
	Status      Status
	FinalAction models.Action
	Record      *models.DailyRecord
	Message     string
	// Remaining is the number of seconds left in the cooldown window
	// when Status is cooldown_wait.
	Remaining int
	// Kind is the machine-readable error kind when Status is error.
	Kind string
}

// Config holds the state machine policies.
type Config struct {
	// Cooldown is the minimum wait after checkin before an auto-inferred
	// checkout is permitted (spec default 600s).
	Cooldown time.Duration
	// Debounce suppresses a second trigger for the same identity within
	// this window regardless of action (default 8s).
	Debounce time.Duration
	// DefaultEnd is the fallback scheduled departure "HH:MM" used when
	// the weekly schedule cannot be resolved.
	DefaultEnd string
}

// Machine applies attendance transitions.
type Machine struct {
	store  *store.Store
	engine *reconcile.Engine
	norm   *clock.Normalizer
	cfg    Config

	keys *keyedLock

	// debounce cache: employee ID -> last trigger time. Guarded by its
	// own mutex and shared across requests.
	debounceMu sync.Mutex
	debounce   map[string]time.Time

	// onApplied, when set, is invoked after every successful transition
	// (live feed broadcast).
	onApplied func(employeeID string, action models.Action, rec *models.DailyRecord)
}

// NewMachine builds a state machine. engine may reconcile against a nil
// mirror client, in which case every transition reports offline.
func NewMachine(st *store.Store, engine *reconcile.Engine, norm *clock.Normalizer, cfg Config) *Machine {
	if cfg.DefaultEnd == "" {
		cfg.DefaultEnd = "17:00"
	}
	return &Machine{
		store:    st,
		engine:   engine,
		norm:     norm,
		cfg:      cfg,
		keys:     newKeyedLock(),
		debounce: make(map[string]time.Time),
	}
}

// SetOnApplied registers the post-transition callback.
func (m *Machine) SetOnApplied(fn func(employeeID string, action models.Action, rec *models.DailyRecord)) {
	m.onApplied = fn
}

// WithLock runs fn while holding the per-employee serialization lock.
// Administrative record edits use it so their read-modify-write cannot
// interleave with a concurrent Apply for the same employee.
func (m *Machine) WithLock(employeeID string, fn func() error) error {
	unlock := m.keys.lock(employeeID)
	defer unlock()
	return fn()
}

// Apply validates and applies one transition for employeeID at the given
// capture time. It returns a structured result even on remote failure;
// only store failures and unresolvable identities produce an error.
func (m *Machine) Apply(ctx context.Context, employeeID string, action models.Action, capturedAt time.Time) (Result, error) {
	if !action.Valid() {
		return Result{Status: StatusError, Kind: Kind(ErrValidation)},
			fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}

	now, err := m.norm.Normalize(capturedAt)
	if err != nil {
		return Result{Status: StatusError, Kind: Kind(ErrValidation)},
			fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Debounce precedes everything else, including auto inference: a
	// face that stays in frame fires repeated captures.
	if !m.passDebounce(employeeID, now) {
		metrics.EventsRejected.WithLabelValues("debounced").Inc()
		return Result{Status: StatusDebounced, Message: "duplicate trigger ignored"}, nil
	}

	emp, err := m.store.GetEmployee(employeeID)
	if err != nil {
		return Result{Status: StatusError, Kind: Kind(ErrValidation)},
			fmt.Errorf("%w: employee %s: %v", ErrValidation, employeeID, err)
	}

	unlock := m.keys.lock(employeeID)
	defer unlock()

	rec, err := m.loadOrCreate(employeeID, now)
	if err != nil {
		return Result{Status: StatusError, Kind: "internal"}, err
	}

	concrete := action
	if action == models.ActionAuto {
		var res Result
		concrete, res = m.inferAuto(rec, now)
		if concrete == "" {
			return res, nil
		}
	}

	if err := checkGuards(rec, concrete); err != nil {
		metrics.EventsRejected.WithLabelValues(Kind(err)).Inc()
		if Kind(err) == "already_done" {
			return Result{Status: StatusAlreadyDone, FinalAction: concrete, Record: rec, Message: "already recorded for today"}, nil
		}
		return Result{Status: StatusError, FinalAction: concrete, Kind: Kind(err)}, err
	}

	m.applyWrite(rec, emp, concrete, now)

	rec.SyncStatus = models.SyncPending
	if err := m.store.UpdateRecord(rec); err != nil {
		// Local-store failures are fatal to the request: atomic write or none.
		return Result{Status: StatusError, Kind: "internal"}, fmt.Errorf("persist record: %w", err)
	}

	metrics.EventsApplied.WithLabelValues(string(concrete)).Inc()
	logging.Info().
		Str("employee", employeeID).
		Str("action", string(concrete)).
		Str("date", rec.Date).
		Msg("Event applied")

	if m.onApplied != nil {
		m.onApplied(employeeID, concrete, rec)
	}

	status := m.syncNow(ctx, rec, emp)
	return Result{
		Status:      status,
		FinalAction: concrete,
		Record:      rec,
		Message:     userMessage(concrete, emp.DisplayName, now),
	}, nil
}

// passDebounce returns false if a trigger for this identity happened
// inside the debounce window; otherwise records now as the last trigger.
func (m *Machine) passDebounce(employeeID string, now time.Time) bool {
	m.debounceMu.Lock()
	defer m.debounceMu.Unlock()

	if last, ok := m.debounce[employeeID]; ok {
		if elapsed := now.Sub(last); elapsed >= 0 && elapsed < m.cfg.Debounce {
			return false
		}
	}
	m.debounce[employeeID] = now
	return true
}

func (m *Machine) loadOrCreate(employeeID string, now time.Time) (*models.DailyRecord, error) {
	fresh := &models.DailyRecord{
		EmployeeID: employeeID,
		Date:       m.norm.DateKey(now),
		Source:     models.SourceOffice,
		SyncStatus: models.SyncPending,
	}
	rec, _, err := m.store.CreateRecordIfAbsent(fresh)
	if err != nil {
		return nil, fmt.Errorf("load or create record: %w", err)
	}
	return rec, nil
}

// inferAuto maps an auto trigger to a concrete action based on record
// state. Returns an empty action with a terminal Result when no state
// change should happen (cooldown or complete day).
func (m *Machine) inferAuto(rec *models.DailyRecord, now time.Time) (models.Action, Result) {
	switch {
	case rec.CheckIn == nil:
		return models.ActionCheckIn, Result{}
	case rec.CheckOut == nil:
		elapsed := now.Sub(*rec.CheckIn)
		if elapsed < m.cfg.Cooldown {
			remaining := int((m.cfg.Cooldown - elapsed).Seconds())
			metrics.EventsRejected.WithLabelValues("cooldown").Inc()
			return "", Result{
				Status:    StatusCooldownWait,
				Record:    rec,
				Remaining: remaining,
				Message:   fmt.Sprintf("checkout available in %ds", remaining),
			}
		}
		return models.ActionCheckOut, Result{}
	default:
		metrics.EventsRejected.WithLabelValues("already_done").Inc()
		return "", Result{Status: StatusAlreadyDone, Record: rec, Message: "already recorded for today"}
	}
}

// checkGuards evaluates the guard conditions for a concrete action.
// Order matters; the first failing guard wins.
func checkGuards(rec *models.DailyRecord, action models.Action) error {
	switch action {
	case models.ActionCheckIn:
		if rec.CheckIn != nil {
			return fmt.Errorf("%w: checkin already recorded", ErrAlreadyDone)
		}
	case models.ActionCheckOut, models.ActionSwitchRemote:
		if rec.CheckIn == nil {
			return fmt.Errorf("%w: no checkin recorded", ErrPrecursorMissing)
		}
		if rec.CheckOut != nil {
			return fmt.Errorf("%w: checkout already recorded", ErrAlreadyDone)
		}
	case models.ActionBreakIn:
		if rec.CheckIn == nil {
			return fmt.Errorf("%w: no checkin recorded", ErrPrecursorMissing)
		}
		if rec.BreakIn != nil {
			return fmt.Errorf("%w: break already started", ErrAlreadyDone)
		}
	case models.ActionBreakOut:
		if rec.CheckIn == nil {
			return fmt.Errorf("%w: no checkin recorded", ErrPrecursorMissing)
		}
		if rec.BreakIn == nil {
			return fmt.Errorf("%w: no open break", ErrGuardViolation)
		}
		if rec.BreakOut != nil {
			return fmt.Errorf("%w: break already ended", ErrAlreadyDone)
		}
	default:
		return fmt.Errorf("%w: action %q", ErrValidation, action)
	}
	return nil
}

// applyWrite performs the field write for a guard-approved action.
func (m *Machine) applyWrite(rec *models.DailyRecord, emp *models.Employee, action models.Action, now time.Time) {
	switch action {
	case models.ActionCheckIn:
		rec.CheckIn = &now
	case models.ActionBreakIn:
		rec.BreakIn = &now
	case models.ActionBreakOut:
		rec.BreakOut = &now
	case models.ActionCheckOut:
		rec.CheckOut = &now
	case models.ActionSwitchRemote:
		// The employee may never be recorded as leaving before the
		// contracted end time when continuing remotely.
		departure := clock.LaterOf(m.scheduledDeparture(emp, now), now)
		rec.CheckOut = &departure
		rec.Source = models.SourceRemoteCont
	}

	// An open break is implicitly closed at departure.
	if (action == models.ActionCheckOut || action == models.ActionSwitchRemote) &&
		rec.BreakIn != nil && rec.BreakOut == nil {
		rec.BreakOut = rec.CheckOut
	}
}

// scheduledDeparture resolves the contracted end-of-day for now's weekday,
// falling back to the configured default on any failure.
func (m *Machine) scheduledDeparture(emp *models.Employee, now time.Time) time.Time {
	end := m.cfg.DefaultEnd
	if day := emp.Schedule.ForWeekday(now.Weekday()); day.Active && day.End != "" {
		end = day.End
	}
	departure, err := m.norm.AtTimeOfDay(now, end)
	if err != nil {
		logging.Warn().Str("employee", emp.ID).Str("end", end).Msg("Unparseable schedule end; using default departure")
		departure, _ = m.norm.AtTimeOfDay(now, m.cfg.DefaultEnd)
	}
	return departure
}

// syncNow attempts the synchronous reconcile after a transition. Any
// failure leaves the record pending for the scheduler and reports
// offline; the local write has already succeeded.
func (m *Machine) syncNow(ctx context.Context, rec *models.DailyRecord, emp *models.Employee) Status {
	outcome, err := m.engine.Reconcile(ctx, rec, emp, reconcile.Immediate)
	if err != nil || outcome.Status != reconcile.StatusSynced {
		return StatusOffline
	}
	return StatusSynced
}

func userMessage(action models.Action, name string, at time.Time) string {
	t := at.Format("15:04")
	switch action {
	case models.ActionCheckIn:
		return fmt.Sprintf("%s checked in at %s", name, t)
	case models.ActionBreakIn:
		return fmt.Sprintf("%s started break at %s", name, t)
	case models.ActionBreakOut:
		return fmt.Sprintf("%s ended break at %s", name, t)
	case models.ActionCheckOut:
		return fmt.Sprintf("%s checked out at %s", name, t)
	case models.ActionSwitchRemote:
		return fmt.Sprintf("%s switched to remote work at %s", name, t)
	}
	return ""
}
