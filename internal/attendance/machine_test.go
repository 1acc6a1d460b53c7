// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package attendance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/punchd-io/punchd/internal/clock"
	"github.com/punchd-io/punchd/internal/config"
	"github.com/punchd-io/punchd/internal/models"
	"github.com/punchd-io/punchd/internal/reconcile"
	"github.com/punchd-io/punchd/internal/store"
)

const testEmployee = "emp-1"

// newTestMachine wires a machine against an in-memory store and a
// reconcile engine with no mirror client, so every applied transition
// reports offline.
func newTestMachine(t *testing.T) (*Machine, *store.Store) {
	t.Helper()

	st, err := store.Open(config.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	norm, err := clock.New("UTC")
	if err != nil {
		t.Fatalf("clock.New: %v", err)
	}

	engine := reconcile.NewEngine(st, nil, norm, time.Minute, 2*time.Minute)
	m := NewMachine(st, engine, norm, Config{
		Cooldown:   600 * time.Second,
		Debounce:   8 * time.Second,
		DefaultEnd: "17:00",
	})

	if err := st.PutEmployee(&models.Employee{
		ID:            testEmployee,
		DisplayName:   "Ada",
		RemoteOwnerID: "owner-1",
	}); err != nil {
		t.Fatalf("seed employee: %v", err)
	}
	return m, st
}

// at returns a capture timestamp on a fixed workday, offset in minutes
// from 08:00 UTC. Monday 2026-03-09.
func at(minutes int) time.Time {
	return time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func mustApply(t *testing.T, m *Machine, action models.Action, capturedAt time.Time) Result {
	t.Helper()
	res, err := m.Apply(context.Background(), testEmployee, action, capturedAt)
	if err != nil {
		t.Fatalf("Apply(%s) error: %v", action, err)
	}
	return res
}

func TestApplyFullDay(t *testing.T) {
	m, st := newTestMachine(t)

	res := mustApply(t, m, models.ActionCheckIn, at(0))
	if res.Status != StatusOffline {
		t.Errorf("checkin status = %s, want offline (no mirror client)", res.Status)
	}
	if res.FinalAction != models.ActionCheckIn {
		t.Errorf("FinalAction = %s", res.FinalAction)
	}
	if res.Record.CheckIn == nil || !res.Record.CheckIn.Equal(at(0)) {
		t.Errorf("CheckIn = %v, want %v", res.Record.CheckIn, at(0))
	}

	mustApply(t, m, models.ActionBreakIn, at(240))
	mustApply(t, m, models.ActionBreakOut, at(270))
	res = mustApply(t, m, models.ActionCheckOut, at(540))

	rec, err := st.GetRecord(testEmployee, "2026-03-09")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if !rec.Complete() {
		t.Error("record not complete after full day")
	}
	if rec.Source != models.SourceOffice {
		t.Errorf("Source = %s, want office", rec.Source)
	}
	if rec.SyncStatus != models.SyncPending {
		t.Errorf("SyncStatus = %s, want pending (mirror offline)", rec.SyncStatus)
	}
	if res.Message == "" {
		t.Error("checkout produced no user message")
	}
}

func TestApplyRejectsUnknownAction(t *testing.T) {
	m, _ := newTestMachine(t)

	res, err := m.Apply(context.Background(), testEmployee, models.Action("teleport"), at(0))
	if err == nil {
		t.Fatal("expected error for unknown action")
	}
	if res.Status != StatusError || res.Kind != "validation" {
		t.Errorf("result = %+v, want error/validation", res)
	}
}

func TestApplyRejectsUnknownEmployee(t *testing.T) {
	m, _ := newTestMachine(t)

	res, err := m.Apply(context.Background(), "ghost", models.ActionCheckIn, at(0))
	if err == nil {
		t.Fatal("expected error for unknown employee")
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
	if res.Kind != "validation" {
		t.Errorf("Kind = %s", res.Kind)
	}
}

func TestDebounceSuppressesRapidRepeats(t *testing.T) {
	m, st := newTestMachine(t)

	mustApply(t, m, models.ActionCheckIn, at(0))

	// 5 seconds later, inside the 8s window: suppressed, no mutation.
	res := mustApply(t, m, models.ActionBreakIn, at(0).Add(5*time.Second))
	if res.Status != StatusDebounced {
		t.Fatalf("status = %s, want debounced", res.Status)
	}
	rec, err := st.GetRecord(testEmployee, "2026-03-09")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.BreakIn != nil {
		t.Error("debounced trigger mutated the record")
	}

	// Past the window the same action goes through.
	res = mustApply(t, m, models.ActionBreakIn, at(0).Add(10*time.Second))
	if res.Status != StatusOffline {
		t.Errorf("post-window status = %s, want offline", res.Status)
	}
}

func TestGuardOrdering(t *testing.T) {
	tests := []struct {
		name     string
		prior    []models.Action
		action   models.Action
		wantKind string
	}{
		{"checkout before checkin", nil, models.ActionCheckOut, "precursor_missing"},
		{"breakin before checkin", nil, models.ActionBreakIn, "precursor_missing"},
		{"breakout before checkin", nil, models.ActionBreakOut, "precursor_missing"},
		{"switch_remote before checkin", nil, models.ActionSwitchRemote, "precursor_missing"},
		{"breakout without open break", []models.Action{models.ActionCheckIn}, models.ActionBreakOut, "guard_violation"},
		{"second breakin", []models.Action{models.ActionCheckIn, models.ActionBreakIn}, models.ActionBreakIn, "already_done"},
		{"second breakout", []models.Action{models.ActionCheckIn, models.ActionBreakIn, models.ActionBreakOut}, models.ActionBreakOut, "already_done"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMachine(t)
			for i, a := range tt.prior {
				mustApply(t, m, a, at(i*10))
			}

			res, err := m.Apply(context.Background(), testEmployee, tt.action, at(len(tt.prior)*10+10))
			if tt.wantKind == "already_done" {
				// Repeats of a done transition are a benign outcome, not an error.
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if res.Status != StatusAlreadyDone {
					t.Errorf("status = %s, want already_done", res.Status)
				}
				return
			}
			if err == nil {
				t.Fatal("expected guard rejection")
			}
			if res.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", res.Kind, tt.wantKind)
			}
		})
	}
}

func TestDoubleCheckinIsAlreadyDone(t *testing.T) {
	m, _ := newTestMachine(t)

	mustApply(t, m, models.ActionCheckIn, at(0))
	res := mustApply(t, m, models.ActionCheckIn, at(10))
	if res.Status != StatusAlreadyDone {
		t.Errorf("status = %s, want already_done", res.Status)
	}
}

func TestAutoInference(t *testing.T) {
	m, st := newTestMachine(t)

	// Empty record: auto means checkin.
	res := mustApply(t, m, models.ActionAuto, at(0))
	if res.FinalAction != models.ActionCheckIn {
		t.Fatalf("FinalAction = %s, want checkin", res.FinalAction)
	}

	// Inside the 600s cooldown: refused, no mutation, remaining reported.
	res = mustApply(t, m, models.ActionAuto, at(5))
	if res.Status != StatusCooldownWait {
		t.Fatalf("status = %s, want cooldown_wait", res.Status)
	}
	if res.Remaining <= 0 || res.Remaining > 600 {
		t.Errorf("Remaining = %d, want in (0, 600]", res.Remaining)
	}
	rec, err := st.GetRecord(testEmployee, "2026-03-09")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.CheckOut != nil {
		t.Error("cooldown-refused auto mutated the record")
	}

	// Later in the window the remaining seconds shrink.
	res2 := mustApply(t, m, models.ActionAuto, at(8))
	if res2.Status != StatusCooldownWait || res2.Remaining >= res.Remaining {
		t.Errorf("Remaining did not decrease: %d then %d", res.Remaining, res2.Remaining)
	}

	// Past the cooldown: auto means checkout.
	res = mustApply(t, m, models.ActionAuto, at(15))
	if res.FinalAction != models.ActionCheckOut {
		t.Fatalf("FinalAction = %s, want checkout", res.FinalAction)
	}

	// Complete day: auto is a no-op.
	res = mustApply(t, m, models.ActionAuto, at(30))
	if res.Status != StatusAlreadyDone {
		t.Errorf("status = %s, want already_done", res.Status)
	}
}

func TestCheckoutClosesOpenBreak(t *testing.T) {
	m, st := newTestMachine(t)

	mustApply(t, m, models.ActionCheckIn, at(0))
	mustApply(t, m, models.ActionBreakIn, at(240))
	mustApply(t, m, models.ActionCheckOut, at(540))

	rec, err := st.GetRecord(testEmployee, "2026-03-09")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.BreakOut == nil {
		t.Fatal("open break not closed at checkout")
	}
	if !rec.BreakOut.Equal(*rec.CheckOut) {
		t.Errorf("BreakOut = %v, want checkout time %v", rec.BreakOut, rec.CheckOut)
	}
}

func TestSwitchRemoteUsesScheduledDeparture(t *testing.T) {
	m, st := newTestMachine(t)

	mustApply(t, m, models.ActionCheckIn, at(0))

	// 15:00 local, before the 17:00 default end: checkout lands at 17:00.
	res := mustApply(t, m, models.ActionSwitchRemote, at(420))
	if res.FinalAction != models.ActionSwitchRemote {
		t.Fatalf("FinalAction = %s", res.FinalAction)
	}

	rec, err := st.GetRecord(testEmployee, "2026-03-09")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	want := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	if rec.CheckOut == nil || !rec.CheckOut.Equal(want) {
		t.Errorf("CheckOut = %v, want %v", rec.CheckOut, want)
	}
	if rec.Source != models.SourceRemoteCont {
		t.Errorf("Source = %s, want %s", rec.Source, models.SourceRemoteCont)
	}
}

func TestSwitchRemoteAfterScheduledEndUsesNow(t *testing.T) {
	m, st := newTestMachine(t)

	mustApply(t, m, models.ActionCheckIn, at(0))

	// 18:30 local, past the contracted end: checkout is the capture time.
	capture := at(630)
	mustApply(t, m, models.ActionSwitchRemote, capture)

	rec, err := st.GetRecord(testEmployee, "2026-03-09")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.CheckOut == nil || !rec.CheckOut.Equal(capture) {
		t.Errorf("CheckOut = %v, want %v", rec.CheckOut, capture)
	}
}

func TestSwitchRemoteHonorsWeeklySchedule(t *testing.T) {
	m, st := newTestMachine(t)

	emp, err := st.GetEmployee(testEmployee)
	if err != nil {
		t.Fatalf("GetEmployee: %v", err)
	}
	// Monday ends at 16:00 for this employee.
	emp.Schedule.Days[int(time.Monday)] = models.DaySchedule{Active: true, Start: "08:00", End: "16:00"}
	if err := st.PutEmployee(emp); err != nil {
		t.Fatalf("PutEmployee: %v", err)
	}

	mustApply(t, m, models.ActionCheckIn, at(0))
	mustApply(t, m, models.ActionSwitchRemote, at(300)) // 13:00

	rec, err := st.GetRecord(testEmployee, "2026-03-09")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	want := time.Date(2026, 3, 9, 16, 0, 0, 0, time.UTC)
	if rec.CheckOut == nil || !rec.CheckOut.Equal(want) {
		t.Errorf("CheckOut = %v, want scheduled end %v", rec.CheckOut, want)
	}
}

func TestSwitchRemoteClosesOpenBreak(t *testing.T) {
	m, st := newTestMachine(t)

	mustApply(t, m, models.ActionCheckIn, at(0))
	mustApply(t, m, models.ActionBreakIn, at(240))
	mustApply(t, m, models.ActionSwitchRemote, at(300))

	rec, err := st.GetRecord(testEmployee, "2026-03-09")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.BreakOut == nil || !rec.BreakOut.Equal(*rec.CheckOut) {
		t.Errorf("BreakOut = %v, want departure %v", rec.BreakOut, rec.CheckOut)
	}
}

func TestOnAppliedCallback(t *testing.T) {
	m, _ := newTestMachine(t)

	var gotAction models.Action
	m.SetOnApplied(func(employeeID string, action models.Action, rec *models.DailyRecord) {
		gotAction = action
	})

	mustApply(t, m, models.ActionCheckIn, at(0))
	if gotAction != models.ActionCheckIn {
		t.Errorf("callback action = %s, want checkin", gotAction)
	}

	// Rejected transitions never fire the callback.
	gotAction = ""
	_, _ = m.Apply(context.Background(), testEmployee, models.ActionBreakOut, at(10))
	if gotAction != "" {
		t.Errorf("callback fired on rejected transition: %s", gotAction)
	}
}

// expectedGuardKind restates the guard rules as ordered precondition
// lists, independently of checkGuards. Empty string means the action is
// permitted.
func expectedGuardKind(rec *models.DailyRecord, action models.Action) string {
	switch action {
	case models.ActionCheckIn:
		if rec.CheckIn != nil {
			return "already_done"
		}
	case models.ActionBreakIn:
		if rec.CheckIn == nil {
			return "precursor_missing"
		}
		if rec.BreakIn != nil {
			return "already_done"
		}
	case models.ActionBreakOut:
		if rec.CheckIn == nil {
			return "precursor_missing"
		}
		if rec.BreakIn == nil {
			return "guard_violation"
		}
		if rec.BreakOut != nil {
			return "already_done"
		}
	case models.ActionCheckOut, models.ActionSwitchRemote:
		if rec.CheckIn == nil {
			return "precursor_missing"
		}
		if rec.CheckOut != nil {
			return "already_done"
		}
	}
	return ""
}

// TestGuardMatrix sweeps every action against every combination of set
// and unset transition fields.
func TestGuardMatrix(t *testing.T) {
	actions := []models.Action{
		models.ActionCheckIn,
		models.ActionBreakIn,
		models.ActionBreakOut,
		models.ActionCheckOut,
		models.ActionSwitchRemote,
	}
	now := at(0)

	for mask := 0; mask < 16; mask++ {
		rec := &models.DailyRecord{EmployeeID: testEmployee, Date: "2026-03-09"}
		if mask&1 != 0 {
			rec.CheckIn = &now
		}
		if mask&2 != 0 {
			rec.BreakIn = &now
		}
		if mask&4 != 0 {
			rec.BreakOut = &now
		}
		if mask&8 != 0 {
			rec.CheckOut = &now
		}

		for _, action := range actions {
			want := expectedGuardKind(rec, action)
			err := checkGuards(rec, action)
			if want == "" {
				if err != nil {
					t.Errorf("mask %04b action %s: unexpected rejection %v", mask, action, err)
				}
				continue
			}
			if err == nil {
				t.Errorf("mask %04b action %s: permitted, want %s", mask, action, want)
				continue
			}
			if got := Kind(err); got != want {
				t.Errorf("mask %04b action %s: kind = %s, want %s", mask, action, got, want)
			}
		}
	}
}

func TestWithLockSerializesPerEmployee(t *testing.T) {
	m, _ := newTestMachine(t)

	var active, overlaps int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.WithLock(testEmployee, func() error {
				if atomic.AddInt32(&active, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&overlaps); n != 0 {
		t.Errorf("critical section entered concurrently %d times", n)
	}
}
