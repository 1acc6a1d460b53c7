// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package models defines the domain types shared across Punchd:
// employees, daily attendance records, and the field vocabulary of the
// remote CRM mirror.
package models

import (
	"time"
)

// Action is one of the transitions the attendance state machine accepts.
type Action string

const (
	ActionCheckIn      Action = "checkin"
	ActionBreakIn      Action = "breakin"
	ActionBreakOut     Action = "breakout"
	ActionCheckOut     Action = "checkout"
	ActionSwitchRemote Action = "switch_remote"

	// ActionAuto asks the state machine to infer the concrete action
	// from the current record state (checkin or checkout).
	ActionAuto Action = "auto"
)

// Valid reports whether a is a recognized action.
func (a Action) Valid() bool {
	switch a {
	case ActionCheckIn, ActionBreakIn, ActionBreakOut, ActionCheckOut, ActionSwitchRemote, ActionAuto:
		return true
	}
	return false
}

// SyncStatus tracks whether a daily record has been mirrored to the CRM.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// RecordSource distinguishes an office day from a day finished remotely.
type RecordSource string

const (
	SourceOffice     RecordSource = "office"
	SourceRemoteCont RecordSource = "continue_working_from_home"
)

// DaySchedule is the contracted working window for a single weekday.
// Start and End are local times of day in "HH:MM" form.
type DaySchedule struct {
	Active   bool   `json:"active" koanf:"active"`
	Start    string `json:"start" koanf:"start"`
	End      string `json:"end" koanf:"end"`
	IsRemote bool   `json:"is_remote" koanf:"is_remote"`
}

// WeeklySchedule holds one DaySchedule per weekday, indexed by
// time.Weekday (Sunday = 0).
type WeeklySchedule struct {
	Days    [7]DaySchedule `json:"days"`
	JobType string         `json:"job_type"`
}

// ForWeekday returns the schedule entry for the given weekday.
func (w WeeklySchedule) ForWeekday(d time.Weekday) DaySchedule {
	return w.Days[int(d)%7]
}

// Employee is a registered person known to the biometric front end.
// RemoteOwnerID is the CRM-side foreign identity used to key the mirror.
type Employee struct {
	ID            string         `json:"id"`
	DisplayName   string         `json:"display_name"`
	RemoteOwnerID string         `json:"remote_owner_id"`
	Department    string         `json:"department"`
	Schedule      WeeklySchedule `json:"schedule"`
	// FaceEncoding is the biometric embedding captured at registration.
	// Punchd only compares these vectors; it never produces them.
	FaceEncoding []float64 `json:"face_encoding,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DefaultDepartment is assigned when registration omits a department.
const DefaultDepartment = "Unassigned"

// DailyRecord is the per-employee-per-day attendance aggregate.
// At most one record exists per (EmployeeID, Date). Timestamp fields are
// filled in temporal order by the state machine; administrative overrides
// may set any field directly.
type DailyRecord struct {
	EmployeeID string `json:"employee_id"`
	// Date is the civil date key in the canonical time zone, "YYYY-MM-DD".
	Date string `json:"date"`

	CheckIn  *time.Time `json:"check_in,omitempty"`
	BreakIn  *time.Time `json:"break_in,omitempty"`
	BreakOut *time.Time `json:"break_out,omitempty"`
	CheckOut *time.Time `json:"check_out,omitempty"`

	Source RecordSource `json:"source"`

	// SyncStatus and LastSyncAttempt are owned by the sync engine; no
	// other component writes them.
	SyncStatus      SyncStatus `json:"sync_status"`
	LastSyncAttempt *time.Time `json:"last_sync_attempt,omitempty"`
}

// Complete reports whether the record reached its terminal state for the day.
func (r *DailyRecord) Complete() bool {
	return r.CheckIn != nil && r.CheckOut != nil
}

// Remote mirror field names. The CRM stores times of day as zero-padded
// strings and enforces Check_Out__c > Check_In__c lexicographically.
const (
	MirrorFieldCheckIn  = "Check_In__c"
	MirrorFieldBreakIn  = "Break_In__c"
	MirrorFieldBreakOut = "Break_Out__c"
	MirrorFieldCheckOut = "Check_Out__c"
	MirrorFieldOwner    = "OwnerId"
	MirrorFieldDate     = "Date__c"
)

// MirrorRecord is the CRM-side counterpart of a DailyRecord, keyed by
// (owner identity, date).
type MirrorRecord struct {
	ID       string `json:"Id"`
	OwnerID  string `json:"OwnerId"`
	Date     string `json:"Date__c"`
	CheckIn  string `json:"Check_In__c,omitempty"`
	BreakIn  string `json:"Break_In__c,omitempty"`
	BreakOut string `json:"Break_Out__c,omitempty"`
	CheckOut string `json:"Check_Out__c,omitempty"`
}

// Field returns the mirror's value for a mirror field name.
func (m *MirrorRecord) Field(name string) string {
	switch name {
	case MirrorFieldCheckIn:
		return m.CheckIn
	case MirrorFieldBreakIn:
		return m.BreakIn
	case MirrorFieldBreakOut:
		return m.BreakOut
	case MirrorFieldCheckOut:
		return m.CheckOut
	}
	return ""
}
