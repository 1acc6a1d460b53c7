// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package attendance

import "errors"

// Domain-level rejections of an attempted transition. None of these
// mutate state; all are surfaced to the caller with a machine-readable
// kind.
var (
	// ErrAlreadyDone: the field the action would set is already set, or
	// the day reached its terminal state.
	ErrAlreadyDone = errors.New("action already done")
	// ErrPrecursorMissing: the action requires an earlier transition
	// (e.g. checkout before checkin).
	ErrPrecursorMissing = errors.New("precursor transition missing")
	// ErrGuardViolation: the transition is inconsistent with record
	// state (e.g. breakout without an open break).
	ErrGuardViolation = errors.New("transition guard violated")
	// ErrValidation: malformed input or unresolvable identity. Never
	// retried.
	ErrValidation = errors.New("validation failed")
)

// Kind returns the machine-readable error kind for a domain error, or
// "internal" for anything else.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyDone):
		return "already_done"
	case errors.Is(err, ErrPrecursorMissing):
		return "precursor_missing"
	case errors.Is(err, ErrGuardViolation):
		return "guard_violation"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}
