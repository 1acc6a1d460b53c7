// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package clock normalizes timestamps into the canonical civil time zone
// used by the attendance state machine and the CRM mirror.
//
// All comparisons in the state machine happen on normalized values; the
// mirror additionally compares zero-padded time-of-day strings, which is
// why TimeOfDay must produce a fixed-width format.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidTimestamp is returned when an input cannot be interpreted as
// a point in time.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// timestampLayouts are tried in order when normalizing string input.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer converts arbitrary timestamp representations into the
// canonical location. The zero value is not usable; construct with New.
type Normalizer struct {
	loc *time.Location
}

// New returns a Normalizer bound to the named IANA time zone.
// An empty name selects the system local zone.
func New(zone string) (*Normalizer, error) {
	if zone == "" {
		return &Normalizer{loc: time.Local}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return &Normalizer{loc: loc}, nil
}

// Location returns the canonical location.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// Now returns the current time in the canonical zone.
func (n *Normalizer) Now() time.Time {
	return time.Now().In(n.loc)
}

// Normalize converts ts to a time in the canonical zone. Accepted inputs:
// time.Time (zoned or naive-as-UTC), string in a known layout, and unix
// seconds or milliseconds as int64/float64. Returns ErrInvalidTimestamp
// for anything unparseable.
func (n *Normalizer) Normalize(ts any) (time.Time, error) {
	switch v := ts.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero time", ErrInvalidTimestamp)
		}
		return v.In(n.loc), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("%w: nil time", ErrInvalidTimestamp)
		}
		return n.Normalize(*v)
	case string:
		return n.normalizeString(v)
	case int64:
		return n.normalizeUnix(v), nil
	case int:
		return n.normalizeUnix(int64(v)), nil
	case float64:
		return n.normalizeUnix(int64(v)), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimestamp, ts)
	}
}

func (n *Normalizer) normalizeString(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidTimestamp)
	}
	for _, layout := range timestampLayouts {
		// Layouts without an offset are interpreted as canonical-zone
		// civil time, not UTC.
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t.In(n.loc), nil
		}
	}
	// Bare unix timestamps arrive as strings from some capture stations.
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n.normalizeUnix(unix), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

func (n *Normalizer) normalizeUnix(v int64) time.Time {
	// Heuristic: values this large are milliseconds, not seconds.
	if v > 1e12 {
		return time.UnixMilli(v).In(n.loc)
	}
	return time.Unix(v, 0).In(n.loc)
}

// TimeOfDay renders t as the zero-padded time-of-day string the mirror
// stores and compares lexicographically: "HH:MM:SS.000Z".
func (n *Normalizer) TimeOfDay(t time.Time) string {
	t = t.In(n.loc)
	return fmt.Sprintf("%02d:%02d:%02d.000Z", t.Hour(), t.Minute(), t.Second())
}

// DateKey renders the civil date of t in the canonical zone, "YYYY-MM-DD".
// This is the date component of every record key.
func (n *Normalizer) DateKey(t time.Time) string {
	return t.In(n.loc).Format("2006-01-02")
}

// AtTimeOfDay returns the instant on day's civil date with the given
// "HH:MM" time of day in the canonical zone.
func (n *Normalizer) AtTimeOfDay(day time.Time, hhmm string) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time of day %q", ErrInvalidTimestamp, hhmm)
	}
	day = day.In(n.loc)
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, n.loc), nil
}

// LaterOf returns the later of a and b.
func LaterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
