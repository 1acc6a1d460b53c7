// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package clock

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func mustNormalizer(t *testing.T, zone string) *Normalizer {
	t.Helper()
	n, err := New(zone)
	if err != nil {
		t.Fatalf("New(%q) error: %v", zone, err)
	}
	return n
}

func TestNormalizeAcceptedInputs(t *testing.T) {
	n := mustNormalizer(t, "UTC")
	want := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
	}{
		{"time.Time", want},
		{"pointer", &want},
		{"rfc3339", "2026-03-09T08:30:00Z"},
		{"naive datetime", "2026-03-09T08:30:00"},
		{"space separated", "2026-03-09 08:30:00"},
		{"unix seconds int64", want.Unix()},
		{"unix seconds int", int(want.Unix())},
		{"unix seconds float64", float64(want.Unix())},
		{"unix millis int64", want.UnixMilli()},
		{"unix string", strconv.FormatInt(want.Unix(), 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.input)
			if err != nil {
				t.Fatalf("Normalize(%v) error: %v", tt.input, err)
			}
			if !got.Equal(want) {
				t.Errorf("Normalize(%v) = %v, want %v", tt.input, got, want)
			}
		})
	}
}

func TestNormalizeNaiveStringUsesCanonicalZone(t *testing.T) {
	n := mustNormalizer(t, "Europe/Berlin")

	got, err := n.Normalize("2026-07-01T09:00:00")
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	if got.Hour() != 9 {
		t.Errorf("civil hour = %d, want 9", got.Hour())
	}
	if zone, _ := got.Zone(); zone != "CEST" {
		t.Errorf("zone = %s, want CEST", zone)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	n := mustNormalizer(t, "UTC")

	for _, input := range []any{"", "not-a-time", time.Time{}, struct{}{}, (*time.Time)(nil)} {
		if _, err := n.Normalize(input); !errors.Is(err, ErrInvalidTimestamp) {
			t.Errorf("Normalize(%v) error = %v, want ErrInvalidTimestamp", input, err)
		}
	}
}

func TestTimeOfDayZeroPadded(t *testing.T) {
	n := mustNormalizer(t, "UTC")

	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2026, 1, 5, 8, 5, 3, 0, time.UTC), "08:05:03.000Z"},
		{time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), "00:00:00.000Z"},
		{time.Date(2026, 1, 5, 23, 59, 59, 0, time.UTC), "23:59:59.000Z"},
	}
	for _, tt := range tests {
		if got := n.TimeOfDay(tt.in); got != tt.want {
			t.Errorf("TimeOfDay(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTimeOfDayOrderingMatchesTimeOrdering(t *testing.T) {
	n := mustNormalizer(t, "UTC")
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	// Lexicographic order of the rendered strings must match temporal
	// order within one day; the mirror compares them as strings.
	prev := n.TimeOfDay(base)
	for i := 1; i < 24*60; i += 7 {
		cur := n.TimeOfDay(base.Add(time.Duration(i) * time.Minute))
		if cur <= prev {
			t.Fatalf("ordering broken: %q <= %q", cur, prev)
		}
		prev = cur
	}
}

func TestDateKey(t *testing.T) {
	n := mustNormalizer(t, "America/New_York")

	// 2026-03-10 02:30 UTC is still 2026-03-09 in New York.
	utc := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)
	if got := n.DateKey(utc); got != "2026-03-09" {
		t.Errorf("DateKey = %q, want 2026-03-09", got)
	}
}

func TestAtTimeOfDay(t *testing.T) {
	n := mustNormalizer(t, "UTC")
	day := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	got, err := n.AtTimeOfDay(day, "17:00")
	if err != nil {
		t.Fatalf("AtTimeOfDay error: %v", err)
	}
	want := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("AtTimeOfDay = %v, want %v", got, want)
	}

	if _, err := n.AtTimeOfDay(day, "25:99"); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("AtTimeOfDay(25:99) error = %v, want ErrInvalidTimestamp", err)
	}
}

func TestLaterOf(t *testing.T) {
	a := time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC)
	b := a.Add(time.Hour)

	if got := LaterOf(a, b); !got.Equal(b) {
		t.Errorf("LaterOf = %v, want %v", got, b)
	}
	if got := LaterOf(b, a); !got.Equal(b) {
		t.Errorf("LaterOf = %v, want %v", got, b)
	}
	if got := LaterOf(a, a); !got.Equal(a) {
		t.Errorf("LaterOf(equal) = %v, want %v", got, a)
	}
}
