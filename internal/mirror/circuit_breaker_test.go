// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/punchd-io/punchd/internal/models"
)

// flakyClient fails every call with the configured error.
type flakyClient struct {
	err   error
	calls int
}

func (f *flakyClient) Find(ctx context.Context, ownerID, date string) (*models.MirrorRecord, error) {
	f.calls++
	return nil, f.err
}

func (f *flakyClient) Create(ctx context.Context, fields map[string]string) (string, error) {
	f.calls++
	return "", f.err
}

func (f *flakyClient) Update(ctx context.Context, id string, fields map[string]string) error {
	f.calls++
	return f.err
}

func (f *flakyClient) Delete(ctx context.Context, id string) error {
	f.calls++
	return f.err
}

func (f *flakyClient) Ping(ctx context.Context) error {
	f.calls++
	return f.err
}

func TestBreakerOpensOnRepeatedUnavailability(t *testing.T) {
	inner := &flakyClient{err: ErrUnavailable}
	client := NewCircuitBreakerClient(inner)
	ctx := context.Background()

	// Ten straight failures meet the minimum request count at a 100%
	// failure rate, tripping the breaker.
	for i := 0; i < 10; i++ {
		if err := client.Ping(ctx); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: error = %v, want ErrUnavailable", i, err)
		}
	}

	callsBefore := inner.calls
	if err := client.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("open-circuit error = %v, want ErrUnavailable", err)
	}
	if inner.calls != callsBefore {
		t.Errorf("open circuit still forwarded the call (%d -> %d)", callsBefore, inner.calls)
	}
}

func TestBreakerIgnoresValidationRejections(t *testing.T) {
	inner := &flakyClient{err: ErrRejected}
	client := NewCircuitBreakerClient(inner)
	ctx := context.Background()

	// CRM rejections are not availability failures; the breaker must
	// stay closed and keep forwarding.
	for i := 0; i < 20; i++ {
		if _, err := client.Create(ctx, nil); !errors.Is(err, ErrRejected) {
			t.Fatalf("call %d: error = %v, want ErrRejected", i, err)
		}
	}
	if inner.calls != 20 {
		t.Errorf("forwarded calls = %d, want 20", inner.calls)
	}
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	inner := &flakyClient{err: ErrNotFound}
	client := NewCircuitBreakerClient(inner)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if _, err := client.Find(ctx, "owner-1", "2026-03-09"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("call %d: error = %v, want ErrNotFound", i, err)
		}
	}
	if inner.calls != 20 {
		t.Errorf("forwarded calls = %d, want 20", inner.calls)
	}
}
