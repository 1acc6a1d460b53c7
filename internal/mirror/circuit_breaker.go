// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/metrics"
	"github.com/punchd-io/punchd/internal/models"
)

// CircuitBreakerClient wraps a mirror Client with the circuit breaker
// pattern so a slow or flapping CRM cannot stall intake handlers or the
// sweep. An open circuit reads as ErrUnavailable, which callers already
// treat as "defer to the scheduler".
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// NewCircuitBreakerClient wraps client with a breaker that opens after a
// 60% failure rate over at least 10 requests, measured per minute, and
// probes recovery after 2 minutes.
func NewCircuitBreakerClient(client Client) *CircuitBreakerClient {
	const cbName = "crm-mirror"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3, // concurrent requests allowed in half-open state
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},

		// CRM validation rejections are not availability failures and
		// must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrRejected)
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: cbName}
}

func (c *CircuitBreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := c.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(c.name, "rejected").Inc()
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		metrics.CircuitBreakerRequests.WithLabelValues(c.name, "failure").Inc()
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(c.name, "success").Inc()
	return result, nil
}

// Find looks up the mirror record with breaker protection.
func (c *CircuitBreakerClient) Find(ctx context.Context, ownerID, date string) (*models.MirrorRecord, error) {
	result, err := c.execute(func() (any, error) {
		return c.client.Find(ctx, ownerID, date)
	})
	if err != nil {
		return nil, err
	}
	rec, ok := result.(*models.MirrorRecord)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return rec, nil
}

// Create inserts a mirror record with breaker protection.
func (c *CircuitBreakerClient) Create(ctx context.Context, fields map[string]string) (string, error) {
	result, err := c.execute(func() (any, error) {
		return c.client.Create(ctx, fields)
	})
	if err != nil {
		return "", err
	}
	id, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return id, nil
}

// Update patches a mirror record with breaker protection.
func (c *CircuitBreakerClient) Update(ctx context.Context, id string, fields map[string]string) error {
	_, err := c.execute(func() (any, error) {
		return nil, c.client.Update(ctx, id, fields)
	})
	return err
}

// Delete removes a mirror record with breaker protection.
func (c *CircuitBreakerClient) Delete(ctx context.Context, id string) error {
	_, err := c.execute(func() (any, error) {
		return nil, c.client.Delete(ctx, id)
	})
	return err
}

// Ping probes reachability with breaker protection.
func (c *CircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := c.execute(func() (any, error) {
		return nil, c.client.Ping(ctx)
	})
	return err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
