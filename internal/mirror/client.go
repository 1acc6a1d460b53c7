// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package mirror is the thin client for the CRM-like remote system that
// holds the mirror copy of attendance records.
//
// Every transport, timeout, and auth failure is collapsed into the single
// ErrUnavailable sentinel so callers treat any failure identically: mark
// the record pending and defer to the sweep. CRM-side validation
// rejections (the ordering constraint) surface as ErrRejected instead,
// because retrying them without correction can never succeed.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/punchd-io/punchd/internal/config"
	"github.com/punchd-io/punchd/internal/models"
)

// Sentinel errors.
var (
	// ErrUnavailable covers connectivity, timeout, auth, and 5xx failures.
	ErrUnavailable = errors.New("remote mirror unavailable")
	// ErrRejected covers CRM validation rejections (4xx), notably the
	// Check_Out__c > Check_In__c ordering constraint.
	ErrRejected = errors.New("remote mirror rejected record")
	// ErrNotFound is returned by Find when no mirror record exists.
	ErrNotFound = errors.New("mirror record not found")
)

// Client is the remote mirror contract the reconciliation engine consumes.
type Client interface {
	// Find returns the mirror record for (ownerID, date), or ErrNotFound.
	Find(ctx context.Context, ownerID, date string) (*models.MirrorRecord, error)
	// Create inserts a new mirror record and returns its remote ID.
	Create(ctx context.Context, fields map[string]string) (string, error)
	// Update patches fields on an existing mirror record.
	Update(ctx context.Context, id string, fields map[string]string) error
	// Delete removes a mirror record.
	Delete(ctx context.Context, id string) error
	// Ping is a cheap reachability check with a short timeout.
	Ping(ctx context.Context) error
}

// HTTPClient talks to the CRM REST surface.
type HTTPClient struct {
	baseURL      string
	token        string
	http         *http.Client
	probeTimeout time.Duration
}

// NewHTTPClient builds a client from config. All calls are bounded by
// cfg.Timeout; Ping by cfg.ProbeTimeout.
func NewHTTPClient(cfg config.RemoteConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:      cfg.BaseURL,
		token:        cfg.Token,
		http:         &http.Client{Timeout: cfg.Timeout},
		probeTimeout: cfg.ProbeTimeout,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Auth failures are indistinguishable from unreachability for
		// the caller's purposes: defer and retry.
		return fmt.Errorf("%w: auth failure (%d)", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// Find looks up the mirror record keyed by (ownerID, date).
func (c *HTTPClient) Find(ctx context.Context, ownerID, date string) (*models.MirrorRecord, error) {
	q := url.Values{}
	q.Set("owner_id", ownerID)
	q.Set("date", date)

	var result struct {
		Records []models.MirrorRecord `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/attendance?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, ErrNotFound
	}
	return &result.Records[0], nil
}

// Create inserts a new mirror record.
func (c *HTTPClient) Create(ctx context.Context, fields map[string]string) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/attendance", fields, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// Update patches fields on an existing record.
func (c *HTTPClient) Update(ctx context.Context, id string, fields map[string]string) error {
	return c.do(ctx, http.MethodPatch, "/api/attendance/"+url.PathEscape(id), fields, nil)
}

// Delete removes a record.
func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	err := c.do(ctx, http.MethodDelete, "/api/attendance/"+url.PathEscape(id), nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil // already gone
	}
	return err
}

// Ping performs the cheap reachability probe.
func (c *HTTPClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/api/ping", nil)
	if err != nil {
		return fmt.Errorf("build probe: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
