// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package config loads and validates the Punchd configuration with layered
// precedence: built-in defaults, then an optional YAML file, then
// environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Punchd server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Store      StoreConfig      `koanf:"store"`
	Remote     RemoteConfig     `koanf:"remote"`
	Sync       SyncConfig       `koanf:"sync"`
	Attendance AttendanceConfig `koanf:"attendance"`
	Security   SecurityConfig   `koanf:"security"`
	Backup     BackupConfig     `koanf:"backup"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// BackupConfig configures periodic snapshots of the local store.
type BackupConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Dir      string        `koanf:"dir"`
	Interval time.Duration `koanf:"interval"`
	Keep     int           `koanf:"keep"`
}

// ServerConfig configures the HTTP intake surface.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	CORSOrigins []string      `koanf:"cors_origins"`
}

// StoreConfig configures the local authoritative badger store.
type StoreConfig struct {
	Path string `koanf:"path"`
	// InMemory runs badger without disk persistence; used by tests.
	InMemory bool `koanf:"in_memory"`
	// AuditRetention bounds the administrative audit trail; zero keeps
	// events forever.
	AuditRetention time.Duration `koanf:"audit_retention"`
}

// RemoteConfig configures the CRM mirror client.
type RemoteConfig struct {
	Enabled bool   `koanf:"enabled"`
	BaseURL string `koanf:"base_url"`
	Token   string `koanf:"token"`
	// Timeout bounds every mirror call; a stuck remote must fail fast
	// rather than block the intake handler or the sweep.
	Timeout      time.Duration `koanf:"timeout"`
	ProbeTimeout time.Duration `koanf:"probe_timeout"`
}

// SyncConfig configures the background reconciliation sweep.
type SyncConfig struct {
	// Interval is the fixed sleep between sweeps and between offline
	// probes. Fixed-interval by design; no exponential backoff.
	Interval time.Duration `koanf:"interval"`
	// SweepCorrection is the ordering-correction offset applied during
	// background sweeps; ImmediateCorrection applies on the synchronous
	// intake path.
	SweepCorrection     time.Duration `koanf:"sweep_correction"`
	ImmediateCorrection time.Duration `koanf:"immediate_correction"`
}

// AttendanceConfig configures the state machine policies.
type AttendanceConfig struct {
	// Timezone is the canonical civil zone; empty means system local.
	Timezone string `koanf:"timezone"`
	// Cooldown is the minimum wait after checkin before an auto-inferred
	// checkout is permitted.
	Cooldown time.Duration `koanf:"cooldown"`
	// Debounce suppresses a repeated trigger for the same identity.
	Debounce time.Duration `koanf:"debounce"`
	// DefaultEnd is the fallback scheduled departure ("HH:MM") when an
	// employee's weekly schedule cannot be resolved.
	DefaultEnd string `koanf:"default_end"`
	// MatchThreshold is the max embedding distance for identity matches.
	MatchThreshold float64 `koanf:"match_threshold"`
}

// SecurityConfig configures the admin auth surface.
type SecurityConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	// AdminPasswordHash is a bcrypt hash; login compares against it.
	AdminPasswordHash string        `koanf:"admin_password_hash"`
	AdminUsername     string        `koanf:"admin_username"`
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks invariants that would otherwise surface as obscure
// runtime failures.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Store.Path == "" && !c.Store.InMemory {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}
	if c.Remote.Enabled && c.Remote.BaseURL == "" {
		return fmt.Errorf("remote.base_url is required when remote.enabled")
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Attendance.Cooldown < 0 || c.Attendance.Debounce < 0 {
		return fmt.Errorf("attendance cooldown/debounce must not be negative")
	}
	if _, err := time.Parse("15:04", c.Attendance.DefaultEnd); err != nil {
		return fmt.Errorf("attendance.default_end must be HH:MM: %w", err)
	}
	if c.Security.JWTSecret == "" && c.Security.AdminPasswordHash != "" {
		return fmt.Errorf("security.jwt_secret is required when admin auth is configured")
	}
	if c.Backup.Enabled && c.Backup.Dir == "" {
		return fmt.Errorf("backup.dir is required when backup.enabled")
	}
	return nil
}
