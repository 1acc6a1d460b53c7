// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/punchd/config.yaml",
	"/etc/punchd/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults, applied before the config
// file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5000,
			Timeout:     30 * time.Second,
			CORSOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Path:           "/data/punchd",
			InMemory:       false,
			AuditRetention: 90 * 24 * time.Hour,
		},
		Remote: RemoteConfig{
			Enabled:      false, // standalone (local-only) mode by default
			BaseURL:      "",
			Token:        "",
			Timeout:      10 * time.Second,
			ProbeTimeout: 3 * time.Second,
		},
		Sync: SyncConfig{
			Interval:            60 * time.Second,
			SweepCorrection:     2 * time.Minute,
			ImmediateCorrection: 1 * time.Minute,
		},
		Attendance: AttendanceConfig{
			Timezone:       "",
			Cooldown:       600 * time.Second,
			Debounce:       8 * time.Second,
			DefaultEnd:     "17:00",
			MatchThreshold: 0.6,
		},
		Security: SecurityConfig{
			JWTSecret:         "",
			AdminPasswordHash: "",
			AdminUsername:     "admin",
			SessionTimeout:    24 * time.Hour,
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
		},
		Backup: BackupConfig{
			Enabled:  false,
			Dir:      "/data/punchd-backups",
			Interval: 6 * time.Hour,
			Keep:     7,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load reads configuration using koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// ENV > file > defaults. Names map through envTransformFunc:
	// REMOTE_BASE_URL -> remote.base_url
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables are dropped so random environment does not pollute
// the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",
		"cors_origins": "server.cors_origins",

		// Store mappings
		"store_path":            "store.path",
		"store_in_memory":       "store.in_memory",
		"store_audit_retention": "store.audit_retention",

		// Backup mappings
		"backup_enabled":  "backup.enabled",
		"backup_dir":      "backup.dir",
		"backup_interval": "backup.interval",
		"backup_keep":     "backup.keep",

		// Remote mirror mappings
		"remote_enabled":       "remote.enabled",
		"remote_base_url":      "remote.base_url",
		"remote_token":         "remote.token",
		"remote_timeout":       "remote.timeout",
		"remote_probe_timeout": "remote.probe_timeout",

		// Sync mappings
		"sync_interval":             "sync.interval",
		"sync_sweep_correction":     "sync.sweep_correction",
		"sync_immediate_correction": "sync.immediate_correction",

		// Attendance mappings
		"attendance_timezone":        "attendance.timezone",
		"attendance_cooldown":        "attendance.cooldown",
		"attendance_debounce":        "attendance.debounce",
		"attendance_default_end":     "attendance.default_end",
		"attendance_match_threshold": "attendance.match_threshold",

		// Security mappings
		"jwt_secret":          "security.jwt_secret",
		"admin_username":      "security.admin_username",
		"admin_password_hash": "security.admin_password_hash",
		"session_timeout":     "security.session_timeout",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
