// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package backup takes periodic snapshots of the local store. The store
// is the only authoritative copy of attendance data when the mirror is
// unreachable; losing it between syncs loses records for good.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/store"
)

// Config holds the backup policy.
type Config struct {
	Dir      string
	Interval time.Duration
	// Keep is the number of snapshot files retained; older files are
	// pruned after each successful backup.
	Keep int
}

// Manager writes and prunes snapshot files.
type Manager struct {
	store *store.Store
	cfg   Config
}

// NewManager builds a backup manager and ensures the target directory
// exists.
func NewManager(st *store.Store, cfg Config) (*Manager, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.Keep <= 0 {
		cfg.Keep = 7
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &Manager{store: st, cfg: cfg}, nil
}

// Serve implements suture.Service: snapshot at the configured interval
// until ctx is cancelled. The first snapshot is taken immediately.
func (m *Manager) Serve(ctx context.Context) error {
	for {
		if _, err := m.CreateBackup(); err != nil {
			logging.Error().Err(err).Msg("Backup failed; will retry next interval")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.Interval):
		}
	}
}

// String names the service in supervisor logs.
func (m *Manager) String() string {
	return "backup-manager"
}

// CreateBackup writes one snapshot file and prunes old ones. Returns the
// snapshot path.
func (m *Manager) CreateBackup() (string, error) {
	name := fmt.Sprintf("punchd-%s.badger.bak", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(m.cfg.Dir, name)

	f, err := os.CreateTemp(m.cfg.Dir, name+".tmp")
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	tmpName := f.Name()

	if _, err := m.store.Backup(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close backup file: %w", err)
	}
	// Rename after a complete write so a crash never leaves a truncated
	// file under the final name.
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("finalize backup file: %w", err)
	}

	logging.Info().Str("path", path).Msg("Store backup written")

	if err := m.prune(); err != nil {
		logging.Warn().Err(err).Msg("Backup retention prune failed")
	}
	return path, nil
}

// List returns the snapshot file names, newest first.
func (m *Manager) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.cfg.Dir, "punchd-*.badger.bak"))
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	names := make([]string, len(matches))
	for i, p := range matches {
		names[i] = filepath.Base(p)
	}
	return names, nil
}

func (m *Manager) prune() error {
	matches, err := filepath.Glob(filepath.Join(m.cfg.Dir, "punchd-*.badger.bak"))
	if err != nil {
		return err
	}
	if len(matches) <= m.cfg.Keep {
		return nil
	}
	// Timestamped names sort chronologically.
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-m.cfg.Keep] {
		if err := os.Remove(path); err != nil {
			return err
		}
		logging.Debug().Str("path", path).Msg("Pruned old backup")
	}
	return nil
}
