// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package store

import (
	"fmt"
	"io"
)

// Backup streams a full badger backup to w and returns the version
// watermark of the snapshot.
func (s *Store) Backup(w io.Writer) (uint64, error) {
	since, err := s.db.Backup(w, 0)
	if err != nil {
		return 0, fmt.Errorf("badger backup: %w", err)
	}
	return since, nil
}

// Restore loads a backup stream produced by Backup into the database.
// Intended for operator tooling against an empty store.
func (s *Store) Restore(r io.Reader) error {
	if err := s.db.Load(r, 16); err != nil {
		return fmt.Errorf("badger restore: %w", err)
	}
	return nil
}
