// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

// Package store is the durable local store for employees and daily
// attendance records, backed by BadgerDB.
//
// The store exclusively owns DailyRecord state. Local durability is the
// central guarantee of the system: a write here succeeds or the whole
// request fails, independent of remote mirror availability.
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/punchd-io/punchd/internal/config"
	"github.com/punchd-io/punchd/internal/models"
)

// Key prefixes for BadgerDB storage.
const (
	employeeKeyPrefix = "employee:"
	recordKeyPrefix   = "record:"
)

// Sentinel errors.
var (
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrRecordNotFound   = errors.New("record not found")
	ErrRecordExists     = errors.New("record already exists")
)

// Store wraps a badger database with the Punchd key layout.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at the configured path.
func Open(cfg config.StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Badger's own logger is noisy at INFO; route nothing through it and
	// rely on our structured logs around store operations.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func employeeKey(id string) []byte {
	return []byte(employeeKeyPrefix + id)
}

func recordKey(employeeID, date string) []byte {
	return []byte(recordKeyPrefix + employeeID + ":" + date)
}

// PutEmployee creates or replaces an employee.
func (s *Store) PutEmployee(emp *models.Employee) error {
	if emp.Department == "" {
		emp.Department = models.DefaultDepartment
	}
	data, err := json.Marshal(emp)
	if err != nil {
		return fmt.Errorf("marshal employee: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(employeeKey(emp.ID), data)
	})
}

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(id string) (*models.Employee, error) {
	var emp models.Employee
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(employeeKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEmployeeNotFound
		}
		if err != nil {
			return fmt.Errorf("get employee: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &emp)
		})
	})
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// DeleteEmployee removes an employee. Daily records are retained; they
// remain addressable for reporting and explicit administrative deletion.
func (s *Store) DeleteEmployee(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(employeeKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEmployeeNotFound
		}
		return err
	})
}

// ListEmployees returns every registered employee.
func (s *Store) ListEmployees() ([]*models.Employee, error) {
	var employees []*models.Employee
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(employeeKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var emp models.Employee
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &emp)
			})
			if err != nil {
				return err
			}
			employees = append(employees, &emp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return employees, nil
}

// GetRecord retrieves the daily record for (employeeID, date).
func (s *Store) GetRecord(employeeID, date string) (*models.DailyRecord, error) {
	var rec models.DailyRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(employeeID, date))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateRecordIfAbsent atomically creates the record unless one already
// exists for its (EmployeeID, Date) key. Returns the stored record in
// either case; created reports whether a write happened. This is the
// "create if absent" primitive the lazy first-event path relies on.
func (s *Store) CreateRecordIfAbsent(rec *models.DailyRecord) (stored *models.DailyRecord, created bool, err error) {
	err = s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(rec.EmployeeID, rec.Date)
		item, err := txn.Get(key)
		if err == nil {
			var existing models.DailyRecord
			if verr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); verr != nil {
				return verr
			}
			stored = &existing
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("probe record: %w", err)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		stored = rec
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// UpdateRecord replaces the stored record. Every caller serializes on
// the machine's per-employee lock: the intake path holds it inside
// Apply, the administrative override takes it via WithLock. Sync
// bookkeeping writes go through MarkSynced and StampSyncAttempt instead,
// which merge against the latest stored value.
func (s *Store) UpdateRecord(rec *models.DailyRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.EmployeeID, rec.Date), data)
	})
}

// loadRecord reads and decodes a record inside txn.
func loadRecord(txn *badger.Txn, key []byte) (*models.DailyRecord, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	var rec models.DailyRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkSynced flips the stored record's SyncStatus to synced, but only
// when its transition fields still equal the snapshot that was pushed.
// A transition applied after the snapshot was taken leaves the record
// pending so the next reconciliation picks it up. Only the sync
// bookkeeping is ever written here; transition fields belong to the
// state machine and the administrative override.
func (s *Store) MarkSynced(snap *models.DailyRecord) (bool, error) {
	var synced bool
	err := s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(snap.EmployeeID, snap.Date)
		stored, err := loadRecord(txn, key)
		if err != nil {
			return err
		}
		if !sameTransitions(stored, snap) {
			return nil
		}
		stored.SyncStatus = models.SyncSynced
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("persist record: %w", err)
		}
		synced = true
		return nil
	})
	return synced, err
}

// StampSyncAttempt sets LastSyncAttempt on the latest stored value,
// preserving any transition fields written since the caller's scan.
func (s *Store) StampSyncAttempt(employeeID, date string, at time.Time) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(employeeID, date)
		stored, err := loadRecord(txn, key)
		if err != nil {
			return err
		}
		stored.LastSyncAttempt = &at
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		return txn.Set(key, data)
	})
}

// sameTransitions reports whether two records agree on every field the
// state machine writes.
func sameTransitions(a, b *models.DailyRecord) bool {
	return timesEqual(a.CheckIn, b.CheckIn) &&
		timesEqual(a.BreakIn, b.BreakIn) &&
		timesEqual(a.BreakOut, b.BreakOut) &&
		timesEqual(a.CheckOut, b.CheckOut) &&
		a.Source == b.Source
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// DeleteRecord removes a record. Only the explicit administrative delete
// path calls this; it is also responsible for attempting mirror deletion.
func (s *Store) DeleteRecord(employeeID, date string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(recordKey(employeeID, date))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRecordNotFound
		}
		return err
	})
}

// PendingRecords returns every record whose sync status is pending.
// The sweep visits them in key order; a failure for one record never
// removes the others from the result.
func (s *Store) PendingRecords() ([]*models.DailyRecord, error) {
	var pending []*models.DailyRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec models.DailyRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if rec.SyncStatus == models.SyncPending {
				pending = append(pending, &rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan pending records: %w", err)
	}
	return pending, nil
}

// RecordsForEmployee returns all records for one employee, newest first.
func (s *Store) RecordsForEmployee(employeeID string) ([]*models.DailyRecord, error) {
	var records []*models.DailyRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordKeyPrefix + employeeID + ":")
		// Reverse iteration seeks to the last key under the prefix.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var rec models.DailyRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan employee records: %w", err)
	}
	return records, nil
}

// ParseRecordKey splits a raw record key into (employeeID, date).
// Exposed for diagnostics.
func ParseRecordKey(key string) (employeeID, date string, ok bool) {
	rest, found := strings.CutPrefix(key, recordKeyPrefix)
	if !found {
		return "", "", false
	}
	idx := strings.LastIndexByte(rest, ':')
	if idx < 0 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
