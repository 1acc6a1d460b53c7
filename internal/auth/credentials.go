// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/punchd-io/punchd/internal/config"
)

// ErrInvalidCredentials is returned for any authentication failure.
// Deliberately undifferentiated: callers must not leak whether the
// username or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier checks admin credentials against the configured bcrypt hash.
type Verifier struct {
	username     string
	passwordHash []byte
}

// NewVerifier builds a verifier from the security config. Returns nil when
// no admin account is configured; callers treat a nil verifier as
// auth-disabled.
func NewVerifier(cfg *config.SecurityConfig) *Verifier {
	if cfg.AdminUsername == "" || cfg.AdminPasswordHash == "" {
		return nil
	}
	return &Verifier{
		username:     cfg.AdminUsername,
		passwordHash: []byte(cfg.AdminPasswordHash),
	}
}

// Verify checks the username and password. Both comparisons run on every
// call so response timing does not reveal which input was wrong.
func (v *Verifier) Verify(username, password string) error {
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(v.passwordHash, []byte(password))
	if !userMatch || passErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword produces a bcrypt hash at the default cost. Used by the
// admin bootstrap tooling.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
