// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package mirror

import (
	"context"
)

// Reachability is the explicit result of a connectivity probe. Branching
// on this value (instead of on a raised error) is deliberate: probe
// failure is an expected, first-class outcome.
type Reachability struct {
	Online bool
	// Reason describes why the mirror is considered offline; empty when online.
	Reason string
}

// Probe checks whether the mirror is reachable right now.
func Probe(ctx context.Context, client Client) Reachability {
	if client == nil {
		return Reachability{Online: false, Reason: "mirror disabled"}
	}
	if err := client.Ping(ctx); err != nil {
		return Reachability{Online: false, Reason: err.Error()}
	}
	return Reachability{Online: true}
}
